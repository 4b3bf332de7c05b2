// Package tools maps structured tool requests onto the execution
// engine: five operations, decoded once, routed to exactly one
// handler. Unknown names and malformed parameters fail before any
// process is spawned.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/misty-step/magehand/internal/runner"
	"github.com/misty-step/magehand/internal/sshcmd"
	"github.com/misty-step/magehand/internal/transfer"
)

// Tool names exposed on the protocol surface.
const (
	ToolRunLocal   = "run_local_command"
	ToolRunSSH     = "run_ssh_command"
	ToolRunSSHSudo = "run_ssh_sudo_command"
	ToolCopyFile   = "copy_file"
	ToolPatchFile  = "patch_file"
)

// defaultLocalTimeout bounds local command execution unless the caller
// overrides it.
const defaultLocalTimeout = 30 * time.Second

// SSHParams are the per-call connection parameters shared by the
// remote tools.
type SSHParams struct {
	RemoteUser     string   `json:"remote_user,omitempty"`
	RemoteHost     string   `json:"remote_host"`
	PrivateKey     string   `json:"private_key,omitempty"`
	TimeoutSeconds *uint64  `json:"timeout_seconds,omitempty"`
	Options        []string `json:"options,omitempty"`
}

// LocalParams describe one local command execution.
type LocalParams struct {
	Cmd            string   `json:"cmd"`
	Args           []string `json:"args,omitempty"`
	TimeoutSeconds *uint64  `json:"timeout_seconds,omitempty"`
}

// RunParams describe one remote command execution.
type RunParams struct {
	Cmd  string   `json:"cmd"`
	Args []string `json:"args,omitempty"`
	SSHParams
}

// CopyParams describe one local-to-remote file copy.
type CopyParams struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	SSHParams
}

// PatchParams describe one remote patch application.
type PatchParams struct {
	Patch      string `json:"patch"`
	RemoteFile string `json:"remote_file"`
	SSHParams
}

// UnknownToolError reports a tool name outside the supported set.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// Dispatcher routes one structured request to one typed handler. It is
// stateless per request; the only shared state is the runner, the
// multiplex toggle, and the logger, all read-only.
type Dispatcher struct {
	runner    runner.Runner
	multiplex bool
	logger    *slog.Logger
}

// NewDispatcher wires the execution engine. A nil runner gets the
// default ExecRunner; a nil logger gets slog.Default.
func NewDispatcher(r runner.Runner, multiplex bool, logger *slog.Logger) *Dispatcher {
	if r == nil {
		r = &runner.ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{runner: r, multiplex: multiplex, logger: logger}
}

// Dispatch decodes the raw arguments for the named tool and invokes
// the matching handler. One dispatch per request; no retries.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) (runner.Result, error) {
	requestID := uuid.NewString()
	d.logger.Info("tool call", "request_id", requestID, "tool", name)

	result, err := d.route(ctx, name, args)
	if err != nil {
		d.logger.Error("tool call failed", "request_id", requestID, "tool", name, "error", err)
		return result, err
	}
	d.logger.Info("tool call completed", "request_id", requestID, "tool", name, "status_code", statusCodeValue(result))
	return result, nil
}

func (d *Dispatcher) route(ctx context.Context, name string, args map[string]any) (runner.Result, error) {
	switch name {
	case ToolRunLocal:
		var params LocalParams
		if err := decodeParams(args, &params); err != nil {
			return runner.Result{}, err
		}
		return d.RunLocal(ctx, params)
	case ToolRunSSH:
		var params RunParams
		if err := decodeParams(args, &params); err != nil {
			return runner.Result{}, err
		}
		return d.RunSSH(ctx, params)
	case ToolRunSSHSudo:
		var params RunParams
		if err := decodeParams(args, &params); err != nil {
			return runner.Result{}, err
		}
		return d.RunSSHSudo(ctx, params)
	case ToolCopyFile:
		var params CopyParams
		if err := decodeParams(args, &params); err != nil {
			return runner.Result{}, err
		}
		return d.Copy(ctx, params)
	case ToolPatchFile:
		var params PatchParams
		if err := decodeParams(args, &params); err != nil {
			return runner.Result{}, err
		}
		return d.Patch(ctx, params)
	default:
		return runner.Result{}, &UnknownToolError{Name: name}
	}
}

// RunLocal executes a command on the local system, bypassing the ssh
// builder entirely.
func (d *Dispatcher) RunLocal(ctx context.Context, params LocalParams) (runner.Result, error) {
	if params.Cmd == "" {
		return runner.Result{}, &sshcmd.ValidationError{Field: "cmd", Message: "must not be empty"}
	}
	timeout := defaultLocalTimeout
	if params.TimeoutSeconds != nil {
		timeout = time.Duration(*params.TimeoutSeconds) * time.Second
	}
	return d.runner.Run(ctx, runner.Request{
		Cmd:     params.Cmd,
		Args:    params.Args,
		Timeout: timeout,
	})
}

// RunSSH executes a non-privileged remote command. Any "sudo" in the
// command or arguments is rejected before anything is spawned.
func (d *Dispatcher) RunSSH(ctx context.Context, params RunParams) (runner.Result, error) {
	if sshcmd.ContainsSudo(params.Cmd, params.Args) {
		return runner.Result{}, &sshcmd.ValidationError{
			Field:   "cmd",
			Message: "you may not run commands with sudo using this tool",
		}
	}
	conn, err := d.conn(params.SSHParams)
	if err != nil {
		return runner.Result{}, err
	}
	argv, err := sshcmd.Args(conn, params.Cmd, params.Args)
	if err != nil {
		return runner.Result{}, err
	}
	return d.runner.Run(ctx, runner.Request{Cmd: "ssh", Args: argv, Timeout: conn.Timeout})
}

// RunSSHSudo executes a remote command wrapped in sudo.
func (d *Dispatcher) RunSSHSudo(ctx context.Context, params RunParams) (runner.Result, error) {
	conn, err := d.conn(params.SSHParams)
	if err != nil {
		return runner.Result{}, err
	}
	argv, err := sshcmd.SudoArgs(conn, params.Cmd, params.Args)
	if err != nil {
		return runner.Result{}, err
	}
	return d.runner.Run(ctx, runner.Request{Cmd: "ssh", Args: argv, Timeout: conn.Timeout})
}

// Copy syncs a local file to the remote host.
func (d *Dispatcher) Copy(ctx context.Context, params CopyParams) (runner.Result, error) {
	conn, err := d.conn(params.SSHParams)
	if err != nil {
		return runner.Result{}, err
	}
	return transfer.Copy(ctx, d.runner, conn, params.Source, params.Destination)
}

// Patch applies patch content to a remote file.
func (d *Dispatcher) Patch(ctx context.Context, params PatchParams) (runner.Result, error) {
	conn, err := d.conn(params.SSHParams)
	if err != nil {
		return runner.Result{}, err
	}
	return transfer.Patch(ctx, d.runner, conn, params.RemoteFile, params.Patch)
}

func (d *Dispatcher) conn(params SSHParams) (sshcmd.Conn, error) {
	conn, err := sshcmd.NewConn(params.RemoteUser, params.RemoteHost, params.PrivateKey, params.TimeoutSeconds, params.Options)
	if err != nil {
		return sshcmd.Conn{}, err
	}
	conn.Multiplex = d.multiplex
	return conn, nil
}

// decodeParams converts raw tool arguments into a typed parameter
// struct. Failures here are decode errors: nothing has been spawned.
func decodeParams(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode tool arguments: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("malformed tool arguments: %w", err)
	}
	return nil
}

func statusCodeValue(result runner.Result) any {
	if result.ExitCode == nil {
		return nil
	}
	return *result.ExitCode
}
