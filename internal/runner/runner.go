// Package runner executes subprocesses with an optional stdin payload
// and a bounded wait. It is the single spawn point for every tool: the
// local command tool and the ssh/rsync wrappers all run through it.
package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// Request describes one subprocess execution.
type Request struct {
	Cmd     string
	Args    []string
	Stdin   []byte
	Timeout time.Duration // 0 waits unconditionally
}

// Result captures normalized subprocess output. ExitCode is nil when
// the child was killed or signaled and never reported a code.
type Result struct {
	ExitCode *int
	Stdout   string
	Stderr   string
}

// Runner executes external commands.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

// Run spawns req.Cmd, writes and closes the stdin payload if present,
// and waits for completion. A nonzero exit is a normal Result, not an
// error; only spawn/wait failures and timer expiry return errors.
func (r *ExecRunner) Run(ctx context.Context, req Request) (Result, error) {
	if req.Cmd == "" {
		return Result{}, &ValidationError{Field: "command", Message: "must not be empty"}
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, req.Cmd, req.Args...)
	if len(req.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(req.Stdin)
	}

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		// The child has been killed; partial output is discarded.
		return Result{}, &TimeoutError{Cmd: req.Cmd, Timeout: req.Timeout}
	}

	result := Result{
		Stdout: decode(stdout.Bytes()),
		Stderr: decode(stderr.Bytes()),
	}
	if cmd.ProcessState != nil {
		if code := cmd.ProcessState.ExitCode(); code >= 0 {
			result.ExitCode = &code
		}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The process ran to completion and reported failure.
			// That is diagnostics for the caller, not an infra error.
			return result, nil
		}
		return result, &ExecError{Cmd: req.Cmd, Args: append([]string(nil), req.Args...), Err: err}
	}
	return result, nil
}

// decode converts raw output permissively: invalid UTF-8 sequences are
// replaced rather than failing the call, and surrounding whitespace is
// trimmed.
func decode(raw []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(raw), "�"))
}
