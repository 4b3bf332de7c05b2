package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Instructions is the server persona presented to the model.
const Instructions = "You are an expert POSIX compatible system (Linux, BSD, macOS) system " +
	"administrator. You run commands on a remote POSIX compatible system " +
	"(Linux, BSD, macOS) system to troubleshoot, fix issues and perform " +
	"general administration."

const publicKeysURI = "file:///public_keys"

// toolResult is the normalized payload for every successful tool call.
// status_code is null when the process was killed or signaled.
type toolResult struct {
	StatusCode *int   `json:"status_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
}

// Register declares the five tools and the public-keys resource on the
// MCP server, all routed through the dispatcher.
func Register(s *server.MCPServer, d *Dispatcher) {
	s.AddTool(mcp.NewTool(ToolRunLocal,
		mcp.WithDescription("Run a command on the local system and return the output. "+
			"Use this sparingly; only when needed to troubleshoot why connecting to the "+
			"remote system is failing."),
		mcp.WithString("cmd", mcp.Required(),
			mcp.Description("The command to run. This must be a single command. Arguments must be passed in the args parameter.")),
		mcp.WithArray("args", mcp.WithStringItems(),
			mcp.Description("The arguments to pass to the command.")),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("Timeout in seconds for the command execution. Defaults to 30 seconds. Set to 0 to disable timeout.")),
	), d.handle(ToolRunLocal))

	s.AddTool(newRemoteTool(ToolRunSSH,
		"Run a command on a remote POSIX compatible system (Linux, BSD, macOS) system "+
			"and return the output. This tool does not permit commands to be run with sudo.",
	), d.handle(ToolRunSSH))

	s.AddTool(newRemoteTool(ToolRunSSHSudo,
		"Run a command on a remote POSIX compatible system (Linux, BSD, macOS) system "+
			"and return the output. This tool explicitly runs commands with sudo.",
	), d.handle(ToolRunSSHSudo))

	s.AddTool(mcp.NewTool(ToolCopyFile,
		mcp.WithDescription("Copy a file from the local machine to a remote POSIX compatible system "+
			"(Linux, BSD, macOS) using rsync over SSH. Preserves file attributes and creates a "+
			"backup if the destination file already exists."),
		mcp.WithString("source", mcp.Required(),
			mcp.Description("The source file path on the local machine.")),
		mcp.WithString("destination", mcp.Required(),
			mcp.Description("The destination file path on the remote machine.")),
		connOptions(),
	), d.handle(ToolCopyFile))

	s.AddTool(mcp.NewTool(ToolPatchFile,
		mcp.WithDescription("Apply a patch or diff to a file on the remote machine using the patch "+
			"command. The patch content is streamed via stdin over SSH. By default, patch will "+
			"attempt to automatically detect the correct strip level (-p). Use unified diff "+
			"format for best results."),
		mcp.WithString("patch", mcp.Required(),
			mcp.Description("The patch/diff content to apply.")),
		mcp.WithString("remote_file", mcp.Required(),
			mcp.Description("The path to the file on the remote machine to patch.")),
		connOptions(),
	), d.handle(ToolPatchFile))

	s.AddResource(mcp.NewResource(publicKeysURI, "public_keys",
		mcp.WithResourceDescription("List public keys available on the local system"),
		mcp.WithMIMEType("text/plain"),
	), readPublicKeys)
}

// newRemoteTool declares a remote command tool: cmd/args plus the
// shared connection parameters.
func newRemoteTool(name, description string) mcp.Tool {
	return mcp.NewTool(name,
		mcp.WithDescription(description),
		mcp.WithString("cmd", mcp.Required(),
			mcp.Description("The command to run. This must be a single command. Arguments must be passed in the args parameter.")),
		mcp.WithArray("args", mcp.WithStringItems(),
			mcp.Description("The arguments to pass to the command.")),
		connOptions(),
	)
}

// connOptions declares the shared per-call connection parameters.
func connOptions() mcp.ToolOption {
	return func(t *mcp.Tool) {
		mcp.WithString("remote_host", mcp.Required(),
			mcp.Description("The host to run the command on."))(t)
		mcp.WithString("remote_user",
			mcp.Description("The user to run the command as. Defaults to the current username."))(t)
		mcp.WithString("private_key",
			mcp.Description("Path to the private key to use for authentication. Defaults to ~/.ssh/id_ed25519."))(t)
		mcp.WithNumber("timeout_seconds",
			mcp.Description("Timeout in seconds for the command execution. Defaults to 30 seconds. Set to 0 to disable timeout."))(t)
		mcp.WithArray("options", mcp.WithStringItems(),
			mcp.Description("Additional options to pass to the ssh command. Each option should be a key-value pair separated by an equal sign (=). The options are passed to the ssh command using the -o flag."))(t)
	}
}

// handle adapts the dispatcher to one mcp-go tool handler. Normal
// completion — nonzero exit included — returns the structured result;
// infrastructure and decode failures become tool errors.
func (d *Dispatcher) handle(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := d.Dispatch(ctx, name, request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		payload, err := json.Marshal(toolResult{
			StatusCode: result.ExitCode,
			Stdout:     result.Stdout,
			Stderr:     result.Stderr,
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode tool result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
}

// readPublicKeys lists the *.pub basenames under ~/.ssh as a
// comma-separated text resource.
func readPublicKeys(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	entries, err := os.ReadDir(filepath.Join(home, ".ssh"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			entries = nil
		} else {
			return nil, fmt.Errorf("read ~/.ssh: %w", err)
		}
	}

	var keys []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".pub") {
			keys = append(keys, entry.Name())
		}
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "text/plain",
			Text:     strings.Join(keys, ","),
		},
	}, nil
}
