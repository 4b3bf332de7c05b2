// Package transfer implements the file-moving operations: copying a
// local file to a remote host with rsync over ssh, and applying a
// patch to a remote file by streaming it to the remote patch command.
package transfer

import (
	"context"
	"fmt"
	"strings"

	"github.com/misty-step/magehand/internal/runner"
	"github.com/misty-step/magehand/internal/sshcmd"
)

// CopyArgs builds the rsync argv for one copy operation.
//
//	-a  archive mode (permissions, timestamps)
//	-v  verbose
//	-b  back up a pre-existing destination instead of clobbering it
//	-e  ssh transport with the resolved identity (and multiplexing
//	    options when enabled)
//
// Under multiplexing the target omits the user prefix: the control
// socket already carries the authenticated identity.
func CopyArgs(conn sshcmd.Conn, source, destination string) ([]string, error) {
	if source == "" {
		return nil, &sshcmd.ValidationError{Field: "source", Message: "must not be empty"}
	}
	if destination == "" {
		return nil, &sshcmd.ValidationError{Field: "destination", Message: "must not be empty"}
	}

	expandedSource, err := sshcmd.ExpandTilde(source)
	if err != nil {
		return nil, fmt.Errorf("expand source path: %w", err)
	}
	keyPath, err := sshcmd.ExpandTilde(conn.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("expand private key path: %w", err)
	}

	transport := []string{"ssh", "-i", sshcmd.Quote(keyPath)}
	target := fmt.Sprintf("%s@%s:%s", conn.User, conn.Host, destination)
	if conn.Multiplex {
		mux, err := sshcmd.MultiplexOptions()
		if err != nil {
			return nil, err
		}
		for _, opt := range mux {
			transport = append(transport, "-o", sshcmd.Quote(opt))
		}
		target = fmt.Sprintf("%s:%s", conn.Host, destination)
	}

	return []string{
		"-avb",
		"-e", strings.Join(transport, " "),
		expandedSource,
		target,
	}, nil
}

// Copy syncs a local file to the remote destination. A nonzero rsync
// exit is a normal Result carrying rsync's own diagnostics.
func Copy(ctx context.Context, r runner.Runner, conn sshcmd.Conn, source, destination string) (runner.Result, error) {
	argv, err := CopyArgs(conn, source, destination)
	if err != nil {
		return runner.Result{}, err
	}
	return r.Run(ctx, runner.Request{
		Cmd:     "rsync",
		Args:    argv,
		Timeout: conn.Timeout,
	})
}

// Patch applies patch content to a file on the remote host. The body
// is fed to the remote patch process on stdin; the stream is closed
// before the output is awaited.
func Patch(ctx context.Context, r runner.Runner, conn sshcmd.Conn, remoteFile, patch string) (runner.Result, error) {
	if patch == "" {
		return runner.Result{}, &sshcmd.ValidationError{Field: "patch", Message: "must not be empty"}
	}
	argv, err := sshcmd.PatchArgs(conn, remoteFile)
	if err != nil {
		return runner.Result{}, err
	}
	return r.Run(ctx, runner.Request{
		Cmd:     "ssh",
		Args:    argv,
		Stdin:   []byte(patch),
		Timeout: conn.Timeout,
	})
}
