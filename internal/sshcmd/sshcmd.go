// Package sshcmd builds argument vectors for ssh-based remote
// execution: plain commands, sudo-wrapped commands, and stdin-fed
// patch application. It owns connection defaults, tilde expansion,
// and the connection-multiplexing options.
package sshcmd

import (
	"fmt"
	"os/user"
	"strings"
	"time"
)

const (
	// DefaultKeyPath is the private key used when the caller does not
	// provide one.
	DefaultKeyPath = "~/.ssh/id_ed25519"

	// DefaultTimeout bounds remote command execution unless the caller
	// overrides it. A zero timeout disables the bound entirely.
	DefaultTimeout = 30 * time.Second

	// controlPathTemplate is the ssh control socket location, keyed by
	// host, port, and user so one master connection is reused per
	// destination.
	controlPathTemplate = "~/.ssh/control-%h-%p-%r"

	// controlPersist keeps the master connection alive after the last
	// client exits.
	controlPersist = "10m"
)

// Conn holds the per-call connection parameters for one remote
// operation. Built fresh per call and discarded after.
type Conn struct {
	User    string
	Host    string
	KeyPath string
	Timeout time.Duration
	// Options are raw key=value strings passed to ssh via -o, in order.
	Options []string
	// Multiplex injects control-socket options so one authenticated
	// session is reused per destination.
	Multiplex bool
}

// NewConn applies defaults to the raw per-call parameters.
// timeoutSeconds nil means the default; explicit 0 disables the bound.
func NewConn(remoteUser, remoteHost, privateKey string, timeoutSeconds *uint64, options []string) (Conn, error) {
	if strings.TrimSpace(remoteHost) == "" {
		return Conn{}, &ValidationError{Field: "remote_host", Message: "must not be empty"}
	}

	if remoteUser == "" {
		current, err := user.Current()
		if err != nil {
			return Conn{}, fmt.Errorf("resolve current username: %w", err)
		}
		remoteUser = current.Username
	}

	if privateKey == "" {
		privateKey = DefaultKeyPath
	}

	timeout := DefaultTimeout
	if timeoutSeconds != nil {
		timeout = time.Duration(*timeoutSeconds) * time.Second
	}

	return Conn{
		User:    remoteUser,
		Host:    remoteHost,
		KeyPath: privateKey,
		Timeout: timeout,
		Options: append([]string(nil), options...),
	}, nil
}

// effectiveOptions returns the -o values in final order: multiplexing
// options first (when enabled), then caller options.
func (c Conn) effectiveOptions() ([]string, error) {
	if !c.Multiplex {
		return c.Options, nil
	}
	mux, err := MultiplexOptions()
	if err != nil {
		return nil, err
	}
	return append(mux, c.Options...), nil
}

// Args builds the argv for a plain remote command:
// ssh <host> -l <user> -i <key> <cmd> <args...> [-o <opt>]...
func Args(conn Conn, command string, args []string) ([]string, error) {
	if command == "" {
		return nil, &ValidationError{Field: "cmd", Message: "must not be empty"}
	}

	keyPath, err := ExpandTilde(conn.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("expand private key path: %w", err)
	}

	argv := []string{conn.Host, "-l", conn.User, "-i", keyPath}
	argv = append(argv, command)
	argv = append(argv, args...)
	opts, err := conn.effectiveOptions()
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		argv = append(argv, "-o", opt)
	}
	return argv, nil
}

// SudoArgs builds the argv for a sudo-wrapped remote command. The
// original command becomes the first argument to sudo.
func SudoArgs(conn Conn, command string, args []string) ([]string, error) {
	if command == "" {
		return nil, &ValidationError{Field: "cmd", Message: "must not be empty"}
	}
	return Args(conn, "sudo", append([]string{command}, args...))
}

// PatchArgs builds the argv for applying a patch on the remote host:
// ssh <host> -l <user> -i <key> [-o <opt>]... patch <remote_file>
// The patch body is supplied on stdin by the caller.
func PatchArgs(conn Conn, remoteFile string) ([]string, error) {
	if remoteFile == "" {
		return nil, &ValidationError{Field: "remote_file", Message: "must not be empty"}
	}

	keyPath, err := ExpandTilde(conn.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("expand private key path: %w", err)
	}

	argv := []string{conn.Host, "-l", conn.User, "-i", keyPath}
	opts, err := conn.effectiveOptions()
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		argv = append(argv, "-o", opt)
	}
	argv = append(argv, "patch", remoteFile)
	return argv, nil
}

// ContainsSudo reports whether the command or any argument contains
// the substring "sudo". The non-privileged remote tool rejects such
// calls before spawning anything. This is a guard rail for the model,
// not a security boundary.
func ContainsSudo(command string, args []string) bool {
	if strings.Contains(command, "sudo") {
		return true
	}
	for _, arg := range args {
		if strings.Contains(arg, "sudo") {
			return true
		}
	}
	return false
}

// MultiplexOptions returns the -o values that enable connection
// multiplexing, plus strict host key checking: with no interactive
// terminal to answer a prompt, an unknown host must fail immediately.
func MultiplexOptions() ([]string, error) {
	controlPath, err := ExpandTilde(controlPathTemplate)
	if err != nil {
		return nil, fmt.Errorf("expand control path: %w", err)
	}
	return []string{
		"ControlMaster=auto",
		"ControlPath=" + controlPath,
		"ControlPersist=" + controlPersist,
		"StrictHostKeyChecking=yes",
	}, nil
}
