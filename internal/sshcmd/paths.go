package sshcmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidationError reports invalid per-call parameters, caught before
// any process is spawned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ExpandTilde resolves a leading "~" or "~/" prefix against the
// current user's home directory. Other paths pass through unchanged.
func ExpandTilde(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}

// Quote wraps a value in single quotes, escaping any embedded single
// quotes, for safe embedding in a POSIX sh command string.
func Quote(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}
