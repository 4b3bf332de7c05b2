package runner

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError reports invalid input caught before any spawn.
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

// ExecError wraps infrastructure failures: the process could not be
// spawned, fed, or awaited. Distinct from a nonzero exit, which is a
// normal Result.
type ExecError struct {
	Cmd  string
	Args []string
	Err  error
}

func (e *ExecError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("command failed: %s: %v", e.Cmd, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that the bounded wait expired. It carries the
// configured timeout so callers can surface it.
type TimeoutError struct {
	Cmd     string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command timed out after %s: %s", e.Timeout, e.Cmd)
}

// IsTimeout reports whether err (or a wrapped cause) is a TimeoutError.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}
