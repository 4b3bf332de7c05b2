package tools

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/misty-step/magehand/internal/runner"
	"github.com/misty-step/magehand/internal/sshcmd"
)

// recordingRunner captures the request instead of spawning anything.
type recordingRunner struct {
	last  runner.Request
	calls int
}

func (r *recordingRunner) Run(_ context.Context, req runner.Request) (runner.Result, error) {
	r.last = req
	r.calls++
	zero := 0
	return runner.Result{ExitCode: &zero, Stdout: "ok"}, nil
}

func newTestDispatcher(rec *recordingRunner) *Dispatcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDispatcher(rec, false, logger)
}

func TestDispatchUnknownTool(t *testing.T) {
	rec := &recordingRunner{}
	d := newTestDispatcher(rec)
	_, err := d.Dispatch(context.Background(), "reboot_everything", nil)
	if err == nil {
		t.Fatalf("expected unknown tool error")
	}
	var unknownErr *UnknownToolError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("expected UnknownToolError, got %T", err)
	}
	if rec.calls != 0 {
		t.Fatalf("nothing must be spawned for unknown tools")
	}
}

func TestDispatchMalformedParams(t *testing.T) {
	rec := &recordingRunner{}
	d := newTestDispatcher(rec)
	_, err := d.Dispatch(context.Background(), ToolRunLocal, map[string]any{"cmd": 42})
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if rec.calls != 0 {
		t.Fatalf("nothing must be spawned on decode failure")
	}
}

func TestDispatchLocalRun(t *testing.T) {
	rec := &recordingRunner{}
	d := newTestDispatcher(rec)
	result, err := d.Dispatch(context.Background(), ToolRunLocal, map[string]any{
		"cmd":  "uptime",
		"args": []any{"-p"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.last.Cmd != "uptime" || len(rec.last.Args) != 1 || rec.last.Args[0] != "-p" {
		t.Fatalf("unexpected request: %+v", rec.last)
	}
	if rec.last.Timeout != defaultLocalTimeout {
		t.Fatalf("expected default timeout, got %s", rec.last.Timeout)
	}
	if result.Stdout != "ok" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRunLocalExplicitZeroTimeout(t *testing.T) {
	rec := &recordingRunner{}
	d := newTestDispatcher(rec)
	zero := uint64(0)
	if _, err := d.RunLocal(context.Background(), LocalParams{Cmd: "sleep", TimeoutSeconds: &zero}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.last.Timeout != 0 {
		t.Fatalf("explicit 0 must disable the timeout, got %s", rec.last.Timeout)
	}
}

func TestRunSSHBuildsSSHInvocation(t *testing.T) {
	rec := &recordingRunner{}
	d := newTestDispatcher(rec)
	_, err := d.Dispatch(context.Background(), ToolRunSSH, map[string]any{
		"cmd":         "uptime",
		"remote_host": "test.local",
		"remote_user": "admin",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.last.Cmd != "ssh" {
		t.Fatalf("expected ssh invocation, got %q", rec.last.Cmd)
	}
	joined := strings.Join(rec.last.Args, " ")
	if !strings.HasPrefix(joined, "test.local -l admin -i ") {
		t.Fatalf("unexpected argv: %v", rec.last.Args)
	}
	if !strings.HasSuffix(joined, " uptime") {
		t.Fatalf("unexpected argv: %v", rec.last.Args)
	}
	if rec.last.Timeout != 30*time.Second {
		t.Fatalf("expected default remote timeout, got %s", rec.last.Timeout)
	}
}

func TestRunSSHRejectsSudoBeforeSpawning(t *testing.T) {
	rec := &recordingRunner{}
	d := newTestDispatcher(rec)

	cases := []map[string]any{
		{"cmd": "sudo", "args": []any{"reboot"}, "remote_host": "test.local"},
		{"cmd": "sh", "args": []any{"-c", "sudo reboot"}, "remote_host": "test.local"},
	}
	for _, args := range cases {
		_, err := d.Dispatch(context.Background(), ToolRunSSH, args)
		if err == nil {
			t.Fatalf("expected sudo rejection for %v", args)
		}
		var validationErr *sshcmd.ValidationError
		if !errors.As(err, &validationErr) {
			t.Fatalf("expected ValidationError, got %T", err)
		}
	}
	if rec.calls != 0 {
		t.Fatalf("sudo rejection must happen before any spawn")
	}
}

func TestRunSSHSudoWrapsCommand(t *testing.T) {
	rec := &recordingRunner{}
	d := newTestDispatcher(rec)
	_, err := d.Dispatch(context.Background(), ToolRunSSHSudo, map[string]any{
		"cmd":         "systemctl",
		"args":        []any{"restart", "nginx"},
		"remote_host": "test.local",
		"remote_user": "admin",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	joined := strings.Join(rec.last.Args, " ")
	if !strings.Contains(joined, "sudo systemctl restart nginx") {
		t.Fatalf("expected sudo-wrapped command: %v", rec.last.Args)
	}
}

func TestRunSSHRequiresHost(t *testing.T) {
	rec := &recordingRunner{}
	d := newTestDispatcher(rec)
	_, err := d.Dispatch(context.Background(), ToolRunSSH, map[string]any{"cmd": "uptime"})
	if err == nil {
		t.Fatalf("expected validation error for missing host")
	}
	if rec.calls != 0 {
		t.Fatalf("nothing must be spawned without a host")
	}
}

func TestCopyDispatch(t *testing.T) {
	rec := &recordingRunner{}
	d := newTestDispatcher(rec)
	_, err := d.Dispatch(context.Background(), ToolCopyFile, map[string]any{
		"source":      "/tmp/report.txt",
		"destination": "/tmp/report.txt",
		"remote_host": "test.local",
		"remote_user": "admin",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.last.Cmd != "rsync" {
		t.Fatalf("expected rsync, got %q", rec.last.Cmd)
	}
	if rec.last.Args[len(rec.last.Args)-1] != "admin@test.local:/tmp/report.txt" {
		t.Fatalf("unexpected target: %v", rec.last.Args)
	}
}

func TestPatchDispatch(t *testing.T) {
	rec := &recordingRunner{}
	d := newTestDispatcher(rec)
	diff := "--- a\n+++ b\n"
	_, err := d.Dispatch(context.Background(), ToolPatchFile, map[string]any{
		"patch":       diff,
		"remote_file": "/etc/motd",
		"remote_host": "test.local",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(rec.last.Stdin) != diff {
		t.Fatalf("patch body must be the stdin payload, got %q", rec.last.Stdin)
	}
}

func TestDispatcherMultiplexFlagReachesConn(t *testing.T) {
	rec := &recordingRunner{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := NewDispatcher(rec, true, logger)
	_, err := d.Dispatch(context.Background(), ToolRunSSH, map[string]any{
		"cmd":         "uptime",
		"remote_host": "test.local",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	joined := strings.Join(rec.last.Args, " ")
	if !strings.Contains(joined, "ControlMaster=auto") || !strings.Contains(joined, "StrictHostKeyChecking=yes") {
		t.Fatalf("multiplexing options missing: %v", rec.last.Args)
	}
}
