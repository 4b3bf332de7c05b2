package judge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// mockClient returns a canned response or error.
type mockClient struct {
	response string
	err      error
	calls    int
}

func (m *mockClient) Chat(_ context.Context, _, _ string) (string, error) {
	m.calls++
	return m.response, m.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serviceWith(client ChatClient, mode FailMode) *Service {
	cfg := Config{
		Service:  "openai",
		FailMode: mode,
		Timeout:  time.Second,
		Tools:    SplitTools(DefaultTools),
	}
	return newService(client, cfg, quietLogger())
}

func TestParseVerdictDirect(t *testing.T) {
	verdict, ok := parseVerdict(`{"allowed":true,"reason":"ok"}`)
	if !ok {
		t.Fatalf("expected parse success")
	}
	if !verdict.Allowed || verdict.Reason != "ok" {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}
}

func TestParseVerdictBraceExtraction(t *testing.T) {
	prose := `Sure, here it is: {"allowed":false,"reason":"rm -rf is destructive"} thanks`
	verdict, ok := parseVerdict(prose)
	if !ok {
		t.Fatalf("expected brace-extraction recovery")
	}
	if verdict.Allowed {
		t.Fatalf("expected denial, got %+v", verdict)
	}
	if verdict.Reason != "rm -rf is destructive" {
		t.Fatalf("unexpected reason: %q", verdict.Reason)
	}
}

func TestParseVerdictUnrecoverable(t *testing.T) {
	if _, ok := parseVerdict("no json here at all"); ok {
		t.Fatalf("expected parse failure")
	}
	if _, ok := parseVerdict("} backwards {"); ok {
		t.Fatalf("expected parse failure for inverted braces")
	}
}

func TestShouldJudgeExactMatch(t *testing.T) {
	s := serviceWith(&mockClient{}, FailOpen)
	if !s.ShouldJudge("run_ssh_command") {
		t.Fatalf("expected run_ssh_command to be judged")
	}
	if s.ShouldJudge("run_local_command") {
		t.Fatalf("run_local_command is not in the default judged set")
	}
	if s.ShouldJudge("Run_SSH_Command") {
		t.Fatalf("matching must be case-sensitive")
	}

	var nilService *Service
	if nilService.ShouldJudge("run_ssh_command") {
		t.Fatalf("nil service must be transparent")
	}
}

func TestCheckAllows(t *testing.T) {
	client := &mockClient{response: `{"allowed":true,"reason":"routine"}`}
	s := serviceWith(client, FailClosed)
	if err := s.Check(context.Background(), "run_ssh_command", map[string]any{"cmd": "uptime"}); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}

func TestCheckDeniesWithReason(t *testing.T) {
	client := &mockClient{response: `{"allowed":false,"reason":"touches /boot"}`}
	s := serviceWith(client, FailOpen)
	err := s.Check(context.Background(), "run_ssh_sudo_command", map[string]any{"cmd": "rm"})
	if err == nil {
		t.Fatalf("expected denial")
	}
	var denial *DenialError
	if !errors.As(err, &denial) {
		t.Fatalf("expected DenialError, got %T", err)
	}
	if !strings.Contains(denial.Reason, "touches /boot") {
		t.Fatalf("denial must surface the verdict reason, got %q", denial.Reason)
	}
}

func TestCheckFailOpenAllowsOnBackendError(t *testing.T) {
	client := &mockClient{err: errors.New("connection refused")}
	s := serviceWith(client, FailOpen)
	for i := 0; i < 3; i++ {
		if err := s.Check(context.Background(), "copy_file", nil); err != nil {
			t.Fatalf("fail-open must allow on backend error, got %v", err)
		}
	}
	if client.calls != 3 {
		t.Fatalf("expected one backend call per check, got %d", client.calls)
	}
}

func TestCheckFailClosedDeniesOnBackendError(t *testing.T) {
	client := &mockClient{err: errors.New("connection refused")}
	s := serviceWith(client, FailClosed)
	err := s.Check(context.Background(), "copy_file", nil)
	if err == nil {
		t.Fatalf("fail-closed must deny on backend error")
	}
	if !strings.Contains(err.Error(), "judge unavailable") {
		t.Fatalf("denial must explain unavailability, got %q", err.Error())
	}
}

func TestCheckFailClosedDeniesOnGarbageResponse(t *testing.T) {
	client := &mockClient{response: "I cannot evaluate that."}
	s := serviceWith(client, FailClosed)
	if err := s.Check(context.Background(), "patch_file", nil); err == nil {
		t.Fatalf("unparseable response must resolve per fail mode")
	}
}

func TestConfigFromEnvDefaults(t *testing.T) {
	for _, key := range []string{envService, envModel, envAPIKey, envBaseURL, envTimeoutSeconds, envFailMode, envTools} {
		t.Setenv(key, "")
	}
	cfg, err := ConfigFromEnv(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Enabled() {
		t.Fatalf("missing service must disable the judge")
	}
	if cfg.Model != DefaultModel {
		t.Fatalf("expected default model, got %q", cfg.Model)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Fatalf("expected default timeout, got %s", cfg.Timeout)
	}
	if cfg.FailMode != FailOpen {
		t.Fatalf("expected fail-open default, got %q", cfg.FailMode)
	}
	want := []string{"run_ssh_command", "run_ssh_sudo_command", "copy_file", "patch_file"}
	if len(cfg.Tools) != len(want) {
		t.Fatalf("unexpected judged set: %v", cfg.Tools)
	}
	for i, tool := range want {
		if cfg.Tools[i] != tool {
			t.Fatalf("unexpected judged set: %v", cfg.Tools)
		}
	}
}

func TestConfigFromEnvOverrides(t *testing.T) {
	t.Setenv(envService, "ollama")
	t.Setenv(envModel, "llama3")
	t.Setenv(envTimeoutSeconds, "25")
	t.Setenv(envFailMode, "closed")
	t.Setenv(envTools, " run_local_command , copy_file ")

	cfg, err := ConfigFromEnv(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Enabled() || cfg.Service != "ollama" {
		t.Fatalf("unexpected service: %q", cfg.Service)
	}
	if cfg.Timeout != 25*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.Timeout)
	}
	if cfg.FailMode != FailClosed {
		t.Fatalf("unexpected fail mode: %q", cfg.FailMode)
	}
	if len(cfg.Tools) != 2 || cfg.Tools[0] != "run_local_command" || cfg.Tools[1] != "copy_file" {
		t.Fatalf("judged tool names must be trimmed, got %v", cfg.Tools)
	}
}

func TestConfigFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv(envFailMode, "maybe")
	if _, err := ConfigFromEnv(Config{}); err == nil {
		t.Fatalf("expected error for invalid fail mode")
	}
	t.Setenv(envFailMode, "open")
	t.Setenv(envTimeoutSeconds, "soon")
	if _, err := ConfigFromEnv(Config{}); err == nil {
		t.Fatalf("expected error for invalid timeout")
	}
}

func TestNewChatClientValidation(t *testing.T) {
	if _, err := NewChatClient(Config{Service: "mystery"}); !errors.Is(err, ErrUnsupportedService) {
		t.Fatalf("expected ErrUnsupportedService, got %v", err)
	}
	for _, service := range []string{"openai", "anthropic", "gemini"} {
		if _, err := NewChatClient(Config{Service: service}); !errors.Is(err, ErrMissingAPIKey) {
			t.Fatalf("%s without a key must fail, got %v", service, err)
		}
	}
	if _, err := NewChatClient(Config{Service: "ollama", Model: "llama3"}); err != nil {
		t.Fatalf("ollama must not require a key, got %v", err)
	}
}
