// Package judge gates tool calls behind an LLM policy reviewer. A
// configured backend is asked to approve or deny each judged call;
// when the backend is unreachable the configured fail mode decides.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// systemPrompt is the fixed reviewer instruction.
const systemPrompt = "You are a security judge for an SSH command execution system. " +
	"Evaluate tool calls for safety and appropriateness. " +
	"Consider: " +
	"- Destructive operations (rm, format, dd, etc.) " +
	"- Sensitive system paths (/etc, /root, /boot, etc.) " +
	"- Production vs development environments " +
	"- Network operations that could affect connectivity " +
	"- File operations that could overwrite critical files " +
	"\nReturn JSON: {\"allowed\": true/false, \"reason\": \"brief explanation\"}"

// Verdict is the reviewer's decision, parsed per call.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// DenialError reports a tool call rejected by the judge. It always
// carries the verdict's reason and always blocks dispatch.
type DenialError struct {
	Tool   string
	Reason string
}

func (e *DenialError) Error() string {
	return fmt.Sprintf("tool call rejected by judge: %s", e.Reason)
}

// Service evaluates tool calls against a single shared backend.
// Immutable after construction; safe for concurrent use.
type Service struct {
	client   ChatClient
	failMode FailMode
	tools    map[string]struct{}
	timeout  time.Duration
	logger   *slog.Logger
}

// NewService builds a judge service from configuration. An unsupported
// service id or a missing credential fails here, at startup.
func NewService(cfg Config, logger *slog.Logger) (*Service, error) {
	client, err := NewChatClient(cfg)
	if err != nil {
		return nil, err
	}
	return newService(client, cfg, logger), nil
}

// newService wires an explicit backend; used by NewService and tests.
func newService(client ChatClient, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	tools := make(map[string]struct{}, len(cfg.Tools))
	for _, tool := range cfg.Tools {
		tools[tool] = struct{}{}
	}
	return &Service{
		client:   client,
		failMode: cfg.FailMode,
		tools:    tools,
		timeout:  cfg.Timeout,
		logger:   logger,
	}
}

// ShouldJudge reports whether the tool is in the judged set. Matching
// is exact and case-sensitive.
func (s *Service) ShouldJudge(toolName string) bool {
	if s == nil {
		return false
	}
	_, ok := s.tools[toolName]
	return ok
}

// Check submits the proposed call to the reviewer and returns a
// DenialError when it must not proceed. Backend errors, timer expiry,
// and unparseable responses are all "judge unavailable" and resolve
// per the fail mode — they are never surfaced as tool failures.
func (s *Service) Check(ctx context.Context, toolName string, params any) error {
	prompt := renderPrompt(toolName, params)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	response, err := s.client.Chat(ctx, systemPrompt, prompt)
	if err != nil {
		s.logger.Error("judge backend error", "tool", toolName, "error", err)
		return s.resolveUnavailable(toolName, "judge backend unavailable")
	}

	verdict, ok := parseVerdict(response)
	if !ok {
		s.logger.Error("failed to parse judge response", "tool", toolName, "response", response)
		return s.resolveUnavailable(toolName, "failed to parse judge response")
	}

	if !verdict.Allowed {
		return &DenialError{Tool: toolName, Reason: verdict.Reason}
	}
	return nil
}

// resolveUnavailable applies the fail mode to a judge-unavailable
// condition.
func (s *Service) resolveUnavailable(toolName, message string) error {
	switch s.failMode {
	case FailClosed:
		return &DenialError{Tool: toolName, Reason: "judge unavailable: " + message}
	default:
		s.logger.Warn("judge unavailable, allowing tool call", "tool", toolName, "fail_mode", "open", "cause", message)
		return nil
	}
}

// renderPrompt formats the tool name and pretty-printed parameters
// into the user message.
func renderPrompt(toolName string, params any) string {
	pretty, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		pretty = []byte(fmt.Sprintf("%v", params))
	}
	return fmt.Sprintf(
		"Tool: %s\nParameters:\n%s\n\nEvaluate if this tool call should be allowed. Return JSON: {\"allowed\": true/false, \"reason\": \"brief explanation\"}",
		toolName, pretty,
	)
}

// parseVerdict decodes the reviewer response. When the whole text is
// not valid JSON it falls back to the substring between the first '{'
// and the last '}', recovering a verdict embedded in prose.
func parseVerdict(response string) (Verdict, bool) {
	var verdict Verdict
	if err := json.Unmarshal([]byte(response), &verdict); err == nil {
		return verdict, true
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return Verdict{}, false
	}
	if err := json.Unmarshal([]byte(response[start:end+1]), &verdict); err != nil {
		return Verdict{}, false
	}
	return verdict, true
}
