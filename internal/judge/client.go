package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Common errors for judge backends.
var (
	// ErrUnsupportedService indicates an unrecognized backend id.
	ErrUnsupportedService = errors.New("judge: unsupported service")

	// ErrMissingAPIKey indicates the chosen backend requires a credential.
	ErrMissingAPIKey = errors.New("judge: missing API key")

	// ErrEmptyResponse indicates the backend returned no usable text.
	ErrEmptyResponse = errors.New("judge: empty response")
)

// ChatClient is the capability a policy-reasoning backend must
// provide: submit a system instruction plus one user message, return
// the response text.
type ChatClient interface {
	Chat(ctx context.Context, system, userMsg string) (string, error)
}

// APIError captures a non-2xx backend response.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("judge: %s api error %d: %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("judge: %s api error %d", e.Service, e.StatusCode)
}

// NewChatClient constructs the backend selected by cfg.Service. The
// supported set is fixed; anything else is a startup configuration
// error.
func NewChatClient(cfg Config) (ChatClient, error) {
	switch cfg.Service {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w for openai (%s)", ErrMissingAPIKey, envAPIKey)
		}
		return newOpenAIClient(cfg), nil
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w for anthropic (%s)", ErrMissingAPIKey, envAPIKey)
		}
		return newAnthropicClient(cfg), nil
	case "ollama":
		return newOllamaClient(cfg), nil
	case "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w for gemini (%s)", ErrMissingAPIKey, envAPIKey)
		}
		return newGeminiClient(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q (supported: openai, anthropic, ollama, gemini)", ErrUnsupportedService, cfg.Service)
	}
}

// postJSON issues one JSON request and decodes the response into out.
// The context carries the judge deadline; no retries.
func postJSON(ctx context.Context, httpClient *http.Client, service, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("judge: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("judge: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("judge: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			raw = []byte("failed to read error body")
		}
		return &APIError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(raw)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("judge: decode response: %w", err)
	}
	return nil
}

func baseOrDefault(base, fallback string) string {
	if base == "" {
		return fallback
	}
	return strings.TrimSuffix(base, "/")
}
