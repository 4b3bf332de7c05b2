package judge

import (
	"context"
	"net/http"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// ollamaClient speaks the Ollama chat API. No credential is required.
type ollamaClient struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

func newOllamaClient(cfg Config) *ollamaClient {
	return &ollamaClient{
		model:      cfg.Model,
		baseURL:    baseOrDefault(cfg.BaseURL, defaultOllamaBaseURL),
		httpClient: &http.Client{},
	}
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaResponse struct {
	Message ollamaMessage `json:"message"`
}

func (c *ollamaClient) Chat(ctx context.Context, system, userMsg string) (string, error) {
	payload := ollamaRequest{
		Model: c.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: userMsg},
		},
		Stream: false,
	}

	var resp ollamaResponse
	if err := postJSON(ctx, c.httpClient, "ollama", c.baseURL+"/api/chat", nil, payload, &resp); err != nil {
		return "", err
	}
	if resp.Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Message.Content, nil
}
