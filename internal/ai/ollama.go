package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3:latest"
)

// OllamaProvider talks to a local Ollama daemon.
type OllamaProvider struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  &http.Client{Timeout: defaultProviderTimeout},
	}
}

type ollamaChatReq struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
}

type ollamaChatResp struct {
	Message wireMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

// Chat calls /api/chat once, with streaming off and the output forced to JSON.
func (p *OllamaProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	var out ollamaChatResp
	err := postJSON(ctx, p.Client, "ollama", p.BaseURL+"/api/chat", nil, ollamaChatReq{
		Model:    p.Model,
		Messages: toWire(messages),
		Format:   "json",
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", errors.New("ollama: " + out.Error)
	}
	if strings.TrimSpace(out.Message.Content) == "" {
		return "", fmt.Errorf("ollama: %w", errEmptyReply)
	}
	return out.Message.Content, nil
}
