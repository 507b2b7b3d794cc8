package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const defaultOpenRouterURL = "https://openrouter.ai/api/v1"

// OpenRouterProvider uses the OpenAI-compatible chat completions endpoint.
// SiteURL and AppName are sent as the optional attribution headers.
type OpenRouterProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	SiteURL string
	AppName string
	Client  *http.Client
}

func NewOpenRouterProvider(baseURL, apiKey, model, siteURL, appName string) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = defaultOpenRouterURL
	}
	return &OpenRouterProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  strings.TrimSpace(apiKey),
		Model:   strings.TrimSpace(model),
		SiteURL: siteURL,
		AppName: appName,
		Client:  &http.Client{Timeout: defaultProviderTimeout},
	}
}

type responseFormat struct {
	Type string `json:"type"`
}

type completionReq struct {
	Model          string          `json:"model"`
	Messages       []wireMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type completionResp struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *OpenRouterProvider) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+p.APIKey)
	if p.SiteURL != "" {
		h.Set("HTTP-Referer", p.SiteURL)
	}
	if p.AppName != "" {
		h.Set("X-Title", p.AppName)
	}
	return h
}

func (p *OpenRouterProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	switch {
	case p.APIKey == "":
		return "", errors.New("openrouter: api key is required")
	case p.Model == "":
		return "", errors.New("openrouter: model is required")
	}

	var out completionResp
	err := postJSON(ctx, p.Client, "openrouter", p.BaseURL+"/chat/completions", p.headers(), completionReq{
		Model:          p.Model,
		Messages:       toWire(messages),
		ResponseFormat: &responseFormat{Type: "json_object"},
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Error != nil && out.Error.Message != "" {
		return "", errors.New("openrouter: " + out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openrouter: %w", errEmptyReply)
	}
	return out.Choices[0].Message.Content, nil
}
