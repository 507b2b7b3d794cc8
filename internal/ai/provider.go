package ai

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

// Provider sends a conversation to a model and returns the raw reply text.
// Providers ask the model for JSON output where the backend supports it.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
