package chat

import (
	"context"
	"fmt"
	"time"
)

// HydratedChat is an active-chat mirror whose message ids have been
// replaced by full records.
type HydratedChat struct {
	ChatID     string     `json:"chatId"`
	InvestorID string     `json:"investorId,omitempty"`
	Title      string     `json:"title,omitempty"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
	Messages   []Message  `json:"messages"`
}

type Attacher struct {
	repo    Repository
	mirrors mirrorStore
}

func NewAttacher(repo Repository, cache Cache) *Attacher {
	return &Attacher{repo: repo, mirrors: mirrorStore{cache: cache}}
}

// Attach appends msg to the chat at most once and mirrors the result under
// key. The store write is authoritative and its failure is returned; the
// mirror write is best-effort.
func (a *Attacher) Attach(ctx context.Context, chat *Chat, msg *Message, mirror *ActiveChat, key string) (*ActiveChat, error) {
	if chat == nil || msg == nil {
		return nil, fmt.Errorf("attach: chat and message are required")
	}
	live, _, err := a.repo.AppendChatMessage(ctx, chat.ID, msg.ID)
	if err != nil {
		return nil, fmt.Errorf("attach message %s: %w", msg.ID, err)
	}
	*chat = *live

	if mirror == nil {
		mirror = activeChatFromChat(live)
	} else {
		fillMirror(mirror, live)
	}
	if !containsID(mirror.Messages, msg.ID) {
		mirror.Messages = append(mirror.Messages, msg.ID)
	}
	mirror.Messages = tailIDs(mirror.Messages, MaxMirrorMessages)

	if key == "" {
		key = ActiveChatKey(live.InvestorID)
	}
	a.mirrors.write(ctx, mirrorKindActive, key, mirror)
	return mirror, nil
}

// Hydrate loads the mirror's messages with their prompt and AI response,
// oldest first. Other fields pass through.
func (a *Attacher) Hydrate(ctx context.Context, mirror *ActiveChat) (*HydratedChat, error) {
	msgs, err := a.repo.ListMessagesWithParts(ctx, mirror.Messages)
	if err != nil {
		return nil, fmt.Errorf("hydrate chat %s: %w", mirror.ChatID, err)
	}
	return &HydratedChat{
		ChatID:     mirror.ChatID,
		InvestorID: mirror.InvestorID,
		Title:      mirror.Title,
		CreatedAt:  mirror.CreatedAt,
		Messages:   msgs,
	}, nil
}
