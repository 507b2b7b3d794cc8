package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/investocrafy/internal/common"
	"github.com/suPer8Hu/investocrafy/internal/metrics"
)

type Outcome int

const (
	// OutcomeSupplied: the caller's chat id named an existing chat.
	OutcomeSupplied Outcome = iota + 1
	// OutcomeRestored: the active-chat mirror pointed at an existing chat.
	OutcomeRestored
	// OutcomeCreated: nothing usable was found and a new chat was created.
	OutcomeCreated
	// OutcomeFallback: resolution failed and a new chat was forced.
	OutcomeFallback
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSupplied:
		return "supplied"
	case OutcomeRestored:
		return "restored"
	case OutcomeCreated:
		return "created"
	case OutcomeFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Resolution is the chat a request operates on. Chat exists in the store at
// return time; Mirror agrees with it on id, title and known message ids.
type Resolution struct {
	Chat    *Chat
	Mirror  *ActiveChat
	Key     string
	Outcome Outcome
}

type Resolver struct {
	repo    Repository
	mirrors mirrorStore
}

func NewResolver(repo Repository, cache Cache) *Resolver {
	return &Resolver{repo: repo, mirrors: mirrorStore{cache: cache}}
}

// Resolve picks the chat for investorID: the supplied chatID if it exists,
// else the chat named by the active-chat mirror, else a new chat. Store
// errors are returned; see Fallback.
func (r *Resolver) Resolve(ctx context.Context, investorID, chatID string) (*Resolution, error) {
	if !common.IsValidID(investorID) {
		return nil, ErrInvalidInvestorID
	}
	key := ActiveChatKey(investorID)

	if chatID != "" && common.IsValidID(chatID) {
		c, err := r.repo.GetInvestorChat(ctx, investorID, chatID)
		switch {
		case err == nil:
			return r.resolved(c, activeChatFromChat(c), key, OutcomeSupplied), nil
		case !errors.Is(err, ErrChatNotFound):
			return nil, fmt.Errorf("load supplied chat: %w", err)
		}
	}

	if m := r.mirrors.loadActive(ctx, investorID); m != nil {
		c, err := r.repo.GetInvestorChat(ctx, investorID, m.ChatID)
		switch {
		case err == nil:
			fillMirror(m, c)
			return r.resolved(c, m, key, OutcomeRestored), nil
		case errors.Is(err, ErrChatNotFound):
			zerolog.Ctx(ctx).Debug().Str("chat_id", m.ChatID).Msg("evicting stale active chat mirror")
			metrics.MirrorLookups.WithLabelValues(mirrorKindActive, "stale").Inc()
			r.mirrors.del(ctx, key)
		default:
			return nil, fmt.Errorf("load mirrored chat: %w", err)
		}
	}

	return r.create(ctx, investorID, key)
}

// Fallback unconditionally creates a chat and overwrites the active mirror.
func (r *Resolver) Fallback(ctx context.Context, investorID string) (*Resolution, error) {
	return r.replace(ctx, investorID, OutcomeFallback)
}

// Start creates a chat on request and makes it the active one.
func (r *Resolver) Start(ctx context.Context, investorID string) (*Resolution, error) {
	return r.replace(ctx, investorID, OutcomeCreated)
}

func (r *Resolver) replace(ctx context.Context, investorID string, o Outcome) (*Resolution, error) {
	if !common.IsValidID(investorID) {
		return nil, ErrInvalidInvestorID
	}
	c, err := r.newChat(ctx, investorID)
	if err != nil {
		return nil, err
	}
	m := activeChatFromChat(c)
	r.mirrors.saveActive(ctx, investorID, m)
	return r.resolved(c, m, ActiveChatKey(investorID), o), nil
}

// create publishes the new chat's mirror with SET NX. When another request
// won the race and its chat exists, that chat is adopted and ours removed.
func (r *Resolver) create(ctx context.Context, investorID, key string) (*Resolution, error) {
	c, err := r.newChat(ctx, investorID)
	if err != nil {
		return nil, err
	}
	m := activeChatFromChat(c)

	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode active chat mirror: %w", err)
	}
	won, err := r.mirrors.cache.SetNX(ctx, key, raw, MirrorTTL)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("active chat claim failed")
		metrics.MirrorWriteFailures.WithLabelValues(mirrorKindActive).Inc()
		return r.resolved(c, m, key, OutcomeCreated), nil
	}
	if won {
		return r.resolved(c, m, key, OutcomeCreated), nil
	}

	if winner := r.mirrors.loadActive(ctx, investorID); winner != nil && winner.ChatID != c.ID {
		wc, err := r.repo.GetInvestorChat(ctx, investorID, winner.ChatID)
		if err == nil {
			if _, err := r.repo.DeleteChats(ctx, investorID, []string{c.ID}); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("chat_id", c.ID).Msg("discard losing chat failed")
			}
			fillMirror(winner, wc)
			return r.resolved(wc, winner, key, OutcomeRestored), nil
		}
	}
	r.mirrors.saveActive(ctx, investorID, m)
	return r.resolved(c, m, key, OutcomeCreated), nil
}

func (r *Resolver) newChat(ctx context.Context, investorID string) (*Chat, error) {
	c := &Chat{InvestorID: investorID, Title: DefaultChatTitle}
	if err := r.repo.CreateChat(ctx, c); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return c, nil
}

func (r *Resolver) resolved(c *Chat, m *ActiveChat, key string, o Outcome) *Resolution {
	metrics.ChatResolutions.WithLabelValues(o.String()).Inc()
	return &Resolution{Chat: c, Mirror: m, Key: key, Outcome: o}
}

// fillMirror completes a restored mirror from the store record.
func fillMirror(m *ActiveChat, c *Chat) {
	m.ChatID = c.ID
	if m.InvestorID == "" {
		m.InvestorID = c.InvestorID
	}
	if m.Title == "" {
		m.Title = c.Title
	}
	if m.CreatedAt == nil {
		created := c.CreatedAt
		m.CreatedAt = &created
	}
	if len(m.Messages) == 0 {
		m.Messages = tailIDs(c.Messages, MaxMirrorMessages)
	}
}
