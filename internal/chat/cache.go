package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/investocrafy/internal/metrics"
)

const (
	MirrorTTL         = 24 * time.Hour
	MaxMirrorMessages = 50
	MaxHistoryChats   = 100

	mirrorKindActive  = "active_chat"
	mirrorKindHistory = "history"
)

// Cache is the best-effort key/value layer holding mirrors. It is never a
// source of truth. Get reports a miss with ok=false and a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}

func ActiveChatKey(investorID string) string { return "chat:" + investorID + ":active" }
func HistoryKey(investorID string) string    { return "history:" + investorID }
func UserKey(investorID string) string       { return "user:" + investorID }

// ActiveChat mirrors the investor's current chat. Messages holds at most
// MaxMirrorMessages ids, oldest first.
type ActiveChat struct {
	ChatID     string     `json:"chatId"`
	InvestorID string     `json:"investorId,omitempty"`
	Title      string     `json:"title,omitempty"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
	Messages   []string   `json:"messages"`
}

// HistoryMirror mirrors the History ledger.
type HistoryMirror struct {
	ID         string   `json:"_id"`
	InvestorID string   `json:"investorId,omitempty"`
	Chats      []string `json:"chats"`
}

func activeChatFromChat(c *Chat) *ActiveChat {
	created := c.CreatedAt
	return &ActiveChat{
		ChatID:     c.ID,
		InvestorID: c.InvestorID,
		Title:      c.Title,
		CreatedAt:  &created,
		Messages:   tailIDs(c.Messages, MaxMirrorMessages),
	}
}

func historyMirrorFromHistory(h *History) *HistoryMirror {
	return &HistoryMirror{
		ID:         h.ID,
		InvestorID: h.InvestorID,
		Chats:      append([]string{}, h.Chats...),
	}
}

// tailIDs copies the last n ids of ids.
func tailIDs(ids []string, n int) []string {
	if len(ids) > n {
		ids = ids[len(ids)-n:]
	}
	return append([]string{}, ids...)
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// mirrorStore wraps Cache with JSON codecs. Read failures and malformed
// values are misses; write failures are logged and dropped.
type mirrorStore struct {
	cache Cache
}

func (m mirrorStore) get(ctx context.Context, kind, key string) []byte {
	raw, ok, err := m.cache.Get(ctx, key)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache get failed")
		metrics.MirrorLookups.WithLabelValues(kind, "error").Inc()
		return nil
	}
	if !ok || len(raw) == 0 {
		metrics.MirrorLookups.WithLabelValues(kind, "miss").Inc()
		return nil
	}
	return raw
}

func (m mirrorStore) loadActive(ctx context.Context, investorID string) *ActiveChat {
	key := ActiveChatKey(investorID)
	raw := m.get(ctx, mirrorKindActive, key)
	if raw == nil {
		return nil
	}
	var a ActiveChat
	if err := json.Unmarshal(raw, &a); err != nil || a.ChatID == "" {
		zerolog.Ctx(ctx).Warn().Str("key", key).Msg("malformed active chat mirror ignored")
		metrics.MirrorLookups.WithLabelValues(mirrorKindActive, "malformed").Inc()
		return nil
	}
	if a.Messages == nil {
		a.Messages = []string{}
	}
	metrics.MirrorLookups.WithLabelValues(mirrorKindActive, "hit").Inc()
	return &a
}

func (m mirrorStore) loadHistory(ctx context.Context, investorID string) *HistoryMirror {
	key := HistoryKey(investorID)
	raw := m.get(ctx, mirrorKindHistory, key)
	if raw == nil {
		return nil
	}
	var probe struct {
		ID    string          `json:"_id"`
		Chats json.RawMessage `json:"chats"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.ID == "" {
		zerolog.Ctx(ctx).Warn().Str("key", key).Msg("malformed history mirror ignored")
		metrics.MirrorLookups.WithLabelValues(mirrorKindHistory, "malformed").Inc()
		return nil
	}
	h := HistoryMirror{ID: probe.ID, InvestorID: investorID}
	// chats must be a list; anything else is treated as empty
	if err := json.Unmarshal(probe.Chats, &h.Chats); err != nil || h.Chats == nil {
		h.Chats = []string{}
	}
	metrics.MirrorLookups.WithLabelValues(mirrorKindHistory, "hit").Inc()
	return &h
}

func (m mirrorStore) write(ctx context.Context, kind, key string, v any) {
	m.writeTTL(ctx, kind, key, v, MirrorTTL)
}

// writeTTL is write with an explicit expiry, used to rewrite a mirror
// without extending its lifetime.
func (m mirrorStore) writeTTL(ctx context.Context, kind, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err == nil {
		err = m.cache.Set(ctx, key, raw, ttl)
	}
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache mirror write failed")
		metrics.MirrorWriteFailures.WithLabelValues(kind).Inc()
	}
}

func (m mirrorStore) saveActive(ctx context.Context, investorID string, a *ActiveChat) {
	m.write(ctx, mirrorKindActive, ActiveChatKey(investorID), a)
}

func (m mirrorStore) saveHistory(ctx context.Context, investorID string, h *HistoryMirror) {
	m.write(ctx, mirrorKindHistory, HistoryKey(investorID), h)
}

func (m mirrorStore) del(ctx context.Context, keys ...string) {
	if err := m.cache.Del(ctx, keys...); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Strs("keys", keys).Msg("cache delete failed")
	}
}
