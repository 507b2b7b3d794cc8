package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/investocrafy/internal/common"
	"github.com/suPer8Hu/investocrafy/internal/metrics"
)

// Ledger maintains the per-investor History record and its mirror.
type Ledger struct {
	repo    Repository
	mirrors mirrorStore
}

func NewLedger(repo Repository, cache Cache) *Ledger {
	return &Ledger{repo: repo, mirrors: mirrorStore{cache: cache}}
}

// Record adds chatID to the investor's ledger with set semantics, creating
// the ledger on first use. The list is capped at MaxHistoryChats by dropping
// the oldest ids. The mirror is rewritten on every call.
func (l *Ledger) Record(ctx context.Context, investorID, chatID string) (*HistoryMirror, error) {
	if !common.IsValidID(investorID) {
		return nil, ErrInvalidInvestorID
	}
	validChat := common.IsValidID(chatID)
	cached := l.mirrors.loadHistory(ctx, investorID)

	h, err := l.repo.GetHistory(ctx, investorID)
	if errors.Is(err, ErrHistoryNotFound) {
		if cached != nil {
			l.mirrors.del(ctx, HistoryKey(investorID))
		}
		h, err = l.create(ctx, investorID, chatID, validChat)
	}
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if cached != nil && cached.ID != h.ID {
		zerolog.Ctx(ctx).Debug().Str("history_id", cached.ID).Msg("history mirror disagrees with store")
		metrics.MirrorLookups.WithLabelValues(mirrorKindHistory, "stale").Inc()
	}

	if validChat && !containsID(h.Chats, chatID) {
		chats, err := l.repo.AddHistoryChat(ctx, h.ID, chatID)
		if err != nil {
			return nil, fmt.Errorf("add chat to history: %w", err)
		}
		if len(chats) > MaxHistoryChats {
			chats = chats[len(chats)-MaxHistoryChats:]
			if err := l.repo.SetHistoryChats(ctx, h.ID, chats); err != nil {
				return nil, fmt.Errorf("trim history: %w", err)
			}
		}
		h.Chats = chats
	}

	out := historyMirrorFromHistory(h)
	l.mirrors.saveHistory(ctx, investorID, out)
	return out, nil
}

func (l *Ledger) create(ctx context.Context, investorID, chatID string, validChat bool) (*History, error) {
	h := &History{InvestorID: investorID, Title: DefaultHistoryTitle, Chats: []string{}}
	if validChat {
		h.Chats = []string{chatID}
	}
	if err := l.repo.CreateHistory(ctx, h); err != nil {
		// a concurrent request may have created it first
		if existing, gerr := l.repo.GetHistory(ctx, investorID); gerr == nil {
			return existing, nil
		}
		return nil, err
	}
	return h, nil
}

// Load returns the ledger from the store and refreshes its mirror. A mirror
// left over from a deleted ledger is evicted.
func (l *Ledger) Load(ctx context.Context, investorID string) (*HistoryMirror, error) {
	if !common.IsValidID(investorID) {
		return nil, ErrInvalidInvestorID
	}
	h, err := l.repo.GetHistory(ctx, investorID)
	if errors.Is(err, ErrHistoryNotFound) {
		l.mirrors.del(ctx, HistoryKey(investorID))
		return nil, ErrHistoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	out := historyMirrorFromHistory(h)
	l.mirrors.saveHistory(ctx, investorID, out)
	return out, nil
}

// Peek serves the ledger from the mirror when present, otherwise as Load.
// It is meant for display only.
func (l *Ledger) Peek(ctx context.Context, investorID string) (*HistoryMirror, error) {
	if !common.IsValidID(investorID) {
		return nil, ErrInvalidInvestorID
	}
	if cached := l.mirrors.loadHistory(ctx, investorID); cached != nil {
		return cached, nil
	}
	return l.Load(ctx, investorID)
}

// Remove drops chatIDs from the ledger and rewrites the mirror.
func (l *Ledger) Remove(ctx context.Context, investorID string, chatIDs []string) (*HistoryMirror, error) {
	h, err := l.repo.RemoveHistoryChats(ctx, investorID, chatIDs)
	if errors.Is(err, ErrHistoryNotFound) {
		l.mirrors.del(ctx, HistoryKey(investorID))
		return nil, ErrHistoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("remove chats from history: %w", err)
	}
	out := historyMirrorFromHistory(h)
	l.mirrors.saveHistory(ctx, investorID, out)
	return out, nil
}
