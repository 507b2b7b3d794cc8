package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/investocrafy/internal/ai"
	"github.com/suPer8Hu/investocrafy/internal/common"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

// Generator produces the advisory answer for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (ai.Advice, error)
}

type Service struct {
	repo      Repository
	resolver  *Resolver
	attacher  *Attacher
	ledger    *Ledger
	deleter   *Deleter
	mirrors   mirrorStore
	generator Generator
}

func NewService(repo Repository, cache Cache, generator Generator) *Service {
	ledger := NewLedger(repo, cache)
	return &Service{
		repo:      repo,
		resolver:  NewResolver(repo, cache),
		attacher:  NewAttacher(repo, cache),
		ledger:    ledger,
		deleter:   NewDeleter(repo, cache, ledger),
		mirrors:   mirrorStore{cache: cache},
		generator: generator,
	}
}

// PromptResult is the outcome of one prompt: the stored message and the
// active chat it now belongs to.
type PromptResult struct {
	Message   *Message      `json:"message"`
	Chat      *HydratedChat `json:"chat"`
	HistoryID string        `json:"historyId"`
	Outcome   string        `json:"outcome"`
}

// ChatSummary is one History entry.
type ChatSummary struct {
	ID            string    `json:"_id"`
	Title         string    `json:"title"`
	MessageCount  int       `json:"messageCount"`
	LastMessageID *string   `json:"lastMessage,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type HistoryView struct {
	ID    string        `json:"_id,omitempty"`
	Chats []ChatSummary `json:"chats"`
}

// ResolveOrCreateChat always yields a usable chat for a valid investor. When
// resolution fails the error is logged and a fresh chat is created instead.
func (s *Service) ResolveOrCreateChat(ctx context.Context, investorID, chatID string) (*Resolution, error) {
	res, err := s.resolver.Resolve(ctx, investorID, chatID)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, ErrInvalidInvestorID) {
		return nil, err
	}
	zerolog.Ctx(ctx).Warn().Err(err).Str("investor_id", investorID).Msg("chat resolution failed, starting a new chat")
	return s.resolver.Fallback(ctx, investorID)
}

// AttachMessage stores the prompt and its generated answer as a message of
// the resolved chat, records the chat in the ledger and returns the
// hydrated chat.
func (s *Service) AttachMessage(ctx context.Context, investorID, promptText, chatID string) (*PromptResult, error) {
	if !common.IsValidID(investorID) {
		return nil, ErrInvalidInvestorID
	}
	promptText = strings.TrimSpace(promptText)
	if promptText == "" {
		return nil, ErrPromptRequired
	}

	// the prompt row and the model call are independent
	var (
		prompt *Prompt
		advice ai.Advice
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p := &Prompt{InvestorID: investorID, Text: promptText}
		if err := s.repo.CreatePrompt(gctx, p); err != nil {
			return fmt.Errorf("save prompt: %w", err)
		}
		prompt = p
		return nil
	})
	g.Go(func() error {
		a, err := s.generator.Generate(gctx, promptText)
		if err != nil {
			return fmt.Errorf("generate answer: %w", err)
		}
		advice = a
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resp := &AIResponse{
		InvestorID:     investorID,
		ResponseType:   advice.ResponseType,
		Text:           advice.Text,
		Component:      opaqueJSON(advice.Component),
		ChartValues:    opaqueJSON(advice.ChartValues),
		InvestorURL:    advice.InvestorURL,
		AdditionalInfo: advice.AdditionalInfo,
	}
	if err := s.repo.CreateAIResponse(ctx, resp); err != nil {
		return nil, fmt.Errorf("save ai response: %w", err)
	}

	res, err := s.ResolveOrCreateChat(ctx, investorID, chatID)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		InvestorID:   investorID,
		ChatID:       res.Chat.ID,
		PromptID:     prompt.ID,
		AIResponseID: resp.ID,
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	mirror, err := s.attacher.Attach(ctx, res.Chat, msg, res.Mirror, res.Key)
	if err != nil {
		return nil, err
	}
	hist, err := s.ledger.Record(ctx, investorID, res.Chat.ID)
	if err != nil {
		return nil, err
	}
	hydrated, err := s.attacher.Hydrate(ctx, mirror)
	if err != nil {
		return nil, err
	}

	msg.Prompt = prompt
	msg.AIResponse = resp
	return &PromptResult{
		Message:   msg,
		Chat:      hydrated,
		HistoryID: hist.ID,
		Outcome:   res.Outcome.String(),
	}, nil
}

// opaqueJSON stores absent payloads as a JSON null rather than SQL NULL.
func opaqueJSON(raw []byte) datatypes.JSON {
	if len(raw) == 0 {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(raw)
}

func (s *Service) DeleteChat(ctx context.Context, investorID, chatID string, deleteAll bool) (*DeleteResult, error) {
	return s.deleter.Delete(ctx, investorID, strings.TrimSpace(chatID), deleteAll)
}

// UpdateChatTitle renames chatID, or the active chat when chatID is empty.
// A mirror of the chat keeps its remaining TTL.
func (s *Service) UpdateChatTitle(ctx context.Context, investorID, chatID, title string) (*Chat, error) {
	if !common.IsValidID(investorID) {
		return nil, ErrInvalidInvestorID
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	active := s.mirrors.loadActive(ctx, investorID)
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		if active == nil {
			return s.renameLatest(ctx, investorID, title)
		}
		chatID = active.ChatID
	}
	if !common.IsValidID(chatID) {
		return nil, ErrChatNotFound
	}

	c, err := s.repo.UpdateChatTitle(ctx, investorID, chatID, title)
	if err != nil {
		return nil, err
	}

	if active != nil && active.ChatID == c.ID {
		active.Title = c.Title
		key := ActiveChatKey(investorID)
		ttl, err := s.mirrors.cache.TTL(ctx, key)
		if err != nil || ttl <= 0 {
			ttl = MirrorTTL
		}
		s.mirrors.writeTTL(ctx, mirrorKindActive, key, active, ttl)
	}
	return c, nil
}

// renameLatest renames the newest chat when no chat is active and makes it
// the active chat with a fresh mirror.
func (s *Service) renameLatest(ctx context.Context, investorID, title string) (*Chat, error) {
	latest, err := s.repo.LatestChat(ctx, investorID)
	if err != nil {
		return nil, err
	}
	c, err := s.repo.UpdateChatTitle(ctx, investorID, latest.ID, title)
	if err != nil {
		return nil, err
	}
	s.mirrors.saveActive(ctx, investorID, activeChatFromChat(c))
	return c, nil
}

// GetHistory lists the ledger's chats created within [since, until], newest
// first. Chats missing from the store are skipped.
func (s *Service) GetHistory(ctx context.Context, investorID string, since, until *time.Time) (*HistoryView, error) {
	hist, err := s.ledger.Peek(ctx, investorID)
	if errors.Is(err, ErrHistoryNotFound) {
		return &HistoryView{Chats: []ChatSummary{}}, nil
	}
	if err != nil {
		return nil, err
	}

	chats, err := s.repo.ListChats(ctx, investorID, hist.Chats, since, until)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	sort.Slice(chats, func(i, j int) bool {
		if chats[i].CreatedAt.Equal(chats[j].CreatedAt) {
			return chats[i].ID > chats[j].ID
		}
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})

	out := &HistoryView{ID: hist.ID, Chats: make([]ChatSummary, 0, len(chats))}
	for _, c := range chats {
		out.Chats = append(out.Chats, ChatSummary{
			ID:            c.ID,
			Title:         c.Title,
			MessageCount:  len(c.Messages),
			LastMessageID: c.LastMessageID,
			CreatedAt:     c.CreatedAt,
			UpdatedAt:     c.UpdatedAt,
		})
	}
	return out, nil
}

// GetChat opens chatID, or the active chat when chatID is empty, falling
// back to the newest chat. The opened chat becomes active and is returned
// hydrated.
func (s *Service) GetChat(ctx context.Context, investorID, chatID string) (*HydratedChat, error) {
	if !common.IsValidID(investorID) {
		return nil, ErrInvalidInvestorID
	}
	key := ActiveChatKey(investorID)

	var mirror *ActiveChat
	chatID = strings.TrimSpace(chatID)
	if chatID != "" {
		if !common.IsValidID(chatID) {
			return nil, ErrChatNotFound
		}
		c, err := s.repo.GetInvestorChat(ctx, investorID, chatID)
		if err != nil {
			return nil, err
		}
		mirror = activeChatFromChat(c)
	} else if mirror = s.mirrors.loadActive(ctx, investorID); mirror != nil {
		c, err := s.repo.GetInvestorChat(ctx, investorID, mirror.ChatID)
		if errors.Is(err, ErrChatNotFound) {
			s.mirrors.del(ctx, key)
			mirror = nil
		} else if err != nil {
			return nil, err
		} else {
			fillMirror(mirror, c)
		}
	}
	if mirror == nil {
		// no usable active chat: reopen the most recent one
		c, err := s.repo.LatestChat(ctx, investorID)
		if err != nil {
			return nil, err
		}
		mirror = activeChatFromChat(c)
	}

	s.mirrors.saveActive(ctx, investorID, mirror)
	return s.attacher.Hydrate(ctx, mirror)
}

// NewChat starts an empty chat, makes it active and records it in the
// ledger.
func (s *Service) NewChat(ctx context.Context, investorID string) (*Chat, error) {
	res, err := s.resolver.Start(ctx, investorID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.Record(ctx, investorID, res.Chat.ID); err != nil {
		return nil, err
	}
	return res.Chat, nil
}

// PurgeInvestor removes every chat-related record of the investor.
func (s *Service) PurgeInvestor(ctx context.Context, investorID string) error {
	return s.deleter.Purge(ctx, investorID)
}
