package chat

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/investocrafy/internal/common"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Repository is the authoritative store behind the chat core. Lookups that
// find nothing return ErrChatNotFound or ErrHistoryNotFound.
type Repository interface {
	CreatePrompt(ctx context.Context, p *Prompt) error
	CreateAIResponse(ctx context.Context, r *AIResponse) error
	CreateMessage(ctx context.Context, m *Message) error

	CreateChat(ctx context.Context, c *Chat) error
	GetChat(ctx context.Context, chatID string) (*Chat, error)
	GetInvestorChat(ctx context.Context, investorID, chatID string) (*Chat, error)
	LatestChat(ctx context.Context, investorID string) (*Chat, error)
	AppendChatMessage(ctx context.Context, chatID, messageID string) (*Chat, bool, error)
	UpdateChatTitle(ctx context.Context, investorID, chatID, title string) (*Chat, error)
	ListChats(ctx context.Context, investorID string, chatIDs []string, since, until *time.Time) ([]Chat, error)
	ListChatIDs(ctx context.Context, investorID string) ([]string, error)

	ListMessages(ctx context.Context, messageIDs []string) ([]Message, error)
	ListChatMessageIDs(ctx context.Context, chatIDs []string) ([]string, error)
	ListMessagesWithParts(ctx context.Context, messageIDs []string) ([]Message, error)

	DeletePrompts(ctx context.Context, ids []string) (int64, error)
	DeleteAIResponses(ctx context.Context, ids []string) (int64, error)
	DeleteMessages(ctx context.Context, ids []string) (int64, error)
	DeleteChats(ctx context.Context, investorID string, ids []string) (int64, error)
	DeleteInvestorRecords(ctx context.Context, investorID string) error

	GetHistory(ctx context.Context, investorID string) (*History, error)
	CreateHistory(ctx context.Context, h *History) error
	AddHistoryChat(ctx context.Context, historyID, chatID string) ([]string, error)
	SetHistoryChats(ctx context.Context, historyID string, chatIDs []string) error
	RemoveHistoryChats(ctx context.Context, investorID string, chatIDs []string) (*History, error)
	DeleteHistory(ctx context.Context, investorID string) error
}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func ensureID(id *string) {
	if *id == "" {
		*id = common.MustULID()
	}
}

func (r *Repo) CreatePrompt(ctx context.Context, p *Prompt) error {
	ensureID(&p.ID)
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *Repo) CreateAIResponse(ctx context.Context, a *AIResponse) error {
	ensureID(&a.ID)
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *Repo) CreateMessage(ctx context.Context, m *Message) error {
	ensureID(&m.ID)
	return r.db.WithContext(ctx).Omit("Prompt", "AIResponse").Create(m).Error
}

func (r *Repo) CreateChat(ctx context.Context, c *Chat) error {
	ensureID(&c.ID)
	if c.Title == "" {
		c.Title = DefaultChatTitle
	}
	if c.Messages == nil {
		c.Messages = datatypes.JSONSlice[string]{}
	}
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	var c Chat
	if err := r.db.WithContext(ctx).First(&c, "id = ?", chatID).Error; err != nil {
		return nil, notFound(err, ErrChatNotFound)
	}
	return &c, nil
}

func (r *Repo) GetInvestorChat(ctx context.Context, investorID, chatID string) (*Chat, error) {
	var c Chat
	if err := r.db.WithContext(ctx).
		Where("id = ? AND investor_id = ?", chatID, investorID).
		First(&c).Error; err != nil {
		return nil, notFound(err, ErrChatNotFound)
	}
	return &c, nil
}

// LatestChat returns the investor's most recently created chat.
func (r *Repo) LatestChat(ctx context.Context, investorID string) (*Chat, error) {
	var c Chat
	if err := r.db.WithContext(ctx).
		Where("investor_id = ?", investorID).
		Order("created_at DESC, id DESC").
		First(&c).Error; err != nil {
		return nil, notFound(err, ErrChatNotFound)
	}
	return &c, nil
}

// AppendChatMessage appends messageID to the chat at most once and records it
// as the last message. The bool reports whether an append happened.
func (r *Repo) AppendChatMessage(ctx context.Context, chatID, messageID string) (*Chat, bool, error) {
	var out Chat
	appended := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&out, "id = ?", chatID).Error; err != nil {
			return notFound(err, ErrChatNotFound)
		}
		for _, id := range out.Messages {
			if id == messageID {
				return nil
			}
		}
		out.Messages = append(out.Messages, messageID)
		last := messageID
		out.LastMessageID = &last
		appended = true
		return tx.Model(&Chat{}).
			Where("id = ?", chatID).
			Updates(map[string]any{
				"messages":        out.Messages,
				"last_message_id": last,
				"updated_at":      time.Now(),
			}).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &out, appended, nil
}

func (r *Repo) UpdateChatTitle(ctx context.Context, investorID, chatID, title string) (*Chat, error) {
	res := r.db.WithContext(ctx).Model(&Chat{}).
		Where("id = ? AND investor_id = ?", chatID, investorID).
		Updates(map[string]any{"title": title, "updated_at": time.Now()})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrChatNotFound
	}
	return r.GetInvestorChat(ctx, investorID, chatID)
}

// ListChats loads the investor's chats among chatIDs, optionally bounded by
// creation time. Order is unspecified.
func (r *Repo) ListChats(ctx context.Context, investorID string, chatIDs []string, since, until *time.Time) ([]Chat, error) {
	if len(chatIDs) == 0 {
		return nil, nil
	}
	q := r.db.WithContext(ctx).Where("investor_id = ? AND id IN ?", investorID, chatIDs)
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	if until != nil {
		q = q.Where("created_at <= ?", *until)
	}
	var chats []Chat
	if err := q.Find(&chats).Error; err != nil {
		return nil, err
	}
	return chats, nil
}

func (r *Repo) ListChatIDs(ctx context.Context, investorID string) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&Chat{}).
		Where("investor_id = ?", investorID).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *Repo) ListMessages(ctx context.Context, messageIDs []string) ([]Message, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var msgs []Message
	if err := r.db.WithContext(ctx).Where("id IN ?", messageIDs).Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListChatMessageIDs returns the ids of every message bound to one of
// chatIDs, including messages the chat's own list never picked up.
func (r *Repo) ListChatMessageIDs(ctx context.Context, chatIDs []string) ([]string, error) {
	if len(chatIDs) == 0 {
		return nil, nil
	}
	var ids []string
	if err := r.db.WithContext(ctx).Model(&Message{}).
		Where("chat_id IN ?", chatIDs).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ListMessagesWithParts joins each message with its prompt and AI response,
// oldest first.
func (r *Repo) ListMessagesWithParts(ctx context.Context, messageIDs []string) ([]Message, error) {
	if len(messageIDs) == 0 {
		return []Message{}, nil
	}
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Preload("Prompt").
		Preload("AIResponse").
		Where("id IN ?", messageIDs).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *Repo) deleteByIDs(ctx context.Context, model any, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(model)
	return res.RowsAffected, res.Error
}

func (r *Repo) DeletePrompts(ctx context.Context, ids []string) (int64, error) {
	return r.deleteByIDs(ctx, &Prompt{}, ids)
}

func (r *Repo) DeleteAIResponses(ctx context.Context, ids []string) (int64, error) {
	return r.deleteByIDs(ctx, &AIResponse{}, ids)
}

func (r *Repo) DeleteMessages(ctx context.Context, ids []string) (int64, error) {
	return r.deleteByIDs(ctx, &Message{}, ids)
}

func (r *Repo) DeleteChats(ctx context.Context, investorID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("investor_id = ? AND id IN ?", investorID, ids).
		Delete(&Chat{})
	return res.RowsAffected, res.Error
}

// DeleteInvestorRecords removes every prompt, AI response and message owned
// by investorID, linked to a chat or not.
func (r *Repo) DeleteInvestorRecords(ctx context.Context, investorID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&Prompt{}, &AIResponse{}, &Message{}} {
			if err := tx.Where("investor_id = ?", investorID).Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repo) GetHistory(ctx context.Context, investorID string) (*History, error) {
	var h History
	if err := r.db.WithContext(ctx).First(&h, "investor_id = ?", investorID).Error; err != nil {
		return nil, notFound(err, ErrHistoryNotFound)
	}
	return &h, nil
}

func (r *Repo) CreateHistory(ctx context.Context, h *History) error {
	ensureID(&h.ID)
	if h.Title == "" {
		h.Title = DefaultHistoryTitle
	}
	if h.Chats == nil {
		h.Chats = datatypes.JSONSlice[string]{}
	}
	return r.db.WithContext(ctx).Create(h).Error
}

// AddHistoryChat adds chatID to the ledger with set semantics and returns
// the stored list.
func (r *Repo) AddHistoryChat(ctx context.Context, historyID, chatID string) ([]string, error) {
	var h History
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&h, "id = ?", historyID).Error; err != nil {
			return notFound(err, ErrHistoryNotFound)
		}
		for _, id := range h.Chats {
			if id == chatID {
				return nil
			}
		}
		h.Chats = append(h.Chats, chatID)
		return tx.Model(&History{}).
			Where("id = ?", historyID).
			Updates(map[string]any{"chats": h.Chats, "updated_at": time.Now()}).Error
	})
	if err != nil {
		return nil, err
	}
	return append([]string(nil), h.Chats...), nil
}

func (r *Repo) SetHistoryChats(ctx context.Context, historyID string, chatIDs []string) error {
	return r.db.WithContext(ctx).Model(&History{}).
		Where("id = ?", historyID).
		Updates(map[string]any{
			"chats":      datatypes.JSONSlice[string](append([]string{}, chatIDs...)),
			"updated_at": time.Now(),
		}).Error
}

func (r *Repo) RemoveHistoryChats(ctx context.Context, investorID string, chatIDs []string) (*History, error) {
	drop := make(map[string]struct{}, len(chatIDs))
	for _, id := range chatIDs {
		drop[id] = struct{}{}
	}
	var h History
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&h, "investor_id = ?", investorID).Error; err != nil {
			return notFound(err, ErrHistoryNotFound)
		}
		kept := make(datatypes.JSONSlice[string], 0, len(h.Chats))
		for _, id := range h.Chats {
			if _, ok := drop[id]; !ok {
				kept = append(kept, id)
			}
		}
		h.Chats = kept
		return tx.Model(&History{}).
			Where("id = ?", h.ID).
			Updates(map[string]any{"chats": kept, "updated_at": time.Now()}).Error
	})
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *Repo) DeleteHistory(ctx context.Context, investorID string) error {
	return r.db.WithContext(ctx).Where("investor_id = ?", investorID).Delete(&History{}).Error
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
