package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/investocrafy/internal/common"
)

type DeleteStatus string

const (
	StatusDeleted         DeleteStatus = "deleted"
	StatusDeletedAll      DeleteStatus = "deleted_all"
	StatusNoHistory       DeleteStatus = "no_history"
	StatusNotFound        DeleteStatus = "not_found"
	StatusNothingToDelete DeleteStatus = "nothing_to_delete"
)

type DeleteResult struct {
	Deleted         []string     `json:"deleted"`
	Status          DeleteStatus `json:"status"`
	NewActiveChatID string       `json:"newActiveChatId,omitempty"`
}

// Deleter removes chats together with their messages, prompts and AI
// responses, then reconciles the ledger and the active-chat mirror.
type Deleter struct {
	repo    Repository
	ledger  *Ledger
	mirrors mirrorStore
}

func NewDeleter(repo Repository, cache Cache, ledger *Ledger) *Deleter {
	return &Deleter{repo: repo, ledger: ledger, mirrors: mirrorStore{cache: cache}}
}

// Delete removes chatID, or the active chat when chatID is empty, or every
// ledger chat when deleteAll is set. Targets outside the ledger are reported
// through Status, not as errors.
func (d *Deleter) Delete(ctx context.Context, investorID, chatID string, deleteAll bool) (*DeleteResult, error) {
	if !common.IsValidID(investorID) {
		return nil, ErrInvalidInvestorID
	}
	activeKey := ActiveChatKey(investorID)

	if deleteAll {
		d.mirrors.del(ctx, activeKey)
		hist, err := d.ledger.Load(ctx, investorID)
		if errors.Is(err, ErrHistoryNotFound) {
			return &DeleteResult{Deleted: []string{}, Status: StatusNoHistory}, nil
		}
		if err != nil {
			return nil, err
		}
		if len(hist.Chats) == 0 {
			return &DeleteResult{Deleted: []string{}, Status: StatusNothingToDelete}, nil
		}
		targets := append([]string{}, hist.Chats...)
		if err := d.cascade(ctx, investorID, targets); err != nil {
			return nil, err
		}
		if _, err := d.ledger.Remove(ctx, investorID, targets); err != nil && !errors.Is(err, ErrHistoryNotFound) {
			return nil, err
		}
		return &DeleteResult{Deleted: targets, Status: StatusDeletedAll}, nil
	}

	active := d.mirrors.loadActive(ctx, investorID)
	target := chatID
	if target == "" {
		if active == nil {
			return &DeleteResult{Deleted: []string{}, Status: StatusNothingToDelete}, nil
		}
		target = active.ChatID
	}
	wasActive := active != nil && active.ChatID == target

	hist, err := d.ledger.Load(ctx, investorID)
	if errors.Is(err, ErrHistoryNotFound) {
		return &DeleteResult{Deleted: []string{}, Status: StatusNoHistory}, nil
	}
	if err != nil {
		return nil, err
	}
	if !containsID(hist.Chats, target) {
		return &DeleteResult{Deleted: []string{}, Status: StatusNotFound}, nil
	}

	targets := []string{target}
	if err := d.cascade(ctx, investorID, targets); err != nil {
		return nil, err
	}
	remaining, err := d.ledger.Remove(ctx, investorID, targets)
	if err != nil && !errors.Is(err, ErrHistoryNotFound) {
		return nil, err
	}

	res := &DeleteResult{Deleted: targets, Status: StatusDeleted}
	if !wasActive {
		return res, nil
	}
	if remaining == nil || len(remaining.Chats) == 0 {
		d.mirrors.del(ctx, activeKey)
		return res, nil
	}
	// ledger order is insertion order, so the last entry is the newest
	next := remaining.Chats[len(remaining.Chats)-1]
	d.mirrors.saveActive(ctx, investorID, &ActiveChat{
		ChatID:     next,
		InvestorID: investorID,
		Messages:   []string{},
	})
	res.NewActiveChatID = next
	return res, nil
}

// Purge deletes every chat the investor owns, the History record and the
// chat mirrors. Used when the account itself is deleted.
func (d *Deleter) Purge(ctx context.Context, investorID string) error {
	if !common.IsValidID(investorID) {
		return ErrInvalidInvestorID
	}
	ids, err := d.repo.ListChatIDs(ctx, investorID)
	if err != nil {
		return fmt.Errorf("list chats: %w", err)
	}
	if err := d.cascade(ctx, investorID, ids); err != nil {
		return err
	}
	// records a failed prompt left behind are not reachable from any chat
	if err := d.repo.DeleteInvestorRecords(ctx, investorID); err != nil {
		return fmt.Errorf("delete investor records: %w", err)
	}
	if err := d.repo.DeleteHistory(ctx, investorID); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	d.mirrors.del(ctx, ActiveChatKey(investorID), HistoryKey(investorID))
	return nil
}

// cascade deletes children before parents: prompts, AI responses,
// messages, then chats.
func (d *Deleter) cascade(ctx context.Context, investorID string, chatIDs []string) error {
	if len(chatIDs) == 0 {
		return nil
	}
	chats, err := d.repo.ListChats(ctx, investorID, chatIDs, nil, nil)
	if err != nil {
		return fmt.Errorf("load chats: %w", err)
	}
	var msgIDs []string
	for _, c := range chats {
		msgIDs = append(msgIDs, c.Messages...)
	}
	bound, err := d.repo.ListChatMessageIDs(ctx, chatIDs)
	if err != nil {
		return fmt.Errorf("load chat messages: %w", err)
	}
	for _, id := range bound {
		if !containsID(msgIDs, id) {
			msgIDs = append(msgIDs, id)
		}
	}
	msgs, err := d.repo.ListMessages(ctx, msgIDs)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	promptIDs := make([]string, 0, len(msgs))
	respIDs := make([]string, 0, len(msgs))
	for _, m := range msgs {
		promptIDs = append(promptIDs, m.PromptID)
		respIDs = append(respIDs, m.AIResponseID)
	}

	if _, err := d.repo.DeletePrompts(ctx, promptIDs); err != nil {
		return fmt.Errorf("delete prompts: %w", err)
	}
	if _, err := d.repo.DeleteAIResponses(ctx, respIDs); err != nil {
		return fmt.Errorf("delete ai responses: %w", err)
	}
	if _, err := d.repo.DeleteMessages(ctx, msgIDs); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	n, err := d.repo.DeleteChats(ctx, investorID, chatIDs)
	if err != nil {
		return fmt.Errorf("delete chats: %w", err)
	}
	zerolog.Ctx(ctx).Info().
		Str("investor_id", investorID).
		Int64("chats", n).
		Int("messages", len(msgIDs)).
		Msg("chats deleted")
	return nil
}
