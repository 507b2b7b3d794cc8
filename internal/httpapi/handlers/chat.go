package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/investocrafy/internal/chat"
	"github.com/suPer8Hu/investocrafy/internal/common"
)

// GetChat opens ?chatId= or the active chat.
func (h *Handler) GetChat(c *gin.Context) {
	investorID, ok := investorIDFromContext(c)
	if !ok {
		return
	}
	hc, err := h.ChatSvc.GetChat(c.Request.Context(), investorID, c.Query("chatId"))
	if err != nil {
		failChat(c, err, "failed to load chat")
		return
	}
	common.OK(c, hc)
}

func (h *Handler) CreateChat(c *gin.Context) {
	investorID, ok := investorIDFromContext(c)
	if !ok {
		return
	}
	ch, err := h.ChatSvc.NewChat(c.Request.Context(), investorID)
	if err != nil {
		failChat(c, err, "failed to create chat")
		return
	}
	common.Created(c, "chat created", ch)
}

type updateChatReq struct {
	ChatID string `json:"chatId"`
	Title  string `json:"title"`
}

func (h *Handler) UpdateChat(c *gin.Context) {
	investorID, ok := investorIDFromContext(c)
	if !ok {
		return
	}
	var req updateChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	ch, err := h.ChatSvc.UpdateChatTitle(c.Request.Context(), investorID, req.ChatID, req.Title)
	if err != nil {
		failChat(c, err, "failed to update chat")
		return
	}
	common.OKMsg(c, "chat updated", ch)
}

type deleteChatReq struct {
	ChatID    string `json:"chatId"`
	DeleteAll bool   `json:"deleteAll"`
}

// DeleteChat takes chatId/deleteAll from the query string or a JSON body.
// Repeating a delete is not an error; the status field tells what happened.
func (h *Handler) DeleteChat(c *gin.Context) {
	investorID, ok := investorIDFromContext(c)
	if !ok {
		return
	}
	req := deleteChatReq{ChatID: c.Query("chatId")}
	if v := c.Query("deleteAll"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10002, "deleteAll must be a boolean")
			return
		}
		req.DeleteAll = b
	}
	// -1 is a chunked body of unknown length
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
			return
		}
	}

	res, err := h.ChatSvc.DeleteChat(c.Request.Context(), investorID, req.ChatID, req.DeleteAll)
	if err != nil {
		failChat(c, err, "failed to delete chat")
		return
	}
	common.OKMsg(c, deleteMessage(res.Status), res)
}

func deleteMessage(s chat.DeleteStatus) string {
	switch s {
	case chat.StatusDeleted:
		return "chat deleted"
	case chat.StatusDeletedAll:
		return "all chats deleted"
	case chat.StatusNoHistory:
		return "no chat history"
	case chat.StatusNotFound:
		return "chat not found in history"
	default:
		return "nothing to delete"
	}
}

// GetHistory lists chats newest first; since/until are RFC3339 bounds on
// chat creation time.
func (h *Handler) GetHistory(c *gin.Context) {
	investorID, ok := investorIDFromContext(c)
	if !ok {
		return
	}
	since, err := parseTimeQuery(c, "since")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10005, "since must be an RFC3339 timestamp")
		return
	}
	until, err := parseTimeQuery(c, "until")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10005, "until must be an RFC3339 timestamp")
		return
	}
	if since != nil && until != nil && until.Before(*since) {
		common.Fail(c, http.StatusBadRequest, 10005, "until is before since")
		return
	}

	view, err := h.ChatSvc.GetHistory(c.Request.Context(), investorID, since, until)
	if err != nil {
		failChat(c, err, "failed to load history")
		return
	}
	common.OK(c, view)
}

func parseTimeQuery(c *gin.Context, name string) (*time.Time, error) {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func failChat(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, chat.ErrInvalidInvestorID):
		common.Fail(c, http.StatusUnauthorized, 40104, "invalid investor id")
	case errors.Is(err, chat.ErrChatNotFound):
		common.Fail(c, http.StatusNotFound, 40004, "chat not found")
	case errors.Is(err, chat.ErrTitleRequired):
		common.Fail(c, http.StatusBadRequest, 10002, "title required")
	case errors.Is(err, chat.ErrPromptRequired):
		common.Fail(c, http.StatusBadRequest, 10002, "prompt or pdfBase64 required")
	case errors.Is(err, context.Canceled):
		// client went away
		c.Abort()
	default:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg(msg)
		common.Fail(c, http.StatusInternalServerError, 50001, msg)
	}
}
