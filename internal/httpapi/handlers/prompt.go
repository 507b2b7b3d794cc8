package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/investocrafy/internal/common"
	"github.com/suPer8Hu/investocrafy/internal/pdftext"
)

// maxPDFChars caps the document text appended to a prompt.
const maxPDFChars = 20000

type promptReq struct {
	Prompt    string `json:"prompt"`
	PDFBase64 string `json:"pdfBase64"`
	ChatID    string `json:"chatId"`
}

// SendPrompt answers a prompt (optionally built from an uploaded PDF) inside
// the investor's active or given chat.
func (h *Handler) SendPrompt(c *gin.Context) {
	investorID, ok := investorIDFromContext(c)
	if !ok {
		return
	}
	var req promptReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	text := strings.TrimSpace(req.Prompt)
	if strings.TrimSpace(req.PDFBase64) != "" {
		doc, err := pdftext.FromBase64(req.PDFBase64)
		if err != nil {
			switch {
			case errors.Is(err, pdftext.ErrTooLarge):
				common.Fail(c, http.StatusRequestEntityTooLarge, 41301, "pdf too large")
			case errors.Is(err, pdftext.ErrNoText):
				common.Fail(c, http.StatusBadRequest, 10011, "no readable text in pdf")
			default:
				common.Fail(c, http.StatusBadRequest, 10010, "invalid pdf")
			}
			return
		}
		if r := []rune(doc); len(r) > maxPDFChars {
			doc = string(r[:maxPDFChars])
		}
		if text == "" {
			text = doc
		} else {
			text = text + "\n\n" + doc
		}
	}

	out, err := h.ChatSvc.AttachMessage(c.Request.Context(), investorID, text, req.ChatID)
	if err != nil {
		failChat(c, err, "failed to answer prompt")
		return
	}
	common.Created(c, "prompt answered", out)
}
