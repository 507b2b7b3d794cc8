package chat

import "errors"

var (
	ErrInvalidInvestorID = errors.New("invalid investor id")
	ErrChatNotFound      = errors.New("chat not found")
	ErrHistoryNotFound   = errors.New("history not found")
	ErrTitleRequired     = errors.New("title is required")
	ErrPromptRequired    = errors.New("prompt is required")
)
