package chat

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DefaultChatTitle    = "New Chat"
	DefaultHistoryTitle = "Chat History"

	ResponseGeneral    = "general"
	ResponseInvestment = "investment"
)

type Prompt struct {
	ID         string    `gorm:"primaryKey;size:26" json:"_id"` // ULID
	InvestorID string    `gorm:"size:26;index;not null" json:"investorId"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (Prompt) TableName() string { return "prompts" }

// AIResponse is one generated answer. Component and ChartValues are opaque
// payloads for the presentation layer and are stored and relayed verbatim.
type AIResponse struct {
	ID             string         `gorm:"primaryKey;size:26" json:"_id"`
	InvestorID     string         `gorm:"size:26;index;not null" json:"investorId"`
	ResponseType   string         `gorm:"type:varchar(16);not null" json:"responseType"`
	Text           string         `gorm:"type:text;not null" json:"text"`
	Component      datatypes.JSON `json:"component"`
	ChartValues    datatypes.JSON `json:"chartValues"`
	InvestorURL    string         `gorm:"type:varchar(1024)" json:"investorURL"`
	AdditionalInfo string         `gorm:"type:text" json:"additionalInfo"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

func (AIResponse) TableName() string { return "ai_responses" }

// Message binds one Prompt and one AIResponse to a Chat.
type Message struct {
	ID           string      `gorm:"primaryKey;size:26" json:"_id"`
	InvestorID   string      `gorm:"size:26;index;not null" json:"investorId"`
	ChatID       string      `gorm:"size:26;index;not null" json:"chatId"`
	PromptID     string      `gorm:"size:26;not null" json:"-"`
	AIResponseID string      `gorm:"size:26;not null" json:"-"`
	Prompt       *Prompt     `gorm:"foreignKey:PromptID;constraint:-" json:"prompt,omitempty"`
	AIResponse   *AIResponse `gorm:"foreignKey:AIResponseID;constraint:-" json:"aiResponse,omitempty"`
	CreatedAt    time.Time   `gorm:"index" json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

func (Message) TableName() string { return "chat_messages" }

// Chat keeps its message ids in insertion order.
type Chat struct {
	ID            string                      `gorm:"primaryKey;size:26" json:"_id"`
	InvestorID    string                      `gorm:"size:26;not null;index:idx_chat_investor_created,priority:1" json:"investorId"`
	Title         string                      `gorm:"type:varchar(255);not null" json:"title"`
	Messages      datatypes.JSONSlice[string] `json:"messages"`
	LastMessageID *string                     `gorm:"size:26" json:"lastMessage,omitempty"`
	CreatedAt     time.Time                   `gorm:"index:idx_chat_investor_created,priority:2" json:"createdAt"`
	UpdatedAt     time.Time                   `json:"updatedAt"`
}

func (Chat) TableName() string { return "chats" }

// History is the per-investor ledger of chat ids, oldest first.
type History struct {
	ID         string                      `gorm:"primaryKey;size:26" json:"_id"`
	InvestorID string                      `gorm:"size:26;uniqueIndex;not null" json:"investorId"`
	Title      string                      `gorm:"type:varchar(64);not null" json:"title"`
	Chats      datatypes.JSONSlice[string] `json:"chats"`
	CreatedAt  time.Time                   `json:"createdAt"`
	UpdatedAt  time.Time                   `json:"updatedAt"`
}

func (History) TableName() string { return "histories" }

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Prompt{}, &AIResponse{}, &Message{}, &Chat{}, &History{})
}
