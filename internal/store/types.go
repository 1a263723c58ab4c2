package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/samsaffron/tutor/internal/llm"
)

// Visibility controls who may read a chat.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// ParseVisibility accepts "public" or "private".
func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(s) {
	case VisibilityPrivate, VisibilityPublic:
		return Visibility(s), nil
	}
	return "", fmt.Errorf("invalid visibility %q", s)
}

// Chat is one tutoring conversation.
type Chat struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Title       string          `json:"title"`
	Visibility  Visibility      `json:"visibility"`
	ProblemType string          `json:"problemType,omitempty"`
	Progress    *float64        `json:"progress,omitempty"`
	LastContext json.RawMessage `json:"lastContext,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Message is one stored chat turn.
type Message struct {
	ID          string     `json:"id"`
	ChatID      string     `json:"chatId"`
	Role        llm.Role   `json:"role"`
	Parts       []llm.Part `json:"parts"`
	TextContent string     `json:"-"`
	// ThinkMs is how long the learner deliberated before sending a user
	// message.
	ThinkMs   int64     `json:"thinkMs,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Sequence  int       `json:"-"`
}

// ToLLM converts the stored message into a model message.
func (m Message) ToLLM() llm.Message {
	return llm.Message{Role: m.Role, Parts: m.Parts}
}

// PartsJSON serializes the parts for storage.
func (m *Message) PartsJSON() (string, error) {
	data, err := json.Marshal(m.Parts)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetPartsFromJSON restores parts and refreshes TextContent.
func (m *Message) SetPartsFromJSON(data string) error {
	if err := json.Unmarshal([]byte(data), &m.Parts); err != nil {
		return err
	}
	m.TextContent = llm.Message{Parts: m.Parts}.Text()
	return nil
}

// ListOptions filters ListChats.
type ListOptions struct {
	UserID string
	Limit  int
	Offset int
}

// ChatSummary is a chat row with its message count, for listings.
type ChatSummary struct {
	Chat
	MessageCount int `json:"messageCount"`
}

// SearchResult is a message matching a full-text query.
type SearchResult struct {
	ChatID    string    `json:"chatId"`
	MessageID string    `json:"messageId"`
	Title     string    `json:"title"`
	Snippet   string    `json:"snippet"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the persistence interface used by the chat server.
type Store interface {
	GetChatByID(ctx context.Context, id string) (*Chat, error)
	SaveChat(ctx context.Context, chat *Chat) error
	DeleteChatByID(ctx context.Context, id string) (*Chat, error)
	ListChats(ctx context.Context, opts ListOptions) ([]ChatSummary, error)
	ListChatsByUserID(ctx context.Context, userID string, limit int) ([]ChatSummary, error)
	GetMessagesByChatID(ctx context.Context, chatID string) ([]Message, error)
	SaveMessages(ctx context.Context, messages []Message) error
	GetMessageCountByUserID(ctx context.Context, userID string, since time.Time) (int, error)
	CreateStreamID(ctx context.Context, streamID, chatID string) error
	GetStreamIDsByChatID(ctx context.Context, chatID string) ([]string, error)
	UpdateChatLastContextByID(ctx context.Context, chatID string, usage any) error
	UpdateChatProgress(ctx context.Context, chatID string, progress float64) error
	SearchMessages(ctx context.Context, userID, query string, limit int) ([]SearchResult, error)
	Close() error
}
