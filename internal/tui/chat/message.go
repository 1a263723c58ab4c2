package chat

import (
	"time"

	"github.com/samsaffron/tutor/internal/progress"
)

// MessageRole represents who sent the message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatMessage represents a single message in the conversation
type ChatMessage struct {
	ID        string
	Role      MessageRole
	Content   string // display text, progress markers removed
	Reasoning string
	// Raw is the assistant text as streamed, markers included.
	Raw          string
	Progress     progress.Result
	ThinkSeconds *float64 // learner deliberation before a user message
	Tokens       int      // output tokens for assistant messages
	Failed       bool
	CreatedAt    time.Time
}

// NewUserMessage creates a new user message
func NewUserMessage(id, content string, thinkSeconds *float64) ChatMessage {
	return ChatMessage{
		ID:           id,
		Role:         RoleUser,
		Content:      content,
		ThinkSeconds: thinkSeconds,
		CreatedAt:    time.Now(),
	}
}

// NewAssistantMessage creates an empty assistant message to stream into
func NewAssistantMessage(id string) ChatMessage {
	return ChatMessage{
		ID:        id,
		Role:      RoleAssistant,
		CreatedAt: time.Now(),
	}
}

// AppendText adds a streamed chunk and re-extracts progress from the whole
// reply so far.
func (m *ChatMessage) AppendText(chunk string) {
	m.Raw += chunk
	m.Progress = progress.Extract(m.Raw)
	m.Content = m.Progress.DisplayText
}
