package chat

import (
	"strings"

	"github.com/samsaffron/tutor/internal/llm"
	"github.com/samsaffron/tutor/internal/store"
	"github.com/samsaffron/tutor/internal/usage"
)

// Stream part types sent to clients.
const (
	PartStart          = "start"
	PartTextDelta      = "text-delta"
	PartReasoningDelta = "reasoning-delta"
	PartDataProgress   = "data-progress"
	PartDataUsage      = "data-usage"
	PartFinish         = "finish"
	PartError          = "error"
)

// StreamErrorText is the only error detail clients ever see mid-stream.
const StreamErrorText = "Oops, an error occurred!"

// StreamPart is the JSON envelope of one SSE frame or WebSocket message.
// Every part has a monotonic Seq for catchup replay.
type StreamPart struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"`

	// start
	MessageID string `json:"messageId,omitempty"`

	// text-delta / reasoning-delta
	Delta string `json:"delta,omitempty"`

	// data-progress
	Progress *float64 `json:"progress,omitempty"`

	// data-usage
	Usage *usage.AppUsage `json:"usage,omitempty"`

	// finish
	FinishReason string `json:"finishReason,omitempty"`

	// error
	ErrorText string `json:"errorText,omitempty"`
}

// Terminal reports whether no parts follow p.
func (p StreamPart) Terminal() bool {
	return p.Type == PartFinish || p.Type == PartError
}

// MessagePart is a part of a submitted message.
type MessagePart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ChatMessage is the learner message of a chat request.
type ChatMessage struct {
	ID    string        `json:"id"`
	Role  string        `json:"role"`
	Parts []MessagePart `json:"parts"`
}

// Text joins the text parts.
func (m ChatMessage) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == string(llm.PartText) {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	ID                     string      `json:"id"`
	Message                ChatMessage `json:"message"`
	SelectedChatModel      string      `json:"selectedChatModel"`
	SelectedVisibilityType string      `json:"selectedVisibilityType"`
	ProblemType            string      `json:"problemType,omitempty"`
	// ThinkSeconds is how long the learner deliberated before sending.
	ThinkSeconds *float64 `json:"thinkSeconds,omitempty"`
}

// HistoryResponse is the body of GET /api/history.
type HistoryResponse struct {
	Chats   []store.ChatSummary `json:"chats"`
	HasMore bool                `json:"hasMore"`
}
