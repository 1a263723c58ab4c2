package llm

import (
	"context"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type PartType string

const (
	PartText      PartType = "text"
	PartReasoning PartType = "reasoning"
)

type Part struct {
	Type PartType `json:"type"`
	Text string   `json:"text"`
}

type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Text joins the message's text parts, skipping reasoning.
func (m Message) Text() string {
	return collectTextParts(m.Parts)
}

func SystemText(text string) Message {
	return Message{Role: RoleSystem, Parts: []Part{{Type: PartText, Text: text}}}
}

func UserText(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{{Type: PartText, Text: text}}}
}

func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Parts: []Part{{Type: PartText, Text: text}}}
}

type Request struct {
	Model           string
	Messages        []Message
	MaxOutputTokens int
	Temperature     float32
	ReasoningEffort string
	Debug           bool
}

type EventType string

const (
	EventTextDelta      EventType = "text_delta"
	EventReasoningDelta EventType = "reasoning_delta"
	EventUsage          EventType = "usage"
	EventDone           EventType = "done"
	EventError          EventType = "error"
)

type Event struct {
	Type EventType
	Text string
	Use  *Usage
	Err  error
}

type Usage struct {
	InputTokens       int `json:"inputTokens"`
	OutputTokens      int `json:"outputTokens"`
	CachedInputTokens int `json:"cachedInputTokens,omitempty"`
	ReasoningTokens   int `json:"reasoningTokens,omitempty"`
}

// TotalTokens returns input plus output tokens.
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CachedInputTokens += other.CachedInputTokens
	u.ReasoningTokens += other.ReasoningTokens
}

// Stream yields events until io.EOF.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

type Provider interface {
	Name() string
	Model() string
	Stream(ctx context.Context, req Request) (Stream, error)
}

func collectTextParts(parts []Part) string {
	var b strings.Builder
	for _, p := range parts {
		if p.Type == PartText || p.Type == "" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
