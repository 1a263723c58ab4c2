package chat

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/samsaffron/tutor/internal/llm"
	"github.com/samsaffron/tutor/internal/store"
	"github.com/samsaffron/tutor/internal/tutor"
)

const (
	maxRequestBytes  = 64 << 10
	maxMessageLength = 4000
	maxMessageParts  = 16
	maxThinkSeconds  = 24 * 60 * 60
)

// chatInput is a validated chat request.
type chatInput struct {
	ChatID      string
	MessageID   string
	Text        string
	Parts       []llm.Part
	ChatModel   string
	Visibility  store.Visibility
	ProblemType tutor.ProblemType
	// HasProblemType is false when the request left the type to the chat.
	HasProblemType bool
	ThinkMs        int64
}

func decodeChatRequest(r *http.Request) (ChatRequest, error) {
	var req ChatRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("decode body: %w", err)
	}
	return req, nil
}

// validate checks the request shape. The model is checked against the
// registry here and against the caller's entitlements after authentication.
func (s *Server) validate(req ChatRequest) (chatInput, error) {
	var in chatInput

	if _, err := uuid.Parse(req.ID); err != nil {
		return in, fmt.Errorf("id must be a UUID")
	}
	in.ChatID = req.ID

	msg := req.Message
	if _, err := uuid.Parse(msg.ID); err != nil {
		return in, fmt.Errorf("message.id must be a UUID")
	}
	in.MessageID = msg.ID
	if msg.Role != string(llm.RoleUser) {
		return in, fmt.Errorf("message.role must be user")
	}
	if len(msg.Parts) == 0 || len(msg.Parts) > maxMessageParts {
		return in, fmt.Errorf("message.parts must hold 1 to %d parts", maxMessageParts)
	}
	for i, p := range msg.Parts {
		if p.Type != string(llm.PartText) {
			return in, fmt.Errorf("message.parts[%d]: only text parts are accepted", i)
		}
		n := utf8.RuneCountInString(p.Text)
		if n < 1 || n > maxMessageLength {
			return in, fmt.Errorf("message.parts[%d]: text must be 1 to %d characters", i, maxMessageLength)
		}
		in.Parts = append(in.Parts, llm.Part{Type: llm.PartText, Text: p.Text})
	}
	in.Text = msg.Text()

	if !s.models.Has(req.SelectedChatModel) {
		return in, fmt.Errorf("unknown chat model %q", req.SelectedChatModel)
	}
	in.ChatModel = req.SelectedChatModel

	vis, err := store.ParseVisibility(req.SelectedVisibilityType)
	if err != nil {
		return in, err
	}
	in.Visibility = vis

	if req.ProblemType != "" {
		pt, err := tutor.ParseProblemType(req.ProblemType)
		if err != nil {
			return in, err
		}
		in.ProblemType = pt
		in.HasProblemType = true
	}

	if req.ThinkSeconds != nil {
		secs := *req.ThinkSeconds
		if math.IsNaN(secs) || secs < 0 || secs > maxThinkSeconds {
			return in, fmt.Errorf("thinkSeconds must be between 0 and %d", maxThinkSeconds)
		}
		in.ThinkMs = int64(secs * 1000)
	}
	return in, nil
}
