package chat

import (
	"context"

	servechat "github.com/samsaffron/tutor/internal/serve/chat"
)

// StreamEvent is one item of a reply stream. Err is set when the transport
// failed; the channel is closed after it.
type StreamEvent struct {
	Part servechat.StreamPart
	Err  error
}

// StreamBackend abstracts the transport to the chat server.
type StreamBackend interface {
	SendMessage(ctx context.Context, req servechat.ChatRequest) (<-chan StreamEvent, error)
	Interrupt(chatID string)
}
