package chat

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/samsaffron/tutor/internal/client"
	servechat "github.com/samsaffron/tutor/internal/serve/chat"
)

// DefaultStreamBufferSize is the capacity of reply channels.
const DefaultStreamBufferSize = 64

// maxResumes bounds reconnect attempts for one reply.
const maxResumes = 3

// RemoteBackend talks to a tutor server over HTTP. Dropped replies are
// resumed from the last received sequence number.
// Implements StreamBackend.
type RemoteBackend struct {
	client *client.Client
}

// NewRemoteBackend creates a RemoteBackend for c.
func NewRemoteBackend(c *client.Client) *RemoteBackend {
	return &RemoteBackend{client: c}
}

// SendMessage posts the learner message and returns the reply parts.
func (r *RemoteBackend) SendMessage(ctx context.Context, req servechat.ChatRequest) (<-chan StreamEvent, error) {
	if r == nil || r.client == nil {
		return nil, errors.New("remote backend has no client")
	}
	stream, err := r.client.SendMessage(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamEvent, DefaultStreamBufferSize)
	go r.pump(ctx, req.ID, stream, ch)
	return ch, nil
}

// Interrupt asks the server to stop the chat's current reply.
func (r *RemoteBackend) Interrupt(chatID string) {
	if r == nil || r.client == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = r.client.Interrupt(ctx, chatID)
	}()
}

func (r *RemoteBackend) pump(ctx context.Context, chatID string, stream *client.EventStream, ch chan<- StreamEvent) {
	defer close(ch)
	var lastSeq int64
	resumes := 0
	for {
		part, err := stream.Recv()
		if err == nil {
			if part.Seq > lastSeq {
				lastSeq = part.Seq
			}
			if !emit(ctx, ch, StreamEvent{Part: part}) {
				stream.Close()
				return
			}
			continue
		}
		stream.Close()
		if errors.Is(err, io.EOF) {
			return
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) || resumes >= maxResumes || ctx.Err() != nil {
			emit(ctx, ch, StreamEvent{Err: err})
			return
		}

		resumes++
		next, rerr := r.client.Resume(ctx, chatID, lastSeq)
		if rerr != nil {
			emit(ctx, ch, StreamEvent{Err: rerr})
			return
		}
		stream = next
	}
}

func emit(ctx context.Context, ch chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
