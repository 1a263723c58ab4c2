package llm

import (
	"context"
	"errors"
	"io"
	"strings"
)

type channelStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	events <-chan Event
}

func newEventStream(ctx context.Context, run func(context.Context, chan<- Event) error) Stream {
	streamCtx, cancel := context.WithCancel(ctx)
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		if err := run(streamCtx, ch); err != nil {
			select {
			case ch <- Event{Type: EventError, Err: err}:
			case <-streamCtx.Done():
			}
		}
	}()
	return &channelStream{ctx: streamCtx, cancel: cancel, events: ch}
}

func (s *channelStream) Recv() (Event, error) {
	// Drain buffered events before checking ctx.Done() so a final
	// EventUsage/EventDone is not lost when both are ready.
	select {
	case event, ok := <-s.events:
		if !ok {
			return Event{}, io.EOF
		}
		return event, nil
	default:
	}

	select {
	case <-s.ctx.Done():
		return Event{}, s.ctx.Err()
	case event, ok := <-s.events:
		if !ok {
			return Event{}, io.EOF
		}
		return event, nil
	}
}

func (s *channelStream) Close() error {
	s.cancel()
	return nil
}

// Collected is the result of draining a stream.
type Collected struct {
	Text      string
	Reasoning string
	Usage     Usage
}

// Collect reads stream to completion. An EventError ends collection with
// that error.
func Collect(stream Stream) (Collected, error) {
	var text, reasoning strings.Builder
	var out Collected
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, err
		}
		switch ev.Type {
		case EventTextDelta:
			text.WriteString(ev.Text)
		case EventReasoningDelta:
			reasoning.WriteString(ev.Text)
		case EventUsage:
			if ev.Use != nil {
				out.Usage.Add(*ev.Use)
			}
		case EventError:
			if ev.Err != nil {
				return out, ev.Err
			}
		}
	}
	out.Text = text.String()
	out.Reasoning = reasoning.String()
	return out, nil
}
