package chat

import (
	"context"
	"sync"
	"time"
)

const subscriberBuffer = 256

// ActiveStream buffers the parts of one assistant response so clients can
// resume it after a dropped connection.
type ActiveStream struct {
	ID           string
	ChatID       string
	UserID       string
	EventBuf     []StreamPart
	NextSeq      int64
	LastActiveAt time.Time
	done         bool
	mu           sync.Mutex
	subscribers  map[chan StreamPart]struct{}
	cancelStream context.CancelFunc
}

// StreamRegistry tracks active and recently finished streams.
type StreamRegistry struct {
	streams map[string]*ActiveStream
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
}

// NewStreamRegistry creates a registry that forgets finished streams after ttl.
func NewStreamRegistry(ttl time.Duration) *StreamRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &StreamRegistry{
		streams: make(map[string]*ActiveStream),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Start registers a new stream. cancel aborts the producer.
func (m *StreamRegistry) Start(id, chatID, userID string, cancel context.CancelFunc) *ActiveStream {
	st := &ActiveStream{
		ID:           id,
		ChatID:       chatID,
		UserID:       userID,
		NextSeq:      1,
		LastActiveAt: m.now(),
		subscribers:  make(map[chan StreamPart]struct{}),
		cancelStream: cancel,
	}
	m.mu.Lock()
	m.streams[id] = st
	m.mu.Unlock()
	return st
}

// Get returns the stream with id, or nil.
func (m *StreamRegistry) Get(id string) *ActiveStream {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.streams[id]
}

// Len returns the number of tracked streams.
func (m *StreamRegistry) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.streams)
}

// CancelAll aborts every running producer.
func (m *StreamRegistry) CancelAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, st := range m.streams {
		st.Cancel()
	}
}

// StartGC starts background GC for finished streams.
func (m *StreamRegistry) StartGC(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.gcStreams()
		case <-ctx.Done():
			return
		}
	}
}

func (m *StreamRegistry) gcStreams() {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, st := range m.streams {
		st.mu.Lock()
		stale := st.done && st.LastActiveAt.Before(cutoff) && len(st.subscribers) == 0
		st.mu.Unlock()
		if stale {
			delete(m.streams, id)
		}
	}
}

// Publish assigns the next sequence number to p, buffers it and fans it out.
// A terminal part closes the stream. Subscribers that cannot keep up are
// dropped; their channel closes while the stream is still running.
func (st *ActiveStream) Publish(p StreamPart) StreamPart {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.done {
		return p
	}
	p.Seq = st.NextSeq
	st.NextSeq++
	st.EventBuf = append(st.EventBuf, p)
	st.LastActiveAt = time.Now()

	for ch := range st.subscribers {
		select {
		case ch <- p:
		default:
			delete(st.subscribers, ch)
			close(ch)
		}
	}
	if p.Terminal() {
		st.closeLocked()
	}
	return p
}

// Close ends the stream without a terminal part.
func (st *ActiveStream) Close() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.done {
		st.closeLocked()
	}
}

func (st *ActiveStream) closeLocked() {
	st.done = true
	st.cancelStream = nil
	for ch := range st.subscribers {
		close(ch)
	}
	clear(st.subscribers)
}

// Done reports whether the stream has ended.
func (st *ActiveStream) Done() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.done
}

// Cancel aborts the producer of a running stream.
func (st *ActiveStream) Cancel() {
	st.mu.Lock()
	cancel := st.cancelStream
	st.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Subscribe returns the buffered parts after since and a channel carrying
// the parts that follow. The channel is closed when the stream ends; for a
// finished stream it is already closed. Call the returned func to stop.
func (st *ActiveStream) Subscribe(since int64) ([]StreamPart, <-chan StreamPart, func()) {
	st.mu.Lock()
	defer st.mu.Unlock()

	var replay []StreamPart
	for _, evt := range st.EventBuf {
		if evt.Seq > since {
			replay = append(replay, evt)
		}
	}

	ch := make(chan StreamPart, subscriberBuffer)
	if st.done {
		close(ch)
		return replay, ch, func() {}
	}
	st.subscribers[ch] = struct{}{}
	st.LastActiveAt = time.Now()

	unsubscribe := func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		if _, ok := st.subscribers[ch]; ok {
			delete(st.subscribers, ch)
			close(ch)
		}
	}
	return replay, ch, unsubscribe
}

// Follow writes the parts after since to write, in sequence order, until the
// stream ends or stop fires. When its subscription is dropped for falling
// behind it catches up from the buffer. It reports whether every part up to
// the end of the stream was written.
func (st *ActiveStream) Follow(since int64, stop <-chan struct{}, write func(StreamPart) error) bool {
	last := since
	for {
		finished := st.Done()
		replay, ch, unsubscribe := st.Subscribe(last)
		for _, p := range replay {
			if err := write(p); err != nil {
				unsubscribe()
				return false
			}
			last = p.Seq
		}

		for open := true; open; {
			select {
			case <-stop:
				unsubscribe()
				return false
			case p, ok := <-ch:
				if !ok {
					open = false
					continue
				}
				if err := write(p); err != nil {
					unsubscribe()
					return false
				}
				last = p.Seq
			}
		}
		unsubscribe()
		if finished {
			return true
		}
	}
}
