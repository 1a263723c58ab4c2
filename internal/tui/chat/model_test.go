package chat

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	servechat "github.com/samsaffron/tutor/internal/serve/chat"
	"github.com/samsaffron/tutor/internal/thinktimer"
	"github.com/samsaffron/tutor/internal/tutor"
	"github.com/samsaffron/tutor/internal/ui"
)

type fakeBackend struct {
	mu         sync.Mutex
	replies    [][]StreamEvent
	requests   []servechat.ChatRequest
	interrupts []string
	err        error
}

func (f *fakeBackend) SendMessage(ctx context.Context, req servechat.ChatRequest) (<-chan StreamEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	var events []StreamEvent
	if len(f.replies) > 0 {
		events, f.replies = f.replies[0], f.replies[1:]
	}
	ch := make(chan StreamEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (f *fakeBackend) Interrupt(chatID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interrupts = append(f.interrupts, chatID)
}

func part(typ, delta string) StreamEvent {
	return StreamEvent{Part: servechat.StreamPart{Type: typ, Delta: delta}}
}

func reply(chunks ...string) []StreamEvent {
	events := []StreamEvent{{Part: servechat.StreamPart{Type: servechat.PartStart, MessageID: "assistant-1"}}}
	for _, c := range chunks {
		events = append(events, part(servechat.PartTextDelta, c))
	}
	return append(events, part(servechat.PartFinish, ""))
}

func newTestModel(delay thinktimer.Duration, backend *fakeBackend) (*Model, *thinktimer.ManualClock) {
	clock := thinktimer.NewManualClock()
	m := New(Options{
		Backend:     backend,
		Delay:       delay,
		ProblemType: tutor.ProblemFermi,
		ChatModel:   "chat-model",
		ChatID:      "0b6f3c52-5d0e-4a56-9a43-1c1f9d6a2c11",
		Clock:       clock,
		Styles:      ui.NewStyles(&bytes.Buffer{}),
		Rand:        rand.New(rand.NewPCG(1, 2)),
	})
	m.resize(100, 40)
	return m, clock
}

// sendText types text, presses enter and drives the reply to completion.
// It reports whether a message was sent.
func sendText(t *testing.T, m *Model, text string) bool {
	t.Helper()
	m.textarea.SetValue(text)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		return false
	}
	msg := cmd()
	for {
		_, cmd = m.Update(msg)
		if cmd == nil {
			return true
		}
		msg = cmd()
		if _, done := msg.(streamEndMsg); done {
			m.Update(msg)
			return true
		}
	}
}

func TestFirstTextChunkStartsThinkingDelay(t *testing.T) {
	backend := &fakeBackend{replies: [][]StreamEvent{
		reply("<PROGRESS>0.4</PROGRESS>Good", " work. What next?"),
		reply("Great."),
	}}
	m, clock := newTestModel(thinktimer.Short, backend)

	require.True(t, sendText(t, m, "There are 90 two digit numbers"))
	require.Len(t, m.Messages(), 2)
	assistant := m.Messages()[1]
	assert.Equal(t, "Good work. What next?", assistant.Content)
	assert.True(t, m.timer.IsActive())
	assert.False(t, m.CanSubmit())

	v, ok := m.LatestProgress()
	require.True(t, ok)
	assert.InDelta(t, 0.4, v, 1e-9)

	assert.False(t, sendText(t, m, "ignored while thinking"))
	assert.Len(t, backend.requests, 1)
	assert.Equal(t, "ignored while thinking", m.textarea.Value())

	clock.Advance(5 * time.Second)
	assert.False(t, m.timer.IsActive())
	assert.True(t, m.CanSubmit())

	require.True(t, sendText(t, m, "Then 9 times 10"))
	require.Len(t, backend.requests, 2)
	assert.Nil(t, backend.requests[0].ThinkSeconds)
	require.NotNil(t, backend.requests[1].ThinkSeconds)
	assert.GreaterOrEqual(t, *backend.requests[1].ThinkSeconds, 0.0)

	// The second reply re-arms the delay.
	assert.True(t, m.timer.IsActive())
}

func TestNoDelayAllowsImmediateSubmit(t *testing.T) {
	backend := &fakeBackend{replies: [][]StreamEvent{reply("One"), reply("Two")}}
	m, _ := newTestModel(thinktimer.None, backend)

	require.True(t, sendText(t, m, "first"))
	assert.False(t, m.timer.IsActive())
	assert.True(t, m.CanSubmit())
	require.True(t, sendText(t, m, "second"))
	assert.Len(t, backend.requests, 2)
}

func TestRequestCarriesSessionChoices(t *testing.T) {
	backend := &fakeBackend{replies: [][]StreamEvent{reply("Hi")}}
	m, _ := newTestModel(thinktimer.None, backend)

	require.True(t, sendText(t, m, "  how many piano tuners?  "))
	require.Len(t, backend.requests, 1)
	req := backend.requests[0]
	assert.Equal(t, m.ChatID(), req.ID)
	assert.Equal(t, "chat-model", req.SelectedChatModel)
	assert.Equal(t, "private", req.SelectedVisibilityType)
	assert.Equal(t, "fermi", req.ProblemType)
	assert.Equal(t, "user", req.Message.Role)
	assert.Equal(t, "how many piano tuners?", req.Message.Text())
}

func TestEmptyInputIsNotSent(t *testing.T) {
	backend := &fakeBackend{}
	m, _ := newTestModel(thinktimer.None, backend)
	assert.False(t, sendText(t, m, "   "))
	assert.Empty(t, backend.requests)
}

func TestProgressIsReextractedPerChunk(t *testing.T) {
	m, _ := newTestModel(thinktimer.None, &fakeBackend{})
	m.streaming = true

	m.handleStreamEvent(StreamEvent{Part: servechat.StreamPart{Type: servechat.PartStart, MessageID: "a"}})
	m.handleStreamEvent(part(servechat.PartTextDelta, "<PROG"))
	assert.Equal(t, "<PROG", m.Messages()[0].Content)
	_, ok := m.LatestProgress()
	assert.False(t, ok)

	m.handleStreamEvent(part(servechat.PartTextDelta, "RESS>0.7</PROGRESS>Next step?"))
	assert.Equal(t, "Next step?", m.Messages()[0].Content)
	v, ok := m.LatestProgress()
	require.True(t, ok)
	assert.InDelta(t, 0.7, v, 1e-9)

	m.handleStreamEvent(part(servechat.PartTextDelta, " <PROGRESS>1</PROGRESS>"))
	assert.True(t, m.Messages()[0].Progress.Complete())
	assert.Contains(t, m.renderConversation(), "Problem solved!")
}

func TestReasoningIsKeptApart(t *testing.T) {
	m, _ := newTestModel(thinktimer.Short, &fakeBackend{})
	m.streaming = true

	m.handleStreamEvent(part(servechat.PartReasoningDelta, "The learner counted tens."))
	assert.False(t, m.timer.IsActive())
	m.handleStreamEvent(part(servechat.PartTextDelta, "Why tens?"))
	assert.True(t, m.timer.IsActive())

	msg := m.Messages()[0]
	assert.Equal(t, "The learner counted tens.", msg.Reasoning)
	assert.Equal(t, "Why tens?", msg.Content)
}

func TestStreamErrorStopsTimer(t *testing.T) {
	events := []StreamEvent{
		{Part: servechat.StreamPart{Type: servechat.PartStart, MessageID: "a"}},
		part(servechat.PartTextDelta, "Let us"),
		{Err: errors.New("connection reset")},
	}
	backend := &fakeBackend{replies: [][]StreamEvent{events}}
	m, clock := newTestModel(thinktimer.Long, backend)

	require.True(t, sendText(t, m, "hi"))
	assert.False(t, m.timer.IsActive())
	assert.Equal(t, 0, clock.Pending())
	assert.True(t, m.CanSubmit())
	assert.Contains(t, m.View(), "connection reset")
}

func TestErrorPartMarksReplyFailed(t *testing.T) {
	events := []StreamEvent{
		{Part: servechat.StreamPart{Type: servechat.PartStart, MessageID: "a"}},
		{Part: servechat.StreamPart{Type: servechat.PartError, ErrorText: servechat.StreamErrorText}},
	}
	m, _ := newTestModel(thinktimer.Short, &fakeBackend{replies: [][]StreamEvent{events}})

	require.True(t, sendText(t, m, "hi"))
	require.Len(t, m.Messages(), 2)
	assert.True(t, m.Messages()[1].Failed)
	assert.EqualError(t, m.err, servechat.StreamErrorText)
}

func TestSendFailureIsShown(t *testing.T) {
	backend := &fakeBackend{err: errors.New("rate limited")}
	m, _ := newTestModel(thinktimer.None, backend)

	require.True(t, sendText(t, m, "hi"))
	assert.False(t, m.streaming)
	assert.Contains(t, m.View(), "rate limited")
}

func TestQuitStopsTimer(t *testing.T) {
	backend := &fakeBackend{replies: [][]StreamEvent{reply("Think about it.")}}
	m, clock := newTestModel(thinktimer.Long, backend)
	require.True(t, sendText(t, m, "hi"))
	require.True(t, m.timer.IsActive())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.False(t, m.timer.IsActive())
	assert.Equal(t, 0, clock.Pending())
	assert.Empty(t, m.View())
}

func TestBoredControlShowsEncouragement(t *testing.T) {
	m, _ := newTestModel(thinktimer.None, &fakeBackend{})

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlB})
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlB})

	assert.Equal(t, 2, m.BoredClicks())
	assert.Contains(t, tutor.Encouragements(), m.encouragement)
	assert.Contains(t, m.View(), m.encouragement)
	assert.Contains(t, m.renderHelp(), "(2)")
}

func TestInterruptOnlyWhileStreaming(t *testing.T) {
	backend := &fakeBackend{}
	m, _ := newTestModel(thinktimer.None, backend)

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Empty(t, backend.interrupts)

	m.streaming = true
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, []string{m.ChatID()}, backend.interrupts)
}

func TestViewShowsCountdown(t *testing.T) {
	backend := &fakeBackend{replies: [][]StreamEvent{reply("<PROGRESS>0.25</PROGRESS>Hmm?")}}
	m, clock := newTestModel(thinktimer.Short, backend)
	require.True(t, sendText(t, m, "hi"))

	view := m.View()
	assert.Contains(t, view, "Time remaining: 5s")
	assert.Contains(t, view, tutor.ThinkingInstruction(5))
	assert.Contains(t, view, "Progress  25%")

	clock.Advance(2 * time.Second)
	assert.Contains(t, m.View(), "Time remaining: 3s")

	clock.Advance(3 * time.Second)
	assert.NotContains(t, m.View(), "Time remaining")
}

func TestTimerSnapshotsReachUpdateLoop(t *testing.T) {
	backend := &fakeBackend{replies: [][]StreamEvent{reply("Hmm?")}}
	m, clock := newTestModel(thinktimer.Short, backend)
	require.True(t, sendText(t, m, "hi"))

	clock.Advance(time.Second)
	msg := waitForTimer(m.timerCh)()
	snap, ok := msg.(timerMsg)
	require.True(t, ok)
	assert.Equal(t, 4, snap.Remaining)

	_, cmd := m.Update(msg)
	assert.NotNil(t, cmd)
}
