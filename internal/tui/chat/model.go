// Package chat is the terminal tutoring client.
package chat

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	servechat "github.com/samsaffron/tutor/internal/serve/chat"
	"github.com/samsaffron/tutor/internal/store"
	"github.com/samsaffron/tutor/internal/thinktimer"
	"github.com/samsaffron/tutor/internal/tutor"
	"github.com/samsaffron/tutor/internal/ui"
)

// Options configures a chat Model.
type Options struct {
	Backend     StreamBackend
	Delay       thinktimer.Duration
	ProblemType tutor.ProblemType
	ChatModel   string
	ChatID      string // empty starts a new chat
	Clock       thinktimer.Clock
	Styles      *ui.Styles
	Rand        *rand.Rand
}

type keyMap struct {
	Send      key.Binding
	Bored     key.Binding
	Interrupt key.Binding
	Quit      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Send:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Bored:     key.NewBinding(key.WithKeys("ctrl+b"), key.WithHelp("ctrl+b", tutor.BoredomLabel)),
		Interrupt: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "stop reply")),
		Quit:      key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

// timerMsg signals a thinking-delay state change.
type timerMsg thinktimer.Snapshot

// streamStartedMsg carries the reply channel of a sent message.
type streamStartedMsg struct {
	ch     <-chan StreamEvent
	cancel context.CancelFunc
}

// streamEventMsg is one event read from the reply channel.
type streamEventMsg StreamEvent

// streamEndMsg is sent once the reply channel is closed.
type streamEndMsg struct{}

// sendFailedMsg reports a message the server refused.
type sendFailedMsg struct{ err error }

// Model is the bubbletea model of a tutoring session.
type Model struct {
	backend     StreamBackend
	chatID      string
	problemType tutor.ProblemType
	chatModel   string
	styles      *ui.Styles
	keys        keyMap
	rand        *rand.Rand

	messages []ChatMessage
	// current indexes the assistant message being streamed, or -1.
	current int

	textarea textarea.Model
	viewport viewport.Model
	bar      progress.Model
	spinner  spinner.Model

	timer    *thinktimer.Timer
	response *thinktimer.ResponseTimer
	timerCh  chan thinktimer.Snapshot

	streaming        bool
	stream           <-chan StreamEvent
	streamCancelFunc context.CancelFunc
	streamStarted    time.Time
	textStarted      bool

	encouragement string
	boredClicks   int
	err           error

	width    int
	height   int
	quitting bool
}

// New creates a session model.
func New(opts Options) *Model {
	styles := opts.Styles
	if styles == nil {
		styles = ui.DefaultStyles()
	}
	chatID := opts.ChatID
	if chatID == "" {
		chatID = uuid.NewString()
	}
	problemType := opts.ProblemType
	if problemType == "" {
		problemType = tutor.DefaultProblemType
	}

	ta := textarea.New()
	ta.Placeholder = "Type your answer or question..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 4000
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Tutor

	m := &Model{
		backend:     opts.Backend,
		chatID:      chatID,
		problemType: problemType,
		chatModel:   opts.ChatModel,
		styles:      styles,
		keys:        defaultKeyMap(),
		rand:        opts.Rand,
		current:     -1,
		textarea:    ta,
		viewport:    viewport.New(80, 20),
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner:     sp,
		response:    thinktimer.NewResponseTimer(),
		timerCh:     make(chan thinktimer.Snapshot, 1),
	}

	timerOpts := []thinktimer.Option{thinktimer.WithOnChange(m.publishTimer)}
	if opts.Clock != nil {
		timerOpts = append(timerOpts, thinktimer.WithClock(opts.Clock))
	}
	m.timer = thinktimer.New(opts.Delay, timerOpts...)
	return m
}

// ChatID returns the id of the chat being held.
func (m *Model) ChatID() string { return m.chatID }

// BoredClicks returns how often the learner asked for encouragement.
func (m *Model) BoredClicks() int { return m.boredClicks }

// Messages returns the conversation so far.
func (m *Model) Messages() []ChatMessage { return m.messages }

// publishTimer hands a snapshot to the UI loop. Only the latest snapshot
// matters, so an unread one is replaced.
func (m *Model) publishTimer(s thinktimer.Snapshot) {
	select {
	case m.timerCh <- s:
		return
	default:
	}
	select {
	case <-m.timerCh:
	default:
	}
	select {
	case m.timerCh <- s:
	default:
	}
}

func waitForTimer(ch <-chan thinktimer.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return timerMsg(s)
	}
}

func waitForStream(ch <-chan StreamEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamEndMsg{}
		}
		return streamEventMsg(ev)
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, waitForTimer(m.timerCh))
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case timerMsg:
		return m, waitForTimer(m.timerCh)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		updated, cmd := m.bar.Update(msg)
		if bar, ok := updated.(progress.Model); ok {
			m.bar = bar
		}
		return m, cmd

	case streamStartedMsg:
		m.stream = msg.ch
		m.streamCancelFunc = msg.cancel
		return m, waitForStream(msg.ch)

	case sendFailedMsg:
		m.endStream()
		m.fail(msg.err)
		return m, nil

	case streamEventMsg:
		m.handleStreamEvent(StreamEvent(msg))
		if m.stream == nil {
			return m, nil
		}
		return m, waitForStream(m.stream)

	case streamEndMsg:
		m.endStream()
		return m, nil
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.teardown()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Interrupt):
		if m.streaming && m.backend != nil {
			m.backend.Interrupt(m.chatID)
		}
		return m, nil

	case key.Matches(msg, m.keys.Bored):
		m.boredClicks++
		m.encouragement = tutor.RandomEncouragement(m.rand)
		return m, nil

	case key.Matches(msg, m.keys.Send):
		return m, m.submit()
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

// CanSubmit reports whether enter sends the composed message.
func (m *Model) CanSubmit() bool {
	return !m.streaming && m.timer.SubmitEnabled()
}

func (m *Model) submit() tea.Cmd {
	if !m.CanSubmit() || m.backend == nil {
		return nil
	}
	text := strings.TrimSpace(m.textarea.Value())
	if text == "" {
		return nil
	}

	var thinkSeconds *float64
	if elapsed, ok := m.response.Stop(); ok {
		secs := elapsed.Seconds()
		thinkSeconds = &secs
	}
	m.timer.ResetStarted()

	msgID := uuid.NewString()
	m.messages = append(m.messages, NewUserMessage(msgID, text, thinkSeconds))
	m.textarea.Reset()
	m.encouragement = ""
	m.err = nil
	m.streaming = true
	m.streamStarted = time.Now()
	m.textStarted = false
	m.refreshViewport()

	req := servechat.ChatRequest{
		ID: m.chatID,
		Message: servechat.ChatMessage{
			ID:    msgID,
			Role:  "user",
			Parts: []servechat.MessagePart{{Type: "text", Text: text}},
		},
		SelectedChatModel:      m.chatModel,
		SelectedVisibilityType: string(store.VisibilityPrivate),
		ProblemType:            string(m.problemType),
		ThinkSeconds:           thinkSeconds,
	}
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithCancel(context.Background())
		ch, err := backend.SendMessage(ctx, req)
		if err != nil {
			cancel()
			return sendFailedMsg{err: err}
		}
		return streamStartedMsg{ch: ch, cancel: cancel}
	}
}

func (m *Model) handleStreamEvent(ev StreamEvent) {
	if ev.Err != nil {
		m.fail(ev.Err)
		return
	}
	p := ev.Part
	switch p.Type {
	case servechat.PartStart:
		m.messages = append(m.messages, NewAssistantMessage(p.MessageID))
		m.current = len(m.messages) - 1

	case servechat.PartTextDelta:
		msg := m.assistant()
		if !m.textStarted {
			m.textStarted = true
			m.timer.Start()
			m.response.Start()
		}
		msg.AppendText(p.Delta)

	case servechat.PartReasoningDelta:
		m.assistant().Reasoning += p.Delta

	case servechat.PartDataProgress:
		if p.Progress != nil {
			msg := m.assistant()
			msg.Progress.Progress = *p.Progress
			msg.Progress.HasProgress = true
		}

	case servechat.PartDataUsage:
		if p.Usage != nil {
			m.assistant().Tokens = p.Usage.OutputTokens
		}

	case servechat.PartError:
		m.assistant().Failed = true
		m.fail(errors.New(p.ErrorText))
		return
	}
	m.refreshViewport()
}

// assistant returns the message being streamed, creating one when the
// stream did not begin with a start part.
func (m *Model) assistant() *ChatMessage {
	if m.current < 0 {
		m.messages = append(m.messages, NewAssistantMessage(""))
		m.current = len(m.messages) - 1
	}
	return &m.messages[m.current]
}

func (m *Model) fail(err error) {
	m.err = err
	m.timer.Stop()
	m.response.Reset()
	m.refreshViewport()
}

func (m *Model) endStream() {
	if m.streamCancelFunc != nil {
		m.streamCancelFunc()
		m.streamCancelFunc = nil
	}
	m.streaming = false
	m.stream = nil
	m.current = -1
	m.refreshViewport()
}

func (m *Model) teardown() {
	m.quitting = true
	m.timer.Stop()
	if m.streamCancelFunc != nil {
		m.streamCancelFunc()
		m.streamCancelFunc = nil
	}
}

// LatestProgress returns the progress of the newest assistant message that
// reported any.
func (m *Model) LatestProgress() (float64, bool) {
	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		if msg.Role == RoleAssistant && msg.Progress.HasProgress {
			return msg.Progress.Progress, true
		}
	}
	return 0, false
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.textarea.SetWidth(width)
	m.bar.Width = max(min(width-16, 60), 10)
	m.viewport.Width = width
	m.viewport.Height = max(height-m.chromeHeight(), 3)
	m.refreshViewport()
}

// chromeHeight is the number of lines below the conversation.
func (m *Model) chromeHeight() int {
	return m.textarea.Height() + 6
}

func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
}
