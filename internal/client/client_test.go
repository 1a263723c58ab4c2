package client

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsaffron/tutor/internal/chaterr"
	"github.com/samsaffron/tutor/internal/config"
	"github.com/samsaffron/tutor/internal/llm"
	"github.com/samsaffron/tutor/internal/serve/chat"
	"github.com/samsaffron/tutor/internal/store"
)

const reply = "<PROGRESS>0.3</PROGRESS>Nice. What comes next?"

func newTestServer(t *testing.T, allowGuests bool) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{StreamTTL: time.Minute},
		Auth: config.AuthConfig{
			AllowGuests: allowGuests,
			Tokens:      []config.TokenConfig{{Token: "alice-token", UserID: "alice"}},
		},
		Entitlements: map[string]config.EntitlementConfig{
			"guest":   {MaxMessagesPerDay: 20},
			"regular": {MaxMessagesPerDay: 100},
		},
	}
	st, err := store.Open(filepath.Join(t.TempDir(), "tutor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	registry := llm.NewModelRegistry(cfg, nil)
	registry.Register("chat-model", llm.NewMockProvider("mock").AddTextResponse(reply).Repeating())
	slow := llm.MockTurn{Text: reply, Delay: 30 * time.Second}
	registry.Register("slow-model", llm.NewMockProvider("mock").AddTurn(slow).Repeating())

	srv, err := chat.New(chat.Options{Config: cfg, Store: st, Models: registry})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func request(chatID, text string) chat.ChatRequest {
	return chat.ChatRequest{
		ID: chatID,
		Message: chat.ChatMessage{
			ID:    uuid.NewString(),
			Role:  "user",
			Parts: []chat.MessagePart{{Type: "text", Text: text}},
		},
		SelectedChatModel:      "chat-model",
		SelectedVisibilityType: "private",
	}
}

func collect(t *testing.T, s *EventStream) []chat.StreamPart {
	t.Helper()
	defer s.Close()
	var parts []chat.StreamPart
	for {
		p, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return parts
		}
		require.NoError(t, err)
		parts = append(parts, p)
	}
}

func TestSendMessageStreamsReply(t *testing.T) {
	ts := newTestServer(t, false)
	c := New(ts.URL+"/", "alice-token")
	ctx := context.Background()
	chatID := uuid.NewString()

	stream, err := c.SendMessage(ctx, request(chatID, "What is 7 times 8?"))
	require.NoError(t, err)
	parts := collect(t, stream)
	require.NotEmpty(t, parts)
	assert.Equal(t, chat.PartStart, parts[0].Type)
	assert.Equal(t, chat.PartFinish, parts[len(parts)-1].Type)
	assert.Equal(t, int64(len(parts)), stream.LastSeq())

	var text strings.Builder
	var progress *float64
	for _, p := range parts {
		switch p.Type {
		case chat.PartTextDelta:
			text.WriteString(p.Delta)
		case chat.PartDataProgress:
			progress = p.Progress
		}
	}
	assert.Equal(t, reply, text.String())
	require.NotNil(t, progress)
	assert.InDelta(t, 0.3, *progress, 1e-9)

	history, err := c.History(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, history.Chats, 1)
	assert.Equal(t, chatID, history.Chats[0].ID)
	assert.False(t, history.HasMore)

	msgs, err := c.Messages(ctx, chatID)
	require.NoError(t, err)
	assert.Len(t, msgs.Messages, 2)
	require.NotNil(t, msgs.Chat.Progress)

	resumed, err := c.Resume(ctx, chatID, int64(len(parts)-1))
	require.NoError(t, err)
	tail := collect(t, resumed)
	require.Len(t, tail, 1)
	assert.Equal(t, chat.PartFinish, tail[0].Type)

	deleted, err := c.DeleteChat(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, chatID, deleted.ID)

	_, err = c.Messages(ctx, chatID)
	e, ok := chaterr.As(err)
	require.True(t, ok)
	assert.Equal(t, "not_found:chat", e.Code())
}

func TestResumeDeletedChat(t *testing.T) {
	ts := newTestServer(t, false)
	c := New(ts.URL, "alice-token")
	ctx := context.Background()
	chatID := uuid.NewString()

	stream, err := c.SendMessage(ctx, request(chatID, "hi"))
	require.NoError(t, err)
	collect(t, stream)

	_, err = c.DeleteChat(ctx, chatID)
	require.NoError(t, err)
	_, err = c.Resume(ctx, chatID, 0)
	e, ok := chaterr.As(err)
	require.True(t, ok)
	assert.Equal(t, "not_found:chat", e.Code())
}

func TestErrorsDecodeToChatErrors(t *testing.T) {
	ts := newTestServer(t, false)
	ctx := context.Background()

	_, err := New(ts.URL, "").SendMessage(ctx, request(uuid.NewString(), "hi"))
	e, ok := chaterr.As(err)
	require.True(t, ok)
	assert.Equal(t, "unauthorized:chat", e.Code())

	bad := request("not-a-uuid", "hi")
	_, err = New(ts.URL, "alice-token").SendMessage(ctx, bad)
	e, ok = chaterr.As(err)
	require.True(t, ok)
	assert.Equal(t, "bad_request:api", e.Code())
	assert.Contains(t, e.Cause, "id must be a UUID")
}

func TestGuestCookieIsReused(t *testing.T) {
	ts := newTestServer(t, true)
	c := New(ts.URL, "")
	ctx := context.Background()

	stream, err := c.SendMessage(ctx, request(uuid.NewString(), "hi"))
	require.NoError(t, err)
	collect(t, stream)

	history, err := c.History(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, history.Chats, 1)
	assert.True(t, strings.HasPrefix(history.Chats[0].UserID, "guest-"))

	other, err := New(ts.URL, "").History(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, other.Chats)
}

func TestInterruptStopsReply(t *testing.T) {
	ts := newTestServer(t, false)
	c := New(ts.URL, "alice-token")
	ctx := context.Background()
	chatID := uuid.NewString()

	req := request(chatID, "hi")
	req.SelectedChatModel = "slow-model"
	stream, err := c.SendMessage(ctx, req)
	require.NoError(t, err)

	first, err := stream.Recv()
	require.NoError(t, err)
	require.Equal(t, chat.PartStart, first.Type)

	require.NoError(t, c.Interrupt(ctx, chatID))

	rest := collect(t, stream)
	require.NotEmpty(t, rest)
	last := rest[len(rest)-1]
	assert.Equal(t, chat.PartError, last.Type)
	assert.Equal(t, chat.StreamErrorText, last.ErrorText)
}

func TestWebsocketURL(t *testing.T) {
	u, err := New("https://tutor.example.com/", "").websocketURL("/api/chat/x/ws")
	require.NoError(t, err)
	assert.Equal(t, "wss://tutor.example.com/api/chat/x/ws", u)

	u, err = New("http://localhost:8080", "").websocketURL("/api/chat/x/ws")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/api/chat/x/ws", u)
}

func TestRecvReportsTruncatedStream(t *testing.T) {
	s := newEventStream(io.NopCloser(strings.NewReader("id: 1\ndata: {\"seq\":1,\"type\":\"start\"}\n\n")))
	p, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, chat.PartStart, p.Type)
	_, err = s.Recv()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
