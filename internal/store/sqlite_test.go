package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsaffron/tutor/internal/llm"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tutor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newChat(t *testing.T, s *SQLiteStore, userID string) *Chat {
	t.Helper()
	chat := &Chat{ID: uuid.NewString(), UserID: userID, Title: "Counting digits", ProblemType: "math"}
	require.NoError(t, s.SaveChat(context.Background(), chat))
	return chat
}

func textMessage(chatID string, role llm.Role, text string) Message {
	return Message{
		ID:     uuid.NewString(),
		ChatID: chatID,
		Role:   role,
		Parts:  []llm.Part{{Type: llm.PartText, Text: text}},
	}
}

func TestOpenCreatesDatabaseFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "tutor.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)

	_, err = Open("")
	assert.Error(t, err)
}

func TestReopenKeepsSchemaVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tutor.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow("SELECT version FROM schema_version").Scan(&version))
	assert.Equal(t, schemaVersion, version)
}

func TestMigratesPreVersionDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE chats (id TEXT PRIMARY KEY, user_id TEXT NOT NULL, title TEXT NOT NULL,
			visibility TEXT NOT NULL DEFAULT 'private', last_context TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP);
		INSERT INTO chats (id, user_id, title) VALUES ('c1', 'u1', 'old chat');`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	chat, err := s.GetChatByID(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, chat)
	assert.Equal(t, "old chat", chat.Title)
	assert.Nil(t, chat.Progress)
	require.NoError(t, s.UpdateChatProgress(context.Background(), "c1", 0.5))
}

func TestChatLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	missing, err := s.GetChatByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	chat := newChat(t, s, "user-1")
	got, err := s.GetChatByID(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, VisibilityPrivate, got.Visibility)
	assert.Equal(t, "math", got.ProblemType)

	require.NoError(t, s.UpdateChatProgress(ctx, chat.ID, 0.7))
	require.NoError(t, s.UpdateChatLastContextByID(ctx, chat.ID, map[string]any{"inputTokens": 12, "modelId": "m"}))
	got, err = s.GetChatByID(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Progress)
	assert.InDelta(t, 0.7, *got.Progress, 1e-9)
	assert.JSONEq(t, `{"inputTokens":12,"modelId":"m"}`, string(got.LastContext))

	assert.Error(t, s.UpdateChatProgress(ctx, "nope", 0.1))

	require.NoError(t, s.SaveMessages(ctx, []Message{textMessage(chat.ID, llm.RoleUser, "hi")}))
	require.NoError(t, s.CreateStreamID(ctx, uuid.NewString(), chat.ID))

	deleted, err := s.DeleteChatByID(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, chat.ID, deleted.ID)

	msgs, err := s.GetMessagesByChatID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	streams, err := s.GetStreamIDsByChatID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Empty(t, streams)

	deleted, err = s.DeleteChatByID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Nil(t, deleted)
}

func TestSaveMessagesSequencesAndParts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := newChat(t, s, "user-1")

	first := textMessage(chat.ID, llm.RoleUser, "What is 5*4*3*2?")
	first.ThinkMs = 4200
	require.NoError(t, s.SaveMessages(ctx, []Message{first}))

	reply := Message{
		ID:     uuid.NewString(),
		ChatID: chat.ID,
		Role:   llm.RoleAssistant,
		Parts: []llm.Part{
			{Type: llm.PartReasoning, Text: "they multiplied correctly"},
			{Type: llm.PartText, Text: "<PROGRESS>0.1</PROGRESS>\nExactly!"},
		},
	}
	require.NoError(t, s.SaveMessages(ctx, []Message{reply, textMessage(chat.ID, llm.RoleUser, "next")}))

	msgs, err := s.GetMessagesByChatID(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		assert.Equal(t, i, m.Sequence)
	}
	assert.Equal(t, int64(4200), msgs[0].ThinkMs)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].Parts, 2)
	assert.Equal(t, llm.PartReasoning, msgs[1].Parts[0].Type)
	assert.Equal(t, "<PROGRESS>0.1</PROGRESS>\nExactly!", msgs[1].TextContent)

	// Duplicate ids roll the whole batch back.
	err = s.SaveMessages(ctx, []Message{textMessage(chat.ID, llm.RoleUser, "ok"), msgs[0]})
	assert.Error(t, err)
	msgs, err = s.GetMessagesByChatID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func TestGetMessageCountByUserID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mine := newChat(t, s, "user-1")
	other := newChat(t, s, "user-2")

	old := textMessage(mine.ID, llm.RoleUser, "yesterday")
	old.CreatedAt = time.Now().Add(-30 * time.Hour)
	require.NoError(t, s.SaveMessages(ctx, []Message{
		old,
		textMessage(mine.ID, llm.RoleUser, "one"),
		textMessage(mine.ID, llm.RoleAssistant, "reply"),
		textMessage(mine.ID, llm.RoleUser, "two"),
		textMessage(other.ID, llm.RoleUser, "not mine"),
	}))

	count, err := s.GetMessageCountByUserID(ctx, "user-1", time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = s.GetMessageCountByUserID(ctx, "nobody", time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestListChats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := &Chat{ID: uuid.NewString(), UserID: "user-1", Title: "older", CreatedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, s.SaveChat(ctx, older))
	newer := newChat(t, s, "user-1")
	newChat(t, s, "user-2")
	require.NoError(t, s.SaveMessages(ctx, []Message{textMessage(newer.ID, llm.RoleUser, "hi")}))

	chats, err := s.ListChatsByUserID(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, newer.ID, chats[0].ID)
	assert.Equal(t, 1, chats[0].MessageCount)
	assert.Equal(t, older.ID, chats[1].ID)

	all, err := s.ListChats(ctx, ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStreamIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := newChat(t, s, "user-1")

	require.NoError(t, s.CreateStreamID(ctx, "s1", chat.ID))
	require.NoError(t, s.CreateStreamID(ctx, "s2", chat.ID))
	assert.Error(t, s.CreateStreamID(ctx, "s3", "missing-chat"))

	ids, err := s.GetStreamIDsByChatID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, ids)
}

func TestSearchMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mine := newChat(t, s, "user-1")
	other := newChat(t, s, "user-2")
	require.NoError(t, s.SaveMessages(ctx, []Message{
		textMessage(mine.ID, llm.RoleUser, "how many piano tuners are in Chicago"),
		textMessage(other.ID, llm.RoleUser, "piano lessons"),
	}))

	results, err := s.SearchMessages(ctx, "user-1", "piano", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, mine.ID, results[0].ChatID)
	assert.Contains(t, results[0].Snippet, "**piano**")

	results, err = s.SearchMessages(ctx, "", "piano", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestParseVisibility(t *testing.T) {
	v, err := ParseVisibility("public")
	require.NoError(t, err)
	assert.Equal(t, VisibilityPublic, v)
	_, err = ParseVisibility("secret")
	assert.Error(t, err)
}
