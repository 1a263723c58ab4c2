package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// Schema for the chats database.
const schema = `
CREATE TABLE IF NOT EXISTS chats (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    visibility TEXT NOT NULL DEFAULT 'private' CHECK (visibility IN ('public', 'private')),
    problem_type TEXT,
    progress REAL,
    last_context TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
    parts TEXT NOT NULL,
    text_content TEXT,
    think_ms INTEGER,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    sequence INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS streams (
    id TEXT PRIMARY KEY,
    chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_chats_user_created ON chats(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages(chat_id, sequence);
CREATE INDEX IF NOT EXISTS idx_messages_role_created ON messages(role, created_at);
CREATE INDEX IF NOT EXISTS idx_streams_chat_id ON streams(chat_id, created_at);

-- Full-text search on extracted text content
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    text_content,
    content='messages',
    content_rowid='rowid'
);

-- Triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, text_content) VALUES (new.rowid, new.text_content);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, text_content) VALUES ('delete', old.rowid, old.text_content);
END;

CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, text_content) VALUES ('delete', old.rowid, old.text_content);
    INSERT INTO messages_fts(rowid, text_content) VALUES (new.rowid, new.text_content);
END;
`

// Open opens (creating if needed) the chats database at path.
func Open(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Initialize schema and run migrations
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// schemaVersion is the current schema version.
// - Fresh databases get the full schema from `schema` const and start at this version
// - Existing databases run migrations to reach this version
// Increment when adding new migrations.
const schemaVersion = 2

// migration represents a schema migration.
type migration struct {
	version     int
	description string
	up          func(db *sql.DB) error
}

// migrations upgrade databases created before a schema change. The base
// `schema` const always contains the FULL current schema.
var migrations = []migration{
	{
		version:     1,
		description: "add chat problem_type and progress columns",
		up: func(db *sql.DB) error {
			return addColumns(db,
				"ALTER TABLE chats ADD COLUMN problem_type TEXT",
				"ALTER TABLE chats ADD COLUMN progress REAL",
			)
		},
	},
	{
		version:     2,
		description: "add message think_ms column",
		up: func(db *sql.DB) error {
			return addColumns(db, "ALTER TABLE messages ADD COLUMN think_ms INTEGER")
		},
	},
}

func addColumns(db *sql.DB, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			// Tables missing entirely are created by the base schema.
			if !isDuplicateColumnError(err) && !strings.Contains(err.Error(), "no such table") {
				return err
			}
		}
	}
	return nil
}

// initSchema initializes the database schema and runs any pending migrations.
// Optimized for the common case: schema already current = single SELECT query.
func initSchema(db *sql.DB) error {
	var currentVersion int
	err := db.QueryRow("SELECT version FROM schema_version").Scan(&currentVersion)
	if err == nil && currentVersion >= schemaVersion {
		return nil
	}
	return initSchemaFull(db, err, currentVersion)
}

// initSchemaFull handles schema creation and migrations.
func initSchemaFull(db *sql.DB, versionErr error, currentVersion int) error {
	// Detect a pre-migration database before the base schema creates tables.
	var chatsExisted bool
	if versionErr != nil {
		var tableCount int
		if err := db.QueryRow(`
			SELECT COUNT(*) FROM sqlite_master
			WHERE type='table' AND name='chats'
		`).Scan(&tableCount); err != nil {
			return fmt.Errorf("check chats table: %w", err)
		}
		chatsExisted = tableCount > 0
	}

	if chatsExisted {
		// Old tables may lack columns the indexes below reference.
		for _, m := range migrations {
			if err := m.up(db); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
			}
		}
	}

	// Create base schema (uses IF NOT EXISTS, safe to run multiple times)
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create base schema: %w", err)
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	if versionErr != nil && (errors.Is(versionErr, sql.ErrNoRows) || strings.Contains(versionErr.Error(), "no such table")) {
		// Fresh and pre-migration databases are both current at this point.
		currentVersion = schemaVersion
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", currentVersion); err != nil {
			return fmt.Errorf("insert initial version: %w", err)
		}
		return nil
	} else if versionErr != nil {
		return fmt.Errorf("get current version: %w", versionErr)
	}

	// Run pending migrations
	for _, m := range migrations {
		if m.version > currentVersion {
			if err := m.up(db); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
			}
			if _, err := db.Exec("UPDATE schema_version SET version = ?", m.version); err != nil {
				return fmt.Errorf("update version to %d: %w", m.version, err)
			}
		}
	}

	return nil
}

// isDuplicateColumnError checks if an error is due to a column already existing.
func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate column") ||
		strings.Contains(errStr, "already exists")
}

const chatColumns = `id, user_id, title, visibility, problem_type, progress, last_context, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner, extra ...any) (*Chat, error) {
	var chat Chat
	var problemType, lastContext sql.NullString
	var progress sql.NullFloat64
	dest := []any{&chat.ID, &chat.UserID, &chat.Title, &chat.Visibility, &problemType,
		&progress, &lastContext, &chat.CreatedAt, &chat.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	chat.ProblemType = problemType.String
	if progress.Valid {
		v := progress.Float64
		chat.Progress = &v
	}
	if lastContext.Valid && lastContext.String != "" {
		chat.LastContext = json.RawMessage(lastContext.String)
	}
	return &chat, nil
}

// GetChatByID returns the chat, or nil when it does not exist.
func (s *SQLiteStore) GetChatByID(ctx context.Context, id string) (*Chat, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = ?`, id)
	chat, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan chat: %w", err)
	}
	return chat, nil
}

// SaveChat inserts a new chat.
func (s *SQLiteStore) SaveChat(ctx context.Context, chat *Chat) error {
	if chat.ID == "" || chat.UserID == "" {
		return fmt.Errorf("chat id and user id are required")
	}
	if chat.Visibility == "" {
		chat.Visibility = VisibilityPrivate
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}
	if chat.UpdatedAt.IsZero() {
		chat.UpdatedAt = chat.CreatedAt
	}

	var progress sql.NullFloat64
	if chat.Progress != nil {
		progress = sql.NullFloat64{Float64: *chat.Progress, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (`+chatColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		chat.ID, chat.UserID, chat.Title, string(chat.Visibility), nullString(chat.ProblemType),
		progress, nullString(string(chat.LastContext)), chat.CreatedAt.UTC(), chat.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	return nil
}

// DeleteChatByID removes a chat with its messages and streams and returns
// the deleted row. Returns nil when the chat does not exist.
func (s *SQLiteStore) DeleteChatByID(ctx context.Context, id string) (*Chat, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	chat, err := scanChat(tx.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan chat: %w", err)
	}

	// Foreign key cascade handles messages and streams
	if _, err := tx.ExecContext(ctx, "DELETE FROM chats WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("delete chat: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete: %w", err)
	}
	return chat, nil
}

// ListChats returns chats newest first.
func (s *SQLiteStore) ListChats(ctx context.Context, opts ListOptions) ([]ChatSummary, error) {
	query := `
		SELECT c.id, c.user_id, c.title, c.visibility, c.problem_type, c.progress, c.last_context,
		       c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages WHERE chat_id = c.id) AS message_count
		FROM chats c
		WHERE 1=1`
	args := []any{}

	if opts.UserID != "" {
		query += " AND c.user_id = ?"
		args = append(args, opts.UserID)
	}

	query += " ORDER BY c.created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 50 // Default
	}
	query += fmt.Sprintf(" LIMIT %d", limit)
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	var results []ChatSummary
	for rows.Next() {
		var count int
		chat, err := scanChat(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("scan chat summary: %w", err)
		}
		results = append(results, ChatSummary{Chat: *chat, MessageCount: count})
	}
	return results, rows.Err()
}

// ListChatsByUserID returns the user's chats newest first.
func (s *SQLiteStore) ListChatsByUserID(ctx context.Context, userID string, limit int) ([]ChatSummary, error) {
	return s.ListChats(ctx, ListOptions{UserID: userID, Limit: limit})
}

// GetMessagesByChatID returns the chat's messages in conversation order.
func (s *SQLiteStore) GetMessagesByChatID(ctx context.Context, chatID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, role, parts, think_ms, created_at, sequence
		FROM messages
		WHERE chat_id = ?
		ORDER BY sequence ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var partsJSON string
		var thinkMs sql.NullInt64
		err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &partsJSON,
			&thinkMs, &msg.CreatedAt, &msg.Sequence)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if thinkMs.Valid {
			msg.ThinkMs = thinkMs.Int64
		}
		if err := msg.SetPartsFromJSON(partsJSON); err != nil {
			return nil, fmt.Errorf("deserialize parts: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// SaveMessages appends messages to their chats in one transaction. Sequence
// numbers continue from each chat's last message.
func (s *SQLiteStore) SaveMessages(ctx context.Context, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save messages: %w", err)
	}
	defer tx.Rollback()

	next := map[string]int{}
	now := time.Now().UTC()
	for i := range messages {
		msg := &messages[i]
		if msg.ID == "" || msg.ChatID == "" {
			return fmt.Errorf("message %d: id and chat id are required", i)
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}

		seq, ok := next[msg.ChatID]
		if !ok {
			if err := tx.QueryRowContext(ctx,
				"SELECT COALESCE(MAX(sequence), -1) + 1 FROM messages WHERE chat_id = ?",
				msg.ChatID).Scan(&seq); err != nil {
				return fmt.Errorf("next sequence: %w", err)
			}
		}
		msg.Sequence = seq
		next[msg.ChatID] = seq + 1

		partsJSON, err := msg.PartsJSON()
		if err != nil {
			return fmt.Errorf("serialize parts: %w", err)
		}
		msg.TextContent = msg.ToLLM().Text()

		var thinkMs sql.NullInt64
		if msg.ThinkMs > 0 {
			thinkMs = sql.NullInt64{Int64: msg.ThinkMs, Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (id, chat_id, role, parts, text_content, think_ms, created_at, sequence)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.ChatID, string(msg.Role), partsJSON, msg.TextContent, thinkMs, msg.CreatedAt.UTC(), msg.Sequence)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	for chatID := range next {
		if _, err := tx.ExecContext(ctx, "UPDATE chats SET updated_at = ? WHERE id = ?", now, chatID); err != nil {
			return fmt.Errorf("update chat timestamp: %w", err)
		}
	}
	return tx.Commit()
}

// GetMessageCountByUserID counts the user-role messages the user sent since
// the given time, across all their chats.
func (s *SQLiteStore) GetMessageCountByUserID(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages m
		JOIN chats c ON c.id = m.chat_id
		WHERE c.user_id = ? AND m.role = 'user' AND m.created_at >= ?`,
		userID, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// CreateStreamID records a stream started for the chat.
func (s *SQLiteStore) CreateStreamID(ctx context.Context, streamID, chatID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO streams (id, chat_id, created_at) VALUES (?, ?, ?)",
		streamID, chatID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert stream: %w", err)
	}
	return nil
}

// GetStreamIDsByChatID returns the chat's stream ids oldest first.
func (s *SQLiteStore) GetStreamIDsByChatID(ctx context.Context, chatID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM streams WHERE chat_id = ? ORDER BY created_at ASC, rowid ASC", chatID)
	if err != nil {
		return nil, fmt.Errorf("query streams: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateChatLastContextByID stores the usage summary of the chat's latest
// completion as JSON.
func (s *SQLiteStore) UpdateChatLastContextByID(ctx context.Context, chatID string, usage any) error {
	data, err := json.Marshal(usage)
	if err != nil {
		return fmt.Errorf("marshal usage: %w", err)
	}
	return s.updateChat(ctx, chatID, "last_context = ?", string(data))
}

// UpdateChatProgress stores the learner's latest progress.
func (s *SQLiteStore) UpdateChatProgress(ctx context.Context, chatID string, progress float64) error {
	return s.updateChat(ctx, chatID, "progress = ?", progress)
}

func (s *SQLiteStore) updateChat(ctx context.Context, chatID, set string, value any) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE chats SET "+set+", updated_at = ? WHERE id = ?",
		value, time.Now().UTC(), chatID)
	if err != nil {
		return fmt.Errorf("update chat: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("chat not found: %s", chatID)
	}
	return nil
}

// SearchMessages finds messages containing the query text using FTS5. An
// empty userID searches every chat.
func (s *SQLiteStore) SearchMessages(ctx context.Context, userID, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.chat_id, m.id, c.title, snippet(messages_fts, 0, '**', '**', '...', 32), m.created_at
		FROM messages_fts f
		JOIN messages m ON m.rowid = f.rowid
		JOIN chats c ON c.id = m.chat_id
		WHERE messages_fts MATCH ? AND (? = '' OR c.user_id = ?)
		ORDER BY rank
		LIMIT ?`, query, userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ChatID, &r.MessageID, &r.Title, &r.Snippet, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nullString converts an empty string to NULL for database storage.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
