package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Finndersen/adept-ai/pkg/llm"
)

// SQLiteStore persists sessions in a SQLite database.
type SQLiteStore struct {
	db    *sql.DB
	owned bool
}

// NewSQLiteStore opens (or creates) the database at path. Use ":memory:"
// for a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	s, err := NewSQLiteStoreFromDB(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewSQLiteStoreFromDB uses an existing connection and ensures the schema.
// Close does not close db.
func NewSQLiteStoreFromDB(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureSessionSchema(db); err != nil {
		return nil, fmt.Errorf("session schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func ensureSessionSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS session_capabilities (
			session_id TEXT PRIMARY KEY,
			names_json TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS session_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_calls_json TEXT,
			tool_call_id TEXT,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_session_messages_session ON session_messages(session_id, id);
	`)
	return err
}

func (s *SQLiteStore) EnabledCapabilities(ctx context.Context, sessionID string) ([]string, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT names_json FROM session_capabilities WHERE session_id = ?`, sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storeError("load enabled capabilities", sessionID, err)
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, false, storeError("decode enabled capabilities", sessionID, err)
	}
	return names, true, nil
}

func (s *SQLiteStore) SaveEnabledCapabilities(ctx context.Context, sessionID string, names []string) error {
	if names == nil {
		names = []string{}
	}
	raw, err := json.Marshal(names)
	if err != nil {
		return storeError("encode enabled capabilities", sessionID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_capabilities (session_id, names_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET names_json = excluded.names_json, updated_at = excluded.updated_at
	`, sessionID, string(raw), time.Now().UTC())
	if err != nil {
		return storeError("save enabled capabilities", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) Messages(ctx context.Context, sessionID string) ([]llm.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, tool_calls_json, tool_call_id
		FROM session_messages WHERE session_id = ? ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, storeError("load messages", sessionID, err)
	}
	defer rows.Close()

	var msgs []llm.Message
	for rows.Next() {
		var (
			msg        llm.Message
			role       string
			toolCalls  sql.NullString
			toolCallID sql.NullString
		)
		if err := rows.Scan(&role, &msg.Content, &toolCalls, &toolCallID); err != nil {
			return nil, storeError("scan message", sessionID, err)
		}
		msg.Role = llm.Role(role)
		msg.ToolCallID = toolCallID.String
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, storeError("decode tool calls", sessionID, err)
			}
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("load messages", sessionID, err)
	}
	return msgs, nil
}

func (s *SQLiteStore) AppendMessages(ctx context.Context, sessionID string, msgs ...llm.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("append messages", sessionID, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO session_messages (session_id, role, content, tool_calls_json, tool_call_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return storeError("append messages", sessionID, err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, msg := range msgs {
		var toolCalls sql.NullString
		if len(msg.ToolCalls) > 0 {
			raw, err := json.Marshal(msg.ToolCalls)
			if err != nil {
				return storeError("encode tool calls", sessionID, err)
			}
			toolCalls = sql.NullString{String: string(raw), Valid: true}
		}
		toolCallID := sql.NullString{String: msg.ToolCallID, Valid: msg.ToolCallID != ""}
		if _, err := stmt.ExecContext(ctx, sessionID, string(msg.Role), msg.Content, toolCalls, toolCallID, now); err != nil {
			return storeError("append messages", sessionID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storeError("append messages", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = ?`, sessionID); err != nil {
		return storeError("clear session", sessionID, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_capabilities WHERE session_id = ?`, sessionID); err != nil {
		return storeError("clear session", sessionID, err)
	}
	return nil
}

// Close closes the database if the store opened it.
func (s *SQLiteStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
