// Package store persists threads and messages in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"TradeAi/internal/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS threads (
	id TEXT PRIMARY KEY,
	user_key TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	thread_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	thought_content TEXT NOT NULL DEFAULT '',
	observation_content TEXT NOT NULL DEFAULT '',
	feedback TEXT NOT NULL DEFAULT '',
	note TEXT NOT NULL DEFAULT '',
	timestamp DATETIME NOT NULL,
	FOREIGN KEY(thread_id) REFERENCES threads(id)
);

CREATE INDEX IF NOT EXISTS idx_threads_user_key ON threads(user_key, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_thread_id ON messages(thread_id, seq);
`

// SQLite stores threads and their ordered messages
type SQLite struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// answers are saved from background goroutines; one writer avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}

// EnsureThread records thread for userKey unless it already exists
func (s *SQLite) EnsureThread(ctx context.Context, userKey string, thread session.Thread) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO threads (id, user_key, title, created_at) VALUES (?, ?, ?, ?)",
		thread.ID, userKey, thread.Title, thread.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save thread: %w", err)
	}
	return nil
}

// ListThreads returns the user's threads, newest first
func (s *SQLite) ListThreads(ctx context.Context, userKey string) ([]session.Thread, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, created_at FROM threads WHERE user_key = ? ORDER BY created_at DESC, id",
		userKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	threads := []session.Thread{}
	for rows.Next() {
		var t session.Thread
		if err := rows.Scan(&t.ID, &t.Title, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// DeleteThreads removes threads and their messages in one transaction
func (s *SQLite) DeleteThreads(ctx context.Context, threadIDs []string) error {
	if len(threadIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(threadIDs)), ",")
	args := make([]any, len(threadIDs))
	for i, id := range threadIDs {
		args[i] = id
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE thread_id IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM threads WHERE id IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("failed to delete threads: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Messages returns a thread's messages in the order they were first saved
func (s *SQLite) Messages(ctx context.Context, threadID string) ([]session.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, thought_content, observation_content, feedback, timestamp
		FROM messages WHERE thread_id = ? ORDER BY seq`,
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	messages := []session.Message{}
	for rows.Next() {
		var msg session.Message
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &msg.ThoughtContent,
			&msg.ObservationContent, &msg.Feedback, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// SaveMessage inserts msg, or updates it in place when its id is already stored
func (s *SQLite) SaveMessage(ctx context.Context, threadID string, msg session.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, thread_id, role, content, thought_content, observation_content, feedback, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			thought_content = excluded.thought_content,
			observation_content = excluded.observation_content,
			feedback = excluded.feedback`,
		msg.ID, threadID, string(msg.Role), msg.Content, msg.ThoughtContent,
		msg.ObservationContent, string(msg.Feedback), msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// SetFeedback records a verdict and note on a message
func (s *SQLite) SetFeedback(ctx context.Context, messageID string, verdict session.Feedback, note string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET feedback = ?, note = ? WHERE id = ?",
		string(verdict), note, messageID,
	)
	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return expectOne(res, messageID)
}

// DeleteMessage removes one message
func (s *SQLite) DeleteMessage(ctx context.Context, messageID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", messageID)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return expectOne(res, messageID)
}

func expectOne(res sql.Result, messageID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("message %s: %w", messageID, session.ErrNotFound)
	}
	return nil
}
