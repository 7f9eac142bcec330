package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"TradeAi/internal/session"
	"TradeAi/internal/store"
)

const titleRunes = 48

// Local keeps threads in a local SQLite database and streams answers from any Streamer
type Local struct {
	db       *store.SQLite
	streamer Streamer
	userKey  string
	logger   *slog.Logger
}

// NewLocal creates a Local service for userKey
func NewLocal(db *store.SQLite, streamer Streamer, userKey string, logger *slog.Logger) (*Local, error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	if streamer == nil {
		return nil, fmt.Errorf("streamer cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{db: db, streamer: streamer, userKey: userKey, logger: logger}, nil
}

func (l *Local) ListThreads(ctx context.Context, userKey string) ([]session.Thread, error) {
	return l.db.ListThreads(ctx, userKey)
}

func (l *Local) DeleteThreads(ctx context.Context, threadIDs []string) error {
	return l.db.DeleteThreads(ctx, threadIDs)
}

func (l *Local) GetMessages(ctx context.Context, threadID string) ([]session.Message, error) {
	return l.db.Messages(ctx, threadID)
}

func (l *Local) SendMessage(ctx context.Context, req SendRequest) (<-chan StreamEvent, error) {
	return l.streamer.Stream(ctx, req)
}

func (l *Local) RateMessage(ctx context.Context, messageID string, verdict session.Feedback, note string) error {
	return l.db.SetFeedback(ctx, messageID, verdict, note)
}

func (l *Local) DeleteMessage(ctx context.Context, messageID string) error {
	return l.db.DeleteMessage(ctx, messageID)
}

// SaveMessage persists msg, creating its thread on first use with a title taken from
// the message
func (l *Local) SaveMessage(ctx context.Context, threadID string, msg session.Message) error {
	thread := session.Thread{ID: threadID, Title: titleFrom(msg.Content), CreatedAt: msg.Timestamp}
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = time.Now()
	}
	if err := l.db.EnsureThread(ctx, l.userKey, thread); err != nil {
		return err
	}
	if err := l.db.SaveMessage(ctx, threadID, msg); err != nil {
		return err
	}
	l.logger.Debug("message saved", "thread_id", threadID, "message_id", msg.ID, "role", msg.Role)
	return nil
}

func titleFrom(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	runes := []rune(title)
	if len(runes) > titleRunes {
		return string(runes[:titleRunes]) + "..."
	}
	return title
}
