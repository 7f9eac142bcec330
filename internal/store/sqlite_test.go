package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeAi/internal/session"
)

func openTemp(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tradeai.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestThreads(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.EnsureThread(ctx, "alice", session.Thread{ID: "t1", Title: "ETH outlook", CreatedAt: base}))
	require.NoError(t, s.EnsureThread(ctx, "alice", session.Thread{ID: "t2", Title: "BTC", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, s.EnsureThread(ctx, "bob", session.Thread{ID: "t3", Title: "SOL", CreatedAt: base}))
	// a second ensure keeps the original row
	require.NoError(t, s.EnsureThread(ctx, "alice", session.Thread{ID: "t1", Title: "renamed", CreatedAt: base}))

	threads, err := s.ListThreads(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, "t2", threads[0].ID)
	assert.Equal(t, "ETH outlook", threads[1].Title)
	assert.True(t, threads[1].CreatedAt.Equal(base))

	empty, err := s.ListThreads(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMessagesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.EnsureThread(ctx, "alice", session.Thread{ID: "t1", CreatedAt: now}))

	user := session.Message{ID: "u1", Role: session.RoleUser, Content: "price of ETH?", Timestamp: now}
	answer := session.Message{ID: "a1", Role: session.RoleAssistant, Content: "3100",
		ThoughtContent: "a\nPREFIX\nb", Timestamp: now}
	require.NoError(t, s.SaveMessage(ctx, "t1", user))
	require.NoError(t, s.SaveMessage(ctx, "t1", answer))

	answer.Content = "3120"
	require.NoError(t, s.SaveMessage(ctx, "t1", answer))

	msgs, err := s.Messages(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "u1", msgs[0].ID)
	assert.Equal(t, session.RoleUser, msgs[0].Role)
	assert.Equal(t, "3120", msgs[1].Content, "upsert keeps position")
	assert.Equal(t, "a\nPREFIX\nb", msgs[1].ThoughtContent)
}

func TestFeedbackAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	now := time.Now()
	require.NoError(t, s.EnsureThread(ctx, "alice", session.Thread{ID: "t1", CreatedAt: now}))
	require.NoError(t, s.SaveMessage(ctx, "t1", session.Message{ID: "a1", Role: session.RoleAssistant, Timestamp: now}))
	require.NoError(t, s.SaveMessage(ctx, "t1", session.Message{ID: "a2", Role: session.RoleAssistant, Timestamp: now}))

	require.NoError(t, s.SetFeedback(ctx, "a1", session.FeedbackBad, "stale price"))
	assert.ErrorIs(t, s.SetFeedback(ctx, "zz", session.FeedbackGood, ""), session.ErrNotFound)

	require.NoError(t, s.DeleteMessage(ctx, "a2"))
	assert.ErrorIs(t, s.DeleteMessage(ctx, "a2"), session.ErrNotFound)

	msgs, err := s.Messages(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, session.FeedbackBad, msgs[0].Feedback)
}

func TestDeleteThreads(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	now := time.Now()
	for _, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, s.EnsureThread(ctx, "alice", session.Thread{ID: id, CreatedAt: now}))
		require.NoError(t, s.SaveMessage(ctx, id, session.Message{ID: "m-" + id, Role: session.RoleUser, Timestamp: now}))
	}

	require.NoError(t, s.DeleteThreads(ctx, nil))
	require.NoError(t, s.DeleteThreads(ctx, []string{"t1", "t3"}))

	threads, err := s.ListThreads(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "t2", threads[0].ID)

	gone, err := s.Messages(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, gone)
}
