package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(id string, role Role, content string) Message {
	return Message{ID: id, Role: role, Content: content, Timestamp: time.Now()}
}

func ids(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestStoreAppendUnique(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append(msg("u1", RoleUser, "hi")))
	require.NoError(t, s.Append(msg("a1", RoleAssistant, "hello")))

	err := s.Append(msg("u1", RoleUser, "again"))
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.Equal(t, 2, s.Len())

	require.NoError(t, s.Begin(msg("a2", RoleAssistant, "")))
	assert.ErrorIs(t, s.Append(msg("a2", RoleAssistant, "")), ErrDuplicateID)
	assert.ErrorIs(t, s.Begin(msg("u1", RoleAssistant, "")), ErrDuplicateID)
}

func TestStoreDeleteKeepsOthers(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, s.Append(msg(id, RoleUser, id)))
	}
	assert.True(t, s.Delete("m2"))
	assert.False(t, s.Delete("m2"))
	assert.Equal(t, []string{"m1", "m3"}, ids(s.Messages()))
	assert.Equal(t, 1, s.Index("m3"))
}

func TestStoreTruncateFrom(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"u1", "a1", "u2", "a2"} {
		require.NoError(t, s.Append(msg(id, RoleUser, id)))
	}
	removed, err := s.TruncateFrom("u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2", "a2"}, ids(removed))
	assert.Equal(t, []string{"u1", "a1"}, ids(s.Messages()))

	_, err = s.TruncateFrom("zz")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreInFlight(t *testing.T) {
	s := NewStore()
	assert.ErrorIs(t, s.AppendDelta(DeltaContent, "x"), ErrNoInFlight)
	_, err := s.Promote()
	assert.ErrorIs(t, err, ErrNoInFlight)

	require.NoError(t, s.Begin(msg("a1", RoleAssistant, "")))
	require.NoError(t, s.AppendDelta(DeltaThought, "plan"))
	require.NoError(t, s.AppendDelta(DeltaObservation, "obs"))
	require.NoError(t, s.AppendDelta(DeltaContent, "Buy"))
	require.NoError(t, s.AppendDelta(DeltaContent, " ETH"))
	assert.Error(t, s.AppendDelta("bogus", "x"))

	cur, ok := s.InFlight()
	require.True(t, ok)
	assert.Equal(t, "Buy ETH", cur.Content)
	assert.Equal(t, "obs", cur.Trace())
	assert.Zero(t, s.Len(), "in-flight message is not history")

	promoted, err := s.Promote()
	require.NoError(t, err)
	assert.Equal(t, cur, promoted)
	_, ok = s.InFlight()
	assert.False(t, ok)
	assert.Equal(t, []string{"a1"}, ids(s.Messages()))
}

func TestStoreResetAndFeedback(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Begin(msg("x", RoleAssistant, "")))
	s.Reset([]Message{msg("a", RoleUser, ""), msg("b", RoleAssistant, ""), msg("a", RoleUser, "dup")})
	assert.Equal(t, []string{"a", "b"}, ids(s.Messages()))
	_, ok := s.InFlight()
	assert.False(t, ok)

	require.NoError(t, s.SetFeedback("b", FeedbackGood))
	got, ok := s.Get("b")
	require.True(t, ok)
	assert.Equal(t, FeedbackGood, got.Feedback)
	assert.ErrorIs(t, s.SetFeedback("zz", FeedbackBad), ErrNotFound)
}

func TestMessagesIsACopy(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append(msg("m1", RoleUser, "orig")))
	out := s.Messages()
	out[0].Content = "changed"
	got, _ := s.Get("m1")
	assert.Equal(t, "orig", got.Content)
}

func TestTrace(t *testing.T) {
	assert.Equal(t, "t", Message{ThoughtContent: "t"}.Trace())
	assert.Equal(t, "o", Message{ThoughtContent: "t", ObservationContent: "o"}.Trace())
	assert.NotEqual(t, NewID(), NewID())
}
