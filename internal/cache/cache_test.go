package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeAi/internal/thought"
)

func TestGenerateCacheKey(t *testing.T) {
	assert.Equal(t, GenerateCacheKey("a\nPREFIX\nb"), GenerateCacheKey("a\nPREFIX\nb"))
	assert.NotEqual(t, GenerateCacheKey("a"), GenerateCacheKey("b"))
	assert.Len(t, GenerateCacheKey(""), 64)
}

func TestSegmentsSplit(t *testing.T) {
	s, err := NewSegments(16)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	raw := "a\nPREFIX\n" + `{"k":"v"}`
	first := s.Split(raw)
	s.Wait()

	val, ok := s.rc.Get(GenerateCacheKey(raw))
	require.True(t, ok)
	assert.Equal(t, first, val.([]thought.Segment))
	assert.Equal(t, thought.Split(raw), s.Split(raw))
}

func TestSegmentsNil(t *testing.T) {
	var s *Segments
	assert.Equal(t, []string{"x"}, []string{s.Split("x")[0].Text})
}

func TestSegmentsSplitReturnsCopies(t *testing.T) {
	s, err := NewSegments(16)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	raw := "a\nPREFIX\n" + `{"k":"v"}`
	first := s.Split(raw)
	s.Wait()

	first[0].Text = "changed"
	first[1].Entries[0].Value = "changed"

	again := s.Split(raw)
	assert.Equal(t, thought.Split(raw), again)
	again[1].Entries[0].Key = "other"
	assert.Equal(t, thought.Split(raw), s.Split(raw))
}
