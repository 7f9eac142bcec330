package cache

import (
	"crypto/sha256"
	"fmt"
	"slices"

	"github.com/dgraph-io/ristretto"

	"TradeAi/internal/thought"
)

// GenerateCacheKey generates a cache key from a raw reasoning trace
func GenerateCacheKey(raw string) string {
	h := sha256.New()
	h.Write([]byte(raw))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Segments memoizes thought.Split. Every chunk of a live stream re-segments the whole
// accumulated trace, and several views of one message ask for the same steps.
type Segments struct {
	rc *ristretto.Cache
}

// NewSegments creates a cache holding roughly maxItems segmented traces
func NewSegments(maxItems int64) (*Segments, error) {
	if maxItems <= 0 {
		maxItems = 256
	}
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
		// cost counts traces, not bytes
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create segment cache: %w", err)
	}
	return &Segments{rc: rc}, nil
}

// Split returns the segmented form of raw, computing it on a miss. Sets are
// asynchronous, so a value may take a moment to become visible to Get. Callers get
// their own copy of the steps and may modify it.
func (s *Segments) Split(raw string) []thought.Segment {
	if s == nil || raw == "" {
		return thought.Split(raw)
	}
	key := GenerateCacheKey(raw)
	if val, ok := s.rc.Get(key); ok {
		return clone(val.([]thought.Segment))
	}
	segs := thought.Split(raw)
	s.rc.Set(key, segs, 1)
	return clone(segs)
}

func clone(segs []thought.Segment) []thought.Segment {
	if segs == nil {
		return nil
	}
	out := make([]thought.Segment, len(segs))
	for i, seg := range segs {
		seg.Entries = slices.Clone(seg.Entries)
		out[i] = seg
	}
	return out
}

// Wait blocks until pending sets are applied
func (s *Segments) Wait() {
	s.rc.Wait()
}

// Close stops the cache's background goroutines
func (s *Segments) Close() {
	s.rc.Close()
}
