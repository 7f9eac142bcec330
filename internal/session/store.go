package session

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrDuplicateID = errors.New("message id already in history")
	ErrNotFound    = errors.New("message not found")
	ErrNoInFlight  = errors.New("no in-flight message")
)

// Store is the ordered history of one thread plus the single in-flight message being
// streamed. History entries are immutable once added; ids are unique.
type Store struct {
	mu       sync.RWMutex
	history  []Message
	inFlight *Message
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{}
}

// Reset replaces the history with msgs and drops any in-flight message. Later
// duplicates of an id are ignored.
func (s *Store) Reset(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = make([]Message, 0, len(msgs))
	seen := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		s.history = append(s.history, m)
	}
	s.inFlight = nil
}

// Append adds msg to the end of the history
func (s *Store) Append(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(msg.ID) >= 0 || (s.inFlight != nil && s.inFlight.ID == msg.ID) {
		return fmt.Errorf("append %s: %w", msg.ID, ErrDuplicateID)
	}
	s.history = append(s.history, msg)
	return nil
}

// Messages returns a copy of the history
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// Len is the number of history entries
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// Get returns the history entry with id
func (s *Store) Get(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	if i < 0 {
		return Message{}, false
	}
	return s.history[i], true
}

// Index returns the position of id in the history, or -1
func (s *Store) Index(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(id)
}

func (s *Store) indexLocked(id string) int {
	for i := range s.history {
		if s.history[i].ID == id {
			return i
		}
	}
	return -1
}

// Delete removes the entry with id; other entries keep their ids and order
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	s.history = append(s.history[:i], s.history[i+1:]...)
	return true
}

// TruncateFrom removes the entry with id and every entry after it, returning the
// removed messages in order
func (s *Store) TruncateFrom(id string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return nil, fmt.Errorf("truncate %s: %w", id, ErrNotFound)
	}
	removed := make([]Message, len(s.history)-i)
	copy(removed, s.history[i:])
	s.history = s.history[:i]
	return removed, nil
}

// SetFeedback records a verdict on a history entry
func (s *Store) SetFeedback(id string, verdict Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("feedback %s: %w", id, ErrNotFound)
	}
	s.history[i].Feedback = verdict
	return nil
}

// Begin installs msg as the in-flight message, replacing any previous one
func (s *Store) Begin(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(msg.ID) >= 0 {
		return fmt.Errorf("begin %s: %w", msg.ID, ErrDuplicateID)
	}
	s.inFlight = &msg
	return nil
}

// AppendDelta extends the in-flight message's field selected by kind
func (s *Store) AppendDelta(kind DeltaKind, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight == nil {
		return ErrNoInFlight
	}
	switch kind {
	case DeltaContent:
		s.inFlight.Content += text
	case DeltaThought:
		s.inFlight.ThoughtContent += text
	case DeltaObservation:
		s.inFlight.ObservationContent += text
	default:
		return fmt.Errorf("unknown delta kind %q", kind)
	}
	return nil
}

// InFlight returns a copy of the in-flight message
func (s *Store) InFlight() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.inFlight == nil {
		return Message{}, false
	}
	return *s.inFlight, true
}

// Promote moves the in-flight message, as it is now, to the end of the history
func (s *Store) Promote() (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight == nil {
		return Message{}, ErrNoInFlight
	}
	msg := *s.inFlight
	s.inFlight = nil
	s.history = append(s.history, msg)
	return msg, nil
}

// Discard drops the in-flight message without keeping it
func (s *Store) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = nil
}
