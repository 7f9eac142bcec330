package session

import (
	"time"

	"github.com/google/uuid"
)

// Role of a message author
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Feedback is the user's verdict on an assistant message
type Feedback string

const (
	FeedbackNone Feedback = ""
	FeedbackGood Feedback = "good"
	FeedbackBad  Feedback = "bad"
)

// DeltaKind tags which field of the in-flight message a stream chunk extends
type DeltaKind string

const (
	DeltaContent     DeltaKind = "content"
	DeltaThought     DeltaKind = "thought"
	DeltaObservation DeltaKind = "observation"
)

// Message represents a single chat message
type Message struct {
	ID                 string    `json:"id"`
	Role               Role      `json:"role"`
	Content            string    `json:"content"`
	ThoughtContent     string    `json:"thought_content,omitempty"`
	ObservationContent string    `json:"observation_content,omitempty"`
	Feedback           Feedback  `json:"feedback,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// Trace is the raw reasoning trace to segment: the observation when there is one,
// otherwise the thought content.
func (m Message) Trace() string {
	if m.ObservationContent != "" {
		return m.ObservationContent
	}
	return m.ThoughtContent
}

// Thread represents one persisted conversation
type Thread struct {
	ID        string    `json:"thread_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// NewID returns a fresh message or thread identifier
func NewID() string {
	return uuid.New().String()
}

// NewThread creates a thread stamped now
func NewThread(title string) Thread {
	return Thread{ID: NewID(), Title: title, CreatedAt: time.Now()}
}
