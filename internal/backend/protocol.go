// Package backend is the collaborator boundary of a conversation: thread and message
// CRUD plus the streaming send.
package backend

import (
	"context"
	"errors"
	"fmt"

	"TradeAi/internal/session"
)

// ErrRejected is returned when a collaborator answers with a non-success status
var ErrRejected = errors.New("request rejected")

// EventType discriminates a StreamEvent
type EventType int

const (
	EventDelta EventType = iota
	EventEnd
	EventError
)

// StreamEvent is one item of a streaming response. Delta events carry Kind and Text;
// an Error event carries Err. End and Error are terminal.
type StreamEvent struct {
	Type EventType
	Kind session.DeltaKind
	Text string
	Err  error
}

// Delta builds a delta event
func Delta(kind session.DeltaKind, text string) StreamEvent {
	return StreamEvent{Type: EventDelta, Kind: kind, Text: text}
}

// End builds the end-of-stream event
func End() StreamEvent {
	return StreamEvent{Type: EventEnd}
}

// Failure builds a terminal error event
func Failure(err error) StreamEvent {
	return StreamEvent{Type: EventError, Err: err}
}

// SendRequest is one user turn to stream an answer for. History is the transcript
// before Text, oldest first.
type SendRequest struct {
	ThreadID    string            `json:"thread_id"`
	Text        string            `json:"text"`
	History     []session.Message `json:"history,omitempty"`
	Attachments []string          `json:"attachments,omitempty"`
}

// Streamer produces the answer to a SendRequest. The returned channel delivers events
// in arrival order and is closed after an End or Error event, or once ctx is done.
type Streamer interface {
	Stream(ctx context.Context, req SendRequest) (<-chan StreamEvent, error)
}

// Service is everything a conversation needs from the outside world
type Service interface {
	ListThreads(ctx context.Context, userKey string) ([]session.Thread, error)
	DeleteThreads(ctx context.Context, threadIDs []string) error
	GetMessages(ctx context.Context, threadID string) ([]session.Message, error)
	SendMessage(ctx context.Context, req SendRequest) (<-chan StreamEvent, error)
	RateMessage(ctx context.Context, messageID string, verdict session.Feedback, note string) error
	DeleteMessage(ctx context.Context, messageID string) error
}

// Recorder is implemented by services that persist the transcript on the client side.
// The first message saved to an unknown thread creates it.
type Recorder interface {
	SaveMessage(ctx context.Context, threadID string, msg session.Message) error
}

// Envelope is the loosely typed {status, data, message} answer of the TradeAi API
type Envelope[T any] struct {
	Status  string `json:"status"`
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

// Result closes the envelope into Ok(data) or Err(reason)
func (e Envelope[T]) Result() (T, error) {
	if e.Status == "success" {
		return e.Data, nil
	}
	var zero T
	reason := e.Message
	if reason == "" {
		reason = fmt.Sprintf("status %q", e.Status)
	}
	return zero, fmt.Errorf("%w: %s", ErrRejected, reason)
}

// send delivers ev unless ctx is done first
func send(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
