package chatbot

import (
	"fmt"
	"math"

	"TradeAi/internal/session"
	"TradeAi/internal/thought"
)

// Snapshot is a read-only view of a conversation for a render layer. It is rebuilt
// after every chunk, animation frame, scroll event and state change.
type Snapshot struct {
	ThreadID string
	State    State
	Messages []session.Message
	// InFlight is the answer being streamed, nil when idle
	InFlight *session.Message

	// Steps of the in-flight answer, or of the latest answer when idle
	Steps      []thought.Segment
	StepCursor int
	StepCount  int

	ProgressPercent float64
	LoadingPercent  float64
	// ActiveAgentsLabel is empty once the answer's content has started
	ActiveAgentsLabel string
	ShouldAutoScroll  bool

	// Err is the last transport failure, kept until the next submit
	Err error
}

// StepLabel renders the cursor as "Step i/n", or "" when there are no steps
func (s Snapshot) StepLabel() string {
	if s.StepCount == 0 {
		return ""
	}
	return fmt.Sprintf("Step %d/%d", s.StepCursor, s.StepCount)
}

// CurrentStep is the segment under the cursor
func (s Snapshot) CurrentStep() (thought.Segment, bool) {
	i := s.StepCursor - 1
	if i < 0 || i >= len(s.Steps) {
		return thought.Segment{}, false
	}
	return s.Steps[i], true
}

// Percent rounds the displayed progress for text output
func (s Snapshot) Percent() int {
	return int(math.Round(s.ProgressPercent))
}
