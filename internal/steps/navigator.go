// Package steps tracks which reasoning step the user is looking at.
package steps

import "sync"

// Navigator is a cursor over a growing list of steps. When a new step count arrives
// the cursor jumps to it, so a streaming trace always shows its latest step.
// The cursor stays in [1, count], or is 0 while there are no steps.
type Navigator struct {
	mu      sync.Mutex
	count   int
	current int
}

// NewNavigator returns a navigator with no steps
func NewNavigator() *Navigator {
	return &Navigator{}
}

// SetStepCount records n steps and moves the cursor to the last one
func (n *Navigator) SetStepCount(count int) {
	if count < 0 {
		count = 0
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count = count
	n.current = count
}

// Next moves forward one step, stopping at the last
func (n *Navigator) Next() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current < n.count {
		n.current++
	}
	return n.current
}

// Prev moves back one step, stopping at the first
func (n *Navigator) Prev() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current > 1 {
		n.current--
	}
	return n.current
}

// Current returns the 1-based cursor and the step count
func (n *Navigator) Current() (current, count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current, n.count
}

// Reset clears all steps
func (n *Navigator) Reset() {
	n.SetStepCount(0)
}
