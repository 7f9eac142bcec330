// Package scroll keeps a transcript pinned to its newest content until the user
// scrolls away from the bottom.
package scroll

import (
	"sync"
	"time"

	"TradeAi/internal/frame"
)

const (
	DefaultTolerance        = 10
	DefaultUserScrollWindow = 150 * time.Millisecond
)

// Metrics is the scroll geometry of a container, in pixels
type Metrics struct {
	ScrollTop    float64
	ScrollHeight float64
	ClientHeight float64
}

// Viewport is the rendered transcript container
type Viewport interface {
	ScrollMetrics() Metrics
	ScrollToBottom()
}

// AtBottom reports whether m is within tolerance of the true bottom
func AtBottom(m Metrics, tolerance float64) bool {
	return m.ScrollHeight-m.ScrollTop-m.ClientHeight <= tolerance
}

// Follower decides when the transcript should scroll itself. Scrolls are always
// deferred to the next frame, and at most one is pending at a time.
type Follower struct {
	mu        sync.Mutex
	viewport  Viewport
	clock     frame.Clock
	tolerance float64
	window    time.Duration

	shouldAutoScroll bool
	userScrolling    bool
	programmatic     bool

	pending  frame.Cancel
	settle   frame.Cancel
	closed   bool
	onChange func(bool)
}

// Option configures a Follower
type Option func(*Follower)

// WithTolerance sets how many pixels above the bottom still count as at-bottom
func WithTolerance(px float64) Option {
	return func(f *Follower) { f.tolerance = px }
}

// WithUserScrollWindow sets how long a user scroll suppresses resize-driven scrolling
func WithUserScrollWindow(d time.Duration) Option {
	return func(f *Follower) { f.window = d }
}

// WithOnChange registers a callback for every scroll event, called outside the lock
func WithOnChange(fn func(shouldAutoScroll bool)) Option {
	return func(f *Follower) { f.onChange = fn }
}

// NewFollower creates a follower that starts pinned to the bottom
func NewFollower(viewport Viewport, clock frame.Clock, opts ...Option) *Follower {
	f := &Follower{
		viewport:         viewport,
		clock:            clock,
		tolerance:        DefaultTolerance,
		window:           DefaultUserScrollWindow,
		shouldAutoScroll: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// OnScroll records a scroll event and returns whether the view is at the bottom.
// Scrolls the follower did not cause open the user-scroll window.
func (f *Follower) OnScroll(scrollTop, scrollHeight, clientHeight float64) bool {
	f.mu.Lock()
	at := AtBottom(Metrics{ScrollTop: scrollTop, ScrollHeight: scrollHeight, ClientHeight: clientHeight}, f.tolerance)
	f.shouldAutoScroll = at
	if f.programmatic {
		f.programmatic = false
	} else if !f.closed {
		f.userScrolling = true
		if f.settle != nil {
			f.settle()
		}
		f.settle = f.clock.AfterFunc(f.window, f.settled)
	}
	onChange := f.onChange
	f.mu.Unlock()

	if onChange != nil {
		onChange(at)
	}
	return at
}

// Sync reads the viewport's current geometry as a scroll event
func (f *Follower) Sync() bool {
	m := f.viewport.ScrollMetrics()
	return f.OnScroll(m.ScrollTop, m.ScrollHeight, m.ClientHeight)
}

func (f *Follower) settled() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userScrolling = false
	f.settle = nil
}

// ShouldAutoScroll returns the last computed at-bottom state
func (f *Follower) ShouldAutoScroll() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shouldAutoScroll
}

// UserScrolling reports whether a user scroll happened within the window
func (f *Follower) UserScrolling() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userScrolling
}

// OnContentGrew schedules a scroll to bottom on the next frame when following
func (f *Follower) OnContentGrew() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shouldAutoScroll {
		f.scheduleLocked()
	}
}

// OnResize is OnContentGrew for size changes with no append event (images, fonts,
// window resize); it stays quiet while the user is mid-gesture.
func (f *Follower) OnResize() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shouldAutoScroll && !f.userScrolling {
		f.scheduleLocked()
	}
}

// Follow pins the view to the bottom again, e.g. after the user submits a message
func (f *Follower) Follow() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shouldAutoScroll = true
	f.scheduleLocked()
}

// Pending reports whether a scroll is waiting for its frame
func (f *Follower) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending != nil
}

func (f *Follower) scheduleLocked() {
	if f.pending != nil || f.closed {
		return
	}
	f.pending = f.clock.OnNextFrame(f.scrollNow)
}

func (f *Follower) scrollNow() {
	f.mu.Lock()
	if f.pending == nil || f.closed {
		f.mu.Unlock()
		return
	}
	f.pending = nil
	f.programmatic = true
	f.mu.Unlock()

	// the viewport may report the resulting scroll synchronously
	f.viewport.ScrollToBottom()
}

// Close cancels pending work; later calls schedule nothing
func (f *Follower) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.pending != nil {
		f.pending()
		f.pending = nil
	}
	if f.settle != nil {
		f.settle()
		f.settle = nil
	}
}
