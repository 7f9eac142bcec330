// Package frame schedules per-frame and delayed callbacks behind a Clock, so the
// animation and scroll-follow logic runs the same against a real timer or a test clock.
package frame

import (
	"sync"
	"time"
)

// Cancel stops a scheduled callback. Calling it after the callback ran, or twice,
// does nothing.
type Cancel func()

// Clock is the host's time and frame scheduler
type Clock interface {
	Now() time.Time
	// OnNextFrame runs fn once on the next paint frame
	OnNextFrame(fn func()) Cancel
	// AfterFunc runs fn once after d
	AfterFunc(d time.Duration, fn func()) Cancel
}

// System is a Clock backed by the runtime timers. Frames fire every interval;
// callbacks run on timer goroutines.
type System struct {
	interval time.Duration
}

// NewSystem creates a system clock with the given frame interval (16ms if zero)
func NewSystem(interval time.Duration) *System {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &System{interval: interval}
}

func (s *System) Now() time.Time { return time.Now() }

func (s *System) OnNextFrame(fn func()) Cancel {
	return s.AfterFunc(s.interval, fn)
}

func (s *System) AfterFunc(d time.Duration, fn func()) Cancel {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

type timer struct {
	id uint64
	at time.Time
	fn func()
}

// Manual is a Clock that only moves when told to. Frame runs the callbacks that were
// queued before it was called; Advance moves time forward and fires due timers.
type Manual struct {
	mu       sync.Mutex
	now      time.Time
	interval time.Duration
	nextID   uint64
	frames   []timer
	timers   []timer
}

// NewManual creates a manual clock starting at start with a 16ms frame interval
func NewManual(start time.Time) *Manual {
	return &Manual{now: start, interval: 16 * time.Millisecond}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) OnNextFrame(fn func()) Cancel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.frames = append(m.frames, timer{id: id, fn: fn})
	return func() { m.remove(&m.frames, id) }
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Cancel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.timers = append(m.timers, timer{id: id, at: m.now.Add(d), fn: fn})
	return func() { m.remove(&m.timers, id) }
}

func (m *Manual) remove(list *[]timer, id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range *list {
		if t.id == id {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return
		}
	}
}

// Frame advances time by one frame interval, fires due timers, then runs the frame
// callbacks queued so far. Callbacks scheduled while running wait for the next Frame.
func (m *Manual) Frame() {
	m.Advance(m.interval)
	m.mu.Lock()
	due := m.frames
	m.frames = nil
	m.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
}

// Frames runs n frames
func (m *Manual) Frames(n int) {
	for i := 0; i < n; i++ {
		m.Frame()
	}
}

// Advance moves time forward by d and fires every timer that became due, in
// deadline order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		idx := -1
		for i, t := range m.timers {
			if !t.at.After(target) && (idx < 0 || t.at.Before(m.timers[idx].at)) {
				idx = i
			}
		}
		if idx < 0 {
			m.now = target
			m.mu.Unlock()
			return
		}
		t := m.timers[idx]
		m.timers = append(m.timers[:idx], m.timers[idx+1:]...)
		if t.at.After(m.now) {
			m.now = t.at
		}
		m.mu.Unlock()
		t.fn()
	}
}

// PendingFrames reports how many frame callbacks are queued
func (m *Manual) PendingFrames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

// PendingTimers reports how many delayed callbacks are queued
func (m *Manual) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}
