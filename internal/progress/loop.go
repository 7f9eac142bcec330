package progress

import (
	"sync"
	"time"

	"TradeAi/internal/frame"
)

// Loop drives an Animator from a frame clock. It schedules one frame at a time while
// the animator is moving and stops scheduling once it settles; any change to the
// target kicks it again.
type Loop struct {
	mu      sync.Mutex
	clock   frame.Clock
	anim    *Animator
	onFrame func(float64)
	cancel  frame.Cancel
	gen     uint64
}

// NewLoop creates a loop. onFrame, if set, receives every ticked value outside the
// loop's lock.
func NewLoop(clock frame.Clock, anim *Animator, onFrame func(float64)) *Loop {
	return &Loop{clock: clock, anim: anim, onFrame: onFrame}
}

// Start restarts the animator toward initialTarget
func (l *Loop) Start(initialTarget float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.anim.Start(initialTarget, l.clock.Now())
	l.kickLocked()
}

// Bump raises the target, see Animator.Bump
func (l *Loop) Bump(target float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	ok := l.anim.Bump(target, l.clock.Now())
	if ok {
		l.kickLocked()
	}
	return ok
}

// Step raises the target by the animator's fraction of the remaining gap
func (l *Loop) Step() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	ok := l.anim.Step(l.clock.Now())
	if ok {
		l.kickLocked()
	}
	return ok
}

// Value is the last displayed percentage
func (l *Loop) Value() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.anim.Current()
}

// Running reports whether a frame is scheduled
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// Stop cancels the scheduled frame, leaving the value where it is
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

// Reset stops the loop and zeroes the animator
func (l *Loop) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
	l.anim.Reset()
}

func (l *Loop) stopLocked() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

func (l *Loop) kickLocked() {
	if l.cancel == nil {
		l.scheduleLocked()
	}
}

// scheduleLocked queues the next frame; a frame from an older schedule that fires
// late sees a different generation and does nothing.
func (l *Loop) scheduleLocked() {
	l.gen++
	gen := l.gen
	l.cancel = l.clock.OnNextFrame(func() { l.frame(gen) })
}

func (l *Loop) frame(gen uint64) {
	l.mu.Lock()
	if l.cancel == nil || gen != l.gen {
		l.mu.Unlock()
		return
	}
	l.cancel = nil
	v := l.anim.Tick(l.clock.Now())
	if !l.anim.Settled() {
		l.scheduleLocked()
	}
	l.mu.Unlock()

	if l.onFrame != nil {
		l.onFrame(v)
	}
}

// LoadingBar is pure time-based progress: every tick adds step until target, then
// holds there.
type LoadingBar struct {
	mu     sync.Mutex
	target float64
	step   float64
	value  float64
	cancel frame.Cancel
	gen    uint64
}

// NewLoadingBar creates a bar saturating at target
func NewLoadingBar(target, step float64) *LoadingBar {
	if step <= 0 {
		step = 1
	}
	return &LoadingBar{target: clamp(target), step: step}
}

// Tick advances the bar by one step
func (b *LoadingBar) Tick() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tickLocked()
}

func (b *LoadingBar) tickLocked() float64 {
	b.value += b.step
	if b.value > b.target {
		b.value = b.target
	}
	return b.value
}

// Value is the current percentage
func (b *LoadingBar) Value() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}

// Saturated reports whether the bar reached its target
func (b *LoadingBar) Saturated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value >= b.target
}

// Run ticks the bar every interval on clock until it saturates or Stop is called
func (b *LoadingBar) Run(clock frame.Clock, interval time.Duration, onTick func(float64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil || b.value >= b.target {
		return
	}
	b.gen++
	gen := b.gen
	var tick func()
	tick = func() {
		b.mu.Lock()
		if b.cancel == nil || gen != b.gen {
			b.mu.Unlock()
			return
		}
		v := b.tickLocked()
		if v < b.target {
			b.cancel = clock.AfterFunc(interval, tick)
		} else {
			b.cancel = nil
		}
		b.mu.Unlock()
		if onTick != nil {
			onTick(v)
		}
	}
	b.cancel = clock.AfterFunc(interval, tick)
}

// Stop cancels the periodic tick
func (b *LoadingBar) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

// Reset stops the bar and returns it to 0
func (b *LoadingBar) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.value = 0
}
