// Package progress animates the completion percentage of a streaming answer.
package progress

import (
	"time"
)

const (
	DefaultDuration = 5 * time.Second
	DefaultFraction = 0.5
)

// Animator moves a displayed percentage toward a target over a fixed window. The
// target only rises; each rise restarts the window from the value last shown, so the
// displayed value never jumps and never goes back.
type Animator struct {
	duration time.Duration
	fraction float64

	startPercent  float64
	targetPercent float64
	current       float64
	startTime     time.Time
	started       bool
}

// NewAnimator creates an animator. Zero or invalid arguments take the defaults
// (5s window, half of the remaining gap per Step).
func NewAnimator(duration time.Duration, fraction float64) *Animator {
	if duration <= 0 {
		duration = DefaultDuration
	}
	if fraction <= 0 || fraction > 1 {
		fraction = DefaultFraction
	}
	return &Animator{duration: duration, fraction: fraction}
}

// Start begins a fresh run from 0 toward initialTarget
func (a *Animator) Start(initialTarget float64, now time.Time) {
	a.startPercent = 0
	a.current = 0
	a.targetPercent = clamp(initialTarget)
	a.startTime = now
	a.started = true
}

// Bump raises the target. It reports false and changes nothing unless newTarget is
// above the current target. An accepted bump re-anchors the window at the last
// displayed value and at now.
func (a *Animator) Bump(newTarget float64, now time.Time) bool {
	newTarget = clamp(newTarget)
	if !a.started {
		a.Start(newTarget, now)
		return newTarget > 0
	}
	if newTarget <= a.targetPercent {
		return false
	}
	a.startPercent = a.current
	a.targetPercent = newTarget
	a.startTime = now
	return true
}

// Step bumps the target by the configured fraction of its remaining gap to 100
func (a *Animator) Step(now time.Time) bool {
	base := a.targetPercent
	return a.Bump(base+(100-base)*a.fraction, now)
}

// Tick returns the percentage to display at now
func (a *Animator) Tick(now time.Time) float64 {
	if !a.started {
		return a.current
	}
	p := float64(now.Sub(a.startTime)) / float64(a.duration)
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	v := clamp(a.startPercent + (a.targetPercent-a.startPercent)*p)
	if v > a.current {
		a.current = v
	}
	return a.current
}

// Settled reports whether the displayed value has reached the target
func (a *Animator) Settled() bool {
	return !a.started || a.current >= a.targetPercent
}

// Current is the value returned by the last Tick
func (a *Animator) Current() float64 { return a.current }

// Target is the value being animated toward
func (a *Animator) Target() float64 { return a.targetPercent }

// Started reports whether Start or Bump has been called since the last Reset
func (a *Animator) Started() bool { return a.started }

// Reset returns the animator to its unstarted zero state
func (a *Animator) Reset() {
	*a = Animator{duration: a.duration, fraction: a.fraction}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
