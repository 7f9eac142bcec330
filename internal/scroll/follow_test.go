package scroll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"TradeAi/internal/frame"
)

type fakeViewport struct {
	m        Metrics
	scrolls  int
	follower *Follower
}

func (v *fakeViewport) ScrollMetrics() Metrics { return v.m }

func (v *fakeViewport) ScrollToBottom() {
	v.scrolls++
	v.m.ScrollTop = v.m.ScrollHeight - v.m.ClientHeight
	if v.follower != nil {
		v.follower.Sync()
	}
}

func newFollower(t *testing.T) (*Follower, *fakeViewport, *frame.Manual) {
	t.Helper()
	clock := frame.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	vp := &fakeViewport{m: Metrics{ScrollTop: 500, ScrollHeight: 1000, ClientHeight: 500}}
	f := NewFollower(vp, clock)
	vp.follower = f
	t.Cleanup(f.Close)
	return f, vp, clock
}

func TestAtBottom(t *testing.T) {
	tests := []struct {
		name string
		m    Metrics
		want bool
	}{
		{"exactly at bottom", Metrics{ScrollTop: 500, ScrollHeight: 1000, ClientHeight: 500}, true},
		{"within tolerance", Metrics{ScrollTop: 490, ScrollHeight: 1000, ClientHeight: 500}, true},
		{"just outside tolerance", Metrics{ScrollTop: 489, ScrollHeight: 1000, ClientHeight: 500}, false},
		{"fifty above", Metrics{ScrollTop: 450, ScrollHeight: 1000, ClientHeight: 500}, false},
		{"content shorter than view", Metrics{ScrollTop: 0, ScrollHeight: 200, ClientHeight: 500}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AtBottom(tt.m, DefaultTolerance))
		})
	}
}

func TestOnScroll(t *testing.T) {
	f, _, _ := newFollower(t)
	assert.True(t, f.ShouldAutoScroll(), "starts pinned")

	assert.False(t, f.OnScroll(450, 1000, 500))
	assert.False(t, f.ShouldAutoScroll())

	assert.True(t, f.OnScroll(500, 1000, 500))
	assert.True(t, f.ShouldAutoScroll())
}

func TestOnContentGrewDefersToFrame(t *testing.T) {
	f, vp, clock := newFollower(t)

	f.OnContentGrew()
	f.OnContentGrew()
	assert.Zero(t, vp.scrolls, "never scrolls synchronously")
	assert.True(t, f.Pending())
	assert.Equal(t, 1, clock.PendingFrames(), "one scroll per frame")

	clock.Frame()
	assert.Equal(t, 1, vp.scrolls)
	assert.False(t, f.Pending())
	assert.False(t, f.UserScrolling(), "own scroll does not count as the user's")
}

func TestOnContentGrewNoopWhenScrolledAway(t *testing.T) {
	f, vp, clock := newFollower(t)
	f.OnScroll(100, 1000, 500)

	f.OnContentGrew()
	clock.Frame()
	assert.Zero(t, vp.scrolls)
	assert.False(t, f.Pending())

	f.OnScroll(500, 1000, 500)
	f.OnContentGrew()
	clock.Frame()
	assert.Equal(t, 1, vp.scrolls, "resumes once back at bottom")
}

func TestOnResizeSuppressedDuringUserScroll(t *testing.T) {
	f, vp, clock := newFollower(t)

	f.OnScroll(495, 1000, 500)
	assert.True(t, f.UserScrolling())
	f.OnResize()
	assert.False(t, f.Pending())

	clock.Advance(100 * time.Millisecond)
	f.OnScroll(500, 1000, 500)
	clock.Advance(100 * time.Millisecond)
	assert.True(t, f.UserScrolling(), "window restarts on every user scroll")

	clock.Advance(60 * time.Millisecond)
	assert.False(t, f.UserScrolling())
	f.OnResize()
	clock.Frame()
	assert.Equal(t, 1, vp.scrolls)
}

func TestFollowAndClose(t *testing.T) {
	f, vp, clock := newFollower(t)
	f.OnScroll(0, 1000, 500)

	f.Follow()
	assert.True(t, f.ShouldAutoScroll())
	clock.Frame()
	assert.Equal(t, 1, vp.scrolls)

	f.OnContentGrew()
	f.Close()
	clock.Frame()
	assert.Equal(t, 1, vp.scrolls, "closed follower drops the pending scroll")
	f.OnContentGrew()
	assert.Zero(t, clock.PendingFrames())
	assert.Zero(t, clock.PendingTimers())
}

func TestOnChangeCallback(t *testing.T) {
	clock := frame.NewManual(time.Now())
	var got []bool
	f := NewFollower(&fakeViewport{}, clock, WithTolerance(0), WithUserScrollWindow(time.Second),
		WithOnChange(func(v bool) { got = append(got, v) }))
	defer f.Close()

	f.OnScroll(495, 1000, 500)
	f.OnScroll(500, 1000, 500)
	assert.Equal(t, []bool{false, true}, got)
}
