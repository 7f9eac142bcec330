package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"TradeAi/internal/frame"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLoopStopsWhenSettled(t *testing.T) {
	clock := frame.NewManual(t0)
	var seen []float64
	loop := NewLoop(clock, NewAnimator(160*time.Millisecond, 0.5), func(v float64) {
		seen = append(seen, v)
	})

	loop.Start(50)
	require.True(t, loop.Running())
	assert.Equal(t, 1, clock.PendingFrames())

	clock.Frames(20)
	assert.InDelta(t, 50, loop.Value(), 1e-9)
	assert.False(t, loop.Running())
	assert.Zero(t, clock.PendingFrames(), "no frame is scheduled once settled")
	assert.Len(t, seen, 10)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}

	assert.True(t, loop.Step())
	assert.True(t, loop.Running())
	clock.Frames(20)
	assert.InDelta(t, 75, loop.Value(), 1e-9)
	assert.Zero(t, clock.PendingFrames())
}

func TestLoopBumpWhileRunningKeepsOneFrame(t *testing.T) {
	clock := frame.NewManual(t0)
	loop := NewLoop(clock, NewAnimator(time.Second, 0.5), nil)
	loop.Start(20)
	loop.Bump(40)
	loop.Bump(60)
	assert.Equal(t, 1, clock.PendingFrames())
	assert.False(t, loop.Bump(10))
}

func TestLoopStopAndReset(t *testing.T) {
	clock := frame.NewManual(t0)
	loop := NewLoop(clock, NewAnimator(time.Second, 0.5), nil)
	loop.Start(80)
	clock.Frames(3)
	loop.Stop()
	assert.False(t, loop.Running())
	assert.Zero(t, clock.PendingFrames())
	v := loop.Value()
	clock.Frames(3)
	assert.Equal(t, v, loop.Value())

	loop.Reset()
	assert.Equal(t, 0.0, loop.Value())
}

func TestLoadingBarSaturates(t *testing.T) {
	clock := frame.NewManual(t0)
	bar := NewLoadingBar(20, 5)
	ticks := 0
	bar.Run(clock, 100*time.Millisecond, func(float64) { ticks++ })

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, 5.0, bar.Value())

	clock.Advance(time.Second)
	assert.Equal(t, 20.0, bar.Value())
	assert.True(t, bar.Saturated())
	assert.Equal(t, 4, ticks)
	assert.Zero(t, clock.PendingTimers())

	clock.Advance(time.Second)
	assert.Equal(t, 20.0, bar.Value(), "holds at target without input")
}

func TestLoadingBarStop(t *testing.T) {
	clock := frame.NewManual(t0)
	bar := NewLoadingBar(20, 1)
	bar.Run(clock, 100*time.Millisecond, nil)
	clock.Advance(300 * time.Millisecond)
	bar.Stop()
	assert.Equal(t, 3.0, bar.Value())
	assert.Zero(t, clock.PendingTimers())

	bar.Reset()
	assert.Equal(t, 0.0, bar.Value())
	assert.Equal(t, 4.0, NewLoadingBar(4, 10).Tick())
}
