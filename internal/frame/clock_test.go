package frame

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestManualFrame(t *testing.T) {
	m := NewManual(epoch)
	runs := 0
	var again func()
	again = func() {
		runs++
		if runs < 3 {
			m.OnNextFrame(again)
		}
	}
	m.OnNextFrame(again)

	m.Frame()
	assert.Equal(t, 1, runs, "rescheduled callback waits for the next frame")
	assert.Equal(t, 1, m.PendingFrames())

	m.Frames(5)
	assert.Equal(t, 3, runs)
	assert.Zero(t, m.PendingFrames())
	assert.Equal(t, epoch.Add(6*16*time.Millisecond), m.Now())
}

func TestManualCancel(t *testing.T) {
	m := NewManual(epoch)
	ran := false
	cancel := m.OnNextFrame(func() { ran = true })
	cancel()
	cancel()
	m.Frame()
	assert.False(t, ran)

	stop := m.AfterFunc(time.Second, func() { ran = true })
	stop()
	m.Advance(2 * time.Second)
	assert.False(t, ran)
	assert.Zero(t, m.PendingTimers())
}

func TestManualAdvanceOrder(t *testing.T) {
	m := NewManual(epoch)
	var order []string
	m.AfterFunc(200*time.Millisecond, func() { order = append(order, "b") })
	m.AfterFunc(100*time.Millisecond, func() {
		order = append(order, "a")
		assert.Equal(t, epoch.Add(100*time.Millisecond), m.Now())
	})
	m.AfterFunc(time.Second, func() { order = append(order, "late") })

	m.Advance(250 * time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, epoch.Add(250*time.Millisecond), m.Now())
	assert.Equal(t, 1, m.PendingTimers())
}

func TestSystemClock(t *testing.T) {
	s := NewSystem(time.Millisecond)
	var fired atomic.Int32
	done := make(chan struct{})
	s.OnNextFrame(func() {
		fired.Add(1)
		close(done)
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("frame callback never ran")
	}
	assert.Equal(t, int32(1), fired.Load())

	cancel := s.AfterFunc(time.Hour, func() { fired.Add(1) })
	cancel()
	assert.Equal(t, int32(1), fired.Load())
}
