package ensemble

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnvelope(pid *PID, payload interface{}) *Envelope {
	return NewEnvelope(pid, payload)
}

// TestBackpressureDropOld exercises the exact drop-old scenario: with
// MaxQueueSize=3, submitting a fourth message drops the oldest queued one,
// and subsequent Next calls return the surviving messages in FIFO order.
func TestBackpressureDropOld(t *testing.T) {
	pid := NewPID("actor-1")
	cfg := BackpressureConfig{MaxQueueSize: 3, HighWatermarkRatio: 0.8, LowWatermarkRatio: 0.5, Strategy: DropOld}
	ctrl := NewBackpressureController(cfg, pid, nil)

	a := newTestEnvelope(pid, "A")
	b := newTestEnvelope(pid, "B")
	c := newTestEnvelope(pid, "C")
	d := newTestEnvelope(pid, "D")

	accepted, err := ctrl.Submit(a)
	require.NoError(t, err)
	assert.True(t, accepted)
	accepted, err = ctrl.Submit(b)
	require.NoError(t, err)
	assert.True(t, accepted)
	accepted, err = ctrl.Submit(c)
	require.NoError(t, err)
	assert.True(t, accepted)

	accepted, err = ctrl.Submit(d)
	require.NoError(t, err)
	assert.True(t, accepted, "D should be accepted by displacing the oldest entry")

	var got []interface{}
	for {
		e, ok := ctrl.Next()
		if !ok {
			break
		}
		got = append(got, e.Payload)
		ctrl.Complete(e.ID)
	}
	assert.Equal(t, []interface{}{"B", "C", "D"}, got)
}

func TestBackpressureDropNew(t *testing.T) {
	pid := NewPID("actor-1")
	cfg := BackpressureConfig{MaxQueueSize: 2, HighWatermarkRatio: 0.8, LowWatermarkRatio: 0.5, Strategy: DropNew}
	ctrl := NewBackpressureController(cfg, pid, nil)

	ok1, _ := ctrl.Submit(newTestEnvelope(pid, 1))
	ok2, _ := ctrl.Submit(newTestEnvelope(pid, 2))
	ok3, _ := ctrl.Submit(newTestEnvelope(pid, 3))

	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.False(t, ok3, "third submission should be dropped under DropNew at capacity")
	assert.Equal(t, 2, ctrl.Size())
}

func TestBackpressureThrow(t *testing.T) {
	pid := NewPID("actor-1")
	cfg := BackpressureConfig{MaxQueueSize: 1, HighWatermarkRatio: 0.8, LowWatermarkRatio: 0.5, Strategy: Throw}
	ctrl := NewBackpressureController(cfg, pid, nil)

	ok, err := ctrl.Submit(newTestEnvelope(pid, 1))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = ctrl.Submit(newTestEnvelope(pid, 2))
	assert.False(t, ok)
	var qfe *QueueFullError
	assert.ErrorAs(t, err, &qfe)
}

func TestBackpressureWaitUnblocksOnCompletion(t *testing.T) {
	pid := NewPID("actor-1")
	cfg := BackpressureConfig{MaxQueueSize: 1, HighWatermarkRatio: 0.8, LowWatermarkRatio: 0.5, Strategy: Wait}
	ctrl := NewBackpressureController(cfg, pid, nil)

	first := newTestEnvelope(pid, "first")
	ok, err := ctrl.Submit(first)
	require.NoError(t, err)
	require.True(t, ok)

	second := newTestEnvelope(pid, "second")
	done := make(chan bool, 1)
	go func() {
		accepted, _ := ctrl.Submit(second)
		done <- accepted
	}()

	// Give the waiter goroutine time to register before freeing capacity.
	time.Sleep(20 * time.Millisecond)

	e, ok := ctrl.Next()
	require.True(t, ok)
	assert.Equal(t, "first", e.Payload)
	ctrl.Complete(e.ID)

	select {
	case accepted := <-done:
		assert.True(t, accepted)
	case <-time.After(time.Second):
		t.Fatal("waiter was never unblocked")
	}
}

func TestBackpressureWaitTimeout(t *testing.T) {
	pid := NewPID("actor-1")
	cfg := BackpressureConfig{
		MaxQueueSize: 1, HighWatermarkRatio: 0.8, LowWatermarkRatio: 0.5,
		Strategy: Wait, WaitTimeout: 30 * time.Millisecond,
	}
	ctrl := NewBackpressureController(cfg, pid, nil)

	_, _ = ctrl.Submit(newTestEnvelope(pid, "first"))
	ok, err := ctrl.Submit(newTestEnvelope(pid, "second"))
	assert.False(t, ok)
	var timeoutErr *BackpressureTimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
}

func TestBackpressureHysteresis(t *testing.T) {
	pid := NewPID("actor-1")
	cfg := BackpressureConfig{MaxQueueSize: 10, HighWatermarkRatio: 0.8, LowWatermarkRatio: 0.3, Strategy: DropOld}
	var activated, deactivated int
	observer := &countingObserver{onActivated: func() { activated++ }, onDeactivated: func() { deactivated++ }}
	ctrl := NewBackpressureController(cfg, pid, observer)

	for i := 0; i < 8; i++ {
		_, _ = ctrl.Submit(newTestEnvelope(pid, i))
	}
	assert.Equal(t, 1, activated)

	for i := 0; i < 6; i++ {
		e, ok := ctrl.Next()
		require.True(t, ok)
		ctrl.Complete(e.ID)
	}
	assert.Equal(t, 1, deactivated)
}

type countingObserver struct {
	onActivated   func()
	onDeactivated func()
}

func (c *countingObserver) OnActivated(*PID)   { c.onActivated() }
func (c *countingObserver) OnDeactivated(*PID) { c.onDeactivated() }
func (c *countingObserver) OnDropped(*PID, string, *Envelope) {}
