package ensemble

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestTableResolveDeliversPayload(t *testing.T) {
	table := NewRequestTable()
	pr := table.Register("corr-1", 0, nil)
	future := &ResponseFuture{pr: pr, correlationID: "corr-1"}

	env := NewEnvelope(NewPID("caller"), "pong")
	ok := table.Resolve("corr-1", env)
	assert.True(t, ok)

	payload, err := future.Wait()
	require.NoError(t, err)
	assert.Equal(t, "pong", payload)
}

func TestRequestTableTimeoutClosesFuture(t *testing.T) {
	table := NewRequestTable()
	timedOut := make(chan struct{})
	pr := table.Register("corr-2", 20*time.Millisecond, func() { close(timedOut) })
	future := &ResponseFuture{pr: pr, correlationID: "corr-2"}

	select {
	case <-timedOut:
	case <-time.After(time.Second):
		t.Fatal("onTimeout callback never fired")
	}

	_, err := future.Wait()
	var timeoutErr *RequestTimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
}

// TestRequestTableLateResolveAfterTimeoutIsRejected exercises the race
// between a timeout firing and a response arriving just after: once resolved
// one way, the other must be a no-op, never a double send on a closed channel.
func TestRequestTableLateResolveAfterTimeoutIsRejected(t *testing.T) {
	table := NewRequestTable()
	timedOut := make(chan struct{})
	table.Register("corr-3", 10*time.Millisecond, func() { close(timedOut) })

	select {
	case <-timedOut:
	case <-time.After(time.Second):
		t.Fatal("onTimeout callback never fired")
	}

	ok := table.Resolve("corr-3", NewEnvelope(nil, "too-late"))
	assert.False(t, ok, "resolving an already-timed-out correlation id must be rejected")
}

func TestRequestTableResolveUnknownCorrelationReturnsFalse(t *testing.T) {
	table := NewRequestTable()
	ok := table.Resolve("never-registered", NewEnvelope(nil, "x"))
	assert.False(t, ok)
}

func TestRequestTableDoubleResolveIsRejected(t *testing.T) {
	table := NewRequestTable()
	pr := table.Register("corr-4", 0, nil)
	future := &ResponseFuture{pr: pr, correlationID: "corr-4"}

	first := table.Resolve("corr-4", NewEnvelope(nil, "first"))
	assert.True(t, first)

	second := table.Resolve("corr-4", NewEnvelope(nil, "second"))
	assert.False(t, second, "correlation id was already removed from the table")

	payload, err := future.Wait()
	require.NoError(t, err)
	assert.Equal(t, "first", payload)
}
