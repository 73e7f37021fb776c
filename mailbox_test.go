package ensemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailboxSystemLaneDrainsBeforeUserLane(t *testing.T) {
	pid := NewPID("a")
	mb := NewMailbox(pid, BackpressureConfig{MaxQueueSize: 10, HighWatermarkRatio: 0.8, LowWatermarkRatio: 0.5, Strategy: DropOld}, nil)

	mb.PostUser(NewEnvelope(pid, "user-1"))
	mb.PostSystem(NewEnvelope(pid, Started{}))

	var order []string
	mb.RunTurn(10, func(e *Envelope, isSystem bool) TurnOutcome {
		if isSystem {
			order = append(order, "system")
		} else {
			order = append(order, "user")
		}
		return TurnContinue
	})

	require.Len(t, order, 2)
	assert.Equal(t, "system", order[0])
	assert.Equal(t, "user", order[1])
}

func TestMailboxSingleTurnAtATime(t *testing.T) {
	pid := NewPID("a")
	mb := NewMailbox(pid, BackpressureConfig{MaxQueueSize: 10, HighWatermarkRatio: 0.8, LowWatermarkRatio: 0.5, Strategy: DropOld}, nil)
	mb.PostUser(NewEnvelope(pid, "1"))

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		mb.RunTurn(10, func(e *Envelope, isSystem bool) TurnOutcome {
			close(started)
			<-release
			return TurnContinue
		})
	}()

	<-started
	// A concurrent RunTurn attempt must be rejected while the first is in flight.
	processed := mb.RunTurn(10, func(e *Envelope, isSystem bool) TurnOutcome { return TurnContinue })
	assert.Equal(t, 0, processed)
	close(release)
}

func TestMailboxBudgetLeavesRemainderForNextTurn(t *testing.T) {
	pid := NewPID("a")
	mb := NewMailbox(pid, BackpressureConfig{MaxQueueSize: 10, HighWatermarkRatio: 0.8, LowWatermarkRatio: 0.5, Strategy: DropOld}, nil)
	for i := 0; i < 5; i++ {
		mb.PostUser(NewEnvelope(pid, i))
	}

	count := 0
	processed := mb.RunTurn(3, func(e *Envelope, isSystem bool) TurnOutcome {
		count++
		return TurnContinue
	})
	assert.Equal(t, 3, processed)
	assert.False(t, mb.IsEmpty())

	processed = mb.RunTurn(3, func(e *Envelope, isSystem bool) TurnOutcome {
		count++
		return TurnContinue
	})
	assert.Equal(t, 2, processed)
	assert.True(t, mb.IsEmpty())
	assert.Equal(t, 5, count)
}

func TestMailboxAbortLeavesRemainingMessagesQueued(t *testing.T) {
	pid := NewPID("a")
	mb := NewMailbox(pid, BackpressureConfig{MaxQueueSize: 10, HighWatermarkRatio: 0.8, LowWatermarkRatio: 0.5, Strategy: DropOld}, nil)
	mb.PostUser(NewEnvelope(pid, "1"))
	mb.PostUser(NewEnvelope(pid, "2"))

	processed := mb.RunTurn(10, func(e *Envelope, isSystem bool) TurnOutcome {
		return TurnAbort
	})
	assert.Equal(t, 1, processed)
	assert.False(t, mb.IsEmpty())
}
