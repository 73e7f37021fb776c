package ensemble

import (
	"sync"
	"time"

	"github.com/gammazero/deque"
)

// DeadLetter records one envelope that could not be, or was no longer
// meant to be, delivered.
type DeadLetter struct {
	Envelope  *Envelope
	Reason    string
	Timestamp time.Time
}

// DeadLetterObserver is notified synchronously whenever a dead letter is
// recorded. Implementations must not block.
type DeadLetterObserver func(DeadLetter)

// DeadLetterSink keeps a bounded log of the most recent undeliverable
// envelopes (the oldest entry is evicted first once capacity is reached)
// plus a running total counter that is never truncated.
type DeadLetterSink struct {
	mu       sync.Mutex
	buffer   *deque.Deque[DeadLetter]
	capacity int
	observer DeadLetterObserver
}

// NewDeadLetterSink builds a sink retaining at most capacity entries.
func NewDeadLetterSink(capacity int) *DeadLetterSink {
	if capacity <= 0 {
		capacity = 1000
	}
	return &DeadLetterSink{
		buffer:   deque.New[DeadLetter](),
		capacity: capacity,
	}
}

// SetObserver installs a callback invoked on every Record.
func (s *DeadLetterSink) SetObserver(fn DeadLetterObserver) {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
}

// Record logs e as undeliverable for the given reason.
func (s *DeadLetterSink) Record(e *Envelope, reason string) {
	dl := DeadLetter{Envelope: e, Reason: reason, Timestamp: time.Now()}
	s.mu.Lock()
	if s.buffer.Len() >= s.capacity && s.buffer.Len() > 0 {
		s.buffer.PopFront()
	}
	s.buffer.PushBack(dl)
	observer := s.observer
	s.mu.Unlock()

	deadLettersTotal.Inc()
	componentLogger("deadletter").Warn().
		Str("reason", reason).
		Str("envelope_id", e.ID).
		Str("receiver", e.Receiver.String()).
		Msg("dead letter recorded")
	if observer != nil {
		observer(dl)
	}
}

// Snapshot returns a copy of the currently retained dead letters, oldest first.
func (s *DeadLetterSink) Snapshot() []DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeadLetter, s.buffer.Len())
	for i := 0; i < s.buffer.Len(); i++ {
		out[i] = s.buffer.At(i)
	}
	return out
}

// Len reports how many dead letters are currently retained (bounded by capacity).
func (s *DeadLetterSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Len()
}
