package ensemble

import (
	"sync"

	"github.com/gammazero/deque"
)

// TurnOutcome is returned by a mailbox turn's handler to tell RunTurn
// whether to keep draining the user lane or stop early (e.g. the handler
// decided the actor needs to restart mid-batch).
type TurnOutcome int

const (
	TurnContinue TurnOutcome = iota
	TurnAbort
)

// DefaultMailboxBatchSize bounds how many user messages a single turn
// processes before yielding the actor back to the dispatcher, so one noisy
// actor cannot starve the others sharing a dispatcher worker pool.
const DefaultMailboxBatchSize = 100

// Mailbox holds one actor's pending messages across two lanes: an unbounded
// system lane (never subject to backpressure — lifecycle and supervision
// messages must never block or drop) and a backpressure-governed user lane.
// Exactly one turn may run against a mailbox at a time.
type Mailbox struct {
	mu          sync.Mutex
	systemQueue *deque.Deque[*Envelope]
	controller  *BackpressureController
	turnRunning bool
	scheduleFn  func()
	closed      bool
}

// NewMailbox constructs a mailbox for pid with the given lane configuration.
func NewMailbox(pid *PID, bpCfg BackpressureConfig, observer BackpressureObserver) *Mailbox {
	return &Mailbox{
		systemQueue: deque.New[*Envelope](),
		controller:  NewBackpressureController(bpCfg, pid, observer),
	}
}

// SetScheduleFunc registers the callback invoked whenever a message arrives
// on an idle mailbox (no turn currently running). The dispatcher wires this
// to its own scheduling entry point.
func (m *Mailbox) SetScheduleFunc(fn func()) {
	m.mu.Lock()
	m.scheduleFn = fn
	m.mu.Unlock()
}

// PostSystem enqueues a system message. It never blocks and never drops.
func (m *Mailbox) PostSystem(e *Envelope) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.systemQueue.PushBack(e)
	m.mu.Unlock()
	m.signalSchedule()
}

// PostUser enqueues a user message, subject to the mailbox's backpressure
// policy. The returned error, when non-nil, is the THROW/WAIT-timeout
// failure that must be surfaced synchronously to the sender.
func (m *Mailbox) PostUser(e *Envelope) (bool, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return false, ErrMailboxClosed
	}
	accepted, err := m.controller.Submit(e)
	if accepted {
		m.signalSchedule()
	}
	return accepted, err
}

func (m *Mailbox) signalSchedule() {
	m.mu.Lock()
	fn := m.scheduleFn
	running := m.turnRunning
	m.mu.Unlock()
	if fn != nil && !running {
		fn()
	}
}

// Size is the total of queued system messages, queued user messages, and
// in-flight (active) user messages.
func (m *Mailbox) Size() int {
	m.mu.Lock()
	n := m.systemQueue.Len()
	m.mu.Unlock()
	return n + m.controller.Size()
}

// IsEmpty reports whether the mailbox currently holds no work at all.
func (m *Mailbox) IsEmpty() bool {
	return m.Size() == 0
}

func (m *Mailbox) tryBeginTurn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.turnRunning {
		return false
	}
	m.turnRunning = true
	return true
}

func (m *Mailbox) endTurn() {
	m.mu.Lock()
	m.turnRunning = false
	m.mu.Unlock()
}

func (m *Mailbox) dequeueSystem() (*Envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.systemQueue.Len() == 0 {
		return nil, false
	}
	return m.systemQueue.PopFront(), true
}

// RunTurn drains the entire system lane, then up to budget user messages,
// invoking handle for each. It enforces the single-turn-at-a-time invariant:
// if a turn is already running it returns 0 immediately rather than racing.
// handle returning TurnAbort stops the user-lane loop early, leaving any
// remaining queued user messages for the next turn.
func (m *Mailbox) RunTurn(budget int, handle func(e *Envelope, isSystem bool) TurnOutcome) int {
	if !m.tryBeginTurn() {
		return 0
	}
	defer m.endTurn()

	processed := 0
	for {
		e, ok := m.dequeueSystem()
		if !ok {
			break
		}
		handle(e, true)
		processed++
	}

	for i := 0; i < budget; i++ {
		e, ok := m.controller.Next()
		if !ok {
			break
		}
		outcome := handle(e, false)
		m.controller.Complete(e.ID)
		processed++
		if outcome == TurnAbort {
			break
		}
	}
	return processed
}

// Drain empties the queued (not active) user lane without processing it,
// returning what was dropped so the caller can route it to dead letters.
func (m *Mailbox) Drain() []*Envelope {
	return m.controller.Drain()
}

// Close marks the mailbox closed; further PostUser calls fail and
// PostSystem calls are silently ignored.
func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}
