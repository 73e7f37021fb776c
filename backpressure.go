package ensemble

import (
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/rs/zerolog"
)

// BackpressureObserver is notified of watermark crossings and drops. All
// methods may be called from arbitrary goroutines and must not block.
type BackpressureObserver interface {
	OnActivated(pid *PID)
	OnDeactivated(pid *PID)
	OnDropped(pid *PID, reason string, e *Envelope)
}

// NopBackpressureObserver implements BackpressureObserver with no-ops, for
// embedding by callers that only care about one or two hooks.
type NopBackpressureObserver struct{}

func (NopBackpressureObserver) OnActivated(*PID)                  {}
func (NopBackpressureObserver) OnDeactivated(*PID)                {}
func (NopBackpressureObserver) OnDropped(*PID, string, *Envelope) {}

type waiter struct {
	envelope *Envelope
	resultCh chan bool
}

// BackpressureController owns a single actor's user-message queue and
// enforces admission policy once that queue reaches its configured maximum.
// System messages never pass through a BackpressureController — they are
// posted straight onto the mailbox's system lane.
type BackpressureController struct {
	mu       sync.Mutex
	cfg      BackpressureConfig
	queue    *deque.Deque[*Envelope]
	active   map[string]*Envelope
	waiters  []*waiter
	raised   bool
	pid      *PID
	observer BackpressureObserver
	log      zerolog.Logger
}

// NewBackpressureController constructs a controller for the given actor pid.
// observer may be nil.
func NewBackpressureController(cfg BackpressureConfig, pid *PID, observer BackpressureObserver) *BackpressureController {
	if observer == nil {
		observer = NopBackpressureObserver{}
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = DefaultBackpressureConfig().MaxQueueSize
	}
	return &BackpressureController{
		cfg:      cfg,
		queue:    deque.New[*Envelope](),
		active:   make(map[string]*Envelope),
		pid:      pid,
		observer: observer,
		log:      componentLogger("backpressure").With().Str("pid", pid.String()).Logger(),
	}
}

// size must be called with mu held.
func (c *BackpressureController) size() int {
	return c.queue.Len() + len(c.active)
}

// Size returns the current total of queued and in-flight (active) envelopes.
func (c *BackpressureController) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size()
}

// Submit attempts to admit e according to the configured strategy. It
// returns (true, nil) on admission, (false, nil) if silently dropped, or
// (false, err) if the strategy requires surfacing a failure to the caller.
func (c *BackpressureController) Submit(e *Envelope) (bool, error) {
	c.mu.Lock()
	max := c.cfg.MaxQueueSize
	if c.size() < max {
		c.queue.PushBack(e)
		c.checkActivate()
		c.mu.Unlock()
		return true, nil
	}

	switch c.cfg.Strategy {
	case DropNew:
		c.mu.Unlock()
		c.emitDropped("new", e)
		return false, nil

	case DropOld:
		var dropped *Envelope
		if c.queue.Len() > 0 {
			dropped = c.queue.PopFront()
		}
		c.queue.PushBack(e)
		c.checkActivate()
		c.mu.Unlock()
		if dropped != nil {
			c.emitDropped("old", dropped)
		}
		return true, nil

	case Throw:
		c.mu.Unlock()
		return false, &QueueFullError{Size: max, Max: max}

	case Wait:
		w := &waiter{envelope: e, resultCh: make(chan bool, 1)}
		c.waiters = append(c.waiters, w)
		c.mu.Unlock()
		return c.awaitCapacity(w)

	default:
		c.mu.Unlock()
		return false, nil
	}
}

func (c *BackpressureController) awaitCapacity(w *waiter) (bool, error) {
	if c.cfg.WaitTimeout <= 0 {
		accepted := <-w.resultCh
		return accepted, nil
	}
	timer := time.NewTimer(c.cfg.WaitTimeout)
	defer timer.Stop()
	select {
	case accepted := <-w.resultCh:
		return accepted, nil
	case <-timer.C:
		c.mu.Lock()
		for i, ww := range c.waiters {
			if ww == w {
				c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
		select {
		case accepted := <-w.resultCh:
			return accepted, nil
		default:
		}
		c.emitDropped("wait_timeout", w.envelope)
		return false, &BackpressureTimeoutError{Waited: c.cfg.WaitTimeout}
	}
}

// Next pops the oldest queued envelope into the active set, for a
// dispatcher turn to hand to the actor's Receive.
func (c *BackpressureController) Next() (*Envelope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queue.Len() == 0 {
		return nil, false
	}
	e := c.queue.PopFront()
	c.active[e.ID] = e
	c.checkDeactivate()
	return e, true
}

// Complete marks an envelope as fully processed, freeing its active slot and
// waking the oldest WAIT-strategy waiter if capacity now allows it.
func (c *BackpressureController) Complete(id string) {
	c.mu.Lock()
	delete(c.active, id)
	if len(c.waiters) > 0 && c.size() < c.cfg.MaxQueueSize {
		w := c.waiters[0]
		c.waiters = c.waiters[1:]
		c.queue.PushBack(w.envelope)
		c.checkActivate()
		c.mu.Unlock()
		w.resultCh <- true
		return
	}
	c.mu.Unlock()
}

// Drain empties the queue (not the active set) without running admission
// policy, for use when an actor is stopping and its remaining mail must go
// to the dead-letter sink instead of being processed.
func (c *BackpressureController) Drain() []*Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Envelope, 0, c.queue.Len())
	for c.queue.Len() > 0 {
		out = append(out, c.queue.PopFront())
	}
	return out
}

// checkActivate/checkDeactivate must be called with mu held.
func (c *BackpressureController) checkActivate() {
	high := int(float64(c.cfg.MaxQueueSize) * c.cfg.HighWatermarkRatio)
	if !c.raised && c.size() >= high {
		c.raised = true
		c.log.Warn().Int("size", c.size()).Int("high_watermark", high).Msg("backpressure activated")
		backpressureActivatedTotal.WithLabelValues(c.pid.String()).Inc()
		c.observer.OnActivated(c.pid)
	}
}

func (c *BackpressureController) checkDeactivate() {
	low := int(float64(c.cfg.MaxQueueSize) * c.cfg.LowWatermarkRatio)
	if c.raised && c.size() <= low {
		c.raised = false
		c.log.Info().Int("size", c.size()).Int("low_watermark", low).Msg("backpressure deactivated")
		backpressureDeactivatedTotal.WithLabelValues(c.pid.String()).Inc()
		c.observer.OnDeactivated(c.pid)
	}
}

func (c *BackpressureController) emitDropped(reason string, e *Envelope) {
	c.log.Warn().Str("reason", reason).Str("envelope_id", e.ID).Msg("message dropped")
	messagesDroppedTotal.WithLabelValues(reason).Inc()
	c.observer.OnDropped(c.pid, reason, e)
}
