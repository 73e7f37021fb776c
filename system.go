package ensemble

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Transport is the seam a System delegates to whenever it needs to reach a
// PID whose Address is non-empty. The core runtime never implements one —
// remote delivery, discovery, and serialization are all out of scope for
// this package (see the transport package for a demonstration adapter).
type Transport interface {
	Send(target *PID, e *Envelope) error
	Spawn(props *Props) (*PID, error)
	Stop(pid *PID) error
}

// MessageHandler observes every envelope a System attempts to deliver,
// regardless of outcome. Registered via AddMessageHandler.
type MessageHandler func(e *Envelope)

// System is the actor registry, router of last resort, and lifecycle
// manager for every process it spawns. Construct one with NewSystem.
type System struct {
	instanceID string
	pidCounter atomic.Uint64

	mu        sync.RWMutex
	processes map[string]*process

	deadLetters *DeadLetterSink
	requests    *RequestTable
	pipeline    *Pipeline
	pipelineOn  atomic.Bool

	transport Transport

	handlersMu sync.RWMutex
	handlers   map[int]MessageHandler
	handlerSeq int

	dispatcher Dispatcher

	cfg SystemConfig
	log zerolog.Logger

	stopping atomic.Bool
}

// SystemOption configures a System at construction time.
type SystemOption func(*System)

func WithTransport(t Transport) SystemOption {
	return func(s *System) { s.transport = t }
}

func WithDispatcher(d Dispatcher) SystemOption {
	return func(s *System) { s.dispatcher = d }
}

// NewSystem builds a System. With no WithDispatcher option it starts a
// BasicDispatcher sized for a handful of concurrent actor turns.
func NewSystem(cfg SystemConfig, opts ...SystemOption) *System {
	s := &System{
		instanceID:  uuid.NewString()[:8],
		processes:   make(map[string]*process),
		deadLetters: NewDeadLetterSink(cfg.DeadLetterCapacity),
		requests:    NewRequestTable(),
		pipeline:    NewPipeline(),
		handlers:    make(map[int]MessageHandler),
		cfg:         cfg,
		log:         loggerForLevel(componentLogger("system"), cfg.LogLevel),
	}
	s.pipelineOn.Store(cfg.EnableMessagePipeline)
	for _, opt := range opts {
		opt(s)
	}
	if s.dispatcher == nil {
		s.dispatcher = NewBasicDispatcher(8, 1024)
	}
	return s
}

func (s *System) nextPID() *PID {
	id := s.pidCounter.Add(1)
	return &PID{ID: fmt.Sprintf("%s-%d", s.instanceID, id)}
}

func (s *System) lookup(pid *PID) *process {
	if pid == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processes[pid.ID]
}

func (s *System) removeProcess(pid *PID) {
	s.mu.Lock()
	delete(s.processes, pid.ID)
	s.mu.Unlock()
	s.pipeline.InvalidateTarget(pid)
}

// Spawn creates a top-level actor (no parent) from props.
func (s *System) Spawn(props *Props) (*PID, error) {
	return s.spawn(nil, props)
}

func (s *System) spawn(parent *PID, props *Props) (*PID, error) {
	if s.stopping.Load() {
		return nil, ErrSystemStopping
	}
	if props.Address != "" {
		if s.transport == nil {
			return nil, ErrNoTransportConfigured
		}
		return s.transport.Spawn(props)
	}

	pid := s.nextPID()
	proc := newProcess(s, pid, parent, props)

	s.mu.Lock()
	s.processes[pid.ID] = proc
	s.mu.Unlock()

	if err := proc.start(); err != nil {
		s.mu.Lock()
		delete(s.processes, pid.ID)
		s.mu.Unlock()
		return nil, &StartFailureError{PID: pid, Cause: err}
	}

	if parent != nil {
		if parentProc := s.lookup(parent); parentProc != nil {
			parentProc.addChild(pid)
		}
	}

	s.deliverSystem(pid, Started{})
	return pid, nil
}

// deliverSystem posts a built-in system message straight to pid's mailbox,
// bypassing the pipeline and dead-letter accounting that user sends go
// through: lifecycle messages must never be observed as dropped.
func (s *System) deliverSystem(pid *PID, payload interface{}) {
	proc := s.lookup(pid)
	if proc == nil {
		return
	}
	env := NewEnvelope(pid, payload)
	_ = proc.deliver(env)
}

// Send delivers payload to target on behalf of sender (sender may be nil
// for sends originating outside any actor). The returned error is non-nil
// when the target is not a registered local actor (ErrActorNotFound), when
// a remote target cannot be reached (ErrNoTransportConfigured or the
// Transport's error), when the target's mailbox is closed, or when the
// backpressure strategy in effect requires surfacing a failure
// synchronously (THROW, or a WAIT timeout).
func (s *System) Send(target *PID, payload interface{}, sender *PID) error {
	env := NewEnvelope(target, payload)
	env.Sender = sender
	return s.sendEnvelope(env)
}

func (s *System) sendEnvelope(env *Envelope) error {
	s.notifyHandlers(env)

	target := env.Receiver
	if !target.IsLocal() {
		if s.transport == nil {
			s.recordDeadLetter(env, "no transport configured for remote pid")
			return ErrNoTransportConfigured
		}
		if err := s.transport.Send(target, env); err != nil {
			s.recordDeadLetter(env, err.Error())
			return err
		}
		return nil
	}

	if s.pipelineOn.Load() {
		modified, ok := s.pipeline.ApplySend(env, target)
		if !ok {
			s.pipeline.NotifyDeadLetter(env)
			s.recordDeadLetter(env, "dropped by send middleware")
			return nil
		}
		env = modified
	}

	if env.Metadata.IsResponse && env.Metadata.CorrelationID != "" {
		s.requests.Resolve(env.Metadata.CorrelationID, env)
	}

	proc := s.lookup(target)
	if proc == nil {
		s.recordDeadLetter(env, "target not found")
		return ErrActorNotFound
	}
	return proc.deliver(env)
}

func (s *System) recordDeadLetter(env *Envelope, reason string) {
	s.deadLetters.Record(env, reason)
}

// Request sends payload to target tagged with a fresh correlation id and
// returns a ResponseFuture the caller can Wait on. A zero timeout waits
// forever.
func (s *System) Request(target *PID, payload interface{}, timeout time.Duration) *ResponseFuture {
	correlationID := uuid.NewString()
	env := NewEnvelope(target, payload)
	env.Metadata.CorrelationID = correlationID
	env.Metadata.IsRequest = true

	pr := s.requests.Register(correlationID, timeout, func() {
		s.log.Debug().Str("correlation_id", correlationID).Msg("request timed out")
	})
	_ = s.sendEnvelope(env)
	return &ResponseFuture{pr: pr, correlationID: correlationID}
}

// sendResponse is called by Context.Reply.
func (s *System) sendResponse(to, from *PID, correlationID string, payload interface{}) {
	env := NewEnvelope(to, payload)
	env.Sender = from
	env.Metadata.CorrelationID = correlationID
	env.Metadata.IsResponse = true
	_ = s.sendEnvelope(env)
}

// Broadcast invokes every registered MessageHandler with payload without
// delivering it to any actor's mailbox.
func (s *System) Broadcast(payload interface{}) {
	env := NewEnvelope(nil, payload)
	s.notifyHandlers(env)
}

func (s *System) notifyHandlers(env *Envelope) {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	for _, h := range s.handlers {
		h(env)
	}
}

// AddMessageHandler subscribes fn to every delivery attempt (observation
// only — it cannot transform or drop). Returns an id for RemoveMessageHandler.
func (s *System) AddMessageHandler(fn MessageHandler) int {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	id := s.handlerSeq
	s.handlerSeq++
	s.handlers[id] = fn
	return id
}

// RemoveMessageHandler unsubscribes a handler previously added with AddMessageHandler.
func (s *System) RemoveMessageHandler(id int) {
	s.handlersMu.Lock()
	delete(s.handlers, id)
	s.handlersMu.Unlock()
}

// AddMessageMiddleware appends m to the system's pipeline.
func (s *System) AddMessageMiddleware(m Middleware) {
	s.pipeline.Use(m)
}

func (s *System) EnableMessagePipeline()  { s.pipelineOn.Store(true) }
func (s *System) DisableMessagePipeline() { s.pipelineOn.Store(false) }

func (s *System) pipelineNotifyError(pid *PID, err error) {
	if s.pipelineOn.Load() {
		s.pipeline.NotifyError(pid, err)
	}
}

// SendBatch sends every (targets[i], payloads[i]) pair, preserving FIFO
// order within messages sharing a target, via the system's Pipeline.
func (s *System) SendBatch(targets []*PID, payloads []interface{}) error {
	return s.pipeline.sendBatch(s, targets, payloads)
}

func (s *System) watch(watcher, target *PID) {
	if proc := s.lookup(target); proc != nil {
		proc.addWatcher(watcher)
	}
}

func (s *System) unwatch(watcher, target *PID) {
	if proc := s.lookup(target); proc != nil {
		proc.removeWatcher(watcher)
	}
}

// Stop asks pid to stop: its children are stopped first (depth-first), then
// a Stopping system message is delivered to pid itself. Stop is idempotent.
func (s *System) Stop(pid *PID) error {
	proc := s.lookup(pid)
	if proc == nil {
		return ErrActorNotFound
	}
	for _, child := range proc.childrenSnapshot() {
		_ = s.Stop(child)
	}
	s.deliverSystem(pid, Stopping{})
	return nil
}

// Shutdown stops every top-level actor and waits up to timeout for the
// whole tree to unwind before forcibly clearing the registry and shutting
// down the dispatcher.
func (s *System) Shutdown(timeout time.Duration) error {
	if !s.stopping.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.RLock()
	roots := make([]*PID, 0)
	for _, p := range s.processes {
		if p.parent == nil {
			roots = append(roots, p.pid)
		}
	}
	s.mu.RUnlock()

	for _, pid := range roots {
		_ = s.Stop(pid)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s.mu.RLock()
		remaining := len(s.processes)
		s.mu.RUnlock()
		if remaining == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.mu.Lock()
	if len(s.processes) > 0 {
		s.processes = make(map[string]*process)
	}
	s.mu.Unlock()

	s.dispatcher.Shutdown()
	return nil
}

// DeadLetters exposes the system's dead-letter sink for inspection.
func (s *System) DeadLetters() *DeadLetterSink { return s.deadLetters }

// --- BackpressureObserver: every process's mailbox reports to its System.
// These methods do nothing; the BackpressureController itself logs and
// updates the metrics for activations, deactivations and drops.

func (s *System) OnActivated(pid *PID) {}
func (s *System) OnDeactivated(pid *PID) {}
func (s *System) OnDropped(pid *PID, reason string, e *Envelope) {}
