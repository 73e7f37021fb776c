package ensemble

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// process is the runtime state behind one spawned actor: its mailbox,
// current actor instance, behavior table position, children, and watchers.
// It is never exposed directly — actors interact with it only through a
// Context.
type process struct {
	system  *System
	pid     *PID
	parent  *PID
	props   *Props
	actor   Actor
	mailbox *Mailbox

	currentBehavior string

	restartStats *RestartStatistics

	childrenMu sync.RWMutex
	children   map[string]*PID

	watchersMu sync.RWMutex
	watchers   map[string]*PID

	stopped atomic.Bool
	done    chan struct{}

	log zerolog.Logger
}

func newProcess(system *System, pid *PID, parent *PID, props *Props) *process {
	return &process{
		system:          system,
		pid:             pid,
		parent:          parent,
		props:           props,
		mailbox:         NewMailbox(pid, props.BackpressureConfig, system),
		currentBehavior: "default",
		restartStats:    NewRestartStatistics(),
		children:        make(map[string]*PID),
		watchers:        make(map[string]*PID),
		done:            make(chan struct{}),
		log:             actorLogger(pid, "actor"),
	}
}

func (p *process) start() error {
	p.actor = p.props.Producer()
	if p.actor == nil {
		return fmt.Errorf("producer returned a nil actor")
	}
	p.log = actorLogger(p.pid, fmt.Sprintf("%T", p.actor))
	p.mailbox.SetScheduleFunc(p.scheduleTurn)
	if ps, ok := p.actor.(PreStarter); ok {
		ctx := p.newContext(nil, Started{}, "")
		if err := ps.PreStart(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *process) newContext(sender *PID, message interface{}, requestID string) *actorContext {
	return &actorContext{
		system:    p.system,
		self:      p.pid,
		sender:    sender,
		message:   message,
		requestID: requestID,
		proc:      p,
	}
}

// deliver routes an already-built envelope onto the correct lane.
func (p *process) deliver(env *Envelope) error {
	if isSystemEnvelope(env) {
		p.mailbox.PostSystem(env)
		return nil
	}
	accepted, err := p.mailbox.PostUser(env)
	if !accepted {
		reason := "backpressure"
		if err != nil {
			reason = err.Error()
		}
		p.system.recordDeadLetter(env, reason)
	}
	return err
}

func (p *process) scheduleTurn() {
	if ld, ok := p.system.dispatcher.(*LayeredDispatcher); ok {
		meta := Metadata{Priority: p.props.Priority}
		ld.ScheduleEnvelope(meta, p.runTurn)
		return
	}
	if ad, ok := p.system.dispatcher.(*AdaptiveDispatcher); ok {
		meta := Metadata{Priority: p.props.Priority}
		ad.ScheduleEnvelope(meta, p.runTurn)
		return
	}
	p.system.dispatcher.Schedule(p.runTurn)
}

func (p *process) runTurn() {
	processed := p.mailbox.RunTurn(DefaultMailboxBatchSize, p.handle)
	if processed > 0 && !p.mailbox.IsEmpty() {
		p.scheduleTurn()
	}
}

func (p *process) handle(env *Envelope, isSystem bool) (outcome TurnOutcome) {
	defer func() {
		if r := recover(); r != nil {
			err := &HandlerError{PID: p.pid, Cause: fmt.Errorf("panic: %v\n%s", r, debug.Stack())}
			outcome = p.onFailure(err)
		}
	}()

	switch env.Payload.(type) {
	case Stopping:
		p.handleStopping()
		return TurnContinue
	}

	if !isSystem && p.system.pipelineOn.Load() {
		modified, ok := p.system.pipeline.ApplyReceive(env, p.pid)
		if !ok {
			p.system.pipeline.NotifyDeadLetter(env)
			p.system.recordDeadLetter(env, "dropped by receive middleware")
			return TurnContinue
		}
		env = modified
	}

	messagesDispatchedTotal.WithLabelValues(fmt.Sprintf("%T", p.actor)).Inc()

	requestID := ""
	if env.Metadata.IsRequest {
		requestID = env.Metadata.CorrelationID
	}
	ctx := p.newContext(env.Sender, env.Payload, requestID)
	p.invoke(ctx)
	if ctx.pendingBecome != "" {
		p.currentBehavior = ctx.pendingBecome
	}
	return TurnContinue
}

func (p *process) invoke(ctx *actorContext) {
	if ba, ok := p.actor.(BehaviorActor); ok {
		name := p.currentBehavior
		if name == "" {
			name = "default"
		}
		if fn := ba.Behavior(name); fn != nil {
			fn(ctx)
			return
		}
	}
	p.actor.Receive(ctx)
}

func (p *process) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("panic during actor teardown")
		}
	}()
	fn()
}

func (p *process) onFailure(err error) TurnOutcome {
	p.log.Error().Err(err).Msg("actor handler failed")
	p.system.pipelineNotifyError(p.pid, err)

	var directive Directive
	if p.parent == nil {
		strategy := p.props.SupervisorStrategy
		if strategy == nil {
			strategy = DefaultRootStrategy()
		}
		directive = strategy.Decide(p.pid, err, p.restartStats)
		p.applyDirective(directive, err)
	} else if parentProc := p.system.lookup(p.parent); parentProc == nil {
		directive = Restart
		p.applyDirective(directive, err)
	} else {
		directive = parentProc.onChildFailure(p.pid, err)
	}

	if directive == Resume {
		return TurnContinue
	}
	return TurnAbort
}

// onChildFailure decides and applies a directive for childPID's failure,
// returning the directive so the child's own turn loop knows whether Resume
// left it processing. Usually that directive was applied to childPID itself;
// when the strategy escalates and a grandparent exists, it is the directive
// the grandparent applied to this process, and none is applied to childPID.
func (p *process) onChildFailure(childPID *PID, cause error) Directive {
	strategy := p.props.SupervisorStrategy
	if strategy == nil {
		strategy = DefaultRootStrategy()
	}
	childProc := p.system.lookup(childPID)
	if childProc == nil {
		return Stop
	}
	directive := strategy.Decide(childPID, cause, childProc.restartStats)
	if directive == Escalate {
		if p.parent != nil {
			if gp := p.system.lookup(p.parent); gp != nil {
				return gp.onChildFailure(p.pid, cause)
			}
		}
		childProc.applyDirective(Restart, cause)
		return Restart
	}

	if _, allForOne := strategy.(*AllForOneStrategy); allForOne && directive == Restart {
		for _, sibling := range p.childrenSnapshot() {
			if sibling == childPID {
				continue
			}
			if siblingProc := p.system.lookup(sibling); siblingProc != nil {
				siblingProc.applyDirective(Restart, cause)
			}
		}
	}
	childProc.applyDirective(directive, cause)
	return directive
}

func (p *process) applyDirective(d Directive, cause error) {
	switch d {
	case Resume:
		p.log.Info().Msg("resuming actor after failure")
	case Restart:
		p.restart(cause)
	case Stop:
		_ = p.system.Stop(p.pid)
	case Escalate:
		p.restart(cause)
	}
}

func (p *process) restart(cause error) {
	actorRestartsTotal.WithLabelValues(p.pid.String()).Inc()
	if pr, ok := p.actor.(PreRestarter); ok {
		p.safeCall(func() {
			ctx := p.newContext(nil, Restarting{Cause: cause}, "")
			pr.PreRestart(ctx, cause)
		})
	}
	p.currentBehavior = "default"
	newActor := p.props.Producer()
	if newActor == nil {
		p.log.Error().Msg("restart failed: producer returned nil actor")
		_ = p.system.Stop(p.pid)
		return
	}
	p.actor = newActor
	if por, ok := p.actor.(PostRestarter); ok {
		p.safeCall(func() {
			ctx := p.newContext(nil, Restarting{Cause: cause}, "")
			por.PostRestart(ctx, cause)
		})
	}
}

func (p *process) handleStopping() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	if ps, ok := p.actor.(PostStopper); ok {
		p.safeCall(func() {
			ctx := p.newContext(nil, Stopping{}, "")
			ps.PostStop(ctx)
		})
	}
	p.safeCall(func() {
		ctx := p.newContext(nil, Stopped{}, "")
		p.invoke(ctx)
	})

	for _, env := range p.mailbox.Drain() {
		p.system.recordDeadLetter(env, "actor stopped")
	}
	p.mailbox.Close()
	p.system.removeProcess(p.pid)
	p.notifyWatchers()
	close(p.done)
}

func (p *process) addChild(pid *PID) {
	p.childrenMu.Lock()
	p.children[pid.ID] = pid
	p.childrenMu.Unlock()
}

func (p *process) removeChild(pid *PID) {
	p.childrenMu.Lock()
	delete(p.children, pid.ID)
	p.childrenMu.Unlock()
}

func (p *process) childrenSnapshot() []*PID {
	p.childrenMu.RLock()
	defer p.childrenMu.RUnlock()
	out := make([]*PID, 0, len(p.children))
	for _, c := range p.children {
		out = append(out, c)
	}
	return out
}

func (p *process) addWatcher(pid *PID) {
	p.watchersMu.Lock()
	p.watchers[pid.ID] = pid
	p.watchersMu.Unlock()
}

func (p *process) removeWatcher(pid *PID) {
	p.watchersMu.Lock()
	delete(p.watchers, pid.ID)
	p.watchersMu.Unlock()
}

func (p *process) notifyWatchers() {
	p.watchersMu.RLock()
	watchers := make([]*PID, 0, len(p.watchers))
	for _, w := range p.watchers {
		watchers = append(watchers, w)
	}
	p.watchersMu.RUnlock()
	for _, w := range watchers {
		p.system.deliverSystem(w, Terminated{Who: p.pid})
	}
	if p.parent != nil {
		if parentProc := p.system.lookup(p.parent); parentProc != nil {
			parentProc.removeChild(p.pid)
		}
	}
}
