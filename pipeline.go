package ensemble

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pipeline chains Middleware and keeps a cache of resolved PID targets keyed
// by (id, address), filled by ResolveTarget and cleared per actor by
// InvalidateTarget when it stops. System's send path looks targets up in its
// own registry and does not consult this cache.
type Pipeline struct {
	mu         sync.RWMutex
	middleware []Middleware

	cacheMu sync.RWMutex
	targets map[string]*PID

	smallBatchThreshold  int
	maxConcurrentBatches int
}

// PipelineOption configures a Pipeline at construction.
type PipelineOption func(*Pipeline)

func WithSmallBatchThreshold(n int) PipelineOption {
	return func(p *Pipeline) { p.smallBatchThreshold = n }
}

func WithMaxConcurrentBatches(n int) PipelineOption {
	return func(p *Pipeline) { p.maxConcurrentBatches = n }
}

// NewPipeline builds an empty Pipeline.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		targets:              make(map[string]*PID),
		smallBatchThreshold:  8,
		maxConcurrentBatches: 16,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Use appends m to the end of the middleware chain.
func (p *Pipeline) Use(m Middleware) {
	p.mu.Lock()
	p.middleware = append(p.middleware, m)
	p.mu.Unlock()
}

func (p *Pipeline) snapshot() []Middleware {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Middleware, len(p.middleware))
	copy(out, p.middleware)
	return out
}

// ApplySend runs the send-side hook of every middleware in order. Returning
// false means some middleware dropped the envelope.
func (p *Pipeline) ApplySend(e *Envelope, target *PID) (*Envelope, bool) {
	cur := e
	for _, m := range p.snapshot() {
		var result MiddlewareResult
		cur, result = m.OnSend(cur, target)
		if result == MiddlewareDrop {
			return nil, false
		}
	}
	return cur, true
}

// ApplyReceive runs the receive-side hook of every middleware in order.
func (p *Pipeline) ApplyReceive(e *Envelope, target *PID) (*Envelope, bool) {
	cur := e
	for _, m := range p.snapshot() {
		var result MiddlewareResult
		cur, result = m.OnReceive(cur, target)
		if result == MiddlewareDrop {
			return nil, false
		}
	}
	return cur, true
}

// NotifyDeadLetter fans e out to every middleware's OnDeadLetter hook.
func (p *Pipeline) NotifyDeadLetter(e *Envelope) {
	for _, m := range p.snapshot() {
		m.OnDeadLetter(e)
	}
}

// NotifyError fans a handler error out to every middleware's OnError hook.
func (p *Pipeline) NotifyError(pid *PID, err error) {
	for _, m := range p.snapshot() {
		m.OnError(pid, err)
	}
}

func targetKey(id, address string) string { return id + "@" + address }

// ResolveTarget returns a cached *PID for (id, address), building and
// caching one on first use.
func (p *Pipeline) ResolveTarget(id, address string) *PID {
	key := targetKey(id, address)
	p.cacheMu.RLock()
	pid, ok := p.targets[key]
	p.cacheMu.RUnlock()
	if ok {
		return pid
	}
	pid = &PID{ID: id, Address: address}
	p.cacheMu.Lock()
	p.targets[key] = pid
	p.cacheMu.Unlock()
	return pid
}

// InvalidateTarget drops pid from the resolution cache, e.g. after it stops.
func (p *Pipeline) InvalidateTarget(pid *PID) {
	p.cacheMu.Lock()
	delete(p.targets, targetKey(pid.ID, pid.Address))
	p.cacheMu.Unlock()
}

// sendBatch groups (target, payload) pairs by target so that messages to
// the same actor are sent in their original order on a single goroutine,
// while different targets' groups run concurrently, bounded by
// maxConcurrentBatches. Below smallBatchThreshold items it just sends
// sequentially — not worth spinning up goroutines for a handful of sends.
func (p *Pipeline) sendBatch(system *System, targets []*PID, payloads []interface{}) error {
	if len(targets) != len(payloads) {
		return fmt.Errorf("ensemble: targets/payloads length mismatch (%d vs %d)", len(targets), len(payloads))
	}
	if len(targets) < p.smallBatchThreshold {
		for i := range targets {
			_ = system.Send(targets[i], payloads[i], nil)
		}
		return nil
	}

	groups := make(map[string][]int)
	order := make([]string, 0)
	for i, t := range targets {
		key := t.String()
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	sem := semaphore.NewWeighted(int64(p.maxConcurrentBatches))
	g, ctx := errgroup.WithContext(context.Background())
	for _, key := range order {
		idxs := groups[key]
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer sem.Release(1)
			for _, i := range idxs {
				_ = system.Send(targets[i], payloads[i], nil)
			}
			return nil
		})
	}
	return g.Wait()
}
