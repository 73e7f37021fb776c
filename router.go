package ensemble

import "sync"

// RouteStrategy picks which routee(s) should handle an envelope. Route may
// return more than one PID (broadcast) or none (no routees configured).
// OnRouteesChanged is called with a fresh snapshot whenever membership
// changes, under the Router's write lock, so implementations may rebuild
// any membership-derived state (a hash ring, a weighted cycle) there.
type RouteStrategy interface {
	Route(e *Envelope, routees []*PID) []*PID
	OnRouteesChanged(routees []*PID)
}

// Router fans a stream of envelopes out across a mutable set of routee
// PIDs according to a pluggable RouteStrategy.
type Router struct {
	mu       sync.RWMutex
	routees  []*PID
	strategy RouteStrategy
}

// NewRouter builds a Router for the given strategy kind and initial config.
func NewRouter(cfg RouterConfig) *Router {
	var strategy RouteStrategy
	switch cfg.Strategy {
	case StrategyRandom:
		strategy = NewRandomStrategy()
	case StrategyBroadcast:
		strategy = &BroadcastStrategy{}
	case StrategyConsistentHash:
		strategy = NewConsistentHashStrategy(cfg.VirtualNodes, cfg.HashKeyFunc)
	case StrategyWeightedRoundRobin:
		strategy = NewWeightedRoundRobinStrategy(cfg.Weights)
	default:
		strategy = NewRoundRobinStrategy()
	}
	r := &Router{strategy: strategy}
	for _, pid := range cfg.Routees {
		r.routees = append(r.routees, pid)
	}
	strategy.OnRouteesChanged(r.snapshotLocked())
	return r
}

func (r *Router) snapshotLocked() []*PID {
	out := make([]*PID, len(r.routees))
	copy(out, r.routees)
	return out
}

// AddRoutee adds pid to the routee set. It is an error to add a PID already present.
func (r *Router) AddRoutee(pid *PID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.routees {
		if existing.Equal(pid) {
			return ErrDuplicateRoutee
		}
	}
	r.routees = append(r.routees, pid)
	r.strategy.OnRouteesChanged(r.snapshotLocked())
	return nil
}

// RemoveRoutee removes pid from the routee set, if present.
func (r *Router) RemoveRoutee(pid *PID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make([]*PID, 0, len(r.routees))
	for _, existing := range r.routees {
		if !existing.Equal(pid) {
			next = append(next, existing)
		}
	}
	r.routees = next
	r.strategy.OnRouteesChanged(r.snapshotLocked())
}

// GetRoutees returns a snapshot of the current routee set.
func (r *Router) GetRoutees() []*PID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Route selects the routee(s) envelope e should be delivered to.
func (r *Router) Route(e *Envelope) []*PID {
	r.mu.RLock()
	routees := r.snapshotLocked()
	r.mu.RUnlock()
	return r.strategy.Route(e, routees)
}

// Send routes an envelope built around payload and forwards payload to every
// selected routee via system.
func (r *Router) Send(system *System, payload interface{}, sender *PID) {
	env := NewEnvelope(nil, payload)
	env.Sender = sender
	targets := r.strategy.Route(env, r.GetRoutees())
	for _, t := range targets {
		_ = system.Send(t, payload, sender)
	}
}
