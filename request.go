package ensemble

import (
	"sync"
	"sync/atomic"
	"time"
)

type pendingRequest struct {
	correlationID string
	resultCh      chan Envelope
	timer         *time.Timer
	resolved      atomic.Bool
}

// RequestTable tracks in-flight request/response correlations for a System.
type RequestTable struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest
}

func NewRequestTable() *RequestTable {
	return &RequestTable{pending: make(map[string]*pendingRequest)}
}

// Register starts tracking correlationID, scheduling onTimeout if timeout > 0.
func (t *RequestTable) Register(correlationID string, timeout time.Duration, onTimeout func()) *pendingRequest {
	pr := &pendingRequest{
		correlationID: correlationID,
		resultCh:      make(chan Envelope, 1),
	}
	t.mu.Lock()
	t.pending[correlationID] = pr
	t.mu.Unlock()

	if timeout > 0 {
		pr.timer = time.AfterFunc(timeout, func() {
			if pr.resolved.CompareAndSwap(false, true) {
				t.mu.Lock()
				delete(t.pending, correlationID)
				t.mu.Unlock()
				close(pr.resultCh)
				onTimeout()
			}
		})
	}
	return pr
}

// Resolve delivers env to the pending request matching its correlation id,
// if one is still outstanding. It returns false for an unknown or
// already-resolved (e.g. already timed out) correlation id — the response
// is simply late and is dropped from the table's perspective, though the
// caller (System) still delivers it through normal Receive.
func (t *RequestTable) Resolve(correlationID string, env *Envelope) bool {
	t.mu.Lock()
	pr, ok := t.pending[correlationID]
	if ok {
		delete(t.pending, correlationID)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	if !pr.resolved.CompareAndSwap(false, true) {
		return false
	}
	if pr.timer != nil {
		pr.timer.Stop()
	}
	pr.resultCh <- *env
	return true
}

// ResponseFuture is returned by System.Request; Wait blocks the calling
// goroutine until a response arrives or the request times out.
type ResponseFuture struct {
	pr            *pendingRequest
	correlationID string
}

// Wait blocks until a response is resolved or the request times out.
func (f *ResponseFuture) Wait() (interface{}, error) {
	env, ok := <-f.pr.resultCh
	if !ok {
		return nil, &RequestTimeoutError{CorrelationID: f.correlationID}
	}
	return env.Payload, nil
}
