package ensemble

// MiddlewareResult tells a Pipeline whether to keep carrying an envelope
// through the remaining middleware and on to its target, or to drop it.
type MiddlewareResult int

const (
	MiddlewareContinue MiddlewareResult = iota
	MiddlewareDrop
)

// Middleware observes and optionally transforms every envelope passing
// through a Pipeline, on both the send and receive side, plus out-of-band
// hooks for dead letters and handler errors.
type Middleware interface {
	OnSend(e *Envelope, target *PID) (*Envelope, MiddlewareResult)
	OnReceive(e *Envelope, target *PID) (*Envelope, MiddlewareResult)
	OnDeadLetter(e *Envelope)
	OnError(pid *PID, err error)
}

// BaseMiddleware implements Middleware with no-ops, so a concrete
// middleware can embed it and override only the hooks it needs.
type BaseMiddleware struct{}

func (BaseMiddleware) OnSend(e *Envelope, target *PID) (*Envelope, MiddlewareResult) {
	return e, MiddlewareContinue
}

func (BaseMiddleware) OnReceive(e *Envelope, target *PID) (*Envelope, MiddlewareResult) {
	return e, MiddlewareContinue
}

func (BaseMiddleware) OnDeadLetter(e *Envelope) {}
func (BaseMiddleware) OnError(pid *PID, err error) {}
