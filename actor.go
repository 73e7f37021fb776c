package ensemble

import "strings"

// Actor is the single method every actor implements: handle one message,
// using ctx to observe who sent it, reply, spawn children, or change
// behavior. Receive must never block on anything other than the
// documented suspension points (ctx.Ask, System.Request(...).Wait()).
type Actor interface {
	Receive(ctx Context)
}

// BehaviorActor is implemented by actors that use ctx.Become to switch
// between named message-handling behaviors. Behavior is looked up by name
// ("default" initially) for every message; a nil return falls back to Receive.
type BehaviorActor interface {
	Actor
	Behavior(name string) func(ctx Context)
}

// Lifecycle hooks an Actor may optionally implement.
type PreStarter interface {
	PreStart(ctx Context) error
}

type PostStopper interface {
	PostStop(ctx Context)
}

type PreRestarter interface {
	PreRestart(ctx Context, cause error)
}

type PostRestarter interface {
	PostRestart(ctx Context, cause error)
}

// Built-in system messages. These never pass through a mailbox's
// backpressure-governed user lane.
type Started struct{}

type Stopping struct{}

type Stopped struct{}

type Restarting struct {
	Cause error
}

// Terminated is delivered to every watcher of a PID once that actor has
// fully stopped (PostStop has run and its mailbox has been closed).
type Terminated struct {
	Who *PID
}

func isBuiltinSystemMessage(payload interface{}) bool {
	switch payload.(type) {
	case Started, Stopping, Stopped, Restarting, Terminated:
		return true
	default:
		return false
	}
}

// isSystemEnvelope decides whether an envelope belongs on the mailbox's
// system lane: either it carries one of the built-in lifecycle message
// types, or its metadata's type tag explicitly marks it as a system message
// ("error", or any tag with a "system" prefix) — the escape hatch user code
// uses to inject its own non-backpressured control messages.
func isSystemEnvelope(e *Envelope) bool {
	if isBuiltinSystemMessage(e.Payload) {
		return true
	}
	tag := e.Metadata.TypeTag
	return tag == "error" || strings.HasPrefix(tag, "system")
}
