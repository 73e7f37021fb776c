package ensemble

import "time"

// Context is the only way an actor's Receive observes or acts on the world:
// who it is, who sent the current message, what the message is, and the
// small set of operations (send, spawn, stop, watch, reply) it may perform.
type Context interface {
	System() *System
	Self() *PID
	Sender() *PID
	Message() interface{}
	Parent() *PID
	Children() []*PID

	Send(target *PID, payload interface{})
	Spawn(props *Props) *PID
	Stop(pid *PID)
	Become(behavior string)

	Watch(pid *PID)
	Unwatch(pid *PID)

	// RequestID is the correlation id of the current message if it was sent
	// via Request/Ask, or "" otherwise.
	RequestID() string
	// Reply sends payload back to Sender() carrying RequestID() as its
	// correlation id, resolving the original requester's ResponseFuture.
	// It is a no-op if the current message was not a request.
	Reply(payload interface{})
	// Ask sends payload to target and blocks the current turn until a
	// response arrives or timeout elapses. This is a documented suspension
	// point: unlike Send, it ties up whatever dispatcher worker is running
	// this turn for its duration, so use it sparingly and never in a hot
	// path shared with latency-sensitive actors.
	Ask(target *PID, payload interface{}, timeout time.Duration) (interface{}, error)
}

type actorContext struct {
	system        *System
	self          *PID
	sender        *PID
	message       interface{}
	requestID     string
	proc          *process
	pendingBecome string
}

func (c *actorContext) System() *System          { return c.system }
func (c *actorContext) Self() *PID               { return c.self }
func (c *actorContext) Sender() *PID             { return c.sender }
func (c *actorContext) Message() interface{}     { return c.message }
func (c *actorContext) Parent() *PID             { return c.proc.parent }
func (c *actorContext) Children() []*PID         { return c.proc.childrenSnapshot() }
func (c *actorContext) RequestID() string        { return c.requestID }

func (c *actorContext) Send(target *PID, payload interface{}) {
	_ = c.system.Send(target, payload, c.self)
}

func (c *actorContext) Spawn(props *Props) *PID {
	pid, err := c.system.spawn(c.self, props)
	if err != nil {
		return nil
	}
	return pid
}

func (c *actorContext) Stop(pid *PID) {
	_ = c.system.Stop(pid)
}

func (c *actorContext) Become(behavior string) {
	c.pendingBecome = behavior
}

func (c *actorContext) Watch(pid *PID) {
	c.system.watch(c.self, pid)
}

func (c *actorContext) Unwatch(pid *PID) {
	c.system.unwatch(c.self, pid)
}

func (c *actorContext) Reply(payload interface{}) {
	if c.requestID == "" {
		return
	}
	// sender is nil when the request originated from System.Request called
	// outside any actor; the correlation id alone is enough to resolve the
	// pending ResponseFuture, so a nil target is fine here.
	c.system.sendResponse(c.sender, c.self, c.requestID, payload)
}

func (c *actorContext) Ask(target *PID, payload interface{}, timeout time.Duration) (interface{}, error) {
	return c.system.Request(target, payload, timeout).Wait()
}
