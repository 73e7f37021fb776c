package ensemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type taggingMiddleware struct {
	BaseMiddleware
	tag string
}

func (m *taggingMiddleware) OnSend(e *Envelope, target *PID) (*Envelope, MiddlewareResult) {
	e.Metadata.TypeTag = m.tag
	return e, MiddlewareContinue
}

type dropAllMiddleware struct {
	BaseMiddleware
	dropped []*Envelope
}

func (m *dropAllMiddleware) OnSend(e *Envelope, target *PID) (*Envelope, MiddlewareResult) {
	return e, MiddlewareDrop
}

func (m *dropAllMiddleware) OnDeadLetter(e *Envelope) {
	m.dropped = append(m.dropped, e)
}

func TestPipelineApplySendChainsMiddleware(t *testing.T) {
	p := NewPipeline()
	p.Use(&taggingMiddleware{tag: "first"})
	p.Use(&taggingMiddleware{tag: "second"})

	env := NewEnvelope(NewPID("x"), "payload")
	out, ok := p.ApplySend(env, NewPID("x"))
	require.True(t, ok)
	assert.Equal(t, "second", out.Metadata.TypeTag, "later middleware runs after and wins")
}

func TestPipelineApplySendDropStopsChain(t *testing.T) {
	p := NewPipeline()
	drop := &dropAllMiddleware{}
	p.Use(&taggingMiddleware{tag: "should-not-apply"})
	p.Use(drop)
	p.Use(&taggingMiddleware{tag: "never-reached"})

	env := NewEnvelope(NewPID("x"), "payload")
	_, ok := p.ApplySend(env, NewPID("x"))
	assert.False(t, ok)
}

func TestPipelineNotifyDeadLetterFansOutToAllMiddleware(t *testing.T) {
	p := NewPipeline()
	drop := &dropAllMiddleware{}
	p.Use(drop)

	env := NewEnvelope(NewPID("x"), "payload")
	p.NotifyDeadLetter(env)
	require.Len(t, drop.dropped, 1)
	assert.Equal(t, env, drop.dropped[0])
}

func TestPipelineResolveTargetCachesByIDAndAddress(t *testing.T) {
	p := NewPipeline()
	first := p.ResolveTarget("actor-1", "")
	second := p.ResolveTarget("actor-1", "")
	assert.Same(t, first, second, "repeated resolution of the same id/address must hit the cache")

	remote := p.ResolveTarget("actor-1", "node-2")
	assert.NotSame(t, first, remote)
}

func TestPipelineInvalidateTargetForcesReResolution(t *testing.T) {
	p := NewPipeline()
	first := p.ResolveTarget("actor-1", "")
	p.InvalidateTarget(NewPID("actor-1"))
	second := p.ResolveTarget("actor-1", "")
	assert.NotSame(t, first, second)
}

func TestSendBatchRejectsMismatchedLengths(t *testing.T) {
	sys := NewSystem(DevelopmentSystemConfig())
	defer sys.Shutdown(0)

	err := sys.SendBatch([]*PID{NewPID("a")}, []interface{}{"x", "y"})
	assert.Error(t, err)
}
