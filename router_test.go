package ensemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundRobinFairness(t *testing.T) {
	r1, r2, r3 := NewPID("r1"), NewPID("r2"), NewPID("r3")
	router := NewRouter(RouterConfig{Strategy: StrategyRoundRobin, Routees: []*PID{r1, r2, r3}})

	var seen []*PID
	for i := 0; i < 4; i++ {
		targets := router.Route(NewEnvelope(nil, i))
		require.Len(t, targets, 1)
		seen = append(seen, targets[0])
	}
	assert.Equal(t, []*PID{r1, r2, r3, r1}, seen)
}

func TestRoundRobinContinuesAfterRemovingNextRoutee(t *testing.T) {
	r1, r2, r3 := NewPID("r1"), NewPID("r2"), NewPID("r3")
	router := NewRouter(RouterConfig{Strategy: StrategyRoundRobin, Routees: []*PID{r1, r2, r3}})

	first := router.Route(NewEnvelope(nil, 1))
	require.Equal(t, []*PID{r1}, first)

	router.RemoveRoutee(r2)

	next := router.Route(NewEnvelope(nil, 2))
	require.Len(t, next, 1)
	assert.Equal(t, r3, next[0], "should skip to the next surviving routee, not replay r1")
}

func TestRouterDuplicateRouteeRejected(t *testing.T) {
	r1 := NewPID("r1")
	router := NewRouter(RouterConfig{Strategy: StrategyRoundRobin, Routees: []*PID{r1}})
	err := router.AddRoutee(r1)
	assert.ErrorIs(t, err, ErrDuplicateRoutee)
}

func TestBroadcastRoutesToAll(t *testing.T) {
	r1, r2 := NewPID("r1"), NewPID("r2")
	router := NewRouter(RouterConfig{Strategy: StrategyBroadcast, Routees: []*PID{r1, r2}})
	targets := router.Route(NewEnvelope(nil, "x"))
	assert.ElementsMatch(t, []*PID{r1, r2}, targets)
}

func TestConsistentHashStability(t *testing.T) {
	routees := []*PID{NewPID("r1"), NewPID("r2"), NewPID("r3"), NewPID("r4")}
	router := NewRouter(RouterConfig{
		Strategy:     StrategyConsistentHash,
		Routees:      routees,
		VirtualNodes: 50,
		HashKeyFunc:  func(e *Envelope) string { return e.Payload.(string) },
	})

	env := NewEnvelope(nil, "stable-key")
	first := router.Route(env)
	require.Len(t, first, 1)

	for i := 0; i < 10; i++ {
		again := router.Route(env)
		assert.Equal(t, first, again, "same key must route to the same routee every time")
	}

	// Removing an unrelated routee should not change where most keys land;
	// we only assert the queried key still resolves to *some* routee.
	router.RemoveRoutee(routees[0])
	after := router.Route(env)
	assert.Len(t, after, 1)
}

func TestWeightedRoundRobinRespectsWeights(t *testing.T) {
	r1, r2 := NewPID("r1"), NewPID("r2")
	router := NewRouter(RouterConfig{
		Strategy: StrategyWeightedRoundRobin,
		Routees:  []*PID{r1, r2},
		Weights:  map[string]int{"r1": 3, "r2": 1},
	})

	counts := map[string]int{}
	for i := 0; i < 4; i++ {
		targets := router.Route(NewEnvelope(nil, i))
		counts[targets[0].ID]++
	}
	assert.Equal(t, 3, counts["r1"])
	assert.Equal(t, 1, counts["r2"])
}
