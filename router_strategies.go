package ensemble

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// RoundRobinStrategy serves routees in order, wrapping around. It stores the
// "last served index", which is not reset on membership changes (only when
// the set becomes empty), so removing a not-yet-served routee never causes an
// already-served one to repeat: the next index is taken modulo whatever the
// current routee count is at call time.
type RoundRobinStrategy struct {
	mu        sync.Mutex
	lastIndex int
}

func NewRoundRobinStrategy() *RoundRobinStrategy {
	return &RoundRobinStrategy{lastIndex: -1}
}

func (s *RoundRobinStrategy) Route(e *Envelope, routees []*PID) []*PID {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(routees)
	if n == 0 {
		return nil
	}
	s.lastIndex = (s.lastIndex + 1) % n
	return []*PID{routees[s.lastIndex]}
}

func (s *RoundRobinStrategy) OnRouteesChanged(routees []*PID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(routees) == 0 {
		s.lastIndex = -1
	}
}

// RandomStrategy selects a uniformly random routee per envelope.
type RandomStrategy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomStrategy() *RandomStrategy {
	return &RandomStrategy{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (s *RandomStrategy) Route(e *Envelope, routees []*PID) []*PID {
	if len(routees) == 0 {
		return nil
	}
	s.mu.Lock()
	i := s.rng.Intn(len(routees))
	s.mu.Unlock()
	return []*PID{routees[i]}
}

func (s *RandomStrategy) OnRouteesChanged([]*PID) {}

// BroadcastStrategy routes every envelope to every routee.
type BroadcastStrategy struct{}

func (BroadcastStrategy) Route(e *Envelope, routees []*PID) []*PID { return routees }
func (BroadcastStrategy) OnRouteesChanged([]*PID)                  {}

func fnvHash(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

type ringEntry struct {
	hash uint32
	pid  *PID
}

// ConsistentHashStrategy maps envelopes onto routees via a hash ring with
// VirtualNodes replicas per routee, so that adding or removing one routee
// reassigns only the keys nearest it on the ring.
type ConsistentHashStrategy struct {
	mu           sync.RWMutex
	virtualNodes int
	keyFunc      func(e *Envelope) string
	ring         []ringEntry
}

func NewConsistentHashStrategy(virtualNodes int, keyFunc func(e *Envelope) string) *ConsistentHashStrategy {
	if virtualNodes <= 0 {
		virtualNodes = 100
	}
	if keyFunc == nil {
		keyFunc = func(e *Envelope) string { return e.ID }
	}
	return &ConsistentHashStrategy{virtualNodes: virtualNodes, keyFunc: keyFunc}
}

func (s *ConsistentHashStrategy) OnRouteesChanged(routees []*PID) {
	entries := make([]ringEntry, 0, len(routees)*s.virtualNodes)
	for _, pid := range routees {
		for v := 0; v < s.virtualNodes; v++ {
			key := fmt.Sprintf("%s#%d", pid.String(), v)
			entries = append(entries, ringEntry{hash: fnvHash(key), pid: pid})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].hash < entries[j].hash })
	s.mu.Lock()
	s.ring = entries
	s.mu.Unlock()
}

func (s *ConsistentHashStrategy) Route(e *Envelope, routees []*PID) []*PID {
	s.mu.RLock()
	ring := s.ring
	s.mu.RUnlock()
	if len(ring) == 0 {
		return nil
	}
	key := fnvHash(s.keyFunc(e))
	i := sort.Search(len(ring), func(i int) bool { return ring[i].hash >= key })
	if i == len(ring) {
		i = 0
	}
	return []*PID{ring[i].pid}
}

type weightedEntry struct {
	pid     *PID
	weight  int
	current int
}

// WeightedRoundRobinStrategy implements Nginx-style smooth weighted
// round-robin: each call increments every entry's current weight by its
// configured weight, picks the entry with the highest current weight, then
// subtracts the total weight from the winner. Over a full cycle of
// sum(weights) calls, each routee is picked exactly weight times, with
// selections spread evenly rather than clustered.
type WeightedRoundRobinStrategy struct {
	mu      sync.Mutex
	weights map[string]int
	entries []*weightedEntry
}

func NewWeightedRoundRobinStrategy(weights map[string]int) *WeightedRoundRobinStrategy {
	if weights == nil {
		weights = make(map[string]int)
	}
	return &WeightedRoundRobinStrategy{weights: weights}
}

func (s *WeightedRoundRobinStrategy) OnRouteesChanged(routees []*PID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]*weightedEntry, 0, len(routees))
	for _, pid := range routees {
		w := s.weights[pid.ID]
		if w <= 0 {
			w = 1
		}
		entries = append(entries, &weightedEntry{pid: pid, weight: w})
	}
	s.entries = entries
}

func (s *WeightedRoundRobinStrategy) Route(e *Envelope, routees []*PID) []*PID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return nil
	}
	total := 0
	var best *weightedEntry
	for _, en := range s.entries {
		en.current += en.weight
		total += en.weight
		if best == nil || en.current > best.current {
			best = en
		}
	}
	best.current -= total
	return []*PID{best.pid}
}
