package ensemble

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Lane is a priority level within a single dispatcher class. Every class
// fully drains its HIGH lane before looking at NORMAL, and NORMAL before LOW.
type Lane int

const (
	LaneHigh Lane = iota
	LaneNormal
	LaneLow
	laneCount
)

type layeredTask struct {
	fn func()
}

// classQueue runs tasks for one DispatcherClass, bounding concurrency with a
// weighted semaphore and serving its three priority lanes in strict order.
type classQueue struct {
	mu     sync.Mutex
	lanes  [laneCount][]layeredTask
	semMu  sync.RWMutex
	sem    *semaphore.Weighted
	weight int64
	notify chan struct{}
	quit   chan struct{}
	wg     sync.WaitGroup
	class  DispatcherClass
}

func newClassQueue(class DispatcherClass, concurrency int) *classQueue {
	if concurrency <= 0 {
		concurrency = 4
	}
	cq := &classQueue{
		sem:    semaphore.NewWeighted(int64(concurrency)),
		weight: int64(concurrency),
		notify: make(chan struct{}, 1),
		quit:   make(chan struct{}),
		class:  class,
	}
	cq.wg.Add(1)
	go cq.loop()
	return cq
}

func (cq *classQueue) push(lane Lane, fn func()) {
	cq.mu.Lock()
	cq.lanes[lane] = append(cq.lanes[lane], layeredTask{fn: fn})
	depth := 0
	for _, l := range cq.lanes {
		depth += len(l)
	}
	cq.mu.Unlock()
	dispatcherQueueDepth.WithLabelValues(dispatcherClassName(cq.class)).Set(float64(depth))
	select {
	case cq.notify <- struct{}{}:
	default:
	}
}

func (cq *classQueue) popNext() (func(), bool) {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	for l := Lane(0); l < laneCount; l++ {
		if len(cq.lanes[l]) > 0 {
			t := cq.lanes[l][0]
			cq.lanes[l] = cq.lanes[l][1:]
			return t.fn, true
		}
	}
	return nil, false
}

func (cq *classQueue) loop() {
	defer cq.wg.Done()
	bg := context.Background()
	for {
		select {
		case <-cq.quit:
			return
		case <-cq.notify:
		}
		for {
			fn, ok := cq.popNext()
			if !ok {
				break
			}
			cq.semMu.RLock()
			sem := cq.sem
			cq.semMu.RUnlock()
			if err := sem.Acquire(bg, 1); err != nil {
				return
			}
			cq.wg.Add(1)
			go func(fn func(), sem *semaphore.Weighted) {
				defer cq.wg.Done()
				defer sem.Release(1)
				fn()
			}(fn, sem)
		}
	}
}

// resize swaps in a new semaphore with the given weight. Permits already
// held against the old semaphore are released against it as usual; this is
// an approximation (outstanding work finishes under the old ceiling) that
// keeps the adaptive loop simple, with no coordination with running tasks,
// acceptable because resize events are infrequent relative to task throughput.
func (cq *classQueue) resize(weight int64) {
	cq.semMu.Lock()
	cq.sem = semaphore.NewWeighted(weight)
	cq.weight = weight
	cq.semMu.Unlock()
}

func (cq *classQueue) shutdown() {
	close(cq.quit)
	cq.wg.Wait()
}

func dispatcherClassName(c DispatcherClass) string {
	switch c {
	case ClassCPUIntensive:
		return "cpu_intensive"
	case ClassIOIntensive:
		return "io_intensive"
	case ClassLowLatency:
		return "low_latency"
	case ClassBatch:
		return "batch"
	default:
		return "default"
	}
}

func laneFor(meta Metadata) Lane {
	switch meta.Priority {
	case PriorityHigh:
		return LaneHigh
	case PriorityLow:
		return LaneLow
	default:
		return LaneNormal
	}
}

func defaultClassifier(meta Metadata) DispatcherClass {
	switch meta.Priority {
	case PriorityHigh:
		return ClassLowLatency
	case PriorityLow:
		return ClassBatch
	default:
		return ClassDefault
	}
}

// LayeredDispatcher classifies each scheduled turn into one of a fixed set
// of workload classes, each with its own bounded concurrency and three
// strictly-ordered priority lanes.
type LayeredDispatcher struct {
	classes  map[DispatcherClass]*classQueue
	classify func(Metadata) DispatcherClass
}

// NewLayeredDispatcher builds one classQueue per DispatcherClass per cfg.
func NewLayeredDispatcher(cfg DispatcherConfig) *LayeredDispatcher {
	ld := &LayeredDispatcher{classes: make(map[DispatcherClass]*classQueue)}
	for _, c := range allDispatcherClasses {
		n := cfg.ClassConcurrency[c]
		ld.classes[c] = newClassQueue(c, n)
	}
	ld.classify = defaultClassifier
	return ld
}

// ScheduleEnvelope classifies and lanes task according to meta.
func (ld *LayeredDispatcher) ScheduleEnvelope(meta Metadata, task func()) {
	class := ld.classify(meta)
	cq, ok := ld.classes[class]
	if !ok {
		cq = ld.classes[ClassDefault]
	}
	cq.push(laneFor(meta), task)
}

// Schedule implements Dispatcher by routing through the default class at
// normal priority.
func (ld *LayeredDispatcher) Schedule(task func()) {
	ld.classes[ClassDefault].push(LaneNormal, task)
}

// Shutdown stops every class queue's loop and waits for in-flight tasks.
func (ld *LayeredDispatcher) Shutdown() {
	for _, cq := range ld.classes {
		cq.shutdown()
	}
}

// AdaptiveDispatcher wraps a LayeredDispatcher and periodically resizes each
// class's concurrency ceiling between configured min/max bounds based on
// observed queue depth: a class with a persistently non-empty queue grows
// toward its max, an idle class shrinks back toward its min.
type AdaptiveDispatcher struct {
	*LayeredDispatcher
	minConcurrency map[DispatcherClass]int
	maxConcurrency map[DispatcherClass]int
	interval       time.Duration
	stop           chan struct{}
	stopped        atomic.Bool
	wg             sync.WaitGroup
}

// NewAdaptiveDispatcher builds a LayeredDispatcher plus a background resize loop.
func NewAdaptiveDispatcher(cfg DispatcherConfig) *AdaptiveDispatcher {
	interval := cfg.MetricsInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ad := &AdaptiveDispatcher{
		LayeredDispatcher: NewLayeredDispatcher(cfg),
		minConcurrency:    cfg.ClassMinConcurrency,
		maxConcurrency:    cfg.ClassMaxConcurrency,
		interval:          interval,
		stop:              make(chan struct{}),
	}
	ad.wg.Add(1)
	go ad.resizeLoop()
	return ad
}

func (ad *AdaptiveDispatcher) resizeLoop() {
	defer ad.wg.Done()
	ticker := time.NewTicker(ad.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ad.stop:
			return
		case <-ticker.C:
			ad.rebalance()
		}
	}
}

func (ad *AdaptiveDispatcher) rebalance() {
	for class, cq := range ad.classes {
		cq.mu.Lock()
		depth := 0
		for _, l := range cq.lanes {
			depth += len(l)
		}
		cq.mu.Unlock()

		min := ad.minConcurrency[class]
		if min <= 0 {
			min = 1
		}
		max := ad.maxConcurrency[class]
		if max <= 0 {
			max = min
		}

		cq.semMu.RLock()
		current := cq.weight
		cq.semMu.RUnlock()

		switch {
		case depth > 0 && current < int64(max):
			cq.resize(current + 1)
		case depth == 0 && current > int64(min):
			cq.resize(current - 1)
		}
	}
}

// Shutdown stops the resize loop and the underlying LayeredDispatcher.
func (ad *AdaptiveDispatcher) Shutdown() {
	if ad.stopped.CompareAndSwap(false, true) {
		close(ad.stop)
		ad.wg.Wait()
	}
	ad.LayeredDispatcher.Shutdown()
}
