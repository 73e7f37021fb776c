package ensemble

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBasicDispatcherRunsScheduledTasks(t *testing.T) {
	d := NewBasicDispatcher(2, 4)
	defer d.Shutdown()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ran int
	for i := 0; i < 20; i++ {
		wg.Add(1)
		d.Schedule(func() {
			defer wg.Done()
			mu.Lock()
			ran++
			mu.Unlock()
		})
	}
	wg.Wait()
	assert.Equal(t, 20, ran)
}

func TestBasicDispatcherOverflowStillRuns(t *testing.T) {
	d := NewBasicDispatcher(1, 1)
	defer d.Shutdown()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		d.Schedule(func() {
			defer wg.Done()
			time.Sleep(time.Millisecond)
		})
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("overflowed tasks never ran")
	}
}

func TestLayeredDispatcherDrainsHighLaneFirst(t *testing.T) {
	ld := NewLayeredDispatcher(DispatcherConfig{ClassConcurrency: map[DispatcherClass]int{
		ClassDefault: 1, ClassCPUIntensive: 1, ClassIOIntensive: 1, ClassLowLatency: 1, ClassBatch: 1,
	}})
	defer ld.Shutdown()

	cq := ld.classes[ClassDefault]

	var mu sync.Mutex
	var order []string
	done := make(chan struct{}, 3)

	// Populate all three lanes atomically before the loop goroutine can see
	// any of them, so which lane it drains first isn't a race.
	cq.mu.Lock()
	cq.lanes[LaneLow] = []layeredTask{{fn: func() { mu.Lock(); order = append(order, "low"); mu.Unlock(); done <- struct{}{} }}}
	cq.lanes[LaneHigh] = []layeredTask{{fn: func() { mu.Lock(); order = append(order, "high"); mu.Unlock(); done <- struct{}{} }}}
	cq.lanes[LaneNormal] = []layeredTask{{fn: func() { mu.Lock(); order = append(order, "normal"); mu.Unlock(); done <- struct{}{} }}}
	cq.mu.Unlock()
	select {
	case cq.notify <- struct{}{}:
	default:
	}

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("tasks never completed")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "high", order[0])
}
