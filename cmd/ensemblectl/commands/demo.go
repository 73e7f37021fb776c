package commands

import (
	"fmt"
	"sync"
	"time"

	"github.com/lguibr/ensemble"
	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Spawn a supervised worker pool behind a router and push requests through it",
	RunE:  runDemo,
}

// collectorActor gathers WorkResults and releases done once it has seen the
// expected count, so the demo can shut down cleanly instead of racing a
// fixed sleep against the worker pool.
type collectorActor struct {
	mu     sync.Mutex
	want   int
	got    int
	done   chan struct{}
	closed bool
}

func (c *collectorActor) Receive(ctx ensemble.Context) {
	res, ok := ctx.Message().(WorkResult)
	if !ok {
		return
	}
	fmt.Printf("result: request %d -> %d\n", res.ID, res.Result)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.got++
	if c.got >= c.want && !c.closed {
		c.closed = true
		close(c.done)
	}
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg := ensemble.DefaultSystemConfig()
	cfg.LogLevel = logLevel
	system := ensemble.NewSystem(cfg)
	defer system.Shutdown(5 * time.Second)

	workers, err := spawnWorkerPool(system, workerCount)
	if err != nil {
		return err
	}
	router := ensemble.NewRouter(ensemble.RouterConfig{Strategy: ensemble.StrategyRoundRobin, Routees: workers})

	const requestCount = 20
	done := make(chan struct{})
	collector := &collectorActor{want: requestCount, done: done}
	collectorPID, err := system.Spawn(ensemble.NewProps(func() ensemble.Actor { return collector }))
	if err != nil {
		return fmt.Errorf("spawning collector: %w", err)
	}

	for i := 0; i < requestCount; i++ {
		router.Send(system, WorkRequest{ID: i, Value: i + 1}, collectorPID)
	}

	select {
	case <-done:
		fmt.Println("demo complete: all requests answered")
	case <-time.After(10 * time.Second):
		fmt.Println("demo timed out waiting for all results; some requests may have exhausted their restart budget")
	}

	fmt.Printf("dead letters recorded: %d\n", system.DeadLetters().Len())
	return nil
}
