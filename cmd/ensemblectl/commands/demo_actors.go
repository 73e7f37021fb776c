package commands

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/lguibr/ensemble"
)

// WorkRequest asks a worker to square Value.
type WorkRequest struct {
	ID    int
	Value int
}

// WorkResult carries a worker's answer back to whoever sent the WorkRequest.
type WorkResult struct {
	ID     int
	Result int
}

// workerActor squares its input, occasionally panicking to exercise
// supervision: roughly one in five requests fails, giving the demo's default
// OneForOneStrategy something to restart.
type workerActor struct {
	id    int
	rng   *rand.Rand
	fails int
}

func newWorkerProducer(id int) ensemble.Producer {
	return func() ensemble.Actor {
		return &workerActor{id: id, rng: rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))}
	}
}

func (w *workerActor) PreStart(ctx ensemble.Context) error {
	fmt.Printf("worker %d starting as %s\n", w.id, ctx.Self())
	return nil
}

func (w *workerActor) PostRestart(ctx ensemble.Context, cause error) {
	fmt.Printf("worker %d restarted after: %v\n", w.id, cause)
}

func (w *workerActor) Receive(ctx ensemble.Context) {
	req, ok := ctx.Message().(WorkRequest)
	if !ok {
		return
	}
	if w.rng.Intn(5) == 0 {
		w.fails++
		panic(fmt.Sprintf("worker %d: simulated transient failure on request %d", w.id, req.ID))
	}
	result := WorkResult{ID: req.ID, Result: req.Value * req.Value}
	if ctx.RequestID() != "" {
		ctx.Reply(result)
		return
	}
	ctx.Send(ctx.Sender(), result)
}

// spawnWorkerPool spawns n workerActors supervised by a restart-budgeted
// OneForOneStrategy and returns their PIDs.
func spawnWorkerPool(system *ensemble.System, n int) ([]*ensemble.PID, error) {
	pids := make([]*ensemble.PID, 0, n)
	strategy := &ensemble.OneForOneStrategy{MaxRestarts: 5, Within: time.Minute}
	for i := 0; i < n; i++ {
		pid, err := system.Spawn(ensemble.NewProps(newWorkerProducer(i), ensemble.WithSupervisorStrategy(strategy)))
		if err != nil {
			return nil, fmt.Errorf("spawning worker %d: %w", i, err)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}
