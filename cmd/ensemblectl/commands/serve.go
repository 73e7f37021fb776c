package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/lguibr/ensemble"
	"github.com/lguibr/ensemble/transport"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Spawn the demo worker pool and accept remote WorkRequests over websocket",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := ensemble.DefaultSystemConfig()
	cfg.LogLevel = logLevel
	system := ensemble.NewSystem(cfg)
	defer system.Shutdown(5 * time.Second)

	workers, err := spawnWorkerPool(system, workerCount)
	if err != nil {
		return err
	}
	router := ensemble.NewRouter(ensemble.RouterConfig{Strategy: ensemble.StrategyRoundRobin, Routees: workers})

	registry := transport.NewRegistry()
	registry.Register("work_request", WorkRequest{})
	registry.Register("work_result", WorkResult{})

	listener := transport.NewListener(system, registry)
	listener.SetLogger(zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger())

	dispatchPID, err := system.Spawn(ensemble.NewProps(func() ensemble.Actor {
		return &routerForwardingActor{router: router, system: system}
	}))
	if err != nil {
		return fmt.Errorf("spawning router-forwarding actor: %w", err)
	}
	fmt.Printf("remote work requests must target pid id %q (no discovery protocol in this demo)\n", dispatchPID.ID)

	mux := http.NewServeMux()
	mux.Handle("/ensemble", listener.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	fmt.Printf("ensemblectl serve listening on %s (workers=%d)\n", listenAddr, workerCount)
	return http.ListenAndServe(listenAddr, mux)
}

// routerForwardingActor receives an incoming WorkRequest (delivered to it by
// address, over the websocket transport) and fans it out to the local
// worker pool's router, with the request's sender as the target of the
// WorkResult. The serve command's System has no Transport configured, so a
// result addressed to a remote sender is recorded as a dead letter rather
// than sent back over the connection.
type routerForwardingActor struct {
	router *ensemble.Router
	system *ensemble.System
}

func (a *routerForwardingActor) Receive(ctx ensemble.Context) {
	req, ok := ctx.Message().(WorkRequest)
	if !ok {
		return
	}
	a.router.Send(a.system, req, ctx.Sender())
}
