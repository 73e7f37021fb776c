package commands

import (
	"github.com/spf13/cobra"
)

var (
	// workerCount is how many routee workers the demo tree spawns.
	workerCount int

	// listenAddr is the address the serve command binds its websocket
	// listener to.
	listenAddr string

	// logLevel controls the verbosity of the demo's structured logging.
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "ensemblectl",
	Short: "Run and exercise a small ensemble actor tree",
	Long: `ensemblectl spawns a demonstration actor system: a supervised worker
pool fronted by a router, observable through structured logs (no metrics
endpoint is served), reachable either in-process or over a websocket transport.`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")

	demoCmd.Flags().IntVar(&workerCount, "workers", 3, "number of routee workers behind the round-robin router")
	rootCmd.AddCommand(demoCmd)

	serveCmd.Flags().StringVar(&listenAddr, "listen", ":8090", "address the websocket transport listens on")
	serveCmd.Flags().IntVar(&workerCount, "workers", 3, "number of routee workers behind the round-robin router")
	rootCmd.AddCommand(serveCmd)
}
