// Command ensemblectl demonstrates a small actor tree built on top of
// github.com/lguibr/ensemble: a supervised flaky worker behind a
// round-robin router, reachable either in-process or over the demo
// websocket transport.
package main

import (
	"fmt"
	"os"

	"github.com/lguibr/ensemble/cmd/ensemblectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
