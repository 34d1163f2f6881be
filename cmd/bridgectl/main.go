// Command bridgectl runs and inspects scripts linked against the host bridge.
package main

import (
	"fmt"
	"os"

	"github.com/reglet-dev/hostbridge/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
