// Command eventpush pushes local content objects to a remote event catalog.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/eventpush/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Command failures were already reported by the output formatter.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
