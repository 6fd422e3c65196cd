// Command regeindary imports charity registries into a document store and
// links filings to the entities that filed them.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/regeindary/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
