// Command cdlcore compiles class definitions into path trees, runs query
// scenarios and inspects resource stores.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/cdlcore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
