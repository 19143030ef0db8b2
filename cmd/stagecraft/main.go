// Command stagecraft is the CLI entrypoint over the scheduler/executor/
// loader core. It carries no behavior of its own beyond argument parsing and
// result reporting.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
