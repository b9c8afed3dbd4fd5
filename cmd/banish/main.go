// Banish parses, validates and runs rule-driven state machine programs.
//
// Usage:
//
//	# Print the parsed program
//	banish parse light.banish
//
//	# Check a program for static errors and warnings
//	banish validate --strict light.banish
//
//	# Run a program with an initial environment, recording the trace
//	banish run light.banish --env env.yaml --db runs.db
//
//	# Inspect and replay a recorded run
//	banish trace --db runs.db <run-id>
//	banish replay --db runs.db <run-id>
//
//	# Run scenario files against their golden traces
//	banish test ./scenarios
package main

import (
	"fmt"
	"os"

	"github.com/roach88/banish/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "banish: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
