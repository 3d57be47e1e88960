// Package main is the entry point for the orion CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/epistimio/orion-go/internal/cli"
	"github.com/epistimio/orion-go/internal/worker"
)

func main() {
	root := cli.NewCLI(nil).GetRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, worker.ErrAbortWorker) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
