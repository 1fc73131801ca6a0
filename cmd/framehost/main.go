// Command framehost runs a frame scheduler on a dedicated control goroutine
// with a background executor, and optionally serves Prometheus metrics.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "framehost",
		Usage: "Drive a frame scheduler and background executor",
		Commands: []*cli.Command{
			runCommand(),
			configCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
