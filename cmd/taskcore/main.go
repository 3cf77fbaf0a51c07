// Package main provides the taskcore server: the task graph store, the workflow registry,
// the collaboration log and the synchronization broker behind one HTTP API.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "taskcore",
		Usage:                 "Coordinate workflows, tasks and live collaboration",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			ServeCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
