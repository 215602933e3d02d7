package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ravel-dvc/ravel/internal/graph"
	"github.com/ravel-dvc/ravel/internal/ravelctx"
	"github.com/ravel-dvc/ravel/pkg/logging"
)

func dagMain(command *cobra.Command, arguments []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	ctx, err := ravelctx.Open(dir, logging.RootLogger.Sublogger("dag"))
	if err != nil {
		return err
	}
	defer ctx.Close()

	nodes, err := graph.Build(arguments, readSidecarFromDisk)
	if err != nil {
		return err
	}
	levels, err := graph.TopologicalSort(nodes)
	if err != nil {
		return err
	}

	for i, level := range levels {
		fmt.Printf("level %d:\n", i)
		for _, node := range level {
			if node.IsLeaf() {
				fmt.Printf("  %s (input)\n", node.Path)
			} else {
				fmt.Printf("  %s <- %s\n", node.Path, node.Cmd())
			}
		}
	}
	return nil
}

var dagCommand = &cobra.Command{
	Use:   "dag <target>...",
	Short: "Print the dependency graph's leveled execution order for the given targets",
	Args:  cobra.MinimumNArgs(1),
	Run:   mainify(dagMain),
}
