package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ravel-dvc/ravel/internal/freshness"
	"github.com/ravel-dvc/ravel/internal/ravelctx"
	"github.com/ravel-dvc/ravel/pkg/logging"
)

func statusMain(command *cobra.Command, arguments []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	ctx, err := ravelctx.Open(dir, logging.RootLogger.Sublogger("status"))
	if err != nil {
		return err
	}
	defer ctx.Close()

	engine := &freshness.Engine{Cache: ctx.Cache, Store: ctx.Store, SCM: ctx.SCM}

	anyStale := false
	for _, path := range arguments {
		verdict, err := engine.Check(path, freshness.Options{CheckDeps: true, Detailed: true})
		if err != nil {
			return fmt.Errorf("unable to check %s: %w", path, err)
		}

		fmt.Printf("%-8s %s — %s\n", verdict.State, path, verdict.Reason)
		if verdict.State != freshness.Fresh {
			anyStale = true
		}
		if verdict.Detail != nil {
			for _, dep := range verdict.Detail.ChangedDeps {
				fmt.Printf("           changed dep: %s\n", dep.Path)
			}
		}
	}

	if anyStale {
		os.Exit(1)
	}
	return nil
}

var statusCommand = &cobra.Command{
	Use:   "status <target>...",
	Short: "Report the freshness of one or more tracked targets without running anything",
	Args:  cobra.MinimumNArgs(1),
	Run:   mainify(statusMain),
}
