package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ravel-dvc/ravel/internal/executor"
	"github.com/ravel-dvc/ravel/internal/freshness"
	"github.com/ravel-dvc/ravel/internal/graph"
	"github.com/ravel-dvc/ravel/internal/ravelctx"
	"github.com/ravel-dvc/ravel/internal/rverr"
	"github.com/ravel-dvc/ravel/internal/sidecar"
	"github.com/ravel-dvc/ravel/pkg/logging"
)

func readSidecarFromDisk(outputPath string) (*sidecar.Info, bool, error) {
	info, err := sidecar.Read(sidecar.PathFor(outputPath))
	if err != nil {
		if _, ok := err.(*rverr.NotFound); ok {
			return nil, false, nil
		}
		return nil, false, err
	}
	return info, true, nil
}

func runMain(command *cobra.Command, arguments []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	ctx, err := ravelctx.Open(dir, logging.RootLogger.Sublogger("run"))
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

	engine := &freshness.Engine{Cache: ctx.Cache, Store: ctx.Store, SCM: ctx.SCM}

	registry := prometheus.NewRegistry()
	metrics := executor.NewMetrics(registry)

	if runConfiguration.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		listener, err := net.Listen("tcp", runConfiguration.metricsAddr)
		if err != nil {
			return fmt.Errorf("unable to start metrics listener: %w", err)
		}
		go http.Serve(listener, mux)
		defer listener.Close()
	}

	report, err := executor.Execute(context.Background(), levels, engine, ctx.Store, executor.Options{
		Workers:        ctx.Workers,
		Force:          runConfiguration.force,
		ForcePatterns:  ctx.Config.Force,
		CachedPatterns: ctx.Config.Cached,
		DryRun:         runConfiguration.dryRun,
		CheckDeps:      true,
		Logger:         ctx.Logger,
		Metrics:        metrics,
	})
	for _, result := range report.Results {
		status := "skipped"
		if result.Ran {
			status = "ran"
		}
		if result.Err != nil {
			status = "failed"
		}
		fmt.Printf("%-8s %s (%s)\n", status, result.Path, result.Reason)
	}
	fmt.Printf("levels=%d commands_run=%.0f commands_deduped=%.0f artifacts_skipped=%.0f\n",
		report.LevelsExecuted,
		executor.CounterValue(metrics.CommandsRun),
		executor.CounterValue(metrics.CommandsDeduped),
		executor.CounterValue(metrics.ArtifactsSkipped))
	if err != nil {
		return err
	}
	return nil
}

var runCommand = &cobra.Command{
	Use:   "run <target>...",
	Short: "Execute the DAG needed to materialize the given targets",
	Args:  cobra.MinimumNArgs(1),
	Run:   mainify(runMain),
}

var runConfiguration struct {
	force       bool
	dryRun      bool
	metricsAddr string
}

func init() {
	flags := runCommand.Flags()
	flags.BoolVarP(&runConfiguration.force, "force", "f", false, "Rerun every target regardless of freshness")
	flags.BoolVarP(&runConfiguration.dryRun, "dry-run", "n", false, "Report decisions without running any command")
	flags.StringVar(&runConfiguration.metricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics (e.g. 127.0.0.1:9090) for the duration of this run")
}
