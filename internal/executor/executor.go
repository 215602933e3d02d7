// Package executor runs ravel's DAG level by level: for each artifact it
// decides whether a rerun is needed (force pattern, cached pattern, global
// force flag, or the freshness engine's verdict), executes each distinct
// command at most once per level even when several outputs share it, and
// re-hashes and re-records each output that ran. It generalizes the
// teacher's pkg/parallelism.SIMDWorkerArray into a job-queue worker pool
// (internal/executor/pool.go) and reuses pkg/contextutil for cancellation
// checks, following pkg/synchronization/core's controller loop for the
// level-by-level "process a batch, then move on" shape.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/ravel-dvc/ravel/internal/freshness"
	"github.com/ravel-dvc/ravel/internal/graph"
	"github.com/ravel-dvc/ravel/internal/objectstore"
	"github.com/ravel-dvc/ravel/internal/objhash"
	"github.com/ravel-dvc/ravel/internal/rverr"
	"github.com/ravel-dvc/ravel/internal/sidecar"
	"github.com/ravel-dvc/ravel/pkg/contextutil"
	"github.com/ravel-dvc/ravel/pkg/logging"
)

// Options controls one Execute call.
type Options struct {
	// Workers bounds the per-level worker pool size; zero means hardware
	// parallelism.
	Workers int
	// Force reruns every non-leaf artifact regardless of freshness.
	Force bool
	// ForcePatterns names glob patterns (matched with doublestar against
	// the artifact path) whose matching artifacts always rerun.
	ForcePatterns []string
	// CachedPatterns names glob patterns whose matching artifacts are
	// always treated as fresh, skipping both the freshness check and
	// execution.
	CachedPatterns []string
	// DryRun reports decisions without running any command or touching the
	// object store.
	DryRun bool
	// CheckDeps enables the freshness engine's SCM/dep comparison pass,
	// rather than only comparing the output's own digest.
	CheckDeps bool
	// Logger receives per-command debug lines tagged with a run ID.
	Logger *logging.Logger
	// Metrics, if non-nil, receives counters for levels executed, distinct
	// commands run, and commands deduplicated.
	Metrics *Metrics
}

// Metrics holds the executor's optional Prometheus instrumentation.
type Metrics struct {
	LevelsExecuted   prometheus.Counter
	CommandsRun      prometheus.Counter
	CommandsDeduped  prometheus.Counter
	ArtifactsSkipped prometheus.Counter
}

// NewMetrics registers the executor's counters on reg and returns the
// handle to pass as Options.Metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LevelsExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ravel_executor_levels_executed_total",
			Help: "Number of DAG levels processed.",
		}),
		CommandsRun: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ravel_executor_commands_run_total",
			Help: "Number of distinct commands executed.",
		}),
		CommandsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ravel_executor_commands_deduplicated_total",
			Help: "Number of co-output nodes that rode an already-running command.",
		}),
		ArtifactsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ravel_executor_artifacts_skipped_total",
			Help: "Number of artifacts judged fresh or cached and left alone.",
		}),
	}
	reg.MustRegister(m.LevelsExecuted, m.CommandsRun, m.CommandsDeduped, m.ArtifactsSkipped)
	return m
}

// CounterValue reads a counter's current value. cmd/ravel uses it to print
// a post-run summary without standing up a scrape endpoint; tests use it to
// assert directly on run/dedup counts.
func CounterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// ArtifactResult is one node's outcome.
type ArtifactResult struct {
	Path   string
	Ran    bool
	Reason string
	Err    error
}

// Report summarizes one Execute call across every level.
type Report struct {
	Results        []ArtifactResult
	LevelsExecuted int
}

// Execute runs levels in order, level by level, against engine's freshness
// verdicts and store's ingestion. It stops at the first level containing a
// failed artifact, leaving later levels unexecuted (their dependency may
// not exist), and returns the partial report alongside the error.
func Execute(ctx context.Context, levels graph.Levels, engine *freshness.Engine, store *objectstore.Store, opts Options) (*Report, error) {
	p := newPool(opts.Workers)
	defer p.Close()

	report := &Report{}

	for _, level := range levels {
		if contextutil.IsCancelled(ctx) {
			return report, ctx.Err()
		}

		results, err := executeLevel(ctx, p, level, engine, store, opts)
		report.Results = append(report.Results, results...)
		report.LevelsExecuted++
		if opts.Metrics != nil {
			opts.Metrics.LevelsExecuted.Inc()
		}
		if err != nil {
			return report, err
		}
	}

	return report, nil
}

// commandRun is the shared future for one distinct command within a level:
// every node whose Cmd() matches waits on it rather than re-executing.
type commandRun struct {
	once  sync.Once
	err   error
	ready chan struct{}
}

func executeLevel(ctx context.Context, p *pool, level []*graph.Node, engine *freshness.Engine, store *objectstore.Store, opts Options) ([]ArtifactResult, error) {
	runs := make(map[string]*commandRun)
	var runsMu sync.Mutex

	results := make([]ArtifactResult, len(level))
	var jobs []func()
	var firstErr error
	var firstErrMu sync.Mutex

	for i, node := range level {
		i, node := i, node
		jobs = append(jobs, func() {
			run, reason, err := decide(node, engine, opts)
			if err != nil {
				results[i] = ArtifactResult{Path: node.Path, Reason: reason, Err: err}
				recordFirstErr(&firstErrMu, &firstErr, err)
				return
			}
			if !run {
				if opts.Metrics != nil {
					opts.Metrics.ArtifactsSkipped.Inc()
				}
				results[i] = ArtifactResult{Path: node.Path, Ran: false, Reason: reason}
				return
			}
			if opts.DryRun {
				results[i] = ArtifactResult{Path: node.Path, Ran: true, Reason: "would run: " + node.Cmd()}
				return
			}

			cmdKey := node.Cmd()
			runsMu.Lock()
			cr, existed := runs[cmdKey]
			if !existed {
				cr = &commandRun{ready: make(chan struct{})}
				runs[cmdKey] = cr
			}
			runsMu.Unlock()

			cr.once.Do(func() {
				if opts.Metrics != nil {
					opts.Metrics.CommandsRun.Inc()
				}
				cr.err = runCommand(ctx, cmdKey, opts)
				close(cr.ready)
			})
			<-cr.ready
			if existed && opts.Metrics != nil {
				opts.Metrics.CommandsDeduped.Inc()
			}

			if cr.err != nil {
				failure := &rverr.CommandFailed{
					Artifact:      node.Path,
					StderrSnippet: rverr.TruncateStderr(cr.err.Error()),
				}
				reason := ""
				if existed {
					reason = "co-output build failed"
				}
				results[i] = ArtifactResult{Path: node.Path, Ran: true, Reason: reason, Err: failure}
				recordFirstErr(&firstErrMu, &firstErr, failure)
				return
			}

			digest, size, isDir, nfiles, err := ingest(node.Path, store)
			if err != nil {
				results[i] = ArtifactResult{Path: node.Path, Ran: true, Err: err}
				recordFirstErr(&firstErrMu, &firstErr, err)
				return
			}

			if err := sidecar.Write(sidecar.WriteParams{
				OutputPath: node.Path,
				Digest:     &digest,
				Size:       &size,
				IsDir:      isDir,
				NFiles:     nfiles,
				Cmd:        node.Info.Computation.Cmd,
				CodeRef:    node.Info.Computation.CodeRef,
				Deps:       node.Info.Computation.Deps,
				Extra:      node.Info.Extra,
				OutExtra:   node.Info.OutExtra,
			}); err != nil {
				results[i] = ArtifactResult{Path: node.Path, Ran: true, Err: err}
				recordFirstErr(&firstErrMu, &firstErr, err)
				return
			}

			results[i] = ArtifactResult{Path: node.Path, Ran: true, Reason: "executed"}
		})
	}

	p.RunAll(jobs)

	return results, firstErr
}

func recordFirstErr(mu *sync.Mutex, slot *error, err error) {
	mu.Lock()
	defer mu.Unlock()
	if *slot == nil {
		*slot = err
	}
}

// decide implements the run/skip precedence spec.md §4.F lists: leaves
// never run; force patterns beat cached patterns beat the global force
// flag beat the freshness engine's own verdict.
func decide(node *graph.Node, engine *freshness.Engine, opts Options) (run bool, reason string, err error) {
	if node.IsLeaf() {
		return false, "leaf input", nil
	}
	if matchesAny(opts.ForcePatterns, node.Path) {
		return true, "forced by pattern", nil
	}
	if matchesAny(opts.CachedPatterns, node.Path) {
		return false, "cached by pattern", nil
	}
	if opts.Force {
		return true, "forced", nil
	}

	verdict, err := engine.Check(node.Path, freshness.Options{CheckDeps: opts.CheckDeps})
	if err != nil {
		return false, "", err
	}
	switch verdict.State {
	case freshness.Fresh:
		return false, verdict.Reason, nil
	case freshness.Stale, freshness.Missing:
		return true, verdict.Reason, nil
	default:
		return false, "", fmt.Errorf("freshness check error for %s: %s", node.Path, verdict.Reason)
	}
}

func matchesAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}

// runCommand executes cmdStr through the shell, tagging the invocation
// with a run ID for log correlation per spec.md §4.F's observability note.
func runCommand(ctx context.Context, cmdStr string, opts Options) error {
	runID := uuid.NewString()
	if opts.Logger != nil {
		opts.Logger.Debugf("run %s: %s", runID, cmdStr)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", cmdStr)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("%s", stderr.String())
		}
		return err
	}
	return nil
}

// ingest hashes and stores path, returning the fields a sidecar rewrite
// needs. It returns *rverr.OutputMissing if the command exited zero but
// never produced the declared output.
func ingest(path string, store *objectstore.Store) (digest string, size int64, isDir bool, nfiles *int, err error) {
	result, hashErr := objhash.Hash(path)
	if hashErr != nil {
		return "", 0, false, nil, &rverr.OutputMissing{Artifact: path}
	}

	if result.IsDir {
		d, putErr := store.PutDir(path, false)
		if putErr != nil {
			return "", 0, false, nil, putErr
		}
		manifest, readErr := store.ReadManifest(d)
		if readErr != nil {
			return "", 0, false, nil, readErr
		}
		n := len(manifest)
		return d, result.Size, true, &n, nil
	}

	if putErr := store.PutBlob(path, result.Digest, false); putErr != nil {
		return "", 0, false, nil, putErr
	}
	return result.Digest, result.Size, false, nil, nil
}
