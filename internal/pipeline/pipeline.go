// Package pipeline is a small programmatic builder for ravel's dependency
// graph, grounded in dvx/run/artifact.py's lazy Artifact/Computation API
// (the original implementation this module's spec was distilled from). It
// is a thin adapter over internal/sidecar (to write the "prep phase"
// sidecars an Artifact graph describes) and internal/graph +
// internal/executor (to run the "run phase"), not a second execution
// engine of its own.
package pipeline

import (
	"context"
	"os"

	"github.com/ravel-dvc/ravel/internal/executor"
	"github.com/ravel-dvc/ravel/internal/freshness"
	"github.com/ravel-dvc/ravel/internal/graph"
	"github.com/ravel-dvc/ravel/internal/objhash"
	"github.com/ravel-dvc/ravel/internal/rverr"
	"github.com/ravel-dvc/ravel/internal/sidecar"
)

// Computation mirrors dvx's Computation dataclass: a shell command and the
// Artifacts (or bare paths) it depends on.
type Computation struct {
	Cmd     string
	Deps    []*Artifact
	CodeRef string
}

// Artifact mirrors dvx's Artifact dataclass: a path, and either a known
// digest/size (a leaf, already materialized) or a Computation describing
// how to produce it.
type Artifact struct {
	Path        string
	Computation *Computation
	Digest      *string
	Size        *int64
}

// New returns a leaf artifact for an existing path, computing its digest
// immediately. It corresponds to dvx's Artifact.from_path.
func New(path string) (*Artifact, error) {
	result, err := objhash.Hash(path)
	if err != nil {
		return nil, err
	}
	return &Artifact{Path: path, Digest: &result.Digest, Size: &result.Size}, nil
}

// Computed declares an artifact produced by cmd from deps, not yet
// materialized. It corresponds to constructing an Artifact with a
// Computation and no hash in dvx.
func Computed(path, cmd string, deps ...*Artifact) *Artifact {
	return &Artifact{Path: path, Computation: &Computation{Cmd: cmd, Deps: deps}}
}

// Upstream returns this artifact's direct dependencies, or nil for a leaf.
func (a *Artifact) Upstream() []*Artifact {
	if a.Computation == nil {
		return nil
	}
	return a.Computation.Deps
}

// WalkUpstream returns this artifact and every transitive dependency, in
// dependency order (leaves first), deduplicated by path. It mirrors dvx's
// Artifact.walk_upstream.
func (a *Artifact) WalkUpstream() []*Artifact {
	visited := make(map[string]bool)
	var result []*Artifact
	var visit func(*Artifact)
	visit = func(artifact *Artifact) {
		if visited[artifact.Path] {
			return
		}
		visited[artifact.Path] = true
		for _, upstream := range artifact.Upstream() {
			visit(upstream)
		}
		result = append(result, artifact)
	}
	visit(a)
	return result
}

// depHashes resolves a Computation's dependency digests: an upstream
// Artifact's own Digest if known, otherwise the current on-disk hash of its
// path. It mirrors dvx's Computation.get_dep_hashes.
func (c *Computation) depHashes() (map[string]string, error) {
	hashes := make(map[string]string, len(c.Deps))
	for _, dep := range c.Deps {
		if dep.Digest != nil {
			hashes[dep.Path] = *dep.Digest
			continue
		}
		if _, err := os.Stat(dep.Path); err == nil {
			result, err := objhash.Hash(dep.Path)
			if err != nil {
				return nil, err
			}
			hashes[dep.Path] = result.Digest
		}
	}
	return hashes, nil
}

// WriteSidecar writes this artifact's .rvl file: the prep phase. If the
// artifact has no recorded digest but its path already exists on disk, the
// digest is computed from the current file; otherwise a placeholder
// sidecar (computation only) is written, to be filled in once the
// computation runs.
func (a *Artifact) WriteSidecar() error {
	digest, size := a.Digest, a.Size
	if digest == nil {
		if result, err := objhash.Hash(a.Path); err == nil {
			digest, size = &result.Digest, &result.Size
		}
	}

	params := sidecar.WriteParams{OutputPath: a.Path, Digest: digest, Size: size}
	if a.Computation != nil {
		hashes, err := a.Computation.depHashes()
		if err != nil {
			return err
		}
		params.Cmd = a.Computation.Cmd
		params.CodeRef = a.Computation.CodeRef
		params.Deps = hashes
	}
	return sidecar.Write(params)
}

// WriteAll writes sidecars for every computed artifact reachable from
// artifacts, leaves first, mirroring dvx's write_all_dvc. Leaf artifacts
// (no Computation) are walked for ordering but never written: a leaf has
// no provenance of its own to record.
func WriteAll(artifacts []*Artifact) ([]string, error) {
	seen := make(map[string]bool)
	var written []string

	for _, artifact := range artifacts {
		for _, a := range artifact.WalkUpstream() {
			if seen[a.Path] {
				continue
			}
			seen[a.Path] = true
			if a.Computation == nil {
				continue
			}
			if err := a.WriteSidecar(); err != nil {
				return written, err
			}
			written = append(written, sidecar.PathFor(a.Path))
		}
	}
	return written, nil
}

// Materialize writes every artifact's sidecar (the prep phase), builds the
// dependency graph from those sidecars, and executes it (the run phase),
// returning the executor's report. It performs no execution logic itself;
// internal/graph and internal/executor do the real work.
func Materialize(ctx context.Context, artifacts []*Artifact, engine *freshness.Engine, opts executor.Options) (*executor.Report, error) {
	if _, err := WriteAll(artifacts); err != nil {
		return nil, err
	}

	targets := make([]string, len(artifacts))
	for i, a := range artifacts {
		targets[i] = a.Path
	}

	nodes, err := graph.Build(targets, readSidecarFromDisk)
	if err != nil {
		return nil, err
	}

	levels, err := graph.TopologicalSort(nodes)
	if err != nil {
		return nil, err
	}

	return executor.Execute(ctx, levels, engine, engine.Store, opts)
}

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
