package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ravel-dvc/ravel/internal/executor"
	"github.com/ravel-dvc/ravel/internal/freshness"
	"github.com/ravel-dvc/ravel/internal/mtimecache"
	"github.com/ravel-dvc/ravel/internal/objectstore"
	"github.com/ravel-dvc/ravel/internal/sidecar"
)

func newTestEngine(t *testing.T) (*freshness.Engine, string) {
	t.Helper()
	dir := t.TempDir()
	cache, err := mtimecache.Open(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cache.Close() })

	store, err := objectstore.Open(filepath.Join(dir, "store"), nil)
	if err != nil {
		t.Fatal(err)
	}

	return &freshness.Engine{Cache: cache, Store: store}, dir
}

// TestWalkUpstreamOrdersLeavesFirst mirrors dvx's walk_upstream test shape:
// a chain of three artifacts comes back leaf-first.
func TestWalkUpstreamOrdersLeavesFirst(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "raw.txt")
	if err := os.WriteFile(rawPath, []byte("raw"), 0644); err != nil {
		t.Fatal(err)
	}
	raw, err := New(rawPath)
	if err != nil {
		t.Fatal(err)
	}

	normalized := Computed(filepath.Join(dir, "normalized.txt"), "normalize", raw)
	final := Computed(filepath.Join(dir, "final.txt"), "finalize", normalized)

	order := final.WalkUpstream()
	if len(order) != 3 {
		t.Fatalf("expected 3 artifacts, got %d", len(order))
	}
	var got []string
	for _, a := range order {
		got = append(got, a.Path)
	}
	want := []string{raw.Path, normalized.Path, final.Path}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("expected leaf-first order (-want +got):\n%s", diff)
	}
}

// TestWriteAllWritesComputedOnly tests that WriteAll records a sidecar for
// every computed artifact but skips leaves, mirroring dvx's write_all_dvc.
func TestWriteAllWritesComputedOnly(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "raw.txt")
	if err := os.WriteFile(rawPath, []byte("raw"), 0644); err != nil {
		t.Fatal(err)
	}
	raw, err := New(rawPath)
	if err != nil {
		t.Fatal(err)
	}
	derived := Computed(filepath.Join(dir, "derived.txt"), "cp "+rawPath+" "+filepath.Join(dir, "derived.txt"), raw)

	written, err := WriteAll([]*Artifact{derived})
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != 1 {
		t.Fatalf("expected exactly 1 sidecar written, got %d", len(written))
	}

	if _, err := os.Stat(sidecar.PathFor(raw.Path)); !os.IsNotExist(err) {
		t.Error("expected no sidecar written for a leaf artifact")
	}

	info, err := sidecar.Read(sidecar.PathFor(derived.Path))
	if err != nil {
		t.Fatal(err)
	}
	if info.Computation == nil || info.Computation.Deps[raw.Path] != *raw.Digest {
		t.Errorf("expected derived sidecar to record raw's digest, got %+v", info.Computation)
	}
}

// TestMaterializeRunsComputation tests the full prep-then-run pipeline: an
// artifact with no existing output gets its computation executed and its
// sidecar updated with a real digest.
func TestMaterializeRunsComputation(t *testing.T) {
	engine, dir := newTestEngine(t)

	rawPath := filepath.Join(dir, "raw.txt")
	if err := os.WriteFile(rawPath, []byte("raw content"), 0644); err != nil {
		t.Fatal(err)
	}
	raw, err := New(rawPath)
	if err != nil {
		t.Fatal(err)
	}

	outPath := filepath.Join(dir, "out.txt")
	out := Computed(outPath, "cp "+rawPath+" "+outPath, raw)

	report, err := Materialize(context.Background(), []*Artifact{out}, engine, executor.Options{})
	if err != nil {
		t.Fatalf("materialize failed: %v (results=%+v)", err, report.Results)
	}

	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("expected output to be produced: %v", err)
	}

	info, err := sidecar.Read(sidecar.PathFor(outPath))
	if err != nil {
		t.Fatal(err)
	}
	if info.Digest == nil {
		t.Fatal("expected a recorded digest after materialization")
	}
}
