package ravelctx

import (
	"os"
	"path/filepath"
	"testing"
)

// TestOpenRequiresProjectRoot ensures Open fails clearly when no .ravel
// directory exists anywhere above startDir.
func TestOpenRequiresProjectRoot(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(dir, nil); err == nil {
		t.Fatal("expected error when no project root is present")
	}
}

// TestInitThenOpen exercises the full lifecycle: Init creates the control
// directory, Open resolves it from a nested subdirectory, and Close
// releases the mtime cache.
func TestInitThenOpen(t *testing.T) {
	root := t.TempDir()
	if err := Init(root); err != nil {
		t.Fatal(err)
	}

	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	ctx, err := Open(sub, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Close()

	if ctx.Root != root {
		t.Errorf("expected root %s, got %s", root, ctx.Root)
	}
	if ctx.Workers <= 0 {
		t.Errorf("expected positive default worker count, got %d", ctx.Workers)
	}
	if ctx.Store == nil || ctx.Cache == nil || ctx.SCM == nil {
		t.Error("expected all collaborators to be wired")
	}
}
