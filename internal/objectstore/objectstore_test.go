package objectstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ravel-dvc/ravel/internal/objhash"
)

// TestPutBlobAndPathFor tests invariant 1: reading the file at PathFor(hash)
// returns bytes whose MD5 is that hash (scenario S1).
func TestPutBlobAndPathFor(t *testing.T) {
	cacheRoot := t.TempDir()
	store, err := Open(cacheRoot, nil)
	if err != nil {
		t.Fatal(err)
	}

	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "data.txt")
	if err := os.WriteFile(src, []byte("hello world"), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := objhash.Hash(src)
	if err != nil {
		t.Fatal(err)
	}

	if err := store.PutBlob(src, result.Digest, false); err != nil {
		t.Fatal("put blob failed:", err)
	}

	if !store.Contains(result.Digest, false) {
		t.Fatal("expected store to contain ingested blob")
	}

	stored, err := os.ReadFile(store.PathFor(result.Digest, false))
	if err != nil {
		t.Fatal(err)
	}
	if string(stored) != "hello world" {
		t.Error("stored content mismatch:", string(stored))
	}

	expectedPath := filepath.Join(cacheRoot, "files", "md5", "5e", "b63bbbe01eeed093cb22bb8f5acdc3")
	if store.PathFor(result.Digest, false) != expectedPath {
		t.Errorf("path layout mismatch: %s != %s", store.PathFor(result.Digest, false), expectedPath)
	}
}

// TestPutBlobDeduplicates tests that a second PutBlob under the same digest
// is a no-op that doesn't fail even if the source is gone.
func TestPutBlobDeduplicates(t *testing.T) {
	cacheRoot := t.TempDir()
	store, err := Open(cacheRoot, nil)
	if err != nil {
		t.Fatal(err)
	}

	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "data.txt")
	if err := os.WriteFile(src, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}
	result, err := objhash.Hash(src)
	if err != nil {
		t.Fatal(err)
	}

	if err := store.PutBlob(src, result.Digest, false); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(src); err != nil {
		t.Fatal(err)
	}

	// Second call with the source gone should still succeed because the
	// destination already exists and the nonexistence check short-circuits.
	if err := store.PutBlob(src, result.Digest, false); err != nil {
		t.Error("expected deduplicated PutBlob to succeed without touching source:", err)
	}
}

// TestPutDirAndReadManifest tests invariant 2: the directory digest equals
// MD5 of the manifest text, and the manifest round-trips through the store.
func TestPutDirAndReadManifest(t *testing.T) {
	cacheRoot := t.TempDir()
	store, err := Open(cacheRoot, nil)
	if err != nil {
		t.Fatal(err)
	}

	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("A"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(srcDir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "sub", "b.txt"), []byte("B"), 0644); err != nil {
		t.Fatal(err)
	}

	expected, err := objhash.Hash(srcDir)
	if err != nil {
		t.Fatal(err)
	}

	digest, err := store.PutDir(srcDir, false)
	if err != nil {
		t.Fatal("put dir failed:", err)
	}
	if digest != expected.Digest {
		t.Errorf("digest mismatch: %s != %s", digest, expected.Digest)
	}

	manifest, err := store.ReadManifest(digest)
	if err != nil {
		t.Fatal("read manifest failed:", err)
	}
	if len(manifest) != 2 {
		t.Fatalf("expected 2 manifest entries, got %d", len(manifest))
	}
	if manifest[0].RelPath >= manifest[1].RelPath {
		t.Error("expected manifest entries sorted by relpath")
	}

	for _, entry := range manifest {
		if !store.Contains(entry.MD5, false) {
			t.Errorf("expected store to contain member blob %s", entry.RelPath)
		}
	}
}
