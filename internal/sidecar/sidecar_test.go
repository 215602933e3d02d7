package sidecar

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }
func i64Ptr(i int64) *int64   { return &i }
func intPtr(i int) *int       { return &i }

// TestWriteReadRoundTrip tests that Read(Write(x)) reproduces x for a
// computed, non-directory artifact with a computation block (scenario S1
// plus the computation block, and the round-trip property of spec.md §8).
func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "out.txt")
	if err := os.WriteFile(outputPath, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	digest := "5eb63bbbe01eeed093cb22bb8f5acdc3"
	params := WriteParams{
		OutputPath: outputPath,
		Digest:     &digest,
		Size:       i64Ptr(11),
		Cmd:        "cat in.txt > out.txt",
		CodeRef:    "deadbeef",
		Deps:       map[string]string{"in.txt": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
	}
	if err := Write(params); err != nil {
		t.Fatal("write failed:", err)
	}

	info, err := Read(PathFor(outputPath))
	if err != nil {
		t.Fatal("read failed:", err)
	}

	if info.OutputBaseName != "out.txt" {
		t.Error("output base name mismatch:", info.OutputBaseName)
	}
	if info.Digest == nil || *info.Digest != digest {
		t.Error("digest mismatch:", info.Digest)
	}
	if info.Size == nil || *info.Size != 11 {
		t.Error("size mismatch:", info.Size)
	}
	if info.IsDir {
		t.Error("expected IsDir false")
	}
	if info.Computation == nil {
		t.Fatal("expected computation block")
	}
	if info.Computation.Cmd != params.Cmd {
		t.Error("cmd mismatch:", info.Computation.Cmd)
	}
	if info.Computation.CodeRef != params.CodeRef {
		t.Error("code_ref mismatch:", info.Computation.CodeRef)
	}
	if info.Computation.Deps["in.txt"] != params.Deps["in.txt"] {
		t.Error("deps mismatch:", info.Computation.Deps)
	}
}

// TestPlaceholderSidecar tests that a placeholder sidecar (computation
// present, digest/size absent) round-trips with nil Digest/Size rather than
// zero values.
func TestPlaceholderSidecar(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "out.txt")

	params := WriteParams{
		OutputPath: outputPath,
		Cmd:        "make out.txt",
	}
	if err := Write(params); err != nil {
		t.Fatal(err)
	}

	info, err := Read(PathFor(outputPath))
	if err != nil {
		t.Fatal(err)
	}
	if info.Digest != nil {
		t.Error("expected nil digest for placeholder sidecar")
	}
	if info.Size != nil {
		t.Error("expected nil size for placeholder sidecar")
	}
	if info.Computation == nil || info.Computation.Cmd != "make out.txt" {
		t.Error("expected computation block to survive in placeholder mode")
	}
}

// TestDirectoryDigestSuffix tests that a directory digest is written with
// the .dir wire suffix and parsed back into IsDir=true with the suffix
// stripped from Digest.
func TestDirectoryDigestSuffix(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "outdir")

	digest := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	params := WriteParams{
		OutputPath: outputPath,
		Digest:     &digest,
		Size:       i64Ptr(20),
		IsDir:      true,
		NFiles:     intPtr(2),
	}
	if err := Write(params); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(PathFor(outputPath))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), digest+".dir") {
		t.Error("expected serialized md5 field to carry .dir suffix:", string(raw))
	}

	info, err := Read(PathFor(outputPath))
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir {
		t.Error("expected IsDir true")
	}
	if info.Digest == nil || *info.Digest != digest {
		t.Error("expected digest without suffix:", info.Digest)
	}
	if info.NFiles == nil || *info.NFiles != 2 {
		t.Error("nfiles mismatch:", info.NFiles)
	}
}

// TestLegacyComputationVariants tests the priority rule: meta.computation
// wins over a top-level computation block, which wins over legacy
// meta.{cmd,deps}.
func TestLegacyComputationVariants(t *testing.T) {
	dir := t.TempDir()

	writeRaw := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	modern := writeRaw("modern.rvl", `
outs:
  - path: modern
    md5: aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa
    hash: md5
meta:
  computation:
    cmd: "modern cmd"
  cmd: "legacy cmd"
`)
	info, err := Read(modern)
	if err != nil {
		t.Fatal(err)
	}
	if info.Computation.Cmd != "modern cmd" {
		t.Error("expected meta.computation to take priority:", info.Computation.Cmd)
	}

	topLevel := writeRaw("top.rvl", `
outs:
  - path: top
    md5: bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb
    hash: md5
computation:
  cmd: "top-level cmd"
meta:
  cmd: "legacy cmd"
`)
	info, err = Read(topLevel)
	if err != nil {
		t.Fatal(err)
	}
	if info.Computation.Cmd != "top-level cmd" {
		t.Error("expected top-level computation to take priority over legacy meta.cmd:", info.Computation.Cmd)
	}

	legacy := writeRaw("legacy.rvl", `
outs:
  - path: legacy
    md5: cccccccccccccccccccccccccccccccc
    hash: md5
meta:
  cmd: "legacy cmd"
  deps:
    in.txt: dddddddddddddddddddddddddddddddd
`)
	info, err = Read(legacy)
	if err != nil {
		t.Fatal(err)
	}
	if info.Computation.Cmd != "legacy cmd" {
		t.Error("expected legacy meta.cmd fallback:", info.Computation.Cmd)
	}
	if info.Computation.Deps["in.txt"] == "" {
		t.Error("expected legacy meta.deps to be recovered")
	}
}

// TestUnknownFieldsPreservedOnRewrite tests spec.md §3's "unknown fields
// are preserved on read where feasible": a field this package doesn't
// recognize, at both the top level and inside outs[0], survives a
// Read-then-Write round trip instead of being silently dropped.
func TestUnknownFieldsPreservedOnRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "extra.rvl")
	if err := os.WriteFile(path, []byte(`
outs:
  - path: extra
    md5: eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee
    hash: md5
    tag: keep-me
owner: someone@example.com
`), 0644); err != nil {
		t.Fatal(err)
	}

	info, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Extra["owner"] != "someone@example.com" {
		t.Fatalf("expected top-level unknown field preserved, got %+v", info.Extra)
	}
	if info.OutExtra["tag"] != "keep-me" {
		t.Fatalf("expected outs[0] unknown field preserved, got %+v", info.OutExtra)
	}

	newDigest := "ffffffffffffffffffffffffffffffff"
	if err := Write(WriteParams{
		OutputPath: filepath.Join(dir, "extra"),
		Digest:     &newDigest,
		Size:       i64Ptr(1),
		Extra:      info.Extra,
		OutExtra:   info.OutExtra,
	}); err != nil {
		t.Fatal(err)
	}

	rewritten, err := Read(PathFor(filepath.Join(dir, "extra")))
	if err != nil {
		t.Fatal(err)
	}
	if rewritten.Extra["owner"] != "someone@example.com" {
		t.Errorf("expected top-level unknown field to survive rewrite, got %+v", rewritten.Extra)
	}
	if rewritten.OutExtra["tag"] != "keep-me" {
		t.Errorf("expected outs[0] unknown field to survive rewrite, got %+v", rewritten.OutExtra)
	}
}

// TestEmptyOutsIsInvalid tests that a sidecar with no outs entries is
// reported as InvalidSidecar.
func TestEmptyOutsIsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.rvl")
	if err := os.WriteFile(path, []byte("outs: []\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Fatal("expected error for empty outs list")
	}
}
