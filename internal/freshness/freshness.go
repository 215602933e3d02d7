// Package freshness implements ravel's freshness engine: given a tracked
// output, it decides fresh/stale/missing/error by comparing the output's
// current content hash and its dependencies' hashes against what its
// sidecar last recorded, with an SCM blob-SHA fast path ahead of the hash
// comparison. It is exactly spec.md §4.E.
package freshness

import (
	"os"
	"path/filepath"

	"github.com/ravel-dvc/ravel/internal/mtimecache"
	"github.com/ravel-dvc/ravel/internal/objectstore"
	"github.com/ravel-dvc/ravel/internal/objhash"
	"github.com/ravel-dvc/ravel/internal/rverr"
	"github.com/ravel-dvc/ravel/internal/scm"
	"github.com/ravel-dvc/ravel/internal/sidecar"
)

// State is a freshness verdict.
type State string

const (
	Fresh   State = "fresh"
	Stale   State = "stale"
	Missing State = "missing"
	Error   State = "error"
)

// ChangedDep names one dependency found to have changed during a stale
// verdict's detailed report.
type ChangedDep struct {
	Path           string
	ExpectedDigest string
	ActualDigest   string
}

// Result is the freshness engine's verdict for one output.
type Result struct {
	State  State
	Reason string
	Detail *Detail
}

// Detail carries the extended information spec.md §4.E's "detailed mode"
// requires for the status surface and tests.
type Detail struct {
	ExpectedDigest string
	ActualDigest   string
	ChangedDeps    []ChangedDep
	CodeRef        string
}

// Options controls a single Check call.
type Options struct {
	// CheckDeps requests dependency-freshness evaluation in addition to the
	// output's own digest.
	CheckDeps bool
	// Detailed requests population of Result.Detail.
	Detailed bool
}

// Engine evaluates freshness for outputs within one project. It holds the
// collaborators the procedure in spec.md §4.E consults: the mtime hash
// cache (for the mtime-cached hasher), the object store (for tracked-
// directory manifest lookups), and an optional SCM (for the blob-SHA fast
// path; nil disables it, falling straight through to hash comparison).
type Engine struct {
	Cache *mtimecache.Cache
	Store *objectstore.Store
	SCM   scm.SCM
}

func (e *Engine) hashCached(path string) (string, int64, error) {
	hash, size, _, err := e.Cache.HashCached(path, func(p string) (string, int64, error) {
		result, err := objhash.Hash(p)
		if err != nil {
			return "", 0, err
		}
		return result.Digest, result.Size, nil
	})
	return hash, size, err
}

// Check implements spec.md §4.E's procedure for a single output path.
func (e *Engine) Check(outputPath string, opts Options) (Result, error) {
	sidecarPath := sidecar.PathFor(outputPath)
	info, err := sidecar.Read(sidecarPath)
	if err != nil {
		if isNotFound(err) {
			return e.checkFileInTrackedDirectory(outputPath, opts)
		}
		return Result{State: Error, Reason: err.Error()}, nil
	}

	if _, statErr := os.Stat(outputPath); statErr != nil {
		if os.IsNotExist(statErr) {
			return Result{State: Missing, Reason: "output does not exist"}, nil
		}
		return Result{}, statErr
	}

	if info.Digest == nil {
		// Placeholder sidecar: nothing has been materialized yet, so the
		// output existing at all is unexpected but not this engine's call
		// to arbitrate; treat as stale so the executor reruns it.
		return Result{State: Stale, Reason: "placeholder sidecar, no recorded digest"}, nil
	}

	actualDigest, _, err := e.hashOutput(outputPath, info.IsDir)
	if err != nil {
		return Result{}, err
	}

	if actualDigest != *info.Digest {
		result := Result{State: Stale, Reason: "output hash mismatch"}
		if opts.Detailed {
			result.Detail = &Detail{ExpectedDigest: *info.Digest, ActualDigest: actualDigest}
			if info.Computation != nil {
				result.Detail.CodeRef = info.Computation.CodeRef
			}
		}
		return result, nil
	}

	if opts.CheckDeps && info.Computation != nil && len(info.Computation.Deps) > 0 {
		return e.checkDeps(info, opts)
	}

	return Result{State: Fresh, Reason: "up-to-date"}, nil
}

func (e *Engine) hashOutput(path string, isDir bool) (string, int64, error) {
	if isDir {
		result, err := objhash.Hash(path)
		if err != nil {
			return "", 0, err
		}
		return result.Digest, result.Size, nil
	}
	return e.hashCached(path)
}

// checkDeps implements the SCM fast path falling back to hash comparison,
// per spec.md §4.E step 4.
func (e *Engine) checkDeps(info *sidecar.Info, opts Options) (Result, error) {
	codeRef := info.Computation.CodeRef
	var changed []ChangedDep

	for depPath, recordedHash := range info.Computation.Deps {
		decided, isStale, err := e.scmFastPath(depPath, codeRef)
		if err != nil {
			return Result{}, err
		}
		if decided {
			if isStale {
				changed = append(changed, ChangedDep{Path: depPath, ExpectedDigest: recordedHash})
			}
			continue
		}

		if _, statErr := os.Stat(depPath); statErr != nil {
			if os.IsNotExist(statErr) {
				changed = append(changed, ChangedDep{Path: depPath, ExpectedDigest: recordedHash})
				continue
			}
			return Result{}, statErr
		}

		currentHash, _, err := e.hashCached(depPath)
		if err != nil {
			return Result{}, err
		}
		if currentHash != recordedHash {
			changed = append(changed, ChangedDep{Path: depPath, ExpectedDigest: recordedHash, ActualDigest: currentHash})
		}
	}

	if len(changed) > 0 {
		first := changed[0]
		result := Result{State: Stale, Reason: "dep changed: " + first.Path}
		if opts.Detailed {
			result.Detail = &Detail{CodeRef: codeRef, ChangedDeps: changed}
		}
		return result, nil
	}

	return Result{State: Fresh, Reason: "up-to-date"}, nil
}

// scmFastPath compares a dependency's blob SHA at codeRef against its blob
// SHA at HEAD. decided is false when either comparison is unavailable (no
// SCM configured, dep not in the repository, or no codeRef recorded), in
// which case the caller falls through to hash comparison for that dep.
func (e *Engine) scmFastPath(depPath, codeRef string) (decided bool, isStale bool, err error) {
	if e.SCM == nil || codeRef == "" {
		return false, false, nil
	}

	atCodeRef, ok1, err := e.SCM.BlobSHA(depPath, codeRef)
	if err != nil {
		return false, false, err
	}
	atHead, ok2, err := e.SCM.BlobSHA(depPath, "HEAD")
	if err != nil {
		return false, false, err
	}
	if !ok1 || !ok2 {
		return false, false, nil
	}
	return true, atCodeRef != atHead, nil
}

// checkFileInTrackedDirectory implements spec.md §4.E's "files inside
// tracked directories" rule: walk upward for an ancestor directory whose
// own sidecar is a directory sidecar, and compare the file's hash against
// that directory's stored manifest.
func (e *Engine) checkFileInTrackedDirectory(path string, opts Options) (Result, error) {
	dir := filepath.Dir(path)
	for {
		ancestorSidecar := sidecar.PathFor(dir)
		info, err := sidecar.Read(ancestorSidecar)
		if err == nil && info.IsDir && info.Digest != nil {
			return e.checkAgainstManifest(dir, *info.Digest, path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return Result{State: Error, Reason: "no .rvl file"}, nil
}

func (e *Engine) checkAgainstManifest(trackedDir, manifestDigest, path string) (Result, error) {
	manifest, err := e.Store.ReadManifest(manifestDigest)
	if err != nil {
		return Result{}, err
	}

	rel, err := filepath.Rel(trackedDir, path)
	if err != nil {
		return Result{}, err
	}
	relSlash := filepath.ToSlash(rel)

	var recorded string
	found := false
	for _, entry := range manifest {
		if entry.RelPath == relSlash {
			recorded = entry.MD5
			found = true
			break
		}
	}
	if !found {
		return Result{State: Error, Reason: "not in manifest"}, nil
	}

	if _, statErr := os.Stat(path); statErr != nil {
		if os.IsNotExist(statErr) {
			return Result{State: Missing, Reason: "output does not exist"}, nil
		}
		return Result{}, statErr
	}

	currentHash, _, err := e.hashCached(path)
	if err != nil {
		return Result{}, err
	}
	if currentHash != recorded {
		return Result{State: Stale, Reason: "output hash mismatch"}, nil
	}
	return Result{State: Fresh, Reason: "up-to-date"}, nil
}

func isNotFound(err error) bool {
	_, ok := err.(*rverr.NotFound)
	return ok
}
