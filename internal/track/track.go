// Package track implements ravel's `add` operation: hashing an existing
// file or directory into the object store and writing (or rewriting) its
// sidecar, per spec.md §4's "add mode" — no command is ever executed here,
// only ingestion of what is already on disk. It is grounded in the ingest
// half of internal/objectstore and internal/sidecar, which this package
// composes rather than duplicates.
package track

import (
	"github.com/ravel-dvc/ravel/internal/objectstore"
	"github.com/ravel-dvc/ravel/internal/objhash"
	"github.com/ravel-dvc/ravel/internal/rverr"
	"github.com/ravel-dvc/ravel/internal/sidecar"
)

// Add hashes path, stores its content, and writes its sidecar. If path
// already has a sidecar recording a computation with dependencies, each
// dependency's current hash is compared against the hash recorded at that
// sidecar's last write: a mismatch is a stale dependency. With
// recursive=false, any stale dependency aborts the add with a
// *rverr.StaleDep listing every mismatch; with recursive=true, each stale
// dependency is itself added (depth-first) before path is processed,
// folding its refreshed hash back into path's recorded deps.
func Add(store *objectstore.Store, path string, recursive bool) error {
	existing, hasExisting := readExisting(path)

	if hasExisting && existing.Computation != nil && len(existing.Computation.Deps) > 0 {
		refreshed, err := resolveDeps(store, existing.Computation.Deps, recursive)
		if err != nil {
			if staleErr, ok := err.(*rverr.StaleDep); ok {
				staleErr.Output = path
			}
			return err
		}
		existing.Computation.Deps = refreshed
	}

	result, err := objhash.Hash(path)
	if err != nil {
		return err
	}

	var nfiles *int
	if result.IsDir {
		digest, err := store.PutDir(path, false)
		if err != nil {
			return err
		}
		manifest, err := store.ReadManifest(digest)
		if err != nil {
			return err
		}
		n := len(manifest)
		nfiles = &n
		result.Digest = digest
	} else if err := store.PutBlob(path, result.Digest, false); err != nil {
		return err
	}

	params := sidecar.WriteParams{
		OutputPath: path,
		Digest:     &result.Digest,
		Size:       &result.Size,
		IsDir:      result.IsDir,
		NFiles:     nfiles,
	}
	if hasExisting {
		params.Extra = existing.Extra
		params.OutExtra = existing.OutExtra
		if existing.Computation != nil {
			params.Cmd = existing.Computation.Cmd
			params.CodeRef = existing.Computation.CodeRef
			params.Deps = existing.Computation.Deps
		}
	}
	return sidecar.Write(params)
}

func readExisting(path string) (*sidecar.Info, bool) {
	info, err := sidecar.Read(sidecar.PathFor(path))
	if err != nil {
		return nil, false
	}
	return info, true
}

// resolveDeps compares each recorded dependency hash against the
// dependency's current content, recursing into Add for any mismatch when
// recursive is set, and collecting every unresolved mismatch into a single
// *rverr.StaleDep otherwise.
func resolveDeps(store *objectstore.Store, deps map[string]string, recursive bool) (map[string]string, error) {
	refreshed := make(map[string]string, len(deps))
	var stale []rverr.StaleDepEntry

	for depPath, recordedHash := range deps {
		currentResult, err := objhash.Hash(depPath)
		if err != nil {
			return nil, err
		}

		if currentResult.Digest == recordedHash {
			refreshed[depPath] = recordedHash
			continue
		}

		if recursive {
			if err := Add(store, depPath, true); err != nil {
				return nil, err
			}
			refreshed[depPath] = currentResult.Digest
			continue
		}

		stale = append(stale, rverr.StaleDepEntry{
			Dep:         depPath,
			SidecarHash: recordedHash,
			CurrentHash: currentResult.Digest,
		})
	}

	if len(stale) > 0 {
		return nil, &rverr.StaleDep{Deps: stale}
	}
	return refreshed, nil
}
