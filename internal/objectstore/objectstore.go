// Package objectstore implements ravel's content-addressed blob and
// directory-manifest store: a two-level hash-prefix layout under
// <cache_root>/files/md5, populated via the same stage-then-atomic-rename
// discipline the teacher's synchronization stager uses for content-
// addressable file staging.
package objectstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ravel-dvc/ravel/internal/atomicfile"
	"github.com/ravel-dvc/ravel/internal/objhash"
	"github.com/ravel-dvc/ravel/internal/rverr"
	"github.com/ravel-dvc/ravel/pkg/logging"
)

// dirSuffix is the wire-format suffix appended to a directory manifest's
// digest when serialized to a path or to a sidecar's md5 field. It is never
// consulted by in-process logic, which tracks IsDir as a separate field.
const dirSuffix = ".dir"

// Store is a content-addressed blob and manifest store rooted at a cache
// directory. It holds no process-wide lock: concurrent PutBlob calls for the
// same digest race safely because the losing writer simply discovers the
// destination already exists and discards its own temporary file.
type Store struct {
	root   string
	logger *logging.Logger
}

// Open returns a Store rooted at cacheRoot, creating the root and its
// files/md5 subtree if necessary.
func Open(cacheRoot string, logger *logging.Logger) (*Store, error) {
	filesRoot := filepath.Join(cacheRoot, "files", "md5")
	if err := os.MkdirAll(filesRoot, 0755); err != nil {
		return nil, &rverr.StoreIOError{Detail: "unable to create store root", Cause: err}
	}
	return &Store{root: cacheRoot, logger: logger}, nil
}

// PathFor returns the path at which a blob or directory manifest with the
// given digest would be stored.
func (s *Store) PathFor(digest string, isDir bool) string {
	prefix, rest := digest[:2], digest[2:]
	path := filepath.Join(s.root, "files", "md5", prefix, rest)
	if isDir {
		path += dirSuffix
	}
	return path
}

// Contains reports whether a blob or directory manifest with the given
// digest is already present in the store.
func (s *Store) Contains(digest string, isDir bool) bool {
	_, err := os.Stat(s.PathFor(digest, isDir))
	return err == nil
}

// PutBlob ingests the file at srcPath into the store under the given
// digest, deduplicating against an existing entry unless force is set. It
// stages content into a temporary file in the destination's own parent
// directory, then renames it into place, so concurrent ingestion of the
// same digest is always race-safe.
func (s *Store) PutBlob(srcPath, digest string, force bool) error {
	destination := s.PathFor(digest, false)

	if !force {
		if _, err := os.Stat(destination); err == nil {
			s.logger.Debugf("blob %s already present, skipping ingestion", digest)
			return nil
		}
	}

	destDir := filepath.Dir(destination)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return &rverr.StoreIOError{Detail: "unable to create prefix directory", Cause: err}
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return &rverr.StoreIOError{Detail: "unable to open source for ingestion", Cause: err}
	}
	defer src.Close()

	temp, err := atomicfile.CreateTemp(destDir)
	if err != nil {
		return &rverr.StoreIOError{Detail: "unable to stage blob", Cause: err}
	}

	if _, err := io.Copy(temp, src); err != nil {
		temp.Close()
		atomicfile.RemoveStale(temp.Name())
		return &rverr.StoreIOError{Detail: "unable to copy blob content", Cause: err}
	}
	if err := temp.Close(); err != nil {
		atomicfile.RemoveStale(temp.Name())
		return &rverr.StoreIOError{Detail: "unable to close staged blob", Cause: err}
	}

	if err := atomicfile.Rename(temp.Name(), destination); err != nil {
		// A losing writer in the concurrent-ingestion race finds the
		// destination already populated; that is success, not failure.
		if os.IsExist(err) || exists(destination) {
			return nil
		}
		return &rverr.StoreIOError{Detail: "unable to rename blob into place", Cause: err}
	}

	return nil
}

// PutDir walks srcDir's regular files in sorted relpath order, ingests each
// as a blob, serializes the canonical directory manifest, ingests the
// manifest itself under its own digest, and returns that digest (the ".dir"
// wire suffix is applied only by callers that serialize it externally).
func (s *Store) PutDir(srcDir string, force bool) (string, error) {
	result, err := objhash.Hash(srcDir)
	if err != nil {
		return "", err
	}
	if !result.IsDir {
		return "", &rverr.InvalidTarget{Path: srcDir}
	}

	entries, err := walkManifest(srcDir)
	if err != nil {
		return "", err
	}

	for _, entry := range entries {
		abs := filepath.Join(srcDir, filepath.FromSlash(entry.RelPath))
		fileResult, err := objhash.Hash(abs)
		if err != nil {
			return "", err
		}
		if err := s.PutBlob(abs, fileResult.Digest, force); err != nil {
			return "", err
		}
	}

	manifestText, err := objhash.MarshalManifest(entries)
	if err != nil {
		return "", err
	}

	destination := s.PathFor(result.Digest, true)
	if !force && exists(destination) {
		return result.Digest, nil
	}

	destDir := filepath.Dir(destination)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", &rverr.StoreIOError{Detail: "unable to create prefix directory", Cause: err}
	}

	temp, err := atomicfile.CreateTemp(destDir)
	if err != nil {
		return "", &rverr.StoreIOError{Detail: "unable to stage manifest", Cause: err}
	}
	if _, err := temp.Write(manifestText); err != nil {
		temp.Close()
		atomicfile.RemoveStale(temp.Name())
		return "", &rverr.StoreIOError{Detail: "unable to write manifest", Cause: err}
	}
	if err := temp.Close(); err != nil {
		atomicfile.RemoveStale(temp.Name())
		return "", &rverr.StoreIOError{Detail: "unable to close staged manifest", Cause: err}
	}

	if err := atomicfile.Rename(temp.Name(), destination); err != nil {
		if exists(destination) {
			return result.Digest, nil
		}
		return "", &rverr.StoreIOError{Detail: "unable to rename manifest into place", Cause: err}
	}

	return result.Digest, nil
}

// ReadManifest loads and parses the directory manifest stored under digest.
func (s *Store) ReadManifest(digest string) ([]objhash.ManifestEntry, error) {
	path := s.PathFor(digest, true)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &rverr.NotFound{Path: path}
		}
		return nil, &rverr.StoreIOError{Detail: "unable to read manifest", Cause: err}
	}
	return objhash.UnmarshalManifest(data)
}

// walkManifest enumerates dir's regular files in sorted relpath order,
// hashing each one. Directory ingestion needs these intermediate per-file
// entries (to ingest each as a blob) in addition to the final directory
// digest that objhash.Hash alone would give it.
func walkManifest(dir string) ([]objhash.ManifestEntry, error) {
	var entries []objhash.ManifestEntry
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 || info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		result, err := objhash.Hash(path)
		if err != nil {
			return err
		}
		entries = append(entries, objhash.ManifestEntry{
			MD5:     result.Digest,
			RelPath: filepath.ToSlash(rel),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to walk directory %s: %w", dir, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RelPath < entries[j].RelPath
	})
	return entries, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
