// Package atomicfile provides a single atomic-write primitive used by every
// on-disk writer in ravel (the object store, sidecar manifests, and the
// encoding package's config writers): write to a temporary file in the
// destination's own directory, then rename it into place.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// temporaryNamePrefix is the file name prefix used for intermediate files
// created during an atomic write.
const temporaryNamePrefix = ".ravel-tmp-"

// Write writes data to path atomically: an intermediate temporary file is
// created in path's own parent directory, written, closed, given the
// requested permissions, and renamed into place. Because the temporary file
// lives in the same directory as the destination, the final rename is a
// same-filesystem, same-directory operation and thus atomic on POSIX and
// Windows alike.
func Write(path string, data []byte, permissions os.FileMode) error {
	dir := filepath.Dir(path)

	temporary, err := os.CreateTemp(dir, temporaryNamePrefix)
	if err != nil {
		return fmt.Errorf("unable to create temporary file: %w", err)
	}
	name := temporary.Name()

	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		os.Remove(name)
		return fmt.Errorf("unable to write data to temporary file: %w", err)
	}

	if err := temporary.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("unable to close temporary file: %w", err)
	}

	if err := os.Chmod(name, permissions); err != nil {
		os.Remove(name)
		return fmt.Errorf("unable to set permissions on temporary file: %w", err)
	}

	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("unable to rename temporary file into place: %w", err)
	}

	return nil
}

// CreateTemp opens a new temporary file in dir for staged writing. The
// caller streams content into the returned file and then calls Rename to
// move it to its final destination (in the object store's case, a path
// derived from a digest the caller already holds).
func CreateTemp(dir string) (*os.File, error) {
	f, err := os.CreateTemp(dir, temporaryNamePrefix)
	if err != nil {
		return nil, fmt.Errorf("unable to create temporary file: %w", err)
	}
	return f, nil
}

// Rename moves a temporary file created by CreateTemp into its final
// destination, removing the temporary file if the rename fails. It is the
// second half of the ingest-via-temp-then-rename protocol used by the
// object store, where the caller computes the destination path first and
// then copies content into the temporary file.
func Rename(temporaryPath, destinationPath string) error {
	if err := os.Rename(temporaryPath, destinationPath); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("unable to rename temporary file into place: %w", err)
	}
	return nil
}

// RemoveStale removes a leftover temporary file, logging nothing and
// ignoring a not-exist error; used in error-cleanup paths where a second
// failure removing the temp file is not itself fatal.
func RemoveStale(path string) {
	_ = os.Remove(path)
}
