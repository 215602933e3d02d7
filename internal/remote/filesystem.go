package remote

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ravel-dvc/ravel/internal/atomicfile"
)

// Filesystem is a Store backed by a second local directory tree, addressed
// the same way as internal/objectstore: a two-level hash-prefix layout
// under <root>/md5, populated via stage-then-rename so pushes from
// concurrent workers are race-safe.
type Filesystem struct {
	root string
}

// NewFilesystem returns a Filesystem remote rooted at root, creating it if
// necessary.
func NewFilesystem(root string) (*Filesystem, error) {
	if err := os.MkdirAll(filepath.Join(root, "md5"), 0755); err != nil {
		return nil, fmt.Errorf("unable to create remote root: %w", err)
	}
	return &Filesystem{root: root}, nil
}

func (f *Filesystem) pathFor(digest string) string {
	return filepath.Join(f.root, "md5", digest[:2], digest[2:])
}

// Put implements Store.Put.
func (f *Filesystem) Put(digest, localPath string) error {
	destination := f.pathFor(digest)
	if _, err := os.Stat(destination); err == nil {
		return nil
	}

	destDir := filepath.Dir(destination)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("unable to create remote prefix directory: %w", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("unable to open local file for push: %w", err)
	}
	defer src.Close()

	temp, err := atomicfile.CreateTemp(destDir)
	if err != nil {
		return fmt.Errorf("unable to stage push: %w", err)
	}
	if _, err := io.Copy(temp, src); err != nil {
		temp.Close()
		atomicfile.RemoveStale(temp.Name())
		return fmt.Errorf("unable to copy content for push: %w", err)
	}
	if err := temp.Close(); err != nil {
		atomicfile.RemoveStale(temp.Name())
		return fmt.Errorf("unable to close staged push: %w", err)
	}

	if err := atomicfile.Rename(temp.Name(), destination); err != nil {
		if _, statErr := os.Stat(destination); statErr == nil {
			return nil
		}
		return fmt.Errorf("unable to rename pushed content into place: %w", err)
	}
	return nil
}

// Get implements Store.Get.
func (f *Filesystem) Get(digest, localPath string) error {
	src, err := os.Open(f.pathFor(digest))
	if err != nil {
		return fmt.Errorf("unable to open remote object: %w", err)
	}
	defer src.Close()

	destDir := filepath.Dir(localPath)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("unable to create destination directory: %w", err)
	}

	temp, err := atomicfile.CreateTemp(destDir)
	if err != nil {
		return fmt.Errorf("unable to stage pull: %w", err)
	}
	if _, err := io.Copy(temp, src); err != nil {
		temp.Close()
		atomicfile.RemoveStale(temp.Name())
		return fmt.Errorf("unable to copy content for pull: %w", err)
	}
	if err := temp.Close(); err != nil {
		atomicfile.RemoveStale(temp.Name())
		return fmt.Errorf("unable to close staged pull: %w", err)
	}

	return atomicfile.Rename(temp.Name(), localPath)
}

// Contains implements Store.Contains.
func (f *Filesystem) Contains(digest string) (bool, error) {
	_, err := os.Stat(f.pathFor(digest))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// OidToURL implements Store.OidToURL with a file:// URL over the remote
// root, suitable for display in status output.
func (f *Filesystem) OidToURL(digest string) string {
	return "file://" + f.pathFor(digest)
}
