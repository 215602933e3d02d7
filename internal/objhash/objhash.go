// Package objhash implements ravel's content hashing: deterministic MD5
// digests for files and directories, with directory digests computed over a
// canonical JSON manifest of their members. It never consults mtime,
// ownership, or inode data.
package objhash

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ravel-dvc/ravel/internal/rverr"
)

// chunkSize is the minimum streaming read size used while hashing file
// content.
const chunkSize = 64 * 1024

// ManifestEntry is one record of a directory's canonical manifest: a file's
// content hash paired with its slash-separated path relative to the
// directory root.
type ManifestEntry struct {
	MD5     string `json:"md5"`
	RelPath string `json:"relpath"`
}

// Result is the outcome of hashing a single target.
type Result struct {
	Digest string
	Size   int64
	IsDir  bool
}

// Hash computes the content digest and size of the file or directory at
// path. It streams file content through MD5 in chunkSize-or-larger reads and
// never uses metadata other than content and relative path names.
func Hash(path string) (Result, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, &rverr.NotFound{Path: path}
		}
		return Result{}, err
	}

	switch {
	case info.Mode().IsRegular():
		digest, size, err := hashFile(path)
		if err != nil {
			return Result{}, err
		}
		return Result{Digest: digest, Size: size, IsDir: false}, nil
	case info.IsDir():
		digest, size, err := hashDir(path)
		if err != nil {
			return Result{}, err
		}
		return Result{Digest: digest, Size: size, IsDir: true}, nil
	default:
		return Result{}, &rverr.InvalidTarget{Path: path}
	}
}

// hashFile streams a regular file's bytes through MD5.
func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := md5.New()
	// Hide *os.File's WriterTo so CopyBuffer reads through the chunkSize
	// buffer rather than io.Copy's smaller default one.
	size, err := io.CopyBuffer(h, struct{ io.Reader }{f}, make([]byte, chunkSize))
	if err != nil {
		return "", 0, err
	}

	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// hashDir recursively hashes every regular file under dir, builds the
// canonical manifest described by ManifestEntry, and hashes the manifest
// text itself to produce the directory's digest.
func hashDir(dir string) (string, int64, error) {
	var entries []ManifestEntry
	var totalSize int64

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		// Symbolic links are never followed, whether they point to a file
		// or a directory; they are simply skipped.
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		digest, size, err := hashFile(path)
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		relpath := filepath.ToSlash(rel)

		entries = append(entries, ManifestEntry{MD5: digest, RelPath: relpath})
		totalSize += size
		return nil
	})
	if err != nil {
		return "", 0, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RelPath < entries[j].RelPath
	})

	manifestText, err := MarshalManifest(entries)
	if err != nil {
		return "", 0, err
	}

	h := md5.Sum(manifestText)
	return hex.EncodeToString(h[:]), totalSize, nil
}

// MarshalManifest serializes a directory manifest as the historical
// `{"md5": ..., "relpath": ...}` JSON array, field-separated by ", " and
// ": ", matching the wire format directory digests are computed over.
func MarshalManifest(entries []ManifestEntry) ([]byte, error) {
	if entries == nil {
		entries = []ManifestEntry{}
	}

	var b strings.Builder
	b.WriteByte('[')
	for i, e := range entries {
		if i > 0 {
			b.WriteString(", ")
		}
		md5Bytes, err := json.Marshal(e.MD5)
		if err != nil {
			return nil, err
		}
		relBytes, err := json.Marshal(e.RelPath)
		if err != nil {
			return nil, err
		}
		b.WriteString(`{"md5": `)
		b.Write(md5Bytes)
		b.WriteString(`, "relpath": `)
		b.Write(relBytes)
		b.WriteByte('}')
	}
	b.WriteByte(']')
	return []byte(b.String()), nil
}

// UnmarshalManifest parses a directory manifest back into entries, used by
// the object store's ReadManifest and by round-trip tests.
func UnmarshalManifest(data []byte) ([]ManifestEntry, error) {
	var entries []ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
