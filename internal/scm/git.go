package scm

import (
	"bytes"
	"errors"
	"os/exec"
	"strings"
)

// Git is an SCM implementation that shells out to a git binary on PATH (or
// at an explicit path), treating the subprocess as an opaque plumbing layer
// exactly as spec.md's "SCM as black box" framing describes.
type Git struct {
	// Binary is the git executable to invoke; defaults to "git" if empty.
	Binary string
	// Dir is the working directory in which git is invoked; typically the
	// project root.
	Dir string
}

// NewGit returns a Git adapter rooted at dir, using the "git" binary found
// on PATH.
func NewGit(dir string) *Git {
	return &Git{Binary: "git", Dir: dir}
}

func (g *Git) binary() string {
	if g.Binary == "" {
		return "git"
	}
	return g.Binary
}

func (g *Git) run(args ...string) (stdout []byte, err error) {
	cmd := exec.Command(g.binary(), args...)
	cmd.Dir = g.Dir
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return nil, errors.New(strings.TrimSpace(errBuf.String()))
	}
	return outBuf.Bytes(), nil
}

// HeadSHA implements SCM.HeadSHA via `git rev-parse HEAD`.
func (g *Git) HeadSHA() (string, bool, error) {
	out, err := g.run("rev-parse", "HEAD")
	if err != nil {
		if isNotARepository(err) || isNoCommits(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return strings.TrimSpace(string(out)), true, nil
}

// BlobSHA implements SCM.BlobSHA via `git ls-tree <ref> -- <path>`, parsing
// the blob object SHA out of the tree-entry line.
func (g *Git) BlobSHA(path, ref string) (string, bool, error) {
	out, err := g.run("ls-tree", ref, "--", path)
	if err != nil {
		if isNotARepository(err) || isUnknownRevision(err) {
			return "", false, nil
		}
		return "", false, err
	}
	line := strings.TrimSpace(string(out))
	if line == "" {
		return "", false, nil
	}
	// Tree-entry format: "<mode> <type> <sha>\t<path>".
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return "", false, nil
	}
	return fields[2], true, nil
}

// Show implements SCM.Show via `git show <ref>:<path>`.
func (g *Git) Show(path, ref string) ([]byte, bool, error) {
	out, err := g.run("show", ref+":"+path)
	if err != nil {
		if isNotARepository(err) || isUnknownRevision(err) || isPathNotInTree(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return out, true, nil
}

func isNotARepository(err error) bool {
	return strings.Contains(err.Error(), "not a git repository")
}

func isNoCommits(err error) bool {
	return strings.Contains(err.Error(), "unknown revision") ||
		strings.Contains(err.Error(), "ambiguous argument")
}

func isUnknownRevision(err error) bool {
	return strings.Contains(err.Error(), "unknown revision") ||
		strings.Contains(err.Error(), "Not a valid object name") ||
		strings.Contains(err.Error(), "bad revision")
}

func isPathNotInTree(err error) bool {
	return strings.Contains(err.Error(), "does not exist") ||
		strings.Contains(err.Error(), "exists on disk, but not in")
}
