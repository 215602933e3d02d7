// Package scm defines ravel's source-control boundary: the three read-only
// operations the freshness engine needs (head commit, a path's blob SHA at
// a ref, and a ref's file content), plus one concrete adapter that shells
// out to the git binary. No git-plumbing library appears anywhere in the
// example corpus this module was grounded on, so this package is built
// directly on the standard library (os/exec) rather than a third-party
// dependency; see DESIGN.md.
package scm

// SCM is the read-only source-control boundary consumed by the freshness
// engine. All three methods report ok=false (rather than an error) when the
// answer is legitimately absent — no repository, no such ref, no such blob —
// reserving error for operational failures.
type SCM interface {
	// HeadSHA returns the current HEAD commit SHA.
	HeadSHA() (sha string, ok bool, err error)
	// BlobSHA returns the content SHA of path as recorded at ref.
	BlobSHA(path, ref string) (sha string, ok bool, err error)
	// Show returns the bytes of path as recorded at ref.
	Show(path, ref string) (data []byte, ok bool, err error)
}
