// Package remote defines ravel's remote-store boundary: a typed handle for
// pushing and pulling blobs/manifests by digest, kept outside the core per
// spec.md §1/§6, with one concrete filesystem-backed implementation so the
// interface has a real caller in tests without requiring network access.
package remote

// Store is the remote boundary consumed by push/pull operations. No
// ordering across calls is assumed, matching spec.md §6.
type Store interface {
	// Put uploads the content at localPath under digest.
	Put(digest, localPath string) error
	// Get downloads the content stored under digest to localPath.
	Get(digest, localPath string) error
	// Contains reports whether digest is present on the remote.
	Contains(digest string) (bool, error)
	// OidToURL returns a display URL for a digest, for status/log output.
	OidToURL(digest string) string
}
