package interfaces

import "context"

// FileStore abstracts the device filesystem for the cache helper.
// Only the narrow operations the session layer needs are exposed; transport
// and chunking internals stay behind the collaborator.
type FileStore interface {
	// Exists reports whether a local cache file is present
	Exists(path string) bool

	// Remove deletes a single cached file; removing an absent file is a no-op
	Remove(path string) error

	// RemoveDir deletes a cache directory tree; absent directories are a no-op
	RemoveDir(path string) error
}

// Downloader runs background file downloads keyed by (remote URL, local path).
// FUNCTIONAL DISCOVERY: Enqueue is fire-and-forget - the cache helper must
// return a usable reference immediately, never wait on a transfer
type Downloader interface {
	// Enqueue schedules a download; duplicate in-flight keys are dropped
	Enqueue(ctx context.Context, remoteURL, localPath string)
}
