package repository

import "context"

// Archiver mirrors a cache entry to cold storage right before it is evicted
// from disk. It is a one-way write-behind, never consulted as a read path:
// restoring a cold entry is a manual operator action, not an automatic
// cache-miss fallback.
type Archiver interface {
	// Archive uploads the file at localPath under the given key. Errors are
	// logged by the caller and never block the eviction they accompany.
	Archive(ctx context.Context, key, localPath string) error
}
