package repository

import "context"

// JobNotifier is a best-effort wake-up signal for the worker. It carries no
// job payload — only the registry is authoritative — so losing or
// duplicating a notification is harmless; it only changes how quickly the
// worker notices new work.
type JobNotifier interface {
	// Notify hints that jobID is ready to be claimed.
	Notify(ctx context.Context, jobID string) error

	// Subscribe returns a channel of ready job id hints. The channel is
	// closed when ctx is cancelled or the underlying connection is closed.
	Subscribe(ctx context.Context) (<-chan string, error)

	// Close releases the underlying connection.
	Close() error
}
