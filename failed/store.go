package failed

import "context"

// Store defines the persistence contract for quarantined jobs.
type Store interface {
	// Log appends a failed job and returns the new entry's id.
	Log(ctx context.Context, connection, queue string, payload []byte, cause error) (string, error)

	// All returns every entry, newest first.
	All(ctx context.Context) ([]*Entry, error)

	// Find returns one entry or an error wrapping
	// jobqueue.ErrFailedJobNotFound.
	Find(ctx context.Context, id string) (*Entry, error)

	// Forget deletes one entry and reports whether it existed.
	Forget(ctx context.Context, id string) (bool, error)

	// Flush deletes every entry.
	Flush(ctx context.Context) error
}
