package queue

import (
	"context"
	"time"

	"github.com/xraph/jobqueue/job"
)

// PushOptions configures a raw push.
type PushOptions struct {
	// Delay postpones availability.
	Delay time.Duration

	// Attempts is carried over from a released record.
	Attempts int
}

// Backend is a durable queue over one storage medium. An empty queue
// argument selects the connection's default queue.
type Backend interface {
	job.Owner

	// Push enqueues jobType with args, available now.
	Push(ctx context.Context, jobType string, args job.Args, queue string) (string, error)

	// Later enqueues jobType with args, available after delay.
	Later(ctx context.Context, delay time.Duration, jobType string, args job.Args, queue string) (string, error)

	// PushRaw enqueues an already serialized payload.
	PushRaw(ctx context.Context, payload []byte, queue string, opts PushOptions) (string, error)

	// Bulk enqueues one job per type, all sharing args and availability.
	Bulk(ctx context.Context, jobTypes []string, args job.Args, queue string) ([]string, error)

	// Exists reports whether a record with the identical serialized payload
	// is present. It is not atomic with a following push.
	Exists(ctx context.Context, jobType string, args job.Args, queue string) (bool, error)

	// Pop returns the oldest leasable record, or nil when none is. It does
	// not reserve the record.
	Pop(ctx context.Context, queue string) (*job.Handle, error)

	// CanRun reports whether h may be reserved under the connection's limit.
	CanRun(ctx context.Context, h *job.Handle) (bool, error)

	// MarkReserved reserves h and increments its attempts. It returns
	// jobqueue.ErrLeaseLost when another worker reserved the record first.
	MarkReserved(ctx context.Context, h *job.Handle) error

	// GetJobByID returns the record with id, or nil when it does not exist.
	GetJobByID(ctx context.Context, queue, id string) (*job.Handle, error)

	// Size returns the number of records in queue, reserved or not.
	Size(ctx context.Context, queue string) (int64, error)

	// Config returns the resolved connection config.
	Config() Config

	// Close releases resources the backend owns.
	Close() error
}
