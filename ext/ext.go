package ext

import (
	"context"
	"time"

	"github.com/xraph/jobqueue/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// JobProcessing is called before a job's handler runs.
type JobProcessing interface {
	OnJobProcessing(ctx context.Context, connection string, h *job.Handle) error
}

// JobProcessed is called after a handler returns nil.
type JobProcessed interface {
	OnJobProcessed(ctx context.Context, connection string, h *job.Handle, elapsed time.Duration) error
}

// JobExceptionOccurred is called when an attempt ends in an error, before
// the job is released.
type JobExceptionOccurred interface {
	OnJobExceptionOccurred(ctx context.Context, connection string, h *job.Handle, err error) error
}

// JobFailed is called after a job has been logged to the failed-job store.
type JobFailed interface {
	OnJobFailed(ctx context.Context, connection string, h *job.Handle, err error) error
}

// WorkerStopping is called when the daemon loop exits.
type WorkerStopping interface {
	OnWorkerStopping(ctx context.Context, reason string) error
}

// CronFired is called after a cron entry pushed its job.
type CronFired interface {
	OnCronFired(ctx context.Context, entryName, jobID string) error
}
