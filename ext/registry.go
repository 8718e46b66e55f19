package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/jobqueue/job"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time.
type jobProcessingEntry struct {
	name string
	hook JobProcessing
}

type jobProcessedEntry struct {
	name string
	hook JobProcessed
}

type jobExceptionEntry struct {
	name string
	hook JobExceptionOccurred
}

type jobFailedEntry struct {
	name string
	hook JobFailed
}

type workerStoppingEntry struct {
	name string
	hook WorkerStopping
}

type cronFiredEntry struct {
	name string
	hook CronFired
}

// Registry holds registered extensions and dispatches lifecycle events to
// them. Extensions are type-cached at registration so emit calls iterate
// only over the ones implementing the hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobProcessing  []jobProcessingEntry
	jobProcessed   []jobProcessedEntry
	jobException   []jobExceptionEntry
	jobFailed      []jobFailedEntry
	workerStopping []workerStoppingEntry
	cronFired      []cronFiredEntry
}

// NewRegistry creates an extension registry. A nil logger means
// slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension. Extensions are notified in registration
// order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobProcessing); ok {
		r.jobProcessing = append(r.jobProcessing, jobProcessingEntry{name, h})
	}
	if h, ok := e.(JobProcessed); ok {
		r.jobProcessed = append(r.jobProcessed, jobProcessedEntry{name, h})
	}
	if h, ok := e.(JobExceptionOccurred); ok {
		r.jobException = append(r.jobException, jobExceptionEntry{name, h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, jobFailedEntry{name, h})
	}
	if h, ok := e.(WorkerStopping); ok {
		r.workerStopping = append(r.workerStopping, workerStoppingEntry{name, h})
	}
	if h, ok := e.(CronFired); ok {
		r.cronFired = append(r.cronFired, cronFiredEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitJobProcessing notifies all extensions that implement JobProcessing.
func (r *Registry) EmitJobProcessing(ctx context.Context, connection string, h *job.Handle) {
	for _, e := range r.jobProcessing {
		if err := e.hook.OnJobProcessing(ctx, connection, h); err != nil {
			r.logHookError("OnJobProcessing", e.name, err)
		}
	}
}

// EmitJobProcessed notifies all extensions that implement JobProcessed.
func (r *Registry) EmitJobProcessed(ctx context.Context, connection string, h *job.Handle, elapsed time.Duration) {
	for _, e := range r.jobProcessed {
		if err := e.hook.OnJobProcessed(ctx, connection, h, elapsed); err != nil {
			r.logHookError("OnJobProcessed", e.name, err)
		}
	}
}

// EmitJobExceptionOccurred notifies all extensions that implement
// JobExceptionOccurred.
func (r *Registry) EmitJobExceptionOccurred(ctx context.Context, connection string, h *job.Handle, jobErr error) {
	for _, e := range r.jobException {
		if err := e.hook.OnJobExceptionOccurred(ctx, connection, h, jobErr); err != nil {
			r.logHookError("OnJobExceptionOccurred", e.name, err)
		}
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, connection string, h *job.Handle, jobErr error) {
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, connection, h, jobErr); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitWorkerStopping notifies all extensions that implement WorkerStopping.
func (r *Registry) EmitWorkerStopping(ctx context.Context, reason string) {
	for _, e := range r.workerStopping {
		if err := e.hook.OnWorkerStopping(ctx, reason); err != nil {
			r.logHookError("OnWorkerStopping", e.name, err)
		}
	}
}

// EmitCronFired notifies all extensions that implement CronFired.
func (r *Registry) EmitCronFired(ctx context.Context, entryName, jobID string) {
	for _, e := range r.cronFired {
		if err := e.hook.OnCronFired(ctx, entryName, jobID); err != nil {
			r.logHookError("OnCronFired", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
