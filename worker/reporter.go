package worker

import (
	"context"
	"log/slog"

	"github.com/xraph/jobqueue/job"
)

// Reporter receives errors that escape a poll or a job execution. h is
// nil when the error is not tied to a leased job.
type Reporter interface {
	Report(ctx context.Context, connection string, h *job.Handle, err error)
}

// LogReporter reports errors to a structured logger.
type LogReporter struct {
	Logger *slog.Logger
}

// Report implements Reporter.
func (r LogReporter) Report(ctx context.Context, connection string, h *job.Handle, err error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		slog.String("connection", connection),
		slog.String("error", err.Error()),
	}
	if h != nil {
		attrs = append(attrs,
			slog.String("job_id", h.ID()),
			slog.String("job_name", h.DisplayName()),
			slog.String("queue", h.Queue()),
			slog.Int("attempts", h.Attempts()),
		)
	}
	logger.ErrorContext(ctx, "job error", attrs...)
}
