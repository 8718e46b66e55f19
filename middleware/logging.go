package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/jobqueue/job"
)

// Logging returns middleware that logs job start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, h *job.Handle, next Handler) error {
		logger.Info("job started",
			slog.String("job_name", h.DisplayName()),
			slog.String("job_id", h.ID()),
			slog.String("queue", h.Queue()),
			slog.Int("attempts", h.Attempts()),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("job attempt failed",
				slog.String("job_name", h.DisplayName()),
				slog.String("job_id", h.ID()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("job completed",
				slog.String("job_name", h.DisplayName()),
				slog.String("job_id", h.ID()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
