package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/jobqueue/job"
)

// Timeout returns middleware that bounds an attempt by the payload's timeout,
// or by fallback when the payload has none. A zero bound disables it.
//
// The handler runs on its own goroutine; when the deadline passes the
// middleware returns an error wrapping context.DeadlineExceeded without
// waiting for it. The worker process is expected to exit soon after, which
// ends a handler that ignores its context.
func Timeout(fallback time.Duration, logger *slog.Logger) Middleware {
	return func(ctx context.Context, h *job.Handle, next Handler) error {
		d := fallback
		if t, ok := h.Timeout(); ok {
			d = t
		}
		if d <= 0 {
			return next(ctx)
		}

		logger.Debug("job timeout set",
			slog.String("job_id", h.ID()),
			slog.Duration("timeout", d),
		)
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		// On timeout next keeps running in its goroutine with h.
		done := make(chan error, 1)
		go func() { done <- next(ctx) }()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("job %s timed out after %s: %w", h.DisplayName(), d, ctx.Err())
			}
			return ctx.Err()
		}
	}
}
