package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/jobqueue/job"
)

// Recover returns middleware that converts a panic in the chain into an
// error, logging the stack.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, h *job.Handle, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job handler panicked",
					slog.String("job_name", h.DisplayName()),
					slog.String("job_id", h.ID()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = fmt.Errorf("panic in job %s: %v", h.DisplayName(), r)
			}
		}()
		return next(ctx)
	}
}
