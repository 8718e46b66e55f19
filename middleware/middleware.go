package middleware

import (
	"context"

	"github.com/xraph/jobqueue/job"
)

// Handler is the terminal function that fires the job.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic. It receives the
// attempt's context, the leased job and the next handler.
type Middleware func(ctx context.Context, h *job.Handle, next Handler) error

// Chain composes multiple middleware into a single Middleware.
//
// Chain(logging, tracing) executes as:
//
//	logging → tracing → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, h *job.Handle, next Handler) error {
		wrapped := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			inner := wrapped
			wrapped = func(ctx context.Context) error {
				return mw(ctx, h, inner)
			}
		}
		return wrapped(ctx)
	}
}
