// Package middleware provides composable middleware around a job attempt.
//
// A [Middleware] wraps the call that fires a job's handler. Middleware are
// composed with [Chain]; the first middleware in the list is the outermost
// wrapper.
//
//	// logging → tracing → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Tracing())
//
// The worker always runs [Timeout] and [Recover] outside the configured
// chain, so every attempt is bounded and panics become errors.
//
// # Built-in Middleware
//
//   - [Logging]: logs job name, queue, attempts, duration and outcome
//   - [Recover]: catches panics and converts them to errors
//   - [Timeout]: bounds the attempt by the payload timeout or a default
//   - [Tracing]: wraps the attempt in an OpenTelemetry span
//   - [Metrics]: records per-job duration and outcome counters
//
// # Writing Custom Middleware
//
//	func Audit(w io.Writer) middleware.Middleware {
//	    return func(ctx context.Context, h *job.Handle, next middleware.Handler) error {
//	        fmt.Fprintln(w, "running", h.DisplayName())
//	        return next(ctx)
//	    }
//	}
//
// Middleware must call next unless deliberately short-circuiting.
package middleware
