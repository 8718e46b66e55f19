package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/jobqueue/job"
)

// tracerName is the instrumentation scope name for job tracing.
const tracerName = "github.com/xraph/jobqueue"

// Tracing returns middleware that wraps an attempt in an OpenTelemetry span
// using the global TracerProvider.
//
// Span attributes: jobqueue.job.id, jobqueue.job.name, jobqueue.queue,
// jobqueue.job.attempts. On error the span status is codes.Error.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, h *job.Handle, next Handler) error {
		ctx, span := tracer.Start(ctx, "jobqueue.job.execute",
			trace.WithAttributes(
				attribute.String("jobqueue.job.id", h.ID()),
				attribute.String("jobqueue.job.name", h.DisplayName()),
				attribute.String("jobqueue.queue", h.Queue()),
				attribute.Int("jobqueue.job.attempts", h.Attempts()),
			),
			trace.WithSpanKind(trace.SpanKindConsumer),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
