package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/jobqueue/ext"
	"github.com/xraph/jobqueue/job"
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/xraph/jobqueue/observability"

// Compile-time interface checks.
var (
	_ ext.Extension            = (*MetricsExtension)(nil)
	_ ext.JobProcessing        = (*MetricsExtension)(nil)
	_ ext.JobProcessed         = (*MetricsExtension)(nil)
	_ ext.JobExceptionOccurred = (*MetricsExtension)(nil)
	_ ext.JobFailed            = (*MetricsExtension)(nil)
	_ ext.WorkerStopping       = (*MetricsExtension)(nil)
	_ ext.CronFired            = (*MetricsExtension)(nil)
)

// MetricsExtension records lifecycle counters through an OTel meter.
//
// Instruments:
//   - jobqueue.job.processing: attempts started
//   - jobqueue.job.processed: attempts that returned nil
//   - jobqueue.job.processed.duration: seconds spent in processed attempts
//   - jobqueue.job.exceptions: attempts that returned an error
//   - jobqueue.job.failed: jobs quarantined
//   - jobqueue.worker.stopping: daemon exits, by reason
//   - jobqueue.cron.fired: jobs pushed by cron entries
type MetricsExtension struct {
	processing metric.Int64Counter
	processed  metric.Int64Counter
	duration   metric.Float64Histogram
	exceptions metric.Int64Counter
	failed     metric.Int64Counter
	stopping   metric.Int64Counter
	cronFired  metric.Int64Counter
}

// NewMetricsExtension uses the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter uses the provided meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	// On error the API hands back noop instruments.
	processing, _ := meter.Int64Counter("jobqueue.job.processing",
		metric.WithDescription("Job attempts started"))
	processed, _ := meter.Int64Counter("jobqueue.job.processed",
		metric.WithDescription("Job attempts that completed without error"))
	duration, _ := meter.Float64Histogram("jobqueue.job.processed.duration",
		metric.WithDescription("Duration of completed job attempts"),
		metric.WithUnit("s"))
	exceptions, _ := meter.Int64Counter("jobqueue.job.exceptions",
		metric.WithDescription("Job attempts that returned an error"))
	failed, _ := meter.Int64Counter("jobqueue.job.failed",
		metric.WithDescription("Jobs moved to the failed-job store"))
	stopping, _ := meter.Int64Counter("jobqueue.worker.stopping",
		metric.WithDescription("Worker daemon exits"))
	cronFired, _ := meter.Int64Counter("jobqueue.cron.fired",
		metric.WithDescription("Jobs pushed by cron entries"))

	return &MetricsExtension{
		processing: processing,
		processed:  processed,
		duration:   duration,
		exceptions: exceptions,
		failed:     failed,
		stopping:   stopping,
		cronFired:  cronFired,
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func jobAttrs(connection string, h *job.Handle) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("connection", connection),
		attribute.String("queue", h.Queue()),
		attribute.String("job_name", h.DisplayName()),
	)
}

// OnJobProcessing implements ext.JobProcessing.
func (m *MetricsExtension) OnJobProcessing(ctx context.Context, connection string, h *job.Handle) error {
	m.processing.Add(ctx, 1, jobAttrs(connection, h))
	return nil
}

// OnJobProcessed implements ext.JobProcessed.
func (m *MetricsExtension) OnJobProcessed(ctx context.Context, connection string, h *job.Handle, elapsed time.Duration) error {
	attrs := jobAttrs(connection, h)
	m.processed.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
	return nil
}

// OnJobExceptionOccurred implements ext.JobExceptionOccurred.
func (m *MetricsExtension) OnJobExceptionOccurred(ctx context.Context, connection string, h *job.Handle, _ error) error {
	m.exceptions.Add(ctx, 1, jobAttrs(connection, h))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, connection string, h *job.Handle, _ error) error {
	m.failed.Add(ctx, 1, jobAttrs(connection, h))
	return nil
}

// OnWorkerStopping implements ext.WorkerStopping.
func (m *MetricsExtension) OnWorkerStopping(ctx context.Context, reason string) error {
	m.stopping.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	return nil
}

// OnCronFired implements ext.CronFired.
func (m *MetricsExtension) OnCronFired(ctx context.Context, entryName, _ string) error {
	m.cronFired.Add(ctx, 1, metric.WithAttributes(attribute.String("cron_entry", entryName)))
	return nil
}
