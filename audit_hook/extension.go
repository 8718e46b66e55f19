package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/jobqueue/ext"
	"github.com/xraph/jobqueue/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension            = (*Extension)(nil)
	_ ext.JobProcessing        = (*Extension)(nil)
	_ ext.JobProcessed         = (*Extension)(nil)
	_ ext.JobExceptionOccurred = (*Extension)(nil)
	_ ext.JobFailed            = (*Extension)(nil)
	_ ext.WorkerStopping       = (*Extension)(nil)
	_ ext.CronFired            = (*Extension)(nil)
)

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit record.
type AuditEvent struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// LogRecorder returns a Recorder that writes each event to l at info
// level, or warn for failures.
func LogRecorder(l *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		level := slog.LevelInfo
		if evt.Outcome == OutcomeFailure {
			level = slog.LevelWarn
		}
		l.LogAttrs(ctx, level, "audit",
			slog.String("action", evt.Action),
			slog.String("category", evt.Category),
			slog.String("resource", evt.Resource),
			slog.String("resource_id", evt.ResourceID),
			slog.String("severity", evt.Severity),
			slog.Any("metadata", evt.Metadata),
		)
		return nil
	})
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension records jobqueue lifecycle events through a [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobProcessing implements ext.JobProcessing.
func (e *Extension) OnJobProcessing(ctx context.Context, connection string, h *job.Handle) error {
	return e.record(ctx, ActionJobProcessing, SeverityInfo, OutcomeSuccess,
		ResourceJob, h.ID(), CategoryJob, nil,
		jobMeta(connection, h)...,
	)
}

// OnJobProcessed implements ext.JobProcessed.
func (e *Extension) OnJobProcessed(ctx context.Context, connection string, h *job.Handle, elapsed time.Duration) error {
	return e.record(ctx, ActionJobProcessed, SeverityInfo, OutcomeSuccess,
		ResourceJob, h.ID(), CategoryJob, nil,
		append(jobMeta(connection, h), "elapsed_ms", elapsed.Milliseconds())...,
	)
}

// OnJobExceptionOccurred implements ext.JobExceptionOccurred.
func (e *Extension) OnJobExceptionOccurred(ctx context.Context, connection string, h *job.Handle, jobErr error) error {
	severity := SeverityWarning
	if h.HasFailed() {
		severity = SeverityCritical
	}
	return e.record(ctx, ActionJobException, severity, OutcomeFailure,
		ResourceJob, h.ID(), CategoryJob, jobErr,
		jobMeta(connection, h)...,
	)
}

// OnJobFailed implements ext.JobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, connection string, h *job.Handle, jobErr error) error {
	return e.record(ctx, ActionJobFailed, SeverityCritical, OutcomeFailure,
		ResourceJob, h.ID(), CategoryJob, jobErr,
		jobMeta(connection, h)...,
	)
}

// ── Worker and cron hooks ───────────────────────────

// OnWorkerStopping implements ext.WorkerStopping.
func (e *Extension) OnWorkerStopping(ctx context.Context, reason string) error {
	return e.record(ctx, ActionWorkerStopping, SeverityInfo, OutcomeSuccess,
		ResourceWorker, "", CategoryWorker, nil,
		"reason", reason,
	)
}

// OnCronFired implements ext.CronFired.
func (e *Extension) OnCronFired(ctx context.Context, entryName, jobID string) error {
	return e.record(ctx, ActionCronFired, SeverityInfo, OutcomeSuccess,
		ResourceCron, entryName, CategoryCron, nil,
		"job_id", jobID,
	)
}

// ── Internal helpers ────────────────────────────────

func jobMeta(connection string, h *job.Handle) []any {
	return []any{
		"job_name", h.DisplayName(),
		"connection", connection,
		"queue", h.Queue(),
		"attempts", h.Attempts(),
	}
}

// record builds and sends an audit event if the action is enabled.
// kvPairs are added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", action),
			slog.String("resource_id", resourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}
