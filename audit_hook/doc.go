// Package audithook is a jobqueue extension that turns worker and cron
// lifecycle events into audit records.
//
// Every hook emits a structured [AuditEvent] through the [Recorder]
// interface. Severity is info for normal operations, warning for attempts
// that will be retried and critical for quarantined jobs.
//
// # Usage
//
//	exts.Register(audithook.New(audithook.RecorderFunc(
//	    func(ctx context.Context, evt *audithook.AuditEvent) error {
//	        return auditLog.Write(ctx, evt)
//	    },
//	)))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobFailed,
//	        audithook.ActionWorkerStopping,
//	    ),
//	)
package audithook
