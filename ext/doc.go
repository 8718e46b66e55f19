// Package ext defines the worker's extension system.
//
// Extensions are notified of job lifecycle events and can react to them by
// recording metrics, writing audit logs or alerting. Each hook is a
// separate interface so extensions opt in only to the events they care
// about.
//
// # Implementing an Extension
//
//	type Alerts struct{}
//
//	func (a *Alerts) Name() string { return "alerts" }
//
//	func (a *Alerts) OnJobFailed(ctx context.Context, conn string, h *job.Handle, err error) error {
//	    return page(ctx, h.DisplayName(), err)
//	}
//
// # Hooks
//
//   - [JobProcessing]: a job is about to run
//   - [JobProcessed]: the handler returned without error
//   - [JobExceptionOccurred]: the handler or a check returned an error
//   - [JobFailed]: the job was quarantined
//   - [WorkerStopping]: the daemon loop is exiting
//   - [CronFired]: a cron entry pushed its job
//
// The [Registry] fans out each event to every registered extension that
// implements the hook. Hook errors are logged and never reach the worker.
package ext
