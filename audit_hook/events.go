package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobProcessing  = "job.processing"
	ActionJobProcessed   = "job.processed"
	ActionJobException   = "job.exception"
	ActionJobFailed      = "job.failed"
	ActionWorkerStopping = "worker.stopping"
	ActionCronFired      = "cron.fired"
)

// Audit event categories group related actions.
const (
	CategoryJob    = "jobqueue.job"
	CategoryWorker = "jobqueue.worker"
	CategoryCron   = "jobqueue.cron"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob    = "job"
	ResourceWorker = "worker"
	ResourceCron   = "cron_entry"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobProcessing,
		ActionJobProcessed,
		ActionJobException,
		ActionJobFailed,
		ActionWorkerStopping,
		ActionCronFired,
	}
}
