package cron

import (
	"time"

	"github.com/xraph/jobqueue/job"
)

// Entry is a recurring job.
type Entry struct {
	// Name identifies the entry within a scheduler.
	Name string `json:"name"`

	// Schedule is a cron expression, e.g. "0 9 * * 1-5" or "@every 30s".
	Schedule string `json:"schedule"`

	// Job is the registered job type pushed on each run.
	Job string `json:"job"`

	Args job.Args `json:"args,omitempty"`

	// Connection and Queue default to the manager's default connection and
	// that connection's default queue.
	Connection string `json:"connection,omitempty"`
	Queue      string `json:"queue,omitempty"`

	// Unique skips a run while an identical job is still queued.
	Unique bool `json:"unique,omitempty"`
}

// Status is an entry together with its run times.
type Status struct {
	Entry
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt time.Time  `json:"next_run_at"`
	LastJobID string     `json:"last_job_id,omitempty"`
}
