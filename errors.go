package jobqueue

import "errors"

var (
	// Configuration errors.
	ErrUnknownDriver           = errors.New("jobqueue: unknown queue driver")
	ErrConnectionNotConfigured = errors.New("jobqueue: connection not configured")

	// Payload errors.
	ErrInvalidPayload         = errors.New("jobqueue: invalid job payload")
	ErrMalformedFailedPayload = errors.New("jobqueue: failed job payload is missing job or data")

	// Not found errors.
	ErrJobNotFound       = errors.New("jobqueue: job not found")
	ErrFailedJobNotFound = errors.New("jobqueue: failed job not found")

	// State errors.
	ErrMaxAttemptsExceeded = errors.New("jobqueue: job has been attempted too many times or run too long")
	ErrLeaseLost           = errors.New("jobqueue: job was reserved by another worker")

	// Cron errors.
	ErrInvalidSchedule   = errors.New("jobqueue: invalid cron schedule")
	ErrDuplicateCron     = errors.New("jobqueue: cron entry already registered")
	ErrCronEntryNotFound = errors.New("jobqueue: cron entry not found")
)
