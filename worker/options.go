package worker

import "time"

// Options tunes a daemon and the job processes it launches. The same
// values are forwarded to every launched process.
type Options struct {
	// Delay is the release delay for a failed attempt when no backoff
	// strategy is configured.
	Delay time.Duration

	// Memory is the daemon's memory watchdog limit in megabytes.
	Memory int

	// Timeout bounds one attempt when the payload declares no timeout.
	Timeout time.Duration

	// Sleep is the pause after an empty poll.
	Sleep time.Duration

	// MaxTries applies when the payload declares none. Zero means
	// unlimited.
	MaxTries int

	// RateLimit is the maximum sustained number of jobs per second the
	// daemon launches from one queue. Zero disables throttling.
	RateLimit float64

	// RateBurst is the token-bucket burst. Defaults to 1 when RateLimit
	// is set.
	RateBurst int
}

// DefaultOptions returns the options the work command starts with.
func DefaultOptions() Options {
	return Options{
		Delay:   0,
		Memory:  128,
		Timeout: 60 * time.Second,
		Sleep:   3 * time.Second,
	}
}

// maxTries returns the effective limit for a payload that may declare
// its own.
func (o Options) maxTries(payload *int) int {
	if payload != nil {
		return *payload
	}
	return o.MaxTries
}
