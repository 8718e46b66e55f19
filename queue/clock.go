package queue

import (
	"time"

	"github.com/xraph/jobqueue/job"
)

// Clock returns the current time. Backends accept one for tests.
type Clock func() time.Time

// Unix converts t to the unix seconds backends persist.
func Unix(t time.Time) int64 { return t.Unix() }

// FromUnix converts persisted unix seconds back to a time.
func FromUnix(secs int64) time.Time { return time.Unix(secs, 0) }

// AvailableAt returns the unix second at which a record pushed at now with
// delay becomes leasable.
func AvailableAt(now time.Time, delay time.Duration) int64 {
	if delay < 0 {
		delay = 0
	}
	return now.Add(delay).Unix()
}

// ReclaimCutoff returns the unix second at or before which a reservation
// made is stale at now.
func ReclaimCutoff(now time.Time, expire time.Duration) int64 {
	return now.Unix() - int64(expire/time.Second)
}

// Leasable reports whether rec may be handed out by Pop at now.
func Leasable(rec job.Record, now time.Time, expire time.Duration) bool {
	if !rec.Reserved {
		return rec.AvailableAt.Unix() <= now.Unix()
	}
	return rec.ReservedAt != nil && rec.ReservedAt.Unix() <= ReclaimCutoff(now, expire)
}
