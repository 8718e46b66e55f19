package job

import "time"

// Record is a persisted queue entry as read back from a backend. Times have
// second resolution.
type Record struct {
	ID          string
	Queue       string
	Payload     []byte
	Attempts    int
	Reserved    bool
	ReservedAt  *time.Time
	AvailableAt time.Time
	CreatedAt   time.Time
}
