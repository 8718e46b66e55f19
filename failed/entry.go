package failed

import "time"

// Entry is a quarantined job.
type Entry struct {
	ID         string    `json:"id"`
	Connection string    `json:"connection"`
	Queue      string    `json:"queue"`
	Payload    []byte    `json:"payload"`
	Exception  string    `json:"exception"`
	FailedAt   time.Time `json:"failed_at"`
}

// Message renders cause the way stores persist it.
func Message(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}
