package cron

import (
	"encoding/json"
	"fmt"

	"github.com/xraph/jobqueue/job"
)

// Definition is a typed cron entry. T must be JSON-serializable; it is
// converted to job.Args the same way job.Definition decodes them.
type Definition[T any] struct {
	Name     string
	Schedule string
	Job      string
	Args     T

	Connection string
	Queue      string
	Unique     bool
}

// Entry converts d to an untyped Entry.
func (d Definition[T]) Entry() (Entry, error) {
	b, err := json.Marshal(d.Args)
	if err != nil {
		return Entry{}, fmt.Errorf("cron %s: encode args: %w", d.Name, err)
	}
	var args job.Args
	if err := json.Unmarshal(b, &args); err != nil {
		return Entry{}, fmt.Errorf("cron %s: args must encode to a JSON object: %w", d.Name, err)
	}
	return Entry{
		Name:       d.Name,
		Schedule:   d.Schedule,
		Job:        d.Job,
		Args:       args,
		Connection: d.Connection,
		Queue:      d.Queue,
		Unique:     d.Unique,
	}, nil
}
