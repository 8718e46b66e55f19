package bunstore

import (
	"strconv"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/jobqueue/failed"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/queue"
)

// jobModel is one queued record. The table name is replaced per connection
// with ModelTableExpr.
type jobModel struct {
	bun.BaseModel `bun:"table:queue_jobs,alias:j"`

	ID          int64  `bun:"id,pk,autoincrement"`
	Queue       string `bun:"queue,notnull"`
	Payload     string `bun:"payload,notnull"`
	Attempts    int    `bun:"attempts,notnull"`
	Reserved    bool   `bun:"reserved,notnull"`
	ReservedAt  *int64 `bun:"reserved_at"`
	AvailableAt int64  `bun:"available_at,notnull"`
	CreatedAt   int64  `bun:"created_at,notnull"`
}

func (m *jobModel) record() job.Record {
	rec := job.Record{
		ID:          strconv.FormatInt(m.ID, 10),
		Queue:       m.Queue,
		Payload:     []byte(m.Payload),
		Attempts:    m.Attempts,
		Reserved:    m.Reserved,
		AvailableAt: queue.FromUnix(m.AvailableAt),
		CreatedAt:   queue.FromUnix(m.CreatedAt),
	}
	if m.ReservedAt != nil {
		t := queue.FromUnix(*m.ReservedAt)
		rec.ReservedAt = &t
	}
	return rec
}

type failedModel struct {
	bun.BaseModel `bun:"table:queue_jobs_failed,alias:f"`

	ID         string `bun:"id,pk"`
	Connection string `bun:"connection,notnull"`
	Queue      string `bun:"queue,notnull"`
	Payload    string `bun:"payload,notnull"`
	Exception  string `bun:"exception,notnull"`
	FailedAt   int64  `bun:"failed_at,notnull"`
}

func (m *failedModel) entry() *failed.Entry {
	return &failed.Entry{
		ID:         m.ID,
		Connection: m.Connection,
		Queue:      m.Queue,
		Payload:    []byte(m.Payload),
		Exception:  m.Exception,
		FailedAt:   time.Unix(m.FailedAt, 0).UTC(),
	}
}
