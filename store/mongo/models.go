package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/jobqueue/failed"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/queue"
)

type jobDocument struct {
	ID          bson.ObjectID `bson:"_id"`
	Queue       string        `bson:"queue"`
	Payload     string        `bson:"payload"`
	Attempts    int           `bson:"attempts"`
	Reserved    bool          `bson:"reserved"`
	ReservedAt  *int64        `bson:"reserved_at"`
	AvailableAt int64         `bson:"available_at"`
	CreatedAt   int64         `bson:"created_at"`
}

func (d *jobDocument) record() job.Record {
	rec := job.Record{
		ID:          d.ID.Hex(),
		Queue:       d.Queue,
		Payload:     []byte(d.Payload),
		Attempts:    d.Attempts,
		Reserved:    d.Reserved,
		AvailableAt: queue.FromUnix(d.AvailableAt),
		CreatedAt:   queue.FromUnix(d.CreatedAt),
	}
	if d.ReservedAt != nil {
		t := queue.FromUnix(*d.ReservedAt)
		rec.ReservedAt = &t
	}
	return rec
}

type failedDocument struct {
	ID         string    `bson:"_id"`
	Connection string    `bson:"connection"`
	Queue      string    `bson:"queue"`
	Payload    string    `bson:"payload"`
	Exception  string    `bson:"exception"`
	FailedAt   time.Time `bson:"failed_at"`
}

func (d *failedDocument) entry() *failed.Entry {
	return &failed.Entry{
		ID:         d.ID,
		Connection: d.Connection,
		Queue:      d.Queue,
		Payload:    []byte(d.Payload),
		Exception:  d.Exception,
		FailedAt:   d.FailedAt.UTC(),
	}
}
