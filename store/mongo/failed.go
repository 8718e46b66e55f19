package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/failed"
	"github.com/xraph/jobqueue/id"
)

// DefaultFailedCollection holds failed jobs when no name is given.
const DefaultFailedCollection = "queue_jobs_failed"

var _ failed.Store = (*FailedStore)(nil)

// FailedStore keeps failed jobs in a MongoDB collection.
type FailedStore struct {
	col *mongod.Collection
	now func() time.Time
}

// NewFailedStore returns a FailedStore on db.
func NewFailedStore(db *mongod.Database, collection string) *FailedStore {
	if collection == "" {
		collection = DefaultFailedCollection
	}
	return &FailedStore{col: db.Collection(collection), now: time.Now}
}

// Log inserts a new entry.
func (f *FailedStore) Log(ctx context.Context, connection, q string, payload []byte, cause error) (string, error) {
	doc := failedDocument{
		ID:         id.NewFailedID().String(),
		Connection: connection,
		Queue:      q,
		Payload:    string(payload),
		Exception:  failed.Message(cause),
		FailedAt:   f.now().UTC().Truncate(time.Millisecond),
	}
	if _, err := f.col.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("jobqueue/mongo: log failed job: %w", err)
	}
	return doc.ID, nil
}

// All returns every entry, newest first.
func (f *FailedStore) All(ctx context.Context) ([]*failed.Entry, error) {
	cursor, err := f.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{
		{Key: "failed_at", Value: -1},
		{Key: "_id", Value: -1},
	}))
	if err != nil {
		return nil, fmt.Errorf("jobqueue/mongo: list failed jobs: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []failedDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("jobqueue/mongo: list failed jobs decode: %w", err)
	}
	out := make([]*failed.Entry, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].entry())
	}
	return out, nil
}

// Find returns one entry.
func (f *FailedStore) Find(ctx context.Context, entryID string) (*failed.Entry, error) {
	var doc failedDocument
	err := f.col.FindOne(ctx, bson.M{"_id": entryID}).Decode(&doc)
	if isNoDocuments(err) {
		return nil, fmt.Errorf("%w: %s", jobqueue.ErrFailedJobNotFound, entryID)
	}
	if err != nil {
		return nil, fmt.Errorf("jobqueue/mongo: find failed job: %w", err)
	}
	return doc.entry(), nil
}

// Forget deletes one entry.
func (f *FailedStore) Forget(ctx context.Context, entryID string) (bool, error) {
	res, err := f.col.DeleteOne(ctx, bson.M{"_id": entryID})
	if err != nil {
		return false, fmt.Errorf("jobqueue/mongo: forget failed job: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// Flush deletes every entry.
func (f *FailedStore) Flush(ctx context.Context) error {
	if _, err := f.col.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("jobqueue/mongo: flush failed jobs: %w", err)
	}
	return nil
}
