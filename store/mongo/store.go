package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/queue"
)

// Driver is the connector name this package registers under.
const Driver = "mongodb"

var _ queue.Backend = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock sets the time source.
func WithClock(c queue.Clock) Option {
	return func(s *Store) { s.now = c }
}

// Store is a queue backend over one MongoDB collection.
type Store struct {
	col    *mongod.Collection
	cfg    queue.Config
	now    queue.Clock
	logger *slog.Logger
}

// New creates a store on db for cfg. Call Migrate before first use.
func New(db *mongod.Database, cfg queue.Config, opts ...Option) *Store {
	d := queue.DefaultConfig()
	d.Driver = Driver
	cfg = cfg.WithDefaults(d)
	s := &Store{
		col:    db.Collection(cfg.Collection),
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to uri and verifies the primary is reachable.
func Dial(ctx context.Context, uri string) (*mongod.Client, error) {
	client, err := mongod.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("jobqueue/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("jobqueue/mongo: ping: %w", err)
	}
	return client, nil
}

// NewConnector returns a connector that builds and migrates a Store per
// connection on db.
func NewConnector(db *mongod.Database, opts ...Option) queue.Connector {
	return queue.ConnectorFunc(func(ctx context.Context, cfg queue.Config) (queue.Backend, error) {
		s := New(db, cfg, opts...)
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	})
}

// Migrate creates the lease and schedule indexes.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongod.IndexModel{
		{Keys: bson.D{
			{Key: "queue", Value: 1},
			{Key: "reserved", Value: 1},
			{Key: "available_at", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "queue", Value: 1},
			{Key: "reserved_at", Value: 1},
		}},
	})
	if err != nil {
		return fmt.Errorf("jobqueue/mongo: migrate %s indexes: %w", s.cfg.Collection, err)
	}
	s.logger.Debug("queue indexes ensured", slog.String("collection", s.cfg.Collection))
	return nil
}

// Config returns the resolved connection config.
func (s *Store) Config() queue.Config { return s.cfg }

// Close is a no-op because the caller owns the client.
func (s *Store) Close() error { return nil }

// Push enqueues jobType with args, available now.
func (s *Store) Push(ctx context.Context, jobType string, args job.Args, q string) (string, error) {
	return s.Later(ctx, 0, jobType, args, q)
}

// Later enqueues jobType with args, available after delay.
func (s *Store) Later(ctx context.Context, delay time.Duration, jobType string, args job.Args, q string) (string, error) {
	payload, err := job.EncodeJob(jobType, args)
	if err != nil {
		return "", err
	}
	return s.PushRaw(ctx, payload, q, queue.PushOptions{Delay: delay})
}

// PushRaw inserts one document.
func (s *Store) PushRaw(ctx context.Context, payload []byte, q string, opts queue.PushOptions) (string, error) {
	doc := s.newDocument(payload, q, opts)
	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("jobqueue/mongo: push job: %w", err)
	}
	return doc.ID.Hex(), nil
}

// Bulk inserts one document per job type in a single call.
func (s *Store) Bulk(ctx context.Context, jobTypes []string, args job.Args, q string) ([]string, error) {
	if len(jobTypes) == 0 {
		return nil, nil
	}
	docs := make([]any, 0, len(jobTypes))
	ids := make([]string, 0, len(jobTypes))
	for _, jt := range jobTypes {
		payload, err := job.EncodeJob(jt, args)
		if err != nil {
			return nil, err
		}
		doc := s.newDocument(payload, q, queue.PushOptions{})
		docs = append(docs, doc)
		ids = append(ids, doc.ID.Hex())
	}
	if _, err := s.col.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return nil, fmt.Errorf("jobqueue/mongo: bulk push: %w", err)
	}
	return ids, nil
}

func (s *Store) newDocument(payload []byte, q string, opts queue.PushOptions) *jobDocument {
	now := s.now()
	return &jobDocument{
		ID:          bson.NewObjectID(),
		Queue:       s.cfg.QueueName(q),
		Payload:     string(payload),
		Attempts:    opts.Attempts,
		AvailableAt: queue.AvailableAt(now, opts.Delay),
		CreatedAt:   queue.Unix(now),
	}
}

// Exists reports whether a document with an identical payload is stored.
func (s *Store) Exists(ctx context.Context, jobType string, args job.Args, q string) (bool, error) {
	payload, err := job.EncodeJob(jobType, args)
	if err != nil {
		return false, err
	}
	n, err := s.col.CountDocuments(ctx,
		bson.M{"queue": s.cfg.QueueName(q), "payload": string(payload)},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, fmt.Errorf("jobqueue/mongo: exists: %w", err)
	}
	return n > 0, nil
}

// Pop returns the oldest leasable document without reserving it.
func (s *Store) Pop(ctx context.Context, q string) (*job.Handle, error) {
	now := s.now()
	filter := bson.M{
		"queue": s.cfg.QueueName(q),
		"$or": bson.A{
			bson.M{"reserved": false, "available_at": bson.M{"$lte": queue.Unix(now)}},
			bson.M{"reserved": true, "reserved_at": bson.M{"$lte": queue.ReclaimCutoff(now, s.cfg.Expire)}},
		},
	}

	var doc jobDocument
	err := s.col.FindOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}})).Decode(&doc)
	if isNoDocuments(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jobqueue/mongo: pop: %w", err)
	}
	return job.NewHandle(doc.record(), s), nil
}

// CanRun counts reserved documents against the limit.
func (s *Store) CanRun(ctx context.Context, h *job.Handle) (bool, error) {
	if h.Reserved() {
		return true, nil
	}
	n, err := s.col.CountDocuments(ctx, bson.M{"queue": h.Queue(), "reserved": true})
	if err != nil {
		return false, fmt.Errorf("jobqueue/mongo: count reserved: %w", err)
	}
	return n < int64(s.cfg.Limit), nil
}

// MarkReserved updates the document only if its attempts still equal the
// handle's.
func (s *Store) MarkReserved(ctx context.Context, h *job.Handle) error {
	oid, err := bson.ObjectIDFromHex(h.ID())
	if err != nil {
		return fmt.Errorf("jobqueue/mongo: mark reserved %s: %w", h.ID(), jobqueue.ErrLeaseLost)
	}
	now := s.now()

	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": oid, "queue": h.Queue(), "attempts": h.Attempts()},
		bson.M{
			"$set": bson.M{"reserved": true, "reserved_at": queue.Unix(now)},
			"$inc": bson.M{"attempts": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("jobqueue/mongo: mark reserved: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("jobqueue/mongo: mark reserved %s: %w", h.ID(), jobqueue.ErrLeaseLost)
	}
	h.MarkReserved(now)
	return nil
}

// DeleteReserved removes the document.
func (s *Store) DeleteReserved(ctx context.Context, q, jobID string) (bool, error) {
	oid, err := bson.ObjectIDFromHex(jobID)
	if err != nil {
		return false, nil
	}
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": oid, "queue": s.cfg.QueueName(q)})
	if err != nil {
		return false, fmt.Errorf("jobqueue/mongo: delete job: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// Release inserts h's payload as a new document carrying its attempts.
func (s *Store) Release(ctx context.Context, h *job.Handle, delay time.Duration) (string, error) {
	return s.PushRaw(ctx, h.RawPayload(), h.Queue(), queue.PushOptions{Delay: delay, Attempts: h.Attempts()})
}

// GetJobByID loads one document. Ids that are not object ids are unknown.
func (s *Store) GetJobByID(ctx context.Context, q, jobID string) (*job.Handle, error) {
	oid, err := bson.ObjectIDFromHex(jobID)
	if err != nil {
		return nil, nil
	}
	var doc jobDocument
	err = s.col.FindOne(ctx, bson.M{"_id": oid, "queue": s.cfg.QueueName(q)}).Decode(&doc)
	if isNoDocuments(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jobqueue/mongo: get job: %w", err)
	}
	return job.NewHandle(doc.record(), s), nil
}

// Size counts the queue's documents.
func (s *Store) Size(ctx context.Context, q string) (int64, error) {
	n, err := s.col.CountDocuments(ctx, bson.M{"queue": s.cfg.QueueName(q)})
	if err != nil {
		return 0, fmt.Errorf("jobqueue/mongo: size: %w", err)
	}
	return n, nil
}

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}
