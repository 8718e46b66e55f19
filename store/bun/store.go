package bunstore

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/queue"
)

// Driver is the connector name this package registers under.
const Driver = "database"

var _ queue.Backend = (*Store)(nil)

// Store is a queue backend over one SQL table.
// The caller owns the *bun.DB lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
	cfg    queue.Config
	now    queue.Clock
	logger *slog.Logger
}

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

// New creates a Bun store for cfg. The table is cfg.Collection.
func New(db *bun.DB, cfg queue.Config, opts ...Option) *Store {
	d := queue.DefaultConfig()
	d.Driver = Driver
	s := &Store{
		db:     db,
		cfg:    cfg.WithDefaults(d),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewConnector returns a connector that builds and migrates a Store per
// connection on db.
func NewConnector(db *bun.DB, opts ...Option) queue.Connector {
	return queue.ConnectorFunc(func(ctx context.Context, cfg queue.Config) (queue.Backend, error) {
		s := New(db, cfg, opts...)
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	})
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB { return s.db }

// Config returns the resolved connection config.
func (s *Store) Config() queue.Config { return s.cfg }

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error { return nil }

func (s *Store) table() bun.Ident { return bun.Ident(s.cfg.Collection) }

// Migrate creates the table and its lease index if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*jobModel)(nil)).
		ModelTableExpr("?", s.table()).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobqueue/bun: create table %s: %w", s.cfg.Collection, err)
	}

	_, err = s.db.NewCreateIndex().
		Model((*jobModel)(nil)).
		ModelTableExpr("?", s.table()).
		Index(s.cfg.Collection+"_queue_reserved_idx").
		Column("queue", "reserved", "available_at").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobqueue/bun: create index on %s: %w", s.cfg.Collection, err)
	}

	s.logger.Debug("queue table ensured", slog.String("table", s.cfg.Collection))
	return nil
}

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

// PushRaw inserts one row.
func (s *Store) PushRaw(ctx context.Context, payload []byte, q string, opts queue.PushOptions) (string, error) {
	m := s.newModel(payload, q, opts)
	_, err := s.db.NewInsert().Model(m).ModelTableExpr("?", s.table()).Returning("id").Exec(ctx)
	if err != nil {
		return "", fmt.Errorf("jobqueue/bun: push job: %w", err)
	}
	return strconv.FormatInt(m.ID, 10), nil
}

// Bulk inserts one row per job type in a single transaction.
func (s *Store) Bulk(ctx context.Context, jobTypes []string, args job.Args, q string) ([]string, error) {
	if len(jobTypes) == 0 {
		return nil, nil
	}
	models := make([]*jobModel, 0, len(jobTypes))
	for _, jt := range jobTypes {
		payload, err := job.EncodeJob(jt, args)
		if err != nil {
			return nil, err
		}
		models = append(models, s.newModel(payload, q, queue.PushOptions{}))
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&models).ModelTableExpr("?", s.table()).Returning("id").Exec(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("jobqueue/bun: bulk push: %w", err)
	}

	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, strconv.FormatInt(m.ID, 10))
	}
	return ids, nil
}

func (s *Store) newModel(payload []byte, q string, opts queue.PushOptions) *jobModel {
	now := s.now()
	return &jobModel{
		Queue:       s.cfg.QueueName(q),
		Payload:     string(payload),
		Attempts:    opts.Attempts,
		AvailableAt: queue.AvailableAt(now, opts.Delay),
		CreatedAt:   queue.Unix(now),
	}
}

func (s *Store) selectJobs() *bun.SelectQuery {
	return s.db.NewSelect().Model((*jobModel)(nil)).ModelTableExpr("? AS j", s.table())
}

// Exists reports whether a row with an identical payload is stored.
func (s *Store) Exists(ctx context.Context, jobType string, args job.Args, q string) (bool, error) {
	payload, err := job.EncodeJob(jobType, args)
	if err != nil {
		return false, err
	}
	ok, err := s.selectJobs().
		Where("j.queue = ?", s.cfg.QueueName(q)).
		Where("j.payload = ?", string(payload)).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("jobqueue/bun: exists: %w", err)
	}
	return ok, nil
}

// Pop returns the leasable row with the lowest id without reserving it.
func (s *Store) Pop(ctx context.Context, q string) (*job.Handle, error) {
	now := s.now()
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).ModelTableExpr("? AS j", s.table()).
		Where("j.queue = ?", s.cfg.QueueName(q)).
		WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.
				Where("j.reserved = ? AND j.available_at <= ?", false, queue.Unix(now)).
				WhereOr("j.reserved = ? AND j.reserved_at <= ?", true, queue.ReclaimCutoff(now, s.cfg.Expire))
		}).
		OrderExpr("j.id ASC").
		Limit(1).
		Scan(ctx)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jobqueue/bun: pop: %w", err)
	}
	return job.NewHandle(m.record(), s), nil
}

// CanRun counts reserved rows against the limit.
func (s *Store) CanRun(ctx context.Context, h *job.Handle) (bool, error) {
	if h.Reserved() {
		return true, nil
	}
	n, err := s.selectJobs().
		Where("j.queue = ?", h.Queue()).
		Where("j.reserved = ?", true).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("jobqueue/bun: count reserved: %w", err)
	}
	return n < s.cfg.Limit, nil
}

// MarkReserved updates the row only if its attempts still equal the
// handle's.
func (s *Store) MarkReserved(ctx context.Context, h *job.Handle) error {
	rowID, err := strconv.ParseInt(h.ID(), 10, 64)
	if err != nil {
		return fmt.Errorf("jobqueue/bun: mark reserved %s: %w", h.ID(), jobqueue.ErrLeaseLost)
	}
	now := s.now()

	res, err := s.db.NewUpdate().
		TableExpr("?", s.table()).
		Set("reserved = ?", true).
		Set("reserved_at = ?", queue.Unix(now)).
		Set("attempts = attempts + 1").
		Where("id = ?", rowID).
		Where("queue = ?", h.Queue()).
		Where("attempts = ?", h.Attempts()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobqueue/bun: mark reserved: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("jobqueue/bun: mark reserved: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("jobqueue/bun: mark reserved %s: %w", h.ID(), jobqueue.ErrLeaseLost)
	}
	h.MarkReserved(now)
	return nil
}

// DeleteReserved removes the row.
func (s *Store) DeleteReserved(ctx context.Context, q, jobID string) (bool, error) {
	rowID, err := strconv.ParseInt(jobID, 10, 64)
	if err != nil {
		return false, nil
	}
	res, err := s.db.NewDelete().
		TableExpr("?", s.table()).
		Where("id = ?", rowID).
		Where("queue = ?", s.cfg.QueueName(q)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("jobqueue/bun: delete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("jobqueue/bun: delete job: %w", err)
	}
	return n > 0, nil
}

// Release inserts h's payload as a new row carrying its attempts.
func (s *Store) Release(ctx context.Context, h *job.Handle, delay time.Duration) (string, error) {
	return s.PushRaw(ctx, h.RawPayload(), h.Queue(), queue.PushOptions{Delay: delay, Attempts: h.Attempts()})
}

// GetJobByID loads one row. Non-numeric ids are unknown.
func (s *Store) GetJobByID(ctx context.Context, q, jobID string) (*job.Handle, error) {
	rowID, err := strconv.ParseInt(jobID, 10, 64)
	if err != nil {
		return nil, nil
	}
	m := new(jobModel)
	err = s.db.NewSelect().Model(m).ModelTableExpr("? AS j", s.table()).
		Where("j.id = ?", rowID).
		Where("j.queue = ?", s.cfg.QueueName(q)).
		Limit(1).
		Scan(ctx)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jobqueue/bun: get job: %w", err)
	}
	return job.NewHandle(m.record(), s), nil
}

// Size counts the queue's rows.
func (s *Store) Size(ctx context.Context, q string) (int64, error) {
	n, err := s.selectJobs().Where("j.queue = ?", s.cfg.QueueName(q)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("jobqueue/bun: size: %w", err)
	}
	return int64(n), nil
}
