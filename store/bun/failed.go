package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/failed"
	"github.com/xraph/jobqueue/id"
)

// DefaultFailedTable holds failed jobs when no name is given.
const DefaultFailedTable = "queue_jobs_failed"

var _ failed.Store = (*FailedStore)(nil)

// FailedStore keeps failed jobs in a SQL table.
type FailedStore struct {
	db    *bun.DB
	table string
	now   func() time.Time
}

// NewFailedStore returns a FailedStore on table.
func NewFailedStore(db *bun.DB, table string) *FailedStore {
	if table == "" {
		table = DefaultFailedTable
	}
	return &FailedStore{db: db, table: table, now: time.Now}
}

// Migrate creates the table if it does not exist.
func (f *FailedStore) Migrate(ctx context.Context) error {
	_, err := f.db.NewCreateTable().
		Model((*failedModel)(nil)).
		ModelTableExpr("?", bun.Ident(f.table)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobqueue/bun: create table %s: %w", f.table, err)
	}
	return nil
}

// Log inserts a new entry.
func (f *FailedStore) Log(ctx context.Context, connection, q string, payload []byte, cause error) (string, error) {
	m := &failedModel{
		ID:         id.NewFailedID().String(),
		Connection: connection,
		Queue:      q,
		Payload:    string(payload),
		Exception:  failed.Message(cause),
		FailedAt:   f.now().Unix(),
	}
	if _, err := f.db.NewInsert().Model(m).ModelTableExpr("?", bun.Ident(f.table)).Exec(ctx); err != nil {
		return "", fmt.Errorf("jobqueue/bun: log failed job: %w", err)
	}
	return m.ID, nil
}

// All returns every entry, newest first.
func (f *FailedStore) All(ctx context.Context) ([]*failed.Entry, error) {
	var models []failedModel
	err := f.db.NewSelect().Model(&models).ModelTableExpr("? AS f", bun.Ident(f.table)).
		OrderExpr("f.failed_at DESC, f.id DESC").
		Scan(ctx)
	if err != nil && !isNoRows(err) {
		return nil, fmt.Errorf("jobqueue/bun: list failed jobs: %w", err)
	}
	out := make([]*failed.Entry, 0, len(models))
	for i := range models {
		out = append(out, models[i].entry())
	}
	return out, nil
}

// Find returns one entry.
func (f *FailedStore) Find(ctx context.Context, entryID string) (*failed.Entry, error) {
	m := new(failedModel)
	err := f.db.NewSelect().Model(m).ModelTableExpr("? AS f", bun.Ident(f.table)).
		Where("f.id = ?", entryID).
		Limit(1).
		Scan(ctx)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: %s", jobqueue.ErrFailedJobNotFound, entryID)
	}
	if err != nil {
		return nil, fmt.Errorf("jobqueue/bun: find failed job: %w", err)
	}
	return m.entry(), nil
}

// Forget deletes one entry.
func (f *FailedStore) Forget(ctx context.Context, entryID string) (bool, error) {
	res, err := f.db.NewDelete().TableExpr("?", bun.Ident(f.table)).Where("id = ?", entryID).Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("jobqueue/bun: forget failed job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("jobqueue/bun: forget failed job: %w", err)
	}
	return n > 0, nil
}

// Flush deletes every entry.
func (f *FailedStore) Flush(ctx context.Context) error {
	if _, err := f.db.NewDelete().TableExpr("?", bun.Ident(f.table)).Where("1 = 1").Exec(ctx); err != nil {
		return fmt.Errorf("jobqueue/bun: flush failed jobs: %w", err)
	}
	return nil
}
