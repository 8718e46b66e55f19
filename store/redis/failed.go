package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/failed"
	"github.com/xraph/jobqueue/id"
)

// DefaultFailedKey is the hash failed jobs are logged to.
const DefaultFailedKey = "queue_jobs_failed"

var _ failed.Store = (*FailedStore)(nil)

// failedEntry is the JSON value stored per hash field.
type failedEntry struct {
	Connection string `json:"connection"`
	Queue      string `json:"queue"`
	Payload    string `json:"payload"`
	Exception  string `json:"exception"`
	FailedAt   int64  `json:"failed_at"`
}

// FailedStore keeps failed jobs in a single hash keyed by entry id.
type FailedStore struct {
	client goredis.UniversalClient
	key    string
	now    func() time.Time
}

// NewFailedStore returns a FailedStore on key, or DefaultFailedKey when
// key is empty.
func NewFailedStore(client goredis.UniversalClient, key string) *FailedStore {
	if key == "" {
		key = DefaultFailedKey
	}
	return &FailedStore{client: client, key: key, now: time.Now}
}

// Log writes a new entry.
func (f *FailedStore) Log(ctx context.Context, connection, q string, payload []byte, cause error) (string, error) {
	entryID := id.NewFailedID().String()
	raw, err := json.Marshal(failedEntry{
		Connection: connection,
		Queue:      q,
		Payload:    string(payload),
		Exception:  failed.Message(cause),
		FailedAt:   f.now().Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("jobqueue/redis: marshal failed job: %w", err)
	}
	if err := f.client.HSet(ctx, f.key, entryID, raw).Err(); err != nil {
		return "", fmt.Errorf("jobqueue/redis: log failed job: %w", err)
	}
	return entryID, nil
}

// All returns every entry, newest first.
func (f *FailedStore) All(ctx context.Context) ([]*failed.Entry, error) {
	all, err := f.client.HGetAll(ctx, f.key).Result()
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: list failed jobs: %w", err)
	}

	out := make([]*failed.Entry, 0, len(all))
	for entryID, raw := range all {
		e, err := decodeFailed(entryID, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FailedAt.Equal(out[j].FailedAt) {
			return out[i].FailedAt.After(out[j].FailedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Find returns one entry.
func (f *FailedStore) Find(ctx context.Context, entryID string) (*failed.Entry, error) {
	raw, err := f.client.HGet(ctx, f.key, entryID).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: %s", jobqueue.ErrFailedJobNotFound, entryID)
	}
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: find failed job: %w", err)
	}
	return decodeFailed(entryID, raw)
}

// Forget deletes one entry.
func (f *FailedStore) Forget(ctx context.Context, entryID string) (bool, error) {
	n, err := f.client.HDel(ctx, f.key, entryID).Result()
	if err != nil {
		return false, fmt.Errorf("jobqueue/redis: forget failed job: %w", err)
	}
	return n > 0, nil
}

// Flush deletes the hash.
func (f *FailedStore) Flush(ctx context.Context) error {
	if err := f.client.Del(ctx, f.key).Err(); err != nil {
		return fmt.Errorf("jobqueue/redis: flush failed jobs: %w", err)
	}
	return nil
}

func decodeFailed(entryID, raw string) (*failed.Entry, error) {
	var fe failedEntry
	if err := json.Unmarshal([]byte(raw), &fe); err != nil {
		return nil, fmt.Errorf("jobqueue/redis: decode failed job %s: %w", entryID, err)
	}
	return &failed.Entry{
		ID:         entryID,
		Connection: fe.Connection,
		Queue:      fe.Queue,
		Payload:    []byte(fe.Payload),
		Exception:  fe.Exception,
		FailedAt:   time.Unix(fe.FailedAt, 0).UTC(),
	}, nil
}
