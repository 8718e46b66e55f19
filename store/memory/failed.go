package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/failed"
	"github.com/xraph/jobqueue/id"
)

var _ failed.Store = (*FailedStore)(nil)

// FailedStore is an in-memory failed-job store.
type FailedStore struct {
	mu      sync.RWMutex
	now     func() time.Time
	entries map[string]*failed.Entry
}

// NewFailedStore returns an empty FailedStore.
func NewFailedStore() *FailedStore {
	return &FailedStore{
		now:     time.Now,
		entries: make(map[string]*failed.Entry),
	}
}

// Log appends a failed job.
func (f *FailedStore) Log(_ context.Context, connection, q string, payload []byte, cause error) (string, error) {
	e := &failed.Entry{
		ID:         id.NewFailedID().String(),
		Connection: connection,
		Queue:      q,
		Payload:    append([]byte(nil), payload...),
		Exception:  failed.Message(cause),
		FailedAt:   f.now().UTC(),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[e.ID] = e
	return e.ID, nil
}

// All returns every entry, newest first.
func (f *FailedStore) All(_ context.Context) ([]*failed.Entry, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]*failed.Entry, 0, len(f.entries))
	for _, e := range f.entries {
		cp := *e
		out = append(out, &cp)
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
func (f *FailedStore) Find(_ context.Context, entryID string) (*failed.Entry, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.entries[entryID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", jobqueue.ErrFailedJobNotFound, entryID)
	}
	cp := *e
	return &cp, nil
}

// Forget deletes one entry.
func (f *FailedStore) Forget(_ context.Context, entryID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[entryID]
	delete(f.entries, entryID)
	return ok, nil
}

// Flush deletes every entry.
func (f *FailedStore) Flush(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = make(map[string]*failed.Entry)
	return nil
}
