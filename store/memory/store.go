// Package memory provides in-process implementations of the queue backend
// and the failed-job store. They are safe for concurrent use and intended
// for tests and single-process development.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/queue"
)

// Driver is the connector name this package registers under.
const Driver = "memory"

var _ queue.Backend = (*Store)(nil)

type entry struct {
	seq int64
	rec job.Record
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source.
func WithClock(c queue.Clock) Option {
	return func(s *Store) { s.now = c }
}

// Store is an in-memory queue backend.
type Store struct {
	mu      sync.RWMutex
	cfg     queue.Config
	now     queue.Clock
	seq     int64
	records map[string]*entry
}

// New returns an empty Store for cfg.
func New(cfg queue.Config, opts ...Option) *Store {
	d := queue.DefaultConfig()
	d.Driver = Driver
	s := &Store{
		cfg:     cfg.WithDefaults(d),
		now:     time.Now,
		records: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewConnector returns a connector that builds a fresh Store per connection.
func NewConnector(opts ...Option) queue.Connector {
	return queue.ConnectorFunc(func(_ context.Context, cfg queue.Config) (queue.Backend, error) {
		return New(cfg, opts...), nil
	})
}

// Config returns the resolved connection config.
func (s *Store) Config() queue.Config { return s.cfg }

// Close is a no-op for the memory store.
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

// PushRaw enqueues a serialized payload.
func (s *Store) PushRaw(_ context.Context, payload []byte, q string, opts queue.PushOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(payload, s.cfg.QueueName(q), opts), nil
}

// Bulk enqueues one job per type under a single lock.
func (s *Store) Bulk(_ context.Context, jobTypes []string, args job.Args, q string) ([]string, error) {
	payloads := make([][]byte, 0, len(jobTypes))
	for _, jt := range jobTypes {
		p, err := job.EncodeJob(jt, args)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(payloads))
	for _, p := range payloads {
		ids = append(ids, s.insertLocked(p, s.cfg.QueueName(q), queue.PushOptions{}))
	}
	return ids, nil
}

func (s *Store) insertLocked(payload []byte, q string, opts queue.PushOptions) string {
	now := s.now()
	s.seq++
	jobID := strconv.FormatInt(s.seq, 10)
	s.records[jobID] = &entry{
		seq: s.seq,
		rec: job.Record{
			ID:          jobID,
			Queue:       q,
			Payload:     append([]byte(nil), payload...),
			Attempts:    opts.Attempts,
			AvailableAt: queue.FromUnix(queue.AvailableAt(now, opts.Delay)),
			CreatedAt:   queue.FromUnix(queue.Unix(now)),
		},
	}
	return jobID
}

// Exists reports whether an identical payload is queued.
func (s *Store) Exists(_ context.Context, jobType string, args job.Args, q string) (bool, error) {
	payload, err := job.EncodeJob(jobType, args)
	if err != nil {
		return false, err
	}
	q = s.cfg.QueueName(q)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.records {
		if e.rec.Queue == q && string(e.rec.Payload) == string(payload) {
			return true, nil
		}
	}
	return false, nil
}

// Pop returns the oldest leasable record in q.
func (s *Store) Pop(_ context.Context, q string) (*job.Handle, error) {
	q = s.cfg.QueueName(q)
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *entry
	for _, e := range s.records {
		if e.rec.Queue != q || !queue.Leasable(e.rec, now, s.cfg.Expire) {
			continue
		}
		if found == nil || e.seq < found.seq {
			found = e
		}
	}
	if found == nil {
		return nil, nil
	}
	return job.NewHandle(copyRecord(found.rec), s), nil
}

// CanRun reports whether h fits under the connection's reservation limit.
func (s *Store) CanRun(_ context.Context, h *job.Handle) (bool, error) {
	if h.Reserved() {
		return true, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	reserved := 0
	for _, e := range s.records {
		if e.rec.Queue == h.Queue() && e.rec.Reserved {
			reserved++
		}
	}
	return reserved < s.cfg.Limit, nil
}

// MarkReserved reserves h if its attempts still match the stored record.
func (s *Store) MarkReserved(_ context.Context, h *job.Handle) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[h.ID()]
	if !ok || e.rec.Attempts != h.Attempts() {
		return fmt.Errorf("jobqueue/memory: mark reserved %s: %w", h.ID(), jobqueue.ErrLeaseLost)
	}

	at := queue.FromUnix(queue.Unix(now))
	e.rec.Reserved = true
	e.rec.ReservedAt = &at
	e.rec.Attempts++
	h.MarkReserved(now)
	return nil
}

// DeleteReserved removes id from q.
func (s *Store) DeleteReserved(_ context.Context, q, jobID string) (bool, error) {
	q = s.cfg.QueueName(q)

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[jobID]
	if !ok || e.rec.Queue != q {
		return false, nil
	}
	delete(s.records, jobID)
	return true, nil
}

// Release pushes h's payload back with its attempts after delay.
func (s *Store) Release(ctx context.Context, h *job.Handle, delay time.Duration) (string, error) {
	return s.PushRaw(ctx, h.RawPayload(), h.Queue(), queue.PushOptions{Delay: delay, Attempts: h.Attempts()})
}

// GetJobByID returns the record with id in q, or nil.
func (s *Store) GetJobByID(_ context.Context, q, jobID string) (*job.Handle, error) {
	q = s.cfg.QueueName(q)

	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[jobID]
	if !ok || e.rec.Queue != q {
		return nil, nil
	}
	return job.NewHandle(copyRecord(e.rec), s), nil
}

// Size returns the number of records in q.
func (s *Store) Size(_ context.Context, q string) (int64, error) {
	q = s.cfg.QueueName(q)

	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, e := range s.records {
		if e.rec.Queue == q {
			n++
		}
	}
	return n, nil
}

func copyRecord(r job.Record) job.Record {
	cp := r
	cp.Payload = append([]byte(nil), r.Payload...)
	if r.ReservedAt != nil {
		at := *r.ReservedAt
		cp.ReservedAt = &at
	}
	return cp
}
