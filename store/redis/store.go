package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/queue"
)

// Driver is the connector name this package registers under.
const Driver = "redis"

const (
	popBatch          = 50
	maxReserveRetries = 3
)

var _ queue.Backend = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock sets the time source.
func WithClock(c queue.Clock) Option {
	return func(s *Store) { s.now = c }
}

// Store is a queue backend over Redis sorted sets and hashes.
type Store struct {
	client goredis.UniversalClient
	cfg    queue.Config
	now    queue.Clock
	logger *slog.Logger
}

// New creates a Redis-backed queue for cfg. The caller owns the client.
func New(client goredis.UniversalClient, cfg queue.Config, opts ...Option) *Store {
	d := queue.DefaultConfig()
	d.Driver = Driver
	s := &Store{
		client: client,
		cfg:    cfg.WithDefaults(d),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewConnector returns a connector that builds a Store per connection on
// the shared client.
func NewConnector(client goredis.UniversalClient, opts ...Option) queue.Connector {
	return queue.ConnectorFunc(func(ctx context.Context, cfg queue.Config) (queue.Backend, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("jobqueue/redis: ping: %w", err)
		}
		return New(client, cfg, opts...), nil
	})
}

// Config returns the resolved connection config.
func (s *Store) Config() queue.Config { return s.cfg }

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

func (s *Store) keys(q string) keys {
	return queueKeys(s.cfg.Collection, s.cfg.QueueName(q))
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

// PushRaw stores the payload and schedules its id.
func (s *Store) PushRaw(ctx context.Context, payload []byte, q string, opts queue.PushOptions) (string, error) {
	seq, err := s.client.Incr(ctx, seqKey(s.cfg.Collection)).Result()
	if err != nil {
		return "", fmt.Errorf("jobqueue/redis: next id: %w", err)
	}
	jobID := formatID(seq)

	pipe := s.client.TxPipeline()
	s.insert(ctx, pipe, s.keys(q), jobID, payload, opts)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("jobqueue/redis: push job: %w", err)
	}
	return jobID, nil
}

// Bulk reserves a block of ids and stores every payload in one transaction.
func (s *Store) Bulk(ctx context.Context, jobTypes []string, args job.Args, q string) ([]string, error) {
	if len(jobTypes) == 0 {
		return nil, nil
	}
	payloads := make([][]byte, 0, len(jobTypes))
	for _, jt := range jobTypes {
		p, err := job.EncodeJob(jt, args)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, p)
	}

	last, err := s.client.IncrBy(ctx, seqKey(s.cfg.Collection), int64(len(payloads))).Result()
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: next ids: %w", err)
	}
	first := last - int64(len(payloads)) + 1

	k := s.keys(q)
	ids := make([]string, 0, len(payloads))
	pipe := s.client.TxPipeline()
	for i, p := range payloads {
		jobID := formatID(first + int64(i))
		s.insert(ctx, pipe, k, jobID, p, queue.PushOptions{})
		ids = append(ids, jobID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("jobqueue/redis: bulk push: %w", err)
	}
	return ids, nil
}

func (s *Store) insert(ctx context.Context, pipe goredis.Pipeliner, k keys, jobID string, payload []byte, opts queue.PushOptions) {
	now := s.now()
	pipe.HSet(ctx, k.payload, jobID, payload)
	pipe.ZAdd(ctx, k.queue, goredis.Z{Score: float64(queue.AvailableAt(now, opts.Delay)), Member: jobID})
	pipe.ZAdd(ctx, k.created, goredis.Z{Score: float64(queue.Unix(now)), Member: jobID})
	if opts.Attempts > 0 {
		pipe.ZAdd(ctx, k.attempted, goredis.Z{Score: float64(opts.Attempts), Member: jobID})
	}
}

// Exists scans the payload hash for an identical payload.
func (s *Store) Exists(ctx context.Context, jobType string, args job.Args, q string) (bool, error) {
	payload, err := job.EncodeJob(jobType, args)
	if err != nil {
		return false, err
	}
	want := string(payload)
	key := s.keys(q).payload

	var cursor uint64
	for {
		kv, next, err := s.client.HScan(ctx, key, cursor, "", 100).Result()
		if err != nil {
			return false, fmt.Errorf("jobqueue/redis: scan payloads: %w", err)
		}
		// kv alternates field, value.
		for i := 1; i < len(kv); i += 2 {
			if kv[i] == want {
				return true, nil
			}
		}
		if next == 0 {
			return false, nil
		}
		cursor = next
	}
}

// Pop walks available ids in score order and returns the first one that is
// not held by a fresh reservation.
func (s *Store) Pop(ctx context.Context, q string) (*job.Handle, error) {
	k := s.keys(q)
	now := s.now()
	maxScore := strconv.FormatInt(queue.Unix(now), 10)
	cutoff := queue.ReclaimCutoff(now, s.cfg.Expire)

	for offset := int64(0); ; offset += popBatch {
		ids, err := s.client.ZRangeByScore(ctx, k.queue, &goredis.ZRangeBy{
			Min:    "-inf",
			Max:    maxScore,
			Offset: offset,
			Count:  popBatch,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("jobqueue/redis: pop range: %w", err)
		}

		for _, jobID := range ids {
			reservedAt, err := s.client.ZScore(ctx, k.reserved, jobID).Result()
			switch {
			case errors.Is(err, goredis.Nil):
			case err != nil:
				return nil, fmt.Errorf("jobqueue/redis: pop reserved score: %w", err)
			case int64(reservedAt) > cutoff:
				continue
			}

			h, err := s.GetJobByID(ctx, q, jobID)
			if err != nil {
				return nil, err
			}
			if h != nil {
				return h, nil
			}
		}

		if len(ids) < popBatch {
			return nil, nil
		}
	}
}

// CanRun compares the reserved set's cardinality with the limit.
func (s *Store) CanRun(ctx context.Context, h *job.Handle) (bool, error) {
	if h.Reserved() {
		return true, nil
	}
	n, err := s.client.ZCard(ctx, s.keys(h.Queue()).reserved).Result()
	if err != nil {
		return false, fmt.Errorf("jobqueue/redis: count reserved: %w", err)
	}
	return n < int64(s.cfg.Limit), nil
}

// MarkReserved sets reserved_at and increments attempts in one MULTI,
// provided the stored attempts still equal the handle's.
func (s *Store) MarkReserved(ctx context.Context, h *job.Handle) error {
	k := s.keys(h.Queue())
	now := s.now()

	txf := func(tx *goredis.Tx) error {
		exists, err := tx.HExists(ctx, k.payload, h.ID()).Result()
		if err != nil {
			return err
		}
		if !exists {
			return jobqueue.ErrLeaseLost
		}
		attempts, err := tx.ZScore(ctx, k.attempted, h.ID()).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if int(attempts) != h.Attempts() {
			return jobqueue.ErrLeaseLost
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.ZAdd(ctx, k.reserved, goredis.Z{Score: float64(queue.Unix(now)), Member: h.ID()})
			pipe.ZIncrBy(ctx, k.attempted, 1, h.ID())
			return nil
		})
		return err
	}

	for i := 0; i < maxReserveRetries; i++ {
		err := s.client.Watch(ctx, txf, k.attempted)
		switch {
		case err == nil:
			h.MarkReserved(now)
			return nil
		case errors.Is(err, goredis.TxFailedErr):
			s.logger.Debug("reservation contended, retrying",
				slog.String("job_id", h.ID()),
				slog.String("queue", h.Queue()),
			)
			continue
		case errors.Is(err, jobqueue.ErrLeaseLost):
			return fmt.Errorf("jobqueue/redis: mark reserved %s: %w", h.ID(), err)
		default:
			return fmt.Errorf("jobqueue/redis: mark reserved %s: %w", h.ID(), err)
		}
	}
	return fmt.Errorf("jobqueue/redis: mark reserved %s: %w", h.ID(), jobqueue.ErrLeaseLost)
}

// DeleteReserved removes id from every key of q in one MULTI.
func (s *Store) DeleteReserved(ctx context.Context, q, jobID string) (bool, error) {
	k := s.keys(q)

	pipe := s.client.TxPipeline()
	deleted := pipe.HDel(ctx, k.payload, jobID)
	pipe.ZRem(ctx, k.queue, jobID)
	pipe.ZRem(ctx, k.reserved, jobID)
	pipe.ZRem(ctx, k.attempted, jobID)
	pipe.ZRem(ctx, k.created, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("jobqueue/redis: delete job: %w", err)
	}
	return deleted.Val() > 0, nil
}

// Release pushes h's payload back with its attempts after delay.
func (s *Store) Release(ctx context.Context, h *job.Handle, delay time.Duration) (string, error) {
	return s.PushRaw(ctx, h.RawPayload(), h.Queue(), queue.PushOptions{Delay: delay, Attempts: h.Attempts()})
}

// GetJobByID assembles a record from the queue's keys.
func (s *Store) GetJobByID(ctx context.Context, q, jobID string) (*job.Handle, error) {
	if jobID == "" {
		return nil, nil
	}
	k := s.keys(q)

	pipe := s.client.Pipeline()
	payload := pipe.HGet(ctx, k.payload, jobID)
	available := pipe.ZScore(ctx, k.queue, jobID)
	reserved := pipe.ZScore(ctx, k.reserved, jobID)
	attempted := pipe.ZScore(ctx, k.attempted, jobID)
	created := pipe.ZScore(ctx, k.created, jobID)
	// Exec only reports the first failed command; a missing score comes
	// back as goredis.Nil and may mask a later error, so each is checked.
	_, _ = pipe.Exec(ctx)

	raw, err := payload.Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: get job payload: %w", err)
	}

	var scores [4]float64
	var present [4]bool
	for i, cmd := range []*goredis.FloatCmd{available, reserved, attempted, created} {
		v, err := cmd.Result()
		switch {
		case err == nil:
			scores[i], present[i] = v, true
		case errors.Is(err, goredis.Nil):
		default:
			return nil, fmt.Errorf("jobqueue/redis: get job: %w", err)
		}
	}

	rec := job.Record{
		ID:          jobID,
		Queue:       s.cfg.QueueName(q),
		Payload:     raw,
		Attempts:    int(scores[2]),
		AvailableAt: queue.FromUnix(int64(scores[0])),
		CreatedAt:   queue.FromUnix(int64(scores[3])),
	}
	if present[1] {
		t := queue.FromUnix(int64(scores[1]))
		rec.Reserved = true
		rec.ReservedAt = &t
	}
	return job.NewHandle(rec, s), nil
}

// Size returns the cardinality of the queue's schedule.
func (s *Store) Size(ctx context.Context, q string) (int64, error) {
	n, err := s.client.ZCard(ctx, s.keys(q).queue).Result()
	if err != nil {
		return 0, fmt.Errorf("jobqueue/redis: size: %w", err)
	}
	return n, nil
}
