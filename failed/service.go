package failed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/queue"
)

// Connections resolves the connection an entry is replayed onto.
// *queue.Manager satisfies it.
type Connections interface {
	Connection(ctx context.Context, name string) (queue.Backend, error)
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger for the service.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// Service replays quarantined jobs.
type Service struct {
	store  Store
	conns  Connections
	logger *slog.Logger
}

// NewService creates a replay service.
func NewService(store Store, conns Connections, opts ...ServiceOption) *Service {
	s := &Service{store: store, conns: conns, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying store for listing and purging.
func (s *Service) Store() Store { return s.store }

// Retry pushes entry id back onto its original connection and queue with
// its original payload, then forgets the entry.
func (s *Service) Retry(ctx context.Context, id string) error {
	e, err := s.store.Find(ctx, id)
	if err != nil {
		return err
	}
	return s.replay(ctx, e)
}

// RetryAll replays every entry and returns how many were pushed back.
// Entries that fail to replay are kept and their errors joined.
func (s *Service) RetryAll(ctx context.Context) (int, error) {
	entries, err := s.store.All(ctx)
	if err != nil {
		return 0, err
	}

	var (
		n    int
		errs []error
	)
	for _, e := range entries {
		if err := s.replay(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("retry %s: %w", e.ID, err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

func (s *Service) replay(ctx context.Context, e *Entry) error {
	if err := validatePayload(e.Payload); err != nil {
		return err
	}

	b, err := s.conns.Connection(ctx, e.Connection)
	if err != nil {
		return err
	}
	jobID, err := b.PushRaw(ctx, e.Payload, e.Queue, queue.PushOptions{})
	if err != nil {
		return err
	}
	if _, err := s.store.Forget(ctx, e.ID); err != nil {
		return fmt.Errorf("forget %s: %w", e.ID, err)
	}

	s.logger.Info("failed job pushed back",
		slog.String("failed_id", e.ID),
		slog.String("job_id", jobID),
		slog.String("connection", e.Connection),
		slog.String("queue", e.Queue),
	)
	return nil
}

func validatePayload(raw []byte) error {
	var p struct {
		Job  *string         `json:"job"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("%w: %w", jobqueue.ErrMalformedFailedPayload, err)
	}
	if p.Job == nil || *p.Job == "" || len(p.Data) == 0 || string(p.Data) == "null" {
		return jobqueue.ErrMalformedFailedPayload
	}
	return nil
}
