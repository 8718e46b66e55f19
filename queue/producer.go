package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/jobqueue/job"
)

// DispatchOption selects where a producer call enqueues.
type DispatchOption func(*dispatchOptions)

type dispatchOptions struct {
	connection string
	queue      string
}

// OnConnection targets a named connection instead of the default one.
func OnConnection(name string) DispatchOption {
	return func(o *dispatchOptions) { o.connection = name }
}

// OnQueue targets a queue instead of the connection's default queue.
func OnQueue(name string) DispatchOption {
	return func(o *dispatchOptions) { o.queue = name }
}

// Producer enqueues jobs through a Manager.
//
// The unique variants check Exists before pushing. The check and the push
// are separate round trips, so two producers racing on the same job can
// both push it.
type Producer struct {
	manager *Manager
	logger  *slog.Logger
}

// NewProducer creates a producer over m.
func NewProducer(m *Manager) *Producer {
	return &Producer{manager: m, logger: m.logger}
}

// Push enqueues jobType with args.
func (p *Producer) Push(ctx context.Context, jobType string, args job.Args, opts ...DispatchOption) (string, error) {
	b, o, err := p.resolve(ctx, opts)
	if err != nil {
		return "", err
	}
	id, err := b.Push(ctx, jobType, args, o.queue)
	if err != nil {
		return "", err
	}
	p.logPushed(jobType, id, b.Config().QueueName(o.queue), 0)
	return id, nil
}

// PushUnique enqueues jobType with args unless an identical job is already
// queued. It reports whether a job was pushed.
func (p *Producer) PushUnique(ctx context.Context, jobType string, args job.Args, opts ...DispatchOption) (string, bool, error) {
	return p.LaterUnique(ctx, 0, jobType, args, opts...)
}

// Later enqueues jobType with args, available after delay.
func (p *Producer) Later(ctx context.Context, delay time.Duration, jobType string, args job.Args, opts ...DispatchOption) (string, error) {
	b, o, err := p.resolve(ctx, opts)
	if err != nil {
		return "", err
	}
	id, err := b.Later(ctx, delay, jobType, args, o.queue)
	if err != nil {
		return "", err
	}
	p.logPushed(jobType, id, b.Config().QueueName(o.queue), delay)
	return id, nil
}

// LaterUnique is Later guarded by Exists. It reports whether a job was
// pushed.
func (p *Producer) LaterUnique(ctx context.Context, delay time.Duration, jobType string, args job.Args, opts ...DispatchOption) (string, bool, error) {
	b, o, err := p.resolve(ctx, opts)
	if err != nil {
		return "", false, err
	}
	exists, err := b.Exists(ctx, jobType, args, o.queue)
	if err != nil {
		return "", false, err
	}
	if exists {
		p.logger.Debug("duplicate job not pushed",
			slog.String("job", jobType),
			slog.String("queue", b.Config().QueueName(o.queue)),
		)
		return "", false, nil
	}

	var id string
	if delay > 0 {
		id, err = b.Later(ctx, delay, jobType, args, o.queue)
	} else {
		id, err = b.Push(ctx, jobType, args, o.queue)
	}
	if err != nil {
		return "", false, err
	}
	p.logPushed(jobType, id, b.Config().QueueName(o.queue), delay)
	return id, true, nil
}

// Bulk enqueues one job per type, all with args.
func (p *Producer) Bulk(ctx context.Context, jobTypes []string, args job.Args, opts ...DispatchOption) ([]string, error) {
	b, o, err := p.resolve(ctx, opts)
	if err != nil {
		return nil, err
	}
	return b.Bulk(ctx, jobTypes, args, o.queue)
}

// Dispatch enqueues a custom payload, for jobs that carry max tries or
// timeouts.
func (p *Producer) Dispatch(ctx context.Context, payload job.Payload, delay time.Duration, opts ...DispatchOption) (string, error) {
	raw, err := job.Encode(payload)
	if err != nil {
		return "", err
	}
	b, o, err := p.resolve(ctx, opts)
	if err != nil {
		return "", err
	}
	id, err := b.PushRaw(ctx, raw, o.queue, PushOptions{Delay: delay})
	if err != nil {
		return "", err
	}
	p.logPushed(payload.Job, id, b.Config().QueueName(o.queue), delay)
	return id, nil
}

func (p *Producer) resolve(ctx context.Context, opts []DispatchOption) (Backend, dispatchOptions, error) {
	var o dispatchOptions
	for _, opt := range opts {
		opt(&o)
	}
	b, err := p.manager.Connection(ctx, o.connection)
	return b, o, err
}

func (p *Producer) logPushed(jobType, id, queue string, delay time.Duration) {
	p.logger.Debug("job pushed",
		slog.String("job", jobType),
		slog.String("job_id", id),
		slog.String("queue", queue),
		slog.Duration("delay", delay),
	)
}
