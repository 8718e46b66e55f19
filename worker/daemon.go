package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/queue"
)

// Daemon polls queues on connection until ctx is cancelled or the memory
// watchdog trips. Queues are polled in the listed order on every
// iteration; an empty list polls the connection's default queue.
//
// Poll errors are reported and followed by a sleep. Configuration errors
// end the daemon.
func (w *Worker) Daemon(ctx context.Context, connection string, queues []string, opts Options) error {
	connection = w.connectionName(connection)

	w.logger.Info("worker daemon started",
		slog.String("worker_id", w.id.String()),
		slog.String("connection", connection),
		slog.Any("queues", queues),
	)

	for {
		if ctx.Err() != nil {
			return w.stop(ctx, StopReasonInterrupt)
		}

		ran, err := w.RunNextJob(ctx, connection, queues, opts)
		if err != nil {
			if isConfigError(err) {
				return err
			}
			w.reporter.Report(ctx, connection, nil, err)
			w.sleep(ctx, opts.Sleep)
		} else if !ran {
			w.sleep(ctx, opts.Sleep)
		}

		if w.MemoryExceeded(opts.Memory) {
			return w.stop(ctx, StopReasonMemory)
		}
	}
}

// RunNextJob pops the first available job across queues, admits it,
// reserves it and launches it. It reports whether a job was launched.
func (w *Worker) RunNextJob(ctx context.Context, connection string, queues []string, opts Options) (bool, error) {
	connection = w.connectionName(connection)

	b, err := w.manager.Connection(ctx, connection)
	if err != nil {
		return false, err
	}

	h, err := w.nextJob(ctx, b, queues)
	if err != nil || h == nil {
		return false, err
	}

	ok, err := b.CanRun(ctx, h)
	if err != nil {
		return false, err
	}
	if !ok {
		w.logger.Debug("queue at reservation limit",
			slog.String("queue", h.Queue()),
			slog.Int("limit", b.Config().Limit),
		)
		return false, nil
	}

	if !w.throttle.allow(h.Queue(), opts) {
		w.logger.Debug("queue rate limited", slog.String("queue", h.Queue()))
		return false, nil
	}

	if err := b.MarkReserved(ctx, h); err != nil {
		if errors.Is(err, jobqueue.ErrLeaseLost) {
			w.logger.Debug("job reserved by another worker",
				slog.String("job_id", h.ID()),
				slog.String("queue", h.Queue()),
			)
			return false, nil
		}
		return false, err
	}

	req := LaunchRequest{
		JobID:      h.ID(),
		Connection: connection,
		Queue:      h.Queue(),
		Options:    opts,
	}
	if err := w.launcher.Launch(ctx, req); err != nil {
		// The reservation expires and the job is picked up again.
		return false, fmt.Errorf("launch job %s: %w", h.ID(), err)
	}

	w.logger.Debug("job launched",
		slog.String("job_id", h.ID()),
		slog.String("job_name", h.DisplayName()),
		slog.String("queue", h.Queue()),
		slog.Int("attempts", h.Attempts()),
	)
	return true, nil
}

func (w *Worker) nextJob(ctx context.Context, b queue.Backend, queues []string) (*job.Handle, error) {
	if len(queues) == 0 {
		queues = []string{""}
	}
	for _, q := range queues {
		h, err := b.Pop(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("pop %s: %w", b.Config().QueueName(q), err)
		}
		if h != nil {
			return h, nil
		}
	}
	return nil, nil
}

// stop emits the worker-stopping event. The daemon's context may already
// be cancelled, so hooks get one that is not.
func (w *Worker) stop(ctx context.Context, reason string) error {
	w.extensions.EmitWorkerStopping(context.WithoutCancel(ctx), reason)
	w.logger.Info("worker daemon stopping",
		slog.String("worker_id", w.id.String()),
		slog.String("reason", reason),
	)
	return nil
}

func isConfigError(err error) bool {
	return errors.Is(err, jobqueue.ErrUnknownDriver) || errors.Is(err, jobqueue.ErrConnectionNotConfigured)
}
