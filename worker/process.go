package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/middleware"
)

// RunJobByID executes one reserved job. It is the entry point of the
// isolated process a Launcher starts. A job that no longer exists is
// skipped after a sleep. Execution errors are reported and returned.
func (w *Worker) RunJobByID(ctx context.Context, connection, queueName, jobID string, opts Options) error {
	connection = w.connectionName(connection)

	h, err := w.runJobByID(ctx, connection, queueName, jobID, opts)
	if err != nil {
		w.reporter.Report(ctx, connection, h, err)
		w.sleep(ctx, opts.Sleep)
		return err
	}
	if h == nil {
		w.logger.Warn("job not found",
			slog.String("job_id", jobID),
			slog.String("connection", connection),
			slog.String("queue", queueName),
		)
		w.sleep(ctx, opts.Sleep)
	}
	return nil
}

func (w *Worker) runJobByID(ctx context.Context, connection, queueName, jobID string, opts Options) (*job.Handle, error) {
	b, err := w.manager.Connection(ctx, connection)
	if err != nil {
		return nil, err
	}

	h, err := b.GetJobByID(ctx, queueName, jobID)
	if err != nil || h == nil {
		return nil, err
	}

	if !h.Reserved() {
		if err := b.MarkReserved(ctx, h); err != nil {
			return h, err
		}
	}
	return h, w.Process(ctx, connection, h, opts)
}

// Process fires a reserved job and settles its outcome. A failed attempt
// is released for retry unless the handler already deleted or released
// it, or the job ran out of attempts or time, in which case it is
// quarantined. The attempt's error is returned.
//
// When an attempt times out its handler goroutine is abandoned, not
// stopped, and still holds h while Process releases or quarantines it.
// Handle is not safe for concurrent use, so in-process callers must not
// share h with a handler that can outlive its timeout. RunJobByID in a
// run-job process is safe because the process exits after the attempt.
func (w *Worker) Process(ctx context.Context, connection string, h *job.Handle, opts Options) error {
	w.extensions.EmitJobProcessing(ctx, connection, h)

	if err := w.checkAlreadyExceeded(ctx, connection, h, opts); err != nil {
		return w.handleJobException(ctx, connection, h, opts, err)
	}

	start := time.Now()
	if err := w.fire(ctx, h, opts); err != nil {
		return w.handleJobException(ctx, connection, h, opts, err)
	}

	w.extensions.EmitJobProcessed(ctx, connection, h, time.Since(start))
	return nil
}

// fire runs the handler inside the attempt timeout, panic recovery and the
// configured middleware, in that order from the outside in.
func (w *Worker) fire(ctx context.Context, h *job.Handle, opts Options) error {
	chain := middleware.Chain(
		middleware.Timeout(opts.Timeout, w.logger),
		middleware.Recover(w.logger),
		w.mw,
	)
	return chain(ctx, h, func(ctx context.Context) error {
		return h.Fire(ctx, w.resolver)
	})
}

// checkAlreadyExceeded quarantines a job that is past its deadline or was
// already attempted more than its max tries before this attempt fires.
func (w *Worker) checkAlreadyExceeded(ctx context.Context, connection string, h *job.Handle, opts Options) error {
	maxTries := opts.maxTries(h.MaxTries())

	if deadline, ok := h.TimeoutAt(); ok {
		if !w.now().After(deadline) {
			return nil
		}
	} else if maxTries == 0 || h.Attempts() <= maxTries {
		return nil
	}

	err := fmt.Errorf("%w: %s", jobqueue.ErrMaxAttemptsExceeded, h.DisplayName())
	return errors.Join(err, w.failJob(ctx, connection, h, err))
}

// willExceed reports whether the attempt that just failed was the job's
// last one: its deadline passed or it used up its max tries.
func (w *Worker) willExceed(h *job.Handle, opts Options) bool {
	if deadline, ok := h.TimeoutAt(); ok && !deadline.After(w.now()) {
		return true
	}
	maxTries := opts.maxTries(h.MaxTries())
	return maxTries > 0 && h.Attempts() >= maxTries
}

func (w *Worker) handleJobException(ctx context.Context, connection string, h *job.Handle, opts Options, cause error) error {
	errs := []error{cause}

	if !h.HasFailed() && w.willExceed(h, opts) {
		errs = append(errs, w.failJob(ctx, connection, h, cause))
	}

	w.extensions.EmitJobExceptionOccurred(ctx, connection, h, cause)

	if !h.IsDeletedOrReleased() && !h.HasFailed() {
		delay := w.releaseDelay(h, opts)
		if err := h.Release(ctx, delay); err != nil {
			errs = append(errs, err)
		} else {
			w.logger.Info("job released for retry",
				slog.String("job_id", h.ID()),
				slog.String("job_name", h.DisplayName()),
				slog.Int("attempts", h.Attempts()),
				slog.Duration("delay", delay),
			)
		}
	}

	return errors.Join(errs...)
}

// failJob quarantines h. The failed-job store write and the failed event
// happen even when deleting the record or the handler's failure callback
// errors.
func (w *Worker) failJob(ctx context.Context, connection string, h *job.Handle, cause error) (err error) {
	if h.IsDeleted() {
		return nil
	}

	defer func() {
		entryID, logErr := w.failed.Log(ctx, connection, h.Queue(), h.RawPayload(), cause)
		if logErr != nil {
			err = errors.Join(err, fmt.Errorf("log failed job %s: %w", h.ID(), logErr))
		} else {
			w.logger.Warn("job quarantined",
				slog.String("job_id", h.ID()),
				slog.String("job_name", h.DisplayName()),
				slog.String("failed_id", entryID),
				slog.Int("attempts", h.Attempts()),
				slog.String("error", cause.Error()),
			)
		}
		w.extensions.EmitJobFailed(ctx, connection, h, cause)
	}()

	h.MarkFailed()
	if err := h.Delete(ctx); err != nil {
		return err
	}
	return h.Failed(ctx, w.resolver, cause)
}
