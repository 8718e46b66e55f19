// Package worker drives the lease, retry and quarantine state machine.
//
// A daemon polls one or more queues in priority order, admits and reserves
// one job at a time and hands its id to a Launcher, which executes it in an
// isolated process. That process calls RunJobByID, which re-fetches the job
// and runs Process: the pipeline that fires the handler, releases failed
// attempts for a later retry and quarantines jobs that exceeded their
// attempt or time limits into the failed-job store.
package worker

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/xraph/jobqueue/backoff"
	"github.com/xraph/jobqueue/ext"
	"github.com/xraph/jobqueue/failed"
	"github.com/xraph/jobqueue/id"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/middleware"
	"github.com/xraph/jobqueue/queue"
)

// Stop reasons passed to the worker-stopping event.
const (
	StopReasonMemory    = "memory"
	StopReasonInterrupt = "interrupt"
)

// Worker runs daemons and single jobs against the connections of a
// queue.Manager.
type Worker struct {
	manager    *queue.Manager
	resolver   job.Resolver
	failed     failed.Store
	extensions *ext.Registry
	mws        []middleware.Middleware
	mw         middleware.Middleware
	launcher   Launcher
	reporter   Reporter
	backoff    backoff.Strategy
	throttle   *throttle
	id         id.ID
	logger     *slog.Logger

	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration)
	memoryUsage func() uint64
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the worker's logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithExtensions sets the registry that receives lifecycle events.
func WithExtensions(r *ext.Registry) Option {
	return func(w *Worker) { w.extensions = r }
}

// WithMiddleware appends middleware around every fire. Timeout and panic
// recovery always wrap the configured chain.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(w *Worker) { w.mws = append(w.mws, mws...) }
}

// WithLauncher sets how reserved jobs are executed.
func WithLauncher(l Launcher) Option {
	return func(w *Worker) { w.launcher = l }
}

// WithReporter sets where escaped errors go.
func WithReporter(r Reporter) Option {
	return func(w *Worker) { w.reporter = r }
}

// WithBackoff computes the release delay from the attempt count instead
// of using Options.Delay.
func WithBackoff(s backoff.Strategy) Option {
	return func(w *Worker) { w.backoff = s }
}

// WithClock overrides the time source used for deadline checks.
func WithClock(c queue.Clock) Option {
	return func(w *Worker) { w.now = c }
}

// WithSleep overrides how the worker pauses between polls.
func WithSleep(fn func(ctx context.Context, d time.Duration)) Option {
	return func(w *Worker) { w.sleep = fn }
}

// WithMemoryUsage overrides the memory probe used by the watchdog. It
// returns bytes.
func WithMemoryUsage(fn func() uint64) Option {
	return func(w *Worker) { w.memoryUsage = fn }
}

// New creates a Worker. failedStore receives quarantined jobs.
func New(m *queue.Manager, resolver job.Resolver, failedStore failed.Store, opts ...Option) *Worker {
	w := &Worker{
		manager:     m,
		resolver:    resolver,
		failed:      failedStore,
		throttle:    newThrottle(),
		id:          id.NewWorkerID(),
		logger:      slog.Default(),
		now:         time.Now,
		sleep:       sleepContext,
		memoryUsage: heapAlloc,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.extensions == nil {
		w.extensions = ext.NewRegistry(w.logger)
	}
	if w.reporter == nil {
		w.reporter = LogReporter{Logger: w.logger}
	}
	if w.launcher == nil {
		w.launcher = &ExecLauncher{Logger: w.logger}
	}
	w.mw = middleware.Chain(w.mws...)
	return w
}

// ID returns the worker's identity, used in logs.
func (w *Worker) ID() id.ID { return w.id }

// MemoryExceeded reports whether the process uses at least limitMB
// megabytes. A non-positive limit disables the check.
func (w *Worker) MemoryExceeded(limitMB int) bool {
	if limitMB <= 0 {
		return false
	}
	return w.memoryUsage()/1024/1024 >= uint64(limitMB)
}

func (w *Worker) connectionName(name string) string {
	if name == "" {
		return w.manager.DefaultConnection()
	}
	return name
}

// releaseDelay returns the delay for re-queueing a failed attempt.
func (w *Worker) releaseDelay(h *job.Handle, opts Options) time.Duration {
	if w.backoff != nil {
		return w.backoff.Delay(h.Attempts())
	}
	return opts.Delay
}

func heapAlloc() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Alloc
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
