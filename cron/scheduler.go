package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/queue"
)

// Pusher enqueues jobs. *queue.Producer satisfies it.
type Pusher interface {
	Push(ctx context.Context, jobType string, args job.Args, opts ...queue.DispatchOption) (string, error)
	PushUnique(ctx context.Context, jobType string, args job.Args, opts ...queue.DispatchOption) (string, bool, error)
}

// Emitter emits cron lifecycle events.
// ext.Registry satisfies this interface via EmitCronFired.
type Emitter interface {
	EmitCronFired(ctx context.Context, entryName, jobID string)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now queue.Clock) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// WithEmitter sets the receiver of cron fired events.
func WithEmitter(e Emitter) SchedulerOption {
	return func(s *Scheduler) { s.emitter = e }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", jobqueue.ErrInvalidSchedule, expr, err)
	}
	return sched, nil
}

type scheduled struct {
	Status
	schedule cronlib.Schedule
}

// Scheduler pushes registered entries when they fall due.
type Scheduler struct {
	pusher  Pusher
	emitter Emitter
	logger  *slog.Logger
	now     queue.Clock

	tickInterval time.Duration

	mu      sync.Mutex
	entries map[string]*scheduled
}

// NewScheduler creates a Scheduler that pushes through p.
func NewScheduler(p Pusher, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		pusher:       p,
		logger:       slog.Default(),
		now:          time.Now,
		tickInterval: time.Second,
		entries:      make(map[string]*scheduled),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds e. Its first run is the next schedule time after now.
func (s *Scheduler) Register(e Entry) error {
	if e.Name == "" || e.Job == "" {
		return errors.New("cron entry needs a name and a job type")
	}
	sched, err := ParseSchedule(e.Schedule)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.Name]; ok {
		return fmt.Errorf("%w: %s", jobqueue.ErrDuplicateCron, e.Name)
	}
	s.entries[e.Name] = &scheduled{
		Status:   Status{Entry: e, NextRunAt: sched.Next(s.now())},
		schedule: sched,
	}
	return nil
}

// Remove deletes the entry called name.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; !ok {
		return fmt.Errorf("%w: %s", jobqueue.ErrCronEntryNotFound, name)
	}
	delete(s.entries, name)
	return nil
}

// Entries lists all entries ordered by name.
func (s *Scheduler) Entries() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Run fires due entries every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.logger.Info("cron scheduler started",
		slog.Int("entries", len(s.Entries())),
		slog.Duration("tick_interval", s.tickInterval),
	)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cron scheduler stopped")
			return nil
		case <-ticker.C:
			s.FireDue(ctx)
		}
	}
}

// FireDue pushes every entry whose next run time has passed and returns
// how many jobs were pushed. Missed runs collapse into one push. A failed
// push leaves the entry due so the next tick retries it.
func (s *Scheduler) FireDue(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	var due []*scheduled
	for _, e := range s.entries {
		if !e.NextRunAt.After(now) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()
	sort.Slice(due, func(i, j int) bool { return due[i].Name < due[j].Name })

	pushed := 0
	for _, e := range due {
		jobID, ok, err := s.push(ctx, e.Entry)
		if err != nil {
			s.logger.Error("cron push error",
				slog.String("cron_name", e.Name),
				slog.String("job", e.Job),
				slog.String("error", err.Error()),
			)
			continue
		}

		s.mu.Lock()
		e.LastRunAt = &now
		e.NextRunAt = e.schedule.Next(now)
		if ok {
			e.LastJobID = jobID
		}
		s.mu.Unlock()

		if !ok {
			s.logger.Debug("cron run skipped, job still queued", slog.String("cron_name", e.Name))
			continue
		}
		pushed++
		if s.emitter != nil {
			s.emitter.EmitCronFired(ctx, e.Name, jobID)
		}
		s.logger.Info("cron fired",
			slog.String("cron_name", e.Name),
			slog.String("job", e.Job),
			slog.String("job_id", jobID),
		)
	}
	return pushed
}

func (s *Scheduler) push(ctx context.Context, e Entry) (string, bool, error) {
	var opts []queue.DispatchOption
	if e.Connection != "" {
		opts = append(opts, queue.OnConnection(e.Connection))
	}
	if e.Queue != "" {
		opts = append(opts, queue.OnQueue(e.Queue))
	}
	if e.Unique {
		return s.pusher.PushUnique(ctx, e.Job, e.Args, opts...)
	}
	id, err := s.pusher.Push(ctx, e.Job, e.Args, opts...)
	return id, err == nil, err
}
