package worker_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/backoff"
	"github.com/xraph/jobqueue/ext"
	"github.com/xraph/jobqueue/failed"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/queue"
	"github.com/xraph/jobqueue/store/memory"
	"github.com/xraph/jobqueue/worker"
)

// ──────────────────────────────────────────────────
// Test doubles
// ──────────────────────────────────────────────────

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingLauncher records launch requests instead of spawning processes.
type recordingLauncher struct {
	mu   sync.Mutex
	reqs []worker.LaunchRequest
	err  error
}

func (l *recordingLauncher) Launch(_ context.Context, req worker.LaunchRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.reqs = append(l.reqs, req)
	return nil
}

func (l *recordingLauncher) requests() []worker.LaunchRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]worker.LaunchRequest(nil), l.reqs...)
}

// recordingExt records every lifecycle event.
type recordingExt struct {
	mu     sync.Mutex
	events []string
}

func (e *recordingExt) Name() string { return "recording" }

func (e *recordingExt) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, s)
}

func (e *recordingExt) OnJobProcessing(context.Context, string, *job.Handle) error {
	e.add("processing")
	return nil
}

func (e *recordingExt) OnJobProcessed(context.Context, string, *job.Handle, time.Duration) error {
	e.add("processed")
	return nil
}

func (e *recordingExt) OnJobExceptionOccurred(context.Context, string, *job.Handle, error) error {
	e.add("exception")
	return nil
}

func (e *recordingExt) OnJobFailed(context.Context, string, *job.Handle, error) error {
	e.add("failed")
	return nil
}

func (e *recordingExt) OnWorkerStopping(_ context.Context, reason string) error {
	e.add("stopping:" + reason)
	return nil
}

func (e *recordingExt) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

type recordingReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingReporter) Report(_ context.Context, _ string, _ *job.Handle, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

// ──────────────────────────────────────────────────
// Harness
// ──────────────────────────────────────────────────

type harness struct {
	clock    *fakeClock
	manager  *queue.Manager
	producer *queue.Producer
	registry *job.Registry
	failed   *memory.FailedStore
	launcher *recordingLauncher
	events   *recordingExt
	reporter *recordingReporter
	sleeps   atomic.Int32
	worker   *worker.Worker
}

func newHarness(t *testing.T, cfg queue.Config, opts ...worker.Option) *harness {
	t.Helper()

	h := &harness{
		clock:    &fakeClock{now: time.Unix(1_700_000_000, 0)},
		registry: job.NewRegistry(),
		failed:   memory.NewFailedStore(),
		launcher: &recordingLauncher{},
		events:   &recordingExt{},
		reporter: &recordingReporter{},
	}

	h.manager = queue.NewManager()
	h.manager.AddConnector(memory.Driver, memory.NewConnector(memory.WithClock(h.clock.Now)))
	cfg.Driver = memory.Driver
	h.manager.AddConnection("default", cfg)
	h.producer = queue.NewProducer(h.manager)

	exts := ext.NewRegistry(nil)
	exts.Register(h.events)

	base := []worker.Option{
		worker.WithExtensions(exts),
		worker.WithLauncher(h.launcher),
		worker.WithReporter(h.reporter),
		worker.WithClock(h.clock.Now),
		worker.WithSleep(func(context.Context, time.Duration) { h.sleeps.Add(1) }),
		worker.WithMemoryUsage(func() uint64 { return 0 }),
	}
	h.worker = worker.New(h.manager, h.registry, h.failed, append(base, opts...)...)
	return h
}

func (h *harness) backend(t *testing.T) queue.Backend {
	t.Helper()
	b, err := h.manager.Connection(context.Background(), "default")
	if err != nil {
		t.Fatalf("Connection: %v", err)
	}
	return b
}

func (h *harness) size(t *testing.T, q string) int64 {
	t.Helper()
	n, err := h.backend(t).Size(context.Background(), q)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	return n
}

// launchNext runs one poll and returns the launched request.
func (h *harness) launchNext(t *testing.T, queues []string, opts worker.Options) worker.LaunchRequest {
	t.Helper()
	ran, err := h.worker.RunNextJob(context.Background(), "default", queues, opts)
	if err != nil {
		t.Fatalf("RunNextJob: %v", err)
	}
	if !ran {
		t.Fatal("RunNextJob = false, want a launched job")
	}
	reqs := h.launcher.requests()
	return reqs[len(reqs)-1]
}

func testOptions() worker.Options {
	opts := worker.DefaultOptions()
	opts.Sleep = time.Second
	return opts
}

// ──────────────────────────────────────────────────
// RunNextJob
// ──────────────────────────────────────────────────

func TestRunNextJob_ReservesAndLaunches(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, queue.Config{})

	jobID, err := h.producer.Push(ctx, "send-email", job.Args{"to": "a@b.com"})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}

	req := h.launchNext(t, nil, testOptions())
	if req.JobID != jobID {
		t.Errorf("launched %q, want %q", req.JobID, jobID)
	}
	if req.Connection != "default" || req.Queue != "default" {
		t.Errorf("launched on %s/%s, want default/default", req.Connection, req.Queue)
	}

	got, err := h.backend(t).GetJobByID(ctx, "default", jobID)
	if err != nil || got == nil {
		t.Fatalf("GetJobByID: %v, %v", got, err)
	}
	if !got.Reserved() || got.Attempts() != 1 {
		t.Errorf("reserved=%v attempts=%d, want true/1", got.Reserved(), got.Attempts())
	}
}

func TestRunNextJob_EmptyQueues(t *testing.T) {
	t.Parallel()
	h := newHarness(t, queue.Config{})

	ran, err := h.worker.RunNextJob(context.Background(), "", []string{"a", "b"}, testOptions())
	if err != nil {
		t.Fatalf("RunNextJob: %v", err)
	}
	if ran {
		t.Error("RunNextJob = true on empty queues")
	}
	if n := len(h.launcher.requests()); n != 0 {
		t.Errorf("launched %d jobs, want 0", n)
	}
}

func TestRunNextJob_QueuePriority(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, queue.Config{})

	if _, err := h.producer.Push(ctx, "low-job", nil, queue.OnQueue("low")); err != nil {
		t.Fatalf("Push low: %v", err)
	}
	highID, err := h.producer.Push(ctx, "high-job", nil, queue.OnQueue("high"))
	if err != nil {
		t.Fatalf("Push high: %v", err)
	}

	req := h.launchNext(t, []string{"high", "low"}, testOptions())
	if req.JobID != highID || req.Queue != "high" {
		t.Errorf("launched %s from %s, want %s from high", req.JobID, req.Queue, highID)
	}
}

func TestRunNextJob_LimitBlocksAdmission(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, queue.Config{Limit: 1})

	for range 2 {
		if _, err := h.producer.Push(ctx, "send-email", nil); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	h.launchNext(t, nil, testOptions())

	ran, err := h.worker.RunNextJob(ctx, "default", nil, testOptions())
	if err != nil {
		t.Fatalf("RunNextJob: %v", err)
	}
	if ran {
		t.Error("second job admitted past limit 1")
	}
	if n := len(h.launcher.requests()); n != 1 {
		t.Errorf("launched %d jobs, want 1", n)
	}
}

func TestRunNextJob_RateLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, queue.Config{})

	for range 2 {
		if _, err := h.producer.Push(ctx, "send-email", nil); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	opts := testOptions()
	opts.RateLimit = 0.001
	h.launchNext(t, nil, opts)

	ran, err := h.worker.RunNextJob(ctx, "default", nil, opts)
	if err != nil {
		t.Fatalf("RunNextJob: %v", err)
	}
	if ran {
		t.Error("second job launched past the rate limit")
	}
}

// racingBackend lets another worker reserve the popped record before the
// caller does.
type racingBackend struct {
	queue.Backend
}

func (b racingBackend) Pop(ctx context.Context, q string) (*job.Handle, error) {
	h, err := b.Backend.Pop(ctx, q)
	if err != nil || h == nil {
		return h, err
	}
	other, err := b.Backend.Pop(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := b.Backend.MarkReserved(ctx, other); err != nil {
		return nil, err
	}
	return h, nil
}

func TestRunNextJob_LeaseLost(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, queue.Config{})
	h.manager.AddConnector("racing", queue.ConnectorFunc(func(ctx context.Context, cfg queue.Config) (queue.Backend, error) {
		cfg.Driver = memory.Driver
		return racingBackend{memory.New(cfg)}, nil
	}))
	h.manager.AddConnection("racing", queue.Config{Driver: "racing"})

	if _, err := h.producer.Push(ctx, "send-email", nil, queue.OnConnection("racing")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	ran, err := h.worker.RunNextJob(ctx, "racing", nil, testOptions())
	if err != nil {
		t.Fatalf("RunNextJob: %v", err)
	}
	if ran {
		t.Error("RunNextJob = true after losing the reservation race")
	}
	if n := len(h.launcher.requests()); n != 0 {
		t.Errorf("launched %d jobs, want 0", n)
	}
}

func TestRunNextJob_LaunchError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, queue.Config{})
	h.launcher.err = errors.New("fork failed")

	if _, err := h.producer.Push(ctx, "send-email", nil); err != nil {
		t.Fatalf("Push: %v", err)
	}

	ran, err := h.worker.RunNextJob(ctx, "default", nil, testOptions())
	if err == nil || !strings.Contains(err.Error(), "fork failed") {
		t.Fatalf("RunNextJob error = %v, want launch error", err)
	}
	if ran {
		t.Error("RunNextJob = true on launch error")
	}
}

// ──────────────────────────────────────────────────
// RunJobByID and Process
// ──────────────────────────────────────────────────

func TestRunJobByID_Success(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, queue.Config{})

	var got atomic.Value
	h.registry.RegisterFunc("send-email", func(ctx context.Context, jh *job.Handle, args job.Args) error {
		got.Store(args["to"])
		return jh.Delete(ctx)
	})

	if _, err := h.producer.Push(ctx, "send-email", job.Args{"to": "a@b.com"}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	req := h.launchNext(t, nil, testOptions())

	if err := h.worker.RunJobByID(ctx, req.Connection, req.Queue, req.JobID, req.Options); err != nil {
		t.Fatalf("RunJobByID: %v", err)
	}

	if got.Load() != "a@b.com" {
		t.Errorf("handler args to = %v", got.Load())
	}
	if n := h.size(t, "default"); n != 0 {
		t.Errorf("size = %d after delete, want 0", n)
	}
	want := []string{"processing", "processed"}
	if ev := h.events.snapshot(); strings.Join(ev, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", ev, want)
	}
	if h.sleeps.Load() != 0 {
		t.Error("slept after a successful job")
	}
}

func TestRunJobByID_UnknownJobSleeps(t *testing.T) {
	t.Parallel()
	h := newHarness(t, queue.Config{})

	if err := h.worker.RunJobByID(context.Background(), "default", "default", "999", testOptions()); err != nil {
		t.Fatalf("RunJobByID: %v", err)
	}
	if h.sleeps.Load() != 1 {
		t.Errorf("sleeps = %d, want 1", h.sleeps.Load())
	}
	if len(h.events.snapshot()) != 0 {
		t.Error("events emitted for an unknown job")
	}
}

func TestRunJobByID_ReservesUnreservedJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, queue.Config{})

	var attempts atomic.Int32
	h.registry.RegisterFunc("send-email", func(ctx context.Context, jh *job.Handle, _ job.Args) error {
		attempts.Store(int32(jh.Attempts()))
		return jh.Delete(ctx)
	})

	jobID, err := h.producer.Push(ctx, "send-email", nil)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := h.worker.RunJobByID(ctx, "default", "default", jobID, testOptions()); err != nil {
		t.Fatalf("RunJobByID: %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("handler saw attempts %d, want 1", attempts.Load())
	}
}

func TestRunJobByID_UnhandledJobIsReleased(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, queue.Config{})

	if _, err := h.producer.Push(ctx, "unregistered", nil); err != nil {
		t.Fatalf("Push: %v", err)
	}
	req := h.launchNext(t, nil, testOptions())

	err := h.worker.RunJobByID(ctx, req.Connection, req.Queue, req.JobID, req.Options)
	if !errors.Is(err, jobqueue.ErrJobNotFound) {
		t.Fatalf("RunJobByID error = %v, want ErrJobNotFound", err)
	}
	if h.reporter.count() != 1 {
		t.Errorf("reported %d errors, want 1", h.reporter.count())
	}
	if h.sleeps.Load() != 1 {
		t.Errorf("sleeps = %d, want 1", h.sleeps.Load())
	}
	if n := h.size(t, "default"); n != 1 {
		t.Errorf("size = %d, want the released job", n)
	}
}

type emailArgs struct {
	To string `json:"to"`
}

func TestProcess_RetryThenQuarantineThenReplay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, queue.Config{})

	var (
		fires      atomic.Int32
		failedWith atomic.Value
	)
	job.RegisterDefinition(h.registry, job.NewDefinition("send-email",
		func(context.Context, *job.Handle, emailArgs) error {
			fires.Add(1)
			return errors.New("smtp down")
		},
	).WithFailed(func(_ context.Context, in emailArgs, err error) error {
		failedWith.Store(in.To + ": " + err.Error())
		return nil
	}))

	if _, err := h.producer.Push(ctx, "send-email", job.Args{"to": "a@b.com"}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	opts := testOptions()
	opts.MaxTries = 2

	// First failure is released for a retry.
	req := h.launchNext(t, nil, opts)
	if err := h.worker.RunJobByID(ctx, req.Connection, req.Queue, req.JobID, req.Options); err == nil {
		t.Fatal("RunJobByID = nil, want handler error")
	}
	if n := h.size(t, "default"); n != 1 {
		t.Fatalf("size after first failure = %d, want 1", n)
	}
	if entries, _ := h.failed.All(ctx); len(entries) != 0 {
		t.Fatalf("quarantined after first failure")
	}

	// Second failure reaches maxTries and quarantines.
	req = h.launchNext(t, nil, opts)
	err := h.worker.RunJobByID(ctx, req.Connection, req.Queue, req.JobID, req.Options)
	if err == nil || !strings.Contains(err.Error(), "smtp down") {
		t.Fatalf("RunJobByID error = %v, want smtp down", err)
	}
	if fires.Load() != 2 {
		t.Errorf("fired %d times, want 2", fires.Load())
	}
	if n := h.size(t, "default"); n != 0 {
		t.Errorf("size after quarantine = %d, want 0", n)
	}
	entries, err := h.failed.All(ctx)
	if err != nil || len(entries) != 1 {
		t.Fatalf("failed entries = %d, %v; want 1", len(entries), err)
	}
	if entries[0].Connection != "default" || entries[0].Queue != "default" {
		t.Errorf("entry on %s/%s", entries[0].Connection, entries[0].Queue)
	}
	if entries[0].Exception != "smtp down" {
		t.Errorf("exception = %q", entries[0].Exception)
	}
	if failedWith.Load() != "a@b.com: smtp down" {
		t.Errorf("failed callback = %v", failedWith.Load())
	}

	ev := strings.Join(h.events.snapshot(), ",")
	if want := "processing,exception,processing,failed,exception"; ev != want {
		t.Errorf("events = %s, want %s", ev, want)
	}

	// Replay moves it back to its queue with a fresh attempt count.
	svc := failed.NewService(h.failed, h.manager)
	if err := svc.Retry(ctx, entries[0].ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if n := h.size(t, "default"); n != 1 {
		t.Errorf("size after retry = %d, want 1", n)
	}
	if rest, _ := h.failed.All(ctx); len(rest) != 0 {
		t.Errorf("failed entries after retry = %d, want 0", len(rest))
	}
	replayed, err := h.backend(t).Pop(ctx, "default")
	if err != nil || replayed == nil {
		t.Fatalf("Pop replayed: %v, %v", replayed, err)
	}
	if replayed.Attempts() != 0 {
		t.Errorf("replayed attempts = %d, want 0", replayed.Attempts())
	}
}

func TestProcess_AlreadyExceeded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name    string
		payload func(now time.Time) job.Payload
		attempt int
	}{
		{
			name: "payload max tries",
			payload: func(time.Time) job.Payload {
				return job.NewPayload("send-email", nil, job.WithMaxTries(2))
			},
			attempt: 2,
		},
		{
			name: "deadline passed",
			payload: func(now time.Time) job.Payload {
				return job.NewPayload("send-email", nil, job.WithTimeoutAt(now.Add(-time.Minute)))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, queue.Config{})

			var fires atomic.Int32
			h.registry.RegisterFunc("send-email", func(context.Context, *job.Handle, job.Args) error {
				fires.Add(1)
				return nil
			})

			raw, err := job.Encode(tt.payload(h.clock.Now()))
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			b := h.backend(t)
			if _, err := b.PushRaw(ctx, raw, "", queue.PushOptions{Attempts: tt.attempt}); err != nil {
				t.Fatalf("PushRaw: %v", err)
			}

			req := h.launchNext(t, nil, testOptions())
			err = h.worker.RunJobByID(ctx, req.Connection, req.Queue, req.JobID, req.Options)
			if !errors.Is(err, jobqueue.ErrMaxAttemptsExceeded) {
				t.Fatalf("RunJobByID error = %v, want ErrMaxAttemptsExceeded", err)
			}
			if fires.Load() != 0 {
				t.Error("handler fired for an exhausted job")
			}
			if n := h.size(t, "default"); n != 0 {
				t.Errorf("size = %d, want 0", n)
			}
			entries, _ := h.failed.All(ctx)
			if len(entries) != 1 {
				t.Fatalf("failed entries = %d, want 1", len(entries))
			}
			if string(entries[0].Payload) != string(raw) {
				t.Errorf("quarantined payload = %s, want %s", entries[0].Payload, raw)
			}
		})
	}
}

func TestProcess_ZeroMaxTriesIsUnlimited(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, queue.Config{})

	h.registry.RegisterFunc("flaky", func(context.Context, *job.Handle, job.Args) error {
		return errors.New("boom")
	})

	b := h.backend(t)
	raw, _ := job.EncodeJob("flaky", nil)
	if _, err := b.PushRaw(ctx, raw, "", queue.PushOptions{Attempts: 50}); err != nil {
		t.Fatalf("PushRaw: %v", err)
	}

	req := h.launchNext(t, nil, testOptions())
	if err := h.worker.RunJobByID(ctx, req.Connection, req.Queue, req.JobID, req.Options); err == nil {
		t.Fatal("RunJobByID = nil, want handler error")
	}
	if entries, _ := h.failed.All(ctx); len(entries) != 0 {
		t.Errorf("quarantined with unlimited tries")
	}
	released, err := b.Pop(ctx, "")
	if err != nil || released == nil {
		t.Fatalf("Pop: %v, %v", released, err)
	}
	if released.Attempts() != 51 {
		t.Errorf("released attempts = %d, want 51", released.Attempts())
	}
}

func TestProcess_MaxTriesAppliesBeforeDeadline(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, queue.Config{})

	h.registry.RegisterFunc("send-email", func(context.Context, *job.Handle, job.Args) error {
		return errors.New("smtp down")
	})

	raw, err := job.Encode(job.NewPayload("send-email", nil,
		job.WithMaxTries(2),
		job.WithTimeoutAt(h.clock.Now().Add(time.Hour)),
	))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := h.backend(t).PushRaw(ctx, raw, "", queue.PushOptions{}); err != nil {
		t.Fatalf("PushRaw: %v", err)
	}

	req := h.launchNext(t, nil, testOptions())
	if err := h.worker.RunJobByID(ctx, req.Connection, req.Queue, req.JobID, req.Options); err == nil {
		t.Fatal("RunJobByID = nil, want handler error")
	}
	if entries, _ := h.failed.All(ctx); len(entries) != 0 {
		t.Fatalf("quarantined after first failure")
	}

	req = h.launchNext(t, nil, testOptions())
	if err := h.worker.RunJobByID(ctx, req.Connection, req.Queue, req.JobID, req.Options); err == nil {
		t.Fatal("RunJobByID = nil, want handler error")
	}
	if n := h.size(t, "default"); n != 0 {
		t.Errorf("size = %d, want 0", n)
	}
	entries, _ := h.failed.All(ctx)
	if len(entries) != 1 {
		t.Fatalf("failed entries = %d, want 1 with the deadline an hour away", len(entries))
	}
}

func TestProcess_FailedCallbackErrorStillQuarantines(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, queue.Config{})

	callbackErr := errors.New("notify ops")
	job.RegisterDefinition(h.registry, job.NewDefinition("send-email",
		func(context.Context, *job.Handle, emailArgs) error {
			return errors.New("smtp down")
		},
	).WithFailed(func(context.Context, emailArgs, error) error {
		return callbackErr
	}))

	if _, err := h.producer.Push(ctx, "send-email", job.Args{"to": "a@b.com"}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	opts := testOptions()
	opts.MaxTries = 1

	req := h.launchNext(t, nil, opts)
	err := h.worker.RunJobByID(ctx, req.Connection, req.Queue, req.JobID, req.Options)
	if !errors.Is(err, callbackErr) {
		t.Fatalf("RunJobByID error = %v, want the failed callback error", err)
	}
	if !strings.Contains(err.Error(), "smtp down") {
		t.Errorf("RunJobByID error = %v, want the handler error too", err)
	}
	if n := h.size(t, "default"); n != 0 {
		t.Errorf("size = %d, want 0", n)
	}
	entries, _ := h.failed.All(ctx)
	if len(entries) != 1 || entries[0].Exception != "smtp down" {
		t.Fatalf("failed entries = %+v, want one smtp down entry", entries)
	}
	ev := strings.Join(h.events.snapshot(), ",")
	if want := "processing,failed,exception"; ev != want {
		t.Errorf("events = %s, want %s", ev, want)
	}
	if h.reporter.count() != 1 {
		t.Errorf("reported %d errors, want 1", h.reporter.count())
	}
}

func TestProcess_HandlerReleaseIsNotRepeated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, queue.Config{})

	h.registry.RegisterFunc("send-email", func(ctx context.Context, jh *job.Handle, _ job.Args) error {
		if err := jh.Release(ctx, time.Minute); err != nil {
			return err
		}
		return errors.New("try later")
	})

	if _, err := h.producer.Push(ctx, "send-email", nil); err != nil {
		t.Fatalf("Push: %v", err)
	}
	req := h.launchNext(t, nil, testOptions())
	if err := h.worker.RunJobByID(ctx, req.Connection, req.Queue, req.JobID, req.Options); err == nil {
		t.Fatal("RunJobByID = nil, want handler error")
	}
	if n := h.size(t, "default"); n != 1 {
		t.Errorf("size = %d, want exactly one released record", n)
	}
}

func TestProcess_BackoffReleaseDelay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, queue.Config{}, worker.WithBackoff(backoff.Fixed(30*time.Second)))

	h.registry.RegisterFunc("send-email", func(context.Context, *job.Handle, job.Args) error {
		return errors.New("boom")
	})

	if _, err := h.producer.Push(ctx, "send-email", nil); err != nil {
		t.Fatalf("Push: %v", err)
	}
	released := h.clock.Now()
	req := h.launchNext(t, nil, testOptions())
	_ = h.worker.RunJobByID(ctx, req.Connection, req.Queue, req.JobID, req.Options)

	b := h.backend(t)
	if got, _ := b.Pop(ctx, ""); got != nil {
		t.Fatal("released job available before its delay")
	}

	h.clock.Advance(31 * time.Second)
	got, err := b.Pop(ctx, "")
	if err != nil || got == nil {
		t.Fatalf("Pop after delay: %v, %v", got, err)
	}
	lo, hi := released.Add(30*time.Second), released.Add(31*time.Second)
	if got.AvailableAt().Before(lo) || got.AvailableAt().After(hi) {
		t.Errorf("available_at = %v, want within [%v, %v]", got.AvailableAt(), lo, hi)
	}
	if got.Attempts() != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts())
	}
}

func TestProcess_HandlerErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler job.HandlerFunc
		opts    func(*worker.Options)
		check   func(t *testing.T, err error)
	}{
		{
			name: "timeout",
			handler: func(ctx context.Context, _ *job.Handle, _ job.Args) error {
				<-ctx.Done()
				return ctx.Err()
			},
			opts: func(o *worker.Options) { o.Timeout = 20 * time.Millisecond },
			check: func(t *testing.T, err error) {
				if !errors.Is(err, context.DeadlineExceeded) {
					t.Errorf("error = %v, want DeadlineExceeded", err)
				}
			},
		},
		{
			name: "panic",
			handler: func(context.Context, *job.Handle, job.Args) error {
				panic("nil map")
			},
			check: func(t *testing.T, err error) {
				if err == nil || !strings.Contains(err.Error(), "panic in job send-email") {
					t.Errorf("error = %v, want recovered panic", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			h := newHarness(t, queue.Config{})
			h.registry.Register("send-email", tt.handler)

			if _, err := h.producer.Push(ctx, "send-email", nil); err != nil {
				t.Fatalf("Push: %v", err)
			}
			opts := testOptions()
			if tt.opts != nil {
				tt.opts(&opts)
			}
			req := h.launchNext(t, nil, opts)

			err := h.worker.RunJobByID(ctx, req.Connection, req.Queue, req.JobID, req.Options)
			tt.check(t, err)
			if n := h.size(t, "default"); n != 1 {
				t.Errorf("size = %d, want the released job", n)
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Daemon
// ──────────────────────────────────────────────────

func TestDaemon_StopsOnMemoryLimit(t *testing.T) {
	t.Parallel()
	h := newHarness(t, queue.Config{}, worker.WithMemoryUsage(func() uint64 { return 256 << 20 }))

	opts := testOptions()
	opts.Memory = 128
	if err := h.worker.Daemon(context.Background(), "default", nil, opts); err != nil {
		t.Fatalf("Daemon: %v", err)
	}
	if ev := h.events.snapshot(); len(ev) != 1 || ev[0] != "stopping:memory" {
		t.Errorf("events = %v, want stopping:memory", ev)
	}
	if h.sleeps.Load() != 1 {
		t.Errorf("sleeps = %d, want 1 after the empty poll", h.sleeps.Load())
	}
}

func TestDaemon_StopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var polls atomic.Int32
	h := newHarness(t, queue.Config{}, worker.WithSleep(func(context.Context, time.Duration) {
		if polls.Add(1) == 3 {
			cancel()
		}
	}))

	if err := h.worker.Daemon(ctx, "", []string{"default"}, testOptions()); err != nil {
		t.Fatalf("Daemon: %v", err)
	}
	if polls.Load() != 3 {
		t.Errorf("polls = %d, want 3", polls.Load())
	}
	if ev := h.events.snapshot(); len(ev) != 1 || ev[0] != "stopping:interrupt" {
		t.Errorf("events = %v, want stopping:interrupt", ev)
	}
}

func TestDaemon_LaunchesJobs(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(t, queue.Config{}, worker.WithSleep(func(context.Context, time.Duration) { cancel() }))
	for range 3 {
		if _, err := h.producer.Push(ctx, "send-email", nil); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	if err := h.worker.Daemon(ctx, "default", nil, testOptions()); err != nil {
		t.Fatalf("Daemon: %v", err)
	}
	if n := len(h.launcher.requests()); n != 3 {
		t.Errorf("launched %d jobs, want 3", n)
	}
}

func TestDaemon_ConfigErrorIsFatal(t *testing.T) {
	t.Parallel()
	h := newHarness(t, queue.Config{})

	err := h.worker.Daemon(context.Background(), "missing", nil, testOptions())
	if !errors.Is(err, jobqueue.ErrConnectionNotConfigured) {
		t.Fatalf("Daemon error = %v, want ErrConnectionNotConfigured", err)
	}
}

func TestDaemon_ReportsPollErrors(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(t, queue.Config{}, worker.WithSleep(func(context.Context, time.Duration) { cancel() }))
	h.launcher.err = errors.New("fork failed")
	if _, err := h.producer.Push(ctx, "send-email", nil); err != nil {
		t.Fatalf("Push: %v", err)
	}

	if err := h.worker.Daemon(ctx, "default", nil, testOptions()); err != nil {
		t.Fatalf("Daemon: %v", err)
	}
	if h.reporter.count() != 1 {
		t.Errorf("reported %d errors, want 1", h.reporter.count())
	}
}

func TestMemoryExceeded(t *testing.T) {
	t.Parallel()
	w := worker.New(queue.NewManager(), job.NewRegistry(), memory.NewFailedStore(),
		worker.WithMemoryUsage(func() uint64 { return 64 << 20 }),
	)

	tests := []struct {
		limit int
		want  bool
	}{
		{0, false},
		{32, true},
		{64, true},
		{128, false},
	}
	for _, tt := range tests {
		if got := w.MemoryExceeded(tt.limit); got != tt.want {
			t.Errorf("MemoryExceeded(%d) = %v, want %v", tt.limit, got, tt.want)
		}
	}
}
