package queuetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/queue"
)

// Start is the fake time every suite clock begins at. It falls on a whole
// second so availability arithmetic is exact.
var Start = time.Unix(1_700_000_000, 0)

// Factory builds an empty backend for cfg that reads time from clock.
type Factory func(t *testing.T, cfg queue.Config, clock queue.Clock) queue.Backend

// RunBackend runs the backend conformance suite.
func RunBackend(t *testing.T, newBackend Factory) {
	tests := []struct {
		name string
		cfg  queue.Config
		fn   func(t *testing.T, b queue.Backend, c *Clock)
	}{
		{"PushAndPop", queue.Config{}, testPushAndPop},
		{"PopDoesNotReserve", queue.Config{}, testPopDoesNotReserve},
		{"FIFO", queue.Config{}, testFIFO},
		{"Later", queue.Config{}, testLater},
		{"ExpireReclaim", queue.Config{Expire: 60 * time.Second}, testExpireReclaim},
		{"Release", queue.Config{}, testRelease},
		{"CanRun", queue.Config{Limit: 1}, testCanRun},
		{"MarkReservedIncrements", queue.Config{Expire: time.Second}, testMarkReservedIncrements},
		{"MarkReservedLeaseLost", queue.Config{}, testMarkReservedLeaseLost},
		{"DeleteReserved", queue.Config{}, testDeleteReserved},
		{"Exists", queue.Config{}, testExists},
		{"Bulk", queue.Config{}, testBulk},
		{"GetJobByID", queue.Config{}, testGetJobByID},
		{"PushRawCarriesAttempts", queue.Config{}, testPushRawCarriesAttempts},
		{"QueuesAreIsolated", queue.Config{Queue: "main"}, testQueuesAreIsolated},
		{"InvalidPayload", queue.Config{}, testInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClock(Start)
			b := newBackend(t, tt.cfg, c.Now)
			t.Cleanup(func() { _ = b.Close() })
			tt.fn(t, b, c)
		})
	}
}

func mustPush(t *testing.T, b queue.Backend, jobType string, args job.Args, q string) string {
	t.Helper()
	jobID, err := b.Push(context.Background(), jobType, args, q)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if jobID == "" {
		t.Fatal("Push returned empty id")
	}
	return jobID
}

func mustPop(t *testing.T, b queue.Backend, q string) *job.Handle {
	t.Helper()
	h, err := b.Pop(context.Background(), q)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if h == nil {
		t.Fatal("Pop returned no job")
	}
	return h
}

func mustPopNone(t *testing.T, b queue.Backend, q string) {
	t.Helper()
	h, err := b.Pop(context.Background(), q)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if h != nil {
		t.Fatalf("Pop returned job %s, want none", h.ID())
	}
}

func mustSize(t *testing.T, b queue.Backend, q string, want int64) {
	t.Helper()
	n, err := b.Size(context.Background(), q)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if n != want {
		t.Fatalf("Size(%q) = %d, want %d", q, n, want)
	}
}

func mustReserve(t *testing.T, b queue.Backend, h *job.Handle) {
	t.Helper()
	if err := b.MarkReserved(context.Background(), h); err != nil {
		t.Fatalf("MarkReserved: %v", err)
	}
}

func testPushAndPop(t *testing.T, b queue.Backend, _ *Clock) {
	mustPush(t, b, "SendEmail", job.Args{"to": "a@b.com"}, "default")
	mustSize(t, b, "default", 1)

	h := mustPop(t, b, "default")
	if h.Name() != "SendEmail" {
		t.Errorf("Name = %q, want SendEmail", h.Name())
	}
	if got := h.Args()["to"]; got != "a@b.com" {
		t.Errorf("args[to] = %v, want a@b.com", got)
	}
	if h.Attempts() != 0 {
		t.Errorf("Attempts = %d, want 0", h.Attempts())
	}
	if h.Reserved() {
		t.Error("popped job should not be reserved")
	}
	if h.Queue() != "default" {
		t.Errorf("Queue = %q", h.Queue())
	}
}

func testPopDoesNotReserve(t *testing.T, b queue.Backend, _ *Clock) {
	jobID := mustPush(t, b, "a", nil, "")

	first := mustPop(t, b, "")
	second := mustPop(t, b, "")
	if first.ID() != jobID || second.ID() != jobID {
		t.Fatalf("Pop ids = %s, %s, want %s twice", first.ID(), second.ID(), jobID)
	}
}

func testFIFO(t *testing.T, b queue.Backend, _ *Clock) {
	var ids []string
	for _, name := range []string{"a", "b", "c", "d"} {
		ids = append(ids, mustPush(t, b, name, job.Args{"n": name}, ""))
	}

	for i, want := range ids {
		h := mustPop(t, b, "")
		if h.ID() != want {
			t.Fatalf("pop %d: got %s, want %s", i, h.ID(), want)
		}
		mustReserve(t, b, h)
	}
	mustPopNone(t, b, "")
}

func testLater(t *testing.T, b queue.Backend, c *Clock) {
	ctx := context.Background()
	jobID, err := b.Later(ctx, 30*time.Second, "later", nil, "")
	if err != nil {
		t.Fatalf("Later: %v", err)
	}
	mustSize(t, b, "", 1)
	mustPopNone(t, b, "")

	c.Advance(29 * time.Second)
	mustPopNone(t, b, "")

	c.Advance(time.Second)
	h := mustPop(t, b, "")
	if h.ID() != jobID {
		t.Fatalf("Pop = %s, want %s", h.ID(), jobID)
	}
	if got := h.AvailableAt().Unix(); got != Start.Unix()+30 {
		t.Errorf("AvailableAt = %d, want %d", got, Start.Unix()+30)
	}
}

func testExpireReclaim(t *testing.T, b queue.Backend, c *Clock) {
	jobID := mustPush(t, b, "slow", nil, "")
	h := mustPop(t, b, "")
	mustReserve(t, b, h)

	mustPopNone(t, b, "")
	c.Advance(59 * time.Second)
	mustPopNone(t, b, "")

	c.Advance(time.Second)
	again := mustPop(t, b, "")
	if again.ID() != jobID {
		t.Fatalf("reclaimed %s, want %s", again.ID(), jobID)
	}
	if !again.Reserved() {
		t.Error("reclaimed job should still carry its reservation")
	}
	if again.Attempts() != 1 {
		t.Errorf("Attempts = %d, want 1", again.Attempts())
	}
}

func testRelease(t *testing.T, b queue.Backend, c *Clock) {
	ctx := context.Background()
	oldID := mustPush(t, b, "retry-me", job.Args{"k": "v"}, "")
	h := mustPop(t, b, "")
	mustReserve(t, b, h)

	c.Advance(5 * time.Second)
	releasedAt := c.Now()
	if err := h.Release(ctx, 30*time.Second); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !h.IsReleased() {
		t.Error("handle not marked released")
	}

	old, err := b.GetJobByID(ctx, "", oldID)
	if err != nil {
		t.Fatalf("GetJobByID: %v", err)
	}
	if old != nil {
		t.Fatal("released record still exists")
	}
	mustSize(t, b, "", 1)

	c.Advance(29 * time.Second)
	mustPopNone(t, b, "")
	c.Advance(time.Second)

	next := mustPop(t, b, "")
	if next.ID() == oldID {
		t.Error("release should create a new record")
	}
	if next.Attempts() != 1 {
		t.Errorf("Attempts = %d, want 1", next.Attempts())
	}
	if next.Reserved() {
		t.Error("released record should not be reserved")
	}
	lo, hi := releasedAt.Unix()+30, releasedAt.Unix()+31
	if got := next.AvailableAt().Unix(); got < lo || got > hi {
		t.Errorf("AvailableAt = %d, want in [%d, %d]", got, lo, hi)
	}
	if string(next.RawPayload()) != string(h.RawPayload()) {
		t.Errorf("payload changed: %s", next.RawPayload())
	}
}

func testCanRun(t *testing.T, b queue.Backend, _ *Clock) {
	ctx := context.Background()
	mustPush(t, b, "first", nil, "default")
	first := mustPop(t, b, "default")
	ok, err := b.CanRun(ctx, first)
	if err != nil || !ok {
		t.Fatalf("CanRun(first) = %v, %v; want true", ok, err)
	}
	mustReserve(t, b, first)

	mustPush(t, b, "second", nil, "default")
	second := mustPop(t, b, "default")
	if second.ID() == first.ID() {
		t.Fatal("popped the reserved job again")
	}
	ok, err = b.CanRun(ctx, second)
	if err != nil || ok {
		t.Fatalf("CanRun(second) = %v, %v; want false", ok, err)
	}

	ok, err = b.CanRun(ctx, first)
	if err != nil || !ok {
		t.Fatalf("CanRun(reserved) = %v, %v; want true", ok, err)
	}

	if err := first.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ok, err = b.CanRun(ctx, second)
	if err != nil || !ok {
		t.Fatalf("CanRun(second) after delete = %v, %v; want true", ok, err)
	}
}

func testMarkReservedIncrements(t *testing.T, b queue.Backend, c *Clock) {
	ctx := context.Background()
	jobID := mustPush(t, b, "count", nil, "")

	for want := 1; want <= 3; want++ {
		h := mustPop(t, b, "")
		mustReserve(t, b, h)
		if h.Attempts() != want {
			t.Fatalf("handle Attempts = %d, want %d", h.Attempts(), want)
		}
		stored, err := b.GetJobByID(ctx, "", jobID)
		if err != nil || stored == nil {
			t.Fatalf("GetJobByID = %v, %v", stored, err)
		}
		if stored.Attempts() != want {
			t.Fatalf("stored Attempts = %d, want %d", stored.Attempts(), want)
		}
		if !stored.Reserved() || stored.ReservedAt() == nil {
			t.Fatal("stored record not reserved")
		}
		if stored.ReservedAt().Unix() != c.Now().Unix() {
			t.Errorf("ReservedAt = %d, want %d", stored.ReservedAt().Unix(), c.Now().Unix())
		}
		c.Advance(time.Second)
	}
}

func testMarkReservedLeaseLost(t *testing.T, b queue.Backend, _ *Clock) {
	ctx := context.Background()
	mustPush(t, b, "contended", nil, "")

	a := mustPop(t, b, "")
	other := mustPop(t, b, "")
	mustReserve(t, b, a)

	err := b.MarkReserved(ctx, other)
	if !errors.Is(err, jobqueue.ErrLeaseLost) {
		t.Fatalf("second MarkReserved = %v, want ErrLeaseLost", err)
	}
	if other.Attempts() != 0 {
		t.Errorf("losing handle Attempts = %d, want 0", other.Attempts())
	}
}

func testDeleteReserved(t *testing.T, b queue.Backend, _ *Clock) {
	ctx := context.Background()
	jobID := mustPush(t, b, "ack", nil, "")

	ok, err := b.DeleteReserved(ctx, "", jobID)
	if err != nil || !ok {
		t.Fatalf("first DeleteReserved = %v, %v; want true", ok, err)
	}
	ok, err = b.DeleteReserved(ctx, "", jobID)
	if err != nil || ok {
		t.Fatalf("second DeleteReserved = %v, %v; want false", ok, err)
	}
	mustSize(t, b, "", 0)
}

func testExists(t *testing.T, b queue.Backend, _ *Clock) {
	ctx := context.Background()
	mustPush(t, b, "SendEmail", job.Args{"to": "a@b.com"}, "default")

	tests := []struct {
		name    string
		jobType string
		args    job.Args
		queue   string
		want    bool
	}{
		{"identical", "SendEmail", job.Args{"to": "a@b.com"}, "default", true},
		{"default queue", "SendEmail", job.Args{"to": "a@b.com"}, "", true},
		{"other args", "SendEmail", job.Args{"to": "x@y.com"}, "default", false},
		{"other type", "SendSMS", job.Args{"to": "a@b.com"}, "default", false},
		{"other queue", "SendEmail", job.Args{"to": "a@b.com"}, "mail", false},
	}
	for _, tt := range tests {
		got, err := b.Exists(ctx, tt.jobType, tt.args, tt.queue)
		if err != nil {
			t.Fatalf("%s: Exists: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: Exists = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func testBulk(t *testing.T, b queue.Backend, _ *Clock) {
	ids, err := b.Bulk(context.Background(), []string{"a", "b", "c"}, job.Args{"shared": true}, "")
	if err != nil {
		t.Fatalf("Bulk: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("Bulk returned %d ids, want 3", len(ids))
	}
	mustSize(t, b, "", 3)

	for i, name := range []string{"a", "b", "c"} {
		h := mustPop(t, b, "")
		if h.ID() != ids[i] || h.Name() != name {
			t.Fatalf("pop %d = %s/%s, want %s/%s", i, h.ID(), h.Name(), ids[i], name)
		}
		if h.Args()["shared"] != true {
			t.Errorf("args = %v", h.Args())
		}
		mustReserve(t, b, h)
	}
}

func testGetJobByID(t *testing.T, b queue.Backend, _ *Clock) {
	ctx := context.Background()
	jobID := mustPush(t, b, "lookup", job.Args{"x": "y"}, "")

	h, err := b.GetJobByID(ctx, "", jobID)
	if err != nil || h == nil {
		t.Fatalf("GetJobByID = %v, %v", h, err)
	}
	if h.ID() != jobID || h.Name() != "lookup" || h.Reserved() {
		t.Errorf("unexpected handle %s %s reserved=%v", h.ID(), h.Name(), h.Reserved())
	}

	for _, unknown := range []string{"999999", "not-an-id", ""} {
		h, err := b.GetJobByID(ctx, "", unknown)
		if err != nil {
			t.Fatalf("GetJobByID(%q): %v", unknown, err)
		}
		if h != nil {
			t.Errorf("GetJobByID(%q) returned %s", unknown, h.ID())
		}
	}
}

func testPushRawCarriesAttempts(t *testing.T, b queue.Backend, _ *Clock) {
	payload, err := job.EncodeJob("raw", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.PushRaw(context.Background(), payload, "", queue.PushOptions{Attempts: 3}); err != nil {
		t.Fatalf("PushRaw: %v", err)
	}

	h := mustPop(t, b, "")
	if h.Attempts() != 3 {
		t.Fatalf("Attempts = %d, want 3", h.Attempts())
	}
	mustReserve(t, b, h)
	if h.Attempts() != 4 {
		t.Fatalf("Attempts after reserve = %d, want 4", h.Attempts())
	}
}

func testQueuesAreIsolated(t *testing.T, b queue.Backend, _ *Clock) {
	mustPush(t, b, "on-default", nil, "")
	mustPush(t, b, "on-other", nil, "other")

	mustSize(t, b, "main", 1)
	mustSize(t, b, "other", 1)

	h := mustPop(t, b, "other")
	if h.Name() != "on-other" || h.Queue() != "other" {
		t.Errorf("Pop(other) = %s on %s", h.Name(), h.Queue())
	}
	h = mustPop(t, b, "")
	if h.Name() != "on-default" || h.Queue() != "main" {
		t.Errorf("Pop(default) = %s on %s", h.Name(), h.Queue())
	}
	mustPopNone(t, b, "empty")
}

func testInvalidPayload(t *testing.T, b queue.Backend, _ *Clock) {
	_, err := b.Push(context.Background(), "bad", job.Args{"fn": func() {}}, "")
	if !errors.Is(err, jobqueue.ErrInvalidPayload) {
		t.Fatalf("Push = %v, want ErrInvalidPayload", err)
	}
	mustSize(t, b, "", 0)
}
