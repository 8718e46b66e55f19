package cli_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/cli"
	"github.com/xraph/jobqueue/config"
	"github.com/xraph/jobqueue/cron"
	"github.com/xraph/jobqueue/job"
)

func memorySettings() config.Settings {
	return config.Settings{
		LogLevel:          "error",
		LogFormat:         "text",
		Driver:            "memory",
		DefaultConnection: "default",
		FailedCollection:  "queue_jobs_failed",
	}
}

func redisSettings(t *testing.T) config.Settings {
	t.Helper()
	mr := miniredis.RunT(t)
	s := memorySettings()
	s.Driver = "redis"
	s.RedisURL = "redis://" + mr.Addr()
	return s
}

func execute(ctx context.Context, s config.Settings, args ...string) (string, error) {
	var out bytes.Buffer
	root := cli.NewRootCommand(job.NewRegistry(), cli.WithSettings(s))
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestWork_StopsWhenContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := execute(ctx, memorySettings(), "work", "--queue", "high,low", "--sleep", "0"); err != nil {
		t.Fatalf("work: %v", err)
	}
}

func TestRunJob_UnknownJob(t *testing.T) {
	t.Parallel()

	if _, err := execute(context.Background(), memorySettings(), "run-job", "404", "--sleep", "0"); err != nil {
		t.Fatalf("run-job: %v", err)
	}
}

func TestRunJob_RequiresID(t *testing.T) {
	t.Parallel()

	if _, err := execute(context.Background(), memorySettings(), "run-job"); err == nil {
		t.Fatal("run-job without id succeeded")
	}
}

func TestUnknownDriver(t *testing.T) {
	t.Parallel()
	s := memorySettings()
	s.Driver = "cassandra"

	_, err := execute(context.Background(), s, "retry")
	if !errors.Is(err, jobqueue.ErrUnknownDriver) {
		t.Fatalf("retry error = %v, want ErrUnknownDriver", err)
	}
}

func TestRetry_Empty(t *testing.T) {
	t.Parallel()

	out, err := execute(context.Background(), memorySettings(), "retry")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !strings.Contains(out, "[0] job(s) released.") {
		t.Errorf("output = %q", out)
	}
}

func TestFailedCommands_Redis(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := redisSettings(t)

	rt, err := cli.Open(ctx, s, slog.Default())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	payload, _ := job.EncodeJob("send-email", job.Args{"to": "a@b.com"})
	first, err := rt.Failed.Log(ctx, "default", "emails", payload, errors.New("smtp down\nstack"))
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if _, err := rt.Failed.Log(ctx, "default", "emails", payload, errors.New("again")); err != nil {
		t.Fatalf("Log: %v", err)
	}

	out, err := execute(ctx, s, "failed", "list")
	if err != nil {
		t.Fatalf("failed list: %v", err)
	}
	if !strings.Contains(out, first) || !strings.Contains(out, "send-email") || !strings.Contains(out, "smtp down") {
		t.Errorf("list output = %q", out)
	}
	if strings.Contains(out, "stack") {
		t.Errorf("list printed more than the first exception line: %q", out)
	}

	out, err = execute(ctx, s, "retry", "--id", first)
	if err != nil {
		t.Fatalf("retry --id: %v", err)
	}
	if !strings.Contains(out, "[1] job(s) released.") {
		t.Errorf("retry output = %q", out)
	}

	b, err := rt.Manager.Connection(ctx, "")
	if err != nil {
		t.Fatalf("Connection: %v", err)
	}
	if n, _ := b.Size(ctx, "emails"); n != 1 {
		t.Errorf("emails size = %d, want 1", n)
	}

	if _, err := execute(ctx, s, "failed", "forget", first); err == nil {
		t.Error("forget of a retried entry succeeded")
	}
	if _, err := execute(ctx, s, "failed", "flush"); err != nil {
		t.Fatalf("failed flush: %v", err)
	}
	entries, err := rt.Failed.All(ctx)
	if err != nil || len(entries) != 0 {
		t.Errorf("entries after flush = %d, %v", len(entries), err)
	}
	if err := rt.Close(ctx); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestSchedule_List(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	root := cli.NewRootCommand(job.NewRegistry(),
		cli.WithSettings(memorySettings()),
		cli.WithCronEntries(cron.Entry{Name: "nightly-report", Schedule: "@daily", Job: "build-report", Queue: "reports"}),
	)
	root.SetOut(&out)
	root.SetArgs([]string{"schedule", "--list"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("schedule --list: %v", err)
	}
	if !strings.Contains(out.String(), "nightly-report") || !strings.Contains(out.String(), "build-report") {
		t.Errorf("output = %q", out.String())
	}
}

func TestSchedule_InvalidEntry(t *testing.T) {
	t.Parallel()
	root := cli.NewRootCommand(job.NewRegistry(),
		cli.WithSettings(memorySettings()),
		cli.WithCronEntries(cron.Entry{Name: "bad", Schedule: "whenever", Job: "j"}),
	)
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"schedule"})
	if err := root.ExecuteContext(context.Background()); !errors.Is(err, jobqueue.ErrInvalidSchedule) {
		t.Fatalf("schedule error = %v, want ErrInvalidSchedule", err)
	}
}

func TestWork_WithSchedule(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	root := cli.NewRootCommand(job.NewRegistry(),
		cli.WithSettings(memorySettings()),
		cli.WithCronEntries(cron.Entry{Name: "tick", Schedule: "@every 1s", Job: "noop"}),
	)
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"work", "--schedule", "--sleep", "0"})
	if err := root.ExecuteContext(ctx); err != nil {
		t.Fatalf("work --schedule: %v", err)
	}
}
