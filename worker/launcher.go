package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
)

// LaunchRequest identifies a reserved job to execute in isolation.
type LaunchRequest struct {
	JobID      string
	Connection string
	Queue      string
	Options    Options
}

// Launcher executes a reserved job outside the daemon. Launch must not
// wait for the job to finish.
type Launcher interface {
	Launch(ctx context.Context, req LaunchRequest) error
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, req LaunchRequest) error

// Launch implements Launcher.
func (f LauncherFunc) Launch(ctx context.Context, req LaunchRequest) error { return f(ctx, req) }

// ExecLauncher starts one detached process per job by invoking the run-job
// command of Binary.
type ExecLauncher struct {
	// Binary is the executable to start. Defaults to the running binary.
	Binary string

	// Args are placed before the run-job command, e.g. a global flag.
	Args []string

	// Env is appended to the daemon's environment.
	Env []string

	Logger *slog.Logger
}

// Command returns the argument vector for req without the binary.
func (l *ExecLauncher) Command(req LaunchRequest) []string {
	o := req.Options
	args := make([]string, 0, len(l.Args)+16)
	args = append(args, l.Args...)
	return append(args,
		"run-job", req.JobID,
		"--connection", req.Connection,
		"--queue", req.Queue,
		"--delay", strconv.FormatInt(int64(o.Delay.Seconds()), 10),
		"--memory", strconv.Itoa(o.Memory),
		"--sleep", strconv.FormatInt(int64(o.Sleep.Seconds()), 10),
		"--maxTries", strconv.Itoa(o.MaxTries),
		"--timeout", strconv.FormatInt(int64(o.Timeout.Seconds()), 10),
	)
}

// Launch implements Launcher. The child runs in its own process group so
// that a signal to the daemon does not reach it, and is reaped in the
// background.
func (l *ExecLauncher) Launch(_ context.Context, req LaunchRequest) error {
	bin := l.Binary
	if bin == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve executable: %w", err)
		}
		bin = exe
	}

	// The child outlives the poll that launched it.
	cmd := exec.Command(bin, l.Command(req)...) //nolint:gosec // binary is operator-configured
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), l.Env...)
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch job %s: %w", req.JobID, err)
	}

	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("job process started",
		slog.String("job_id", req.JobID),
		slog.Int("pid", cmd.Process.Pid),
	)

	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Warn("job process exited with error",
				slog.String("job_id", req.JobID),
				slog.String("error", err.Error()),
			)
		}
	}()
	return nil
}
