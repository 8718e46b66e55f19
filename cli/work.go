package cli

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/jobqueue/worker"
)

// workerFlags are shared by work and run-job. Durations are whole seconds
// so the daemon can forward them to run-job unchanged.
type workerFlags struct {
	connection string
	queue      string
	delay      int
	memory     int
	sleep      int
	maxTries   int
	timeout    int
	rate       float64
	burst      int
}

func (f *workerFlags) bind(cmd *cobra.Command) {
	d := worker.DefaultOptions()
	fs := cmd.Flags()
	fs.StringVar(&f.connection, "connection", "", "Name of the connection (default connection when empty)")
	fs.StringVar(&f.queue, "queue", "", "Queue name; work accepts a comma-separated priority list")
	fs.IntVar(&f.delay, "delay", int(d.Delay.Seconds()), "Seconds to delay a failed job before it is retried")
	fs.IntVar(&f.memory, "memory", d.Memory, "Memory limit in megabytes")
	fs.IntVar(&f.sleep, "sleep", int(d.Sleep.Seconds()), "Seconds to sleep when no job is available")
	fs.IntVar(&f.maxTries, "maxTries", d.MaxTries, "Attempts before a job is failed (0 is unlimited)")
	fs.IntVar(&f.timeout, "timeout", int(d.Timeout.Seconds()), "Seconds a job attempt may run")
}

func (f *workerFlags) options() worker.Options {
	return worker.Options{
		Delay:     time.Duration(f.delay) * time.Second,
		Memory:    f.memory,
		Timeout:   time.Duration(f.timeout) * time.Second,
		Sleep:     time.Duration(f.sleep) * time.Second,
		MaxTries:  f.maxTries,
		RateLimit: f.rate,
		RateBurst: f.burst,
	}
}

// queues splits the comma-separated queue flag.
func (f *workerFlags) queues() []string {
	var out []string
	for _, q := range strings.Split(f.queue, ",") {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}

func newWorkCommand(a *app) *cobra.Command {
	var (
		f        workerFlags
		schedule bool
	)

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Run the worker daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(context.WithoutCancel(ctx)) //nolint:errcheck // best-effort cleanup on exit

			w := a.newWorker(rt)
			if !schedule {
				return w.Daemon(ctx, f.connection, f.queues(), f.options())
			}

			s, err := a.newScheduler(rt, time.Second)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			// The scheduler stops with the daemon, including on the memory limit.
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				defer cancel()
				return w.Daemon(gctx, f.connection, f.queues(), f.options())
			})
			g.Go(func() error { return s.Run(gctx) })
			return g.Wait()
		},
	}
	f.bind(cmd)
	cmd.Flags().Float64Var(&f.rate, "rate", 0, "Maximum jobs per second launched from one queue (0 disables)")
	cmd.Flags().IntVar(&f.burst, "burst", 1, "Burst size for --rate")
	cmd.Flags().BoolVar(&schedule, "schedule", false, "Also run the cron scheduler in this process")
	return cmd
}
