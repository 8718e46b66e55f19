// Package cli provides the jobqueue command tree: work, run-job, schedule,
// retry and failed.
//
// Handlers must be registered in the binary that runs jobs, so
// applications build their own main around NewRootCommand with their job
// registry. The work command launches each job by re-executing that same
// binary with run-job.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	audithook "github.com/xraph/jobqueue/audit_hook"
	"github.com/xraph/jobqueue/config"
	"github.com/xraph/jobqueue/cron"
	"github.com/xraph/jobqueue/ext"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/middleware"
	"github.com/xraph/jobqueue/observability"
	"github.com/xraph/jobqueue/worker"
)

// Option customizes the command tree.
type Option func(*app)

// WithWorkerOptions passes extra options to every worker the commands
// build, e.g. worker.WithBackoff.
func WithWorkerOptions(opts ...worker.Option) Option {
	return func(a *app) { a.workerOpts = append(a.workerOpts, opts...) }
}

// WithExtensions registers lifecycle extensions on every worker.
func WithExtensions(exts ...ext.Extension) Option {
	return func(a *app) { a.extensions = append(a.extensions, exts...) }
}

// WithMiddleware appends job middleware after the built-in logging,
// tracing and metrics middleware.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(a *app) { a.middleware = append(a.middleware, mws...) }
}

// WithCronEntries registers recurring jobs for the schedule command.
func WithCronEntries(entries ...cron.Entry) Option {
	return func(a *app) { a.cronEntries = append(a.cronEntries, entries...) }
}

// WithSettings replaces environment loading, mainly for tests.
func WithSettings(s config.Settings) Option {
	return func(a *app) { a.settings = &s }
}

type app struct {
	registry    *job.Registry
	settings    *config.Settings
	workerOpts  []worker.Option
	extensions  []ext.Extension
	middleware  []middleware.Middleware
	cronEntries []cron.Entry

	connectionsFile string
}

// NewRootCommand returns the command tree for registry.
func NewRootCommand(registry *job.Registry, opts ...Option) *cobra.Command {
	a := &app{registry: registry}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:           "jobqueue",
		Short:         "Durable background job queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.connectionsFile, "connections", "", "Path to a JSON connections file (overrides JOBQUEUE_CONNECTIONS_FILE)")

	root.AddCommand(
		newWorkCommand(a),
		newRunJobCommand(a),
		newScheduleCommand(a),
		newRetryCommand(a),
		newFailedCommand(a),
	)
	return root
}

// open loads settings and connects the runtime for one command.
func (a *app) open(ctx context.Context) (*Runtime, error) {
	var s config.Settings
	if a.settings != nil {
		s = *a.settings
	} else {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		s = loaded
	}
	if a.connectionsFile != "" {
		s.ConnectionsFile = a.connectionsFile
	}

	logger, err := s.NewLogger()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	return Open(ctx, s, logger)
}

// extensionRegistry returns the metrics extension plus the configured ones.
func (a *app) extensionRegistry(rt *Runtime) *ext.Registry {
	exts := ext.NewRegistry(rt.Logger)
	exts.Register(observability.NewMetricsExtension())
	if rt.Settings.Audit {
		exts.Register(audithook.New(audithook.LogRecorder(rt.Logger), audithook.WithLogger(rt.Logger)))
	}
	for _, e := range a.extensions {
		exts.Register(e)
	}
	return exts
}

// newWorker builds a worker on rt with the built-in middleware and metrics
// extension plus everything the caller configured.
func (a *app) newWorker(rt *Runtime) *worker.Worker {
	exts := a.extensionRegistry(rt)

	mws := append([]middleware.Middleware{
		middleware.Logging(rt.Logger),
		middleware.Tracing(),
		middleware.Metrics(),
	}, a.middleware...)

	launcher := &worker.ExecLauncher{Binary: rt.Settings.Binary, Logger: rt.Logger}
	if rt.Settings.ConnectionsFile != "" {
		launcher.Env = append(launcher.Env, fmt.Sprintf("%s_CONNECTIONS_FILE=%s", config.Prefix, rt.Settings.ConnectionsFile))
	}

	opts := append([]worker.Option{
		worker.WithLogger(rt.Logger),
		worker.WithExtensions(exts),
		worker.WithMiddleware(mws...),
		worker.WithLauncher(launcher),
	}, a.workerOpts...)

	return worker.New(rt.Manager, a.registry, rt.Failed, opts...)
}
