// Command jobqueue runs worker daemons and manages failed jobs.
//
// This binary has no job handlers registered, so it can run the daemon and
// replay failed jobs but every job it executes fails as unknown.
// Applications build their own main around cli.NewRootCommand with their
// registry and point JOBQUEUE_BINARY at it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xraph/jobqueue/cli"
	"github.com/xraph/jobqueue/job"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cli.NewRootCommand(job.NewRegistry()).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "jobqueue:", err)
		os.Exit(1)
	}
}
