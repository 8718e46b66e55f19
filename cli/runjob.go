package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func newRunJobCommand(a *app) *cobra.Command {
	var f workerFlags

	cmd := &cobra.Command{
		Use:   "run-job <id>",
		Short: "Run one reserved job by id",
		Long: "Run one reserved job by id. The worker daemon launches this command " +
			"for every job it reserves; it exits non-zero when the attempt fails.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// A signal to the daemon must not abort a running attempt.
			ctx := context.WithoutCancel(cmd.Context())

			rt, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx) //nolint:errcheck // best-effort cleanup on exit

			w := a.newWorker(rt)
			return w.RunJobByID(ctx, f.connection, f.queue, args[0], f.options())
		},
	}
	f.bind(cmd)
	return cmd
}
