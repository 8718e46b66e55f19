package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/jobqueue/failed"
	"github.com/xraph/jobqueue/job"
)

func newRetryCommand(a *app) *cobra.Command {
	var entryID string

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Push failed jobs back onto their queues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx) //nolint:errcheck // best-effort cleanup on exit

			svc := failed.NewService(rt.Failed, rt.Manager, failed.WithLogger(rt.Logger))

			n := 1
			if entryID != "" {
				err = svc.Retry(ctx, entryID)
				if err != nil {
					n = 0
				}
			} else {
				n, err = svc.RetryAll(ctx)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%d] job(s) released.\n", n)
			return err
		},
	}
	cmd.Flags().StringVar(&entryID, "id", "", "Failed job id to retry (all when empty)")
	return cmd
}

func newFailedCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failed",
		Short: "Inspect and purge failed jobs",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List failed jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx) //nolint:errcheck // best-effort cleanup on exit

			entries, err := rt.Failed.All(ctx)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCONNECTION\tQUEUE\tJOB\tFAILED AT\tEXCEPTION")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.ID, e.Connection, e.Queue, jobName(e.Payload),
					e.FailedAt.Format(time.RFC3339), firstLine(e.Exception))
			}
			return tw.Flush()
		},
	}

	forget := &cobra.Command{
		Use:   "forget <id>",
		Short: "Delete one failed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx) //nolint:errcheck // best-effort cleanup on exit

			ok, err := rt.Failed.Forget(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("failed job %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Failed job %s deleted.\n", args[0])
			return nil
		},
	}

	flush := &cobra.Command{
		Use:   "flush",
		Short: "Delete all failed jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx) //nolint:errcheck // best-effort cleanup on exit

			if err := rt.Failed.Flush(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All failed jobs deleted.")
			return nil
		},
	}

	cmd.AddCommand(list, forget, flush)
	return cmd
}

func jobName(payload []byte) string {
	p, err := job.Decode(payload)
	if err != nil {
		return "?"
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Job
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
