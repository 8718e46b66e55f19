package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/jobqueue/cron"
	"github.com/xraph/jobqueue/queue"
)

func newScheduleCommand(a *app) *cobra.Command {
	var (
		tick time.Duration
		list bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Push recurring jobs on their cron schedules",
		Long: "Push recurring jobs on their cron schedules. Entries are registered " +
			"by the application with cli.WithCronEntries; run one scheduler per deployment.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx) //nolint:errcheck // best-effort cleanup on exit

			s, err := a.newScheduler(rt, tick)
			if err != nil {
				return err
			}

			if list {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tSCHEDULE\tJOB\tQUEUE\tNEXT RUN")
				for _, st := range s.Entries() {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						st.Name, st.Schedule, st.Job, st.Queue, st.NextRunAt.Format(time.RFC3339))
				}
				return tw.Flush()
			}
			return s.Run(ctx)
		},
	}
	cmd.Flags().DurationVar(&tick, "tick", time.Second, "How often due entries are checked")
	cmd.Flags().BoolVar(&list, "list", false, "Print the registered entries and exit")
	return cmd
}

// newScheduler builds a scheduler on rt with every registered cron entry.
func (a *app) newScheduler(rt *Runtime, tick time.Duration) (*cron.Scheduler, error) {
	s := cron.NewScheduler(queue.NewProducer(rt.Manager),
		cron.WithTickInterval(tick),
		cron.WithLogger(rt.Logger),
		cron.WithEmitter(a.extensionRegistry(rt)),
	)
	for _, e := range a.cronEntries {
		if err := s.Register(e); err != nil {
			return nil, err
		}
	}
	return s, nil
}
