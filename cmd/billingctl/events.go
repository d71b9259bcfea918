package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/PawDesk/internal/pkg/bootstrap"
)

func newEventsCmd(run runtimeRunner) *cobra.Command {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Provider event commands",
	}

	var (
		limit  int
		minAge time.Duration
	)
	pendingCmd := &cobra.Command{
		Use:   "pending",
		Short: "List stored events that were never processed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				pending, err := rt.Repos.Events.ListUnprocessed(ctx, time.Now().Add(-minAge), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(pending) == 0 {
					fmt.Fprintln(out, "No pending events")
					return nil
				}
				for _, ev := range pending {
					fmt.Fprintf(out, "%s\t%s\tattempts=%d\tcreated=%s", ev.EventID, ev.EventType, ev.Attempts, ev.CreatedAt.Format(time.RFC3339))
					if ev.ProcessingError != "" {
						fmt.Fprintf(out, "\terror=%q", ev.ProcessingError)
					}
					fmt.Fprintln(out)
				}
				return nil
			})
		},
	}
	pendingCmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of events to list")
	pendingCmd.Flags().DurationVar(&minAge, "min-age", 0, "Only list events older than this")

	replayCmd := &cobra.Command{
		Use:   "replay <event-id>",
		Short: "Replay one stored event",
		Example: `  # Re-run a webhook that failed with a provider timeout
  billingctl events replay evt_1Nv0XYZ`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				outcome, err := rt.Engine.Dispatcher.Replay(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], outcome)
				return nil
			})
		},
	}

	replayPendingCmd := &cobra.Command{
		Use:   "replay-pending",
		Short: "Replay every unprocessed event older than BILLING_REPLAY_MIN_AGE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				n, err := rt.Engine.Dispatcher.ReplayPending(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d events\n", n)
				return err
			})
		},
	}

	eventsCmd.AddCommand(pendingCmd, replayCmd, replayPendingCmd)
	return eventsCmd
}
