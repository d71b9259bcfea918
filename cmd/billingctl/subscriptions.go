package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/PawDesk/internal/pkg/bootstrap"
)

func newSubscriptionsCmd(run runtimeRunner) *cobra.Command {
	subscriptionsCmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "Subscription commands",
	}

	var actor uint
	resyncCmd := &cobra.Command{
		Use:   "resync <subscription-id>",
		Short: "Pull a subscription from the provider and reconcile the local mirror",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var actorID *uint
			if cmd.Flags().Changed("actor") {
				actorID = &actor
			}
			return run(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				res, err := rt.Engine.Reconciler.Resync(ctx, args[0], actorID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if res.Skipped {
					fmt.Fprintf(out, "%s skipped: %s\n", args[0], res.SkipReason)
					return nil
				}
				sub := res.Subscription
				fmt.Fprintf(out, "%s %s: status=%s plan=%s amount=%d %s entitled=%t\n",
					args[0], res.ChangeType, sub.Status, sub.PlanID, sub.Amount, sub.Currency, sub.IsEntitling())
				return nil
			})
		},
	}
	resyncCmd.Flags().UintVar(&actor, "actor", 0, "Operator user id recorded in the history entry")

	subscriptionsCmd.AddCommand(resyncCmd)
	return subscriptionsCmd
}
