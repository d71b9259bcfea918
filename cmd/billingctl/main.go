package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/PawDesk/internal/pkg/bootstrap"
	"github.com/ManuelReschke/PawDesk/internal/pkg/env"
)

// newRuntime is swapped in tests.
var newRuntime = bootstrap.NewRuntime

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var timeout time.Duration

	root := &cobra.Command{
		Use:   "billingctl",
		Short: "PawDesk billing operations",
		Long:  `Inspect and repair billing state: replay provider events, retry invoices, resync subscriptions and resolve customers.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			env.SetupEnvFileOptional()
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall timeout for the command")

	withRuntime := func(cmd *cobra.Command, fn func(ctx context.Context, rt *bootstrap.Runtime) error) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		rt, err := newRuntime(ctx)
		if err != nil {
			return fmt.Errorf("startup: %w", err)
		}
		defer rt.Close()
		return fn(ctx, rt)
	}

	root.AddCommand(
		newEventsCmd(withRuntime),
		newInvoicesCmd(withRuntime),
		newSubscriptionsCmd(withRuntime),
		newCustomersCmd(withRuntime),
		newJobsCmd(withRuntime),
	)
	return root
}

type runtimeRunner func(cmd *cobra.Command, fn func(ctx context.Context, rt *bootstrap.Runtime) error) error
