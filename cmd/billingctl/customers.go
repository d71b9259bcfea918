package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/PawDesk/internal/pkg/bootstrap"
)

func newCustomersCmd(run runtimeRunner) *cobra.Command {
	customersCmd := &cobra.Command{
		Use:   "customers",
		Short: "Customer mapping commands",
	}

	var email, name string
	resolveCmd := &cobra.Command{
		Use:   "resolve <tenant-id>",
		Short: "Return the tenant's provider customer, recreating a stale mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || tenantID == 0 {
				return fmt.Errorf("invalid tenant id %q", args[0])
			}
			return run(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				ref, err := rt.Engine.Resolver.ResolveOrCreate(ctx, uint(tenantID), email, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "tenant=%d customer=%s local_id=%d recreated=%t\n",
					ref.TenantID, ref.UpstreamCustomerID, ref.ID, ref.Recreated)
				return nil
			})
		},
	}
	resolveCmd.Flags().StringVar(&email, "email", "", "E-mail used when a customer must be created")
	resolveCmd.Flags().StringVar(&name, "name", "", "Name used when a customer must be created")

	customersCmd.AddCommand(resolveCmd)
	return customersCmd
}
