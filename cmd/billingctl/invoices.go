package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/PawDesk/internal/pkg/bootstrap"
	"github.com/ManuelReschke/PawDesk/internal/pkg/jobqueue"
)

func newInvoicesCmd(run runtimeRunner) *cobra.Command {
	invoicesCmd := &cobra.Command{
		Use:   "invoices",
		Short: "Invoice commands",
	}

	var (
		method string
		now    bool
	)
	retryCmd := &cobra.Command{
		Use:   "retry <invoice-id>",
		Short: "Retry an open invoice with payment method rotation",
		Example: `  # Queue a retry for the worker
  billingctl invoices retry in_1Nv0XYZ

  # Run the rotation in this process, starting with PIX
  billingctl invoices retry in_1Nv0XYZ --method pix --now`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoiceID := args[0]
			return run(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				out := cmd.OutOrStdout()
				if !now {
					job, err := rt.Retries.Enqueue(ctx, jobqueue.InvoiceRetryJobPayload{
						InvoiceID:       invoiceID,
						PreferredMethod: method,
						Reason:          "operator_request",
					})
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Queued retry for %s as job %s\n", invoiceID, job.ID)
					return nil
				}

				res, err := rt.Engine.Rotation.RetryInvoiceWithRotation(ctx, invoiceID, method)
				if res != nil {
					for i, a := range res.Attempts {
						fmt.Fprintf(out, "%d. %s: %s", i+1, a.MethodType, a.Outcome)
						if a.ProviderErrorCode != "" {
							fmt.Fprintf(out, " (%s)", a.ProviderErrorCode)
						}
						fmt.Fprintln(out)
					}
				}
				if err != nil {
					return err
				}
				if res.AlreadySettled {
					fmt.Fprintf(out, "Invoice %s is already settled\n", invoiceID)
					return nil
				}
				fmt.Fprintf(out, "Invoice %s paid with %s\n", invoiceID, res.MethodUsed)
				return nil
			})
		},
	}
	retryCmd.Flags().StringVar(&method, "method", "", "Payment method type to try first")
	retryCmd.Flags().BoolVar(&now, "now", false, "Run the rotation synchronously instead of queueing a job")

	invoicesCmd.AddCommand(retryCmd)
	return invoicesCmd
}
