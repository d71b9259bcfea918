package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/PawDesk/internal/pkg/bootstrap"
	"github.com/ManuelReschke/PawDesk/internal/pkg/jobqueue"
)

func newJobsCmd(run runtimeRunner) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Background job commands",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show job queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				stats, err := rt.Queue.GetJobStats(ctx)
				if err != nil {
					return err
				}
				queued, err := rt.Queue.GetQueueSize(ctx)
				if err != nil {
					return err
				}
				processing, err := rt.Queue.GetProcessingSize(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "queued=%d processing=%d\n", queued, processing)
				for _, status := range []jobqueue.JobStatus{
					jobqueue.JobStatusPending,
					jobqueue.JobStatusProcessing,
					jobqueue.JobStatusCompleted,
					jobqueue.JobStatusFailed,
					jobqueue.JobStatusRetrying,
				} {
					fmt.Fprintf(out, "%s=%d\n", status, stats[status])
				}
				return nil
			})
		},
	}

	jobsCmd.AddCommand(statsCmd)
	return jobsCmd
}
