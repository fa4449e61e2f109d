package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-grader/internal/bootstrap"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cached workspace state and grading service reachability",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	return withDesk(cmd, func(ctx context.Context, desk *bootstrap.Desk) error {
		out := cmd.OutOrStdout()
		snapshot := desk.Workspace.Snapshot()

		fmt.Fprintf(out, "Service: %s", desk.Client.BaseURL())
		if err := desk.Client.Ping(ctx); err != nil {
			fmt.Fprintf(out, " (unreachable: %v)\n", err)
		} else {
			fmt.Fprintln(out, " (reachable)")
		}
		fmt.Fprintf(out, "Store:   %s\n", desk.Store.Backend())
		fmt.Fprintf(out, "State:   %s\n", snapshot.State)
		fmt.Fprintf(out, "Status:  %s\n", snapshot.StatusText)
		if result := snapshot.Result; result != nil {
			fmt.Fprintf(out, "Batch:   %s (%d/%d graded, average %s)\n", result.BatchID, result.SuccessCount, result.TotalFiles, formatScore(result.AverageScore))
		}
		return nil
	})
}
