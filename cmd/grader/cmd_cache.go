package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-grader/internal/bootstrap"
)

var cacheFlags struct {
	yes bool
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the cached grading result",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the cached grading result",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func init() {
	cacheClearCmd.Flags().BoolVarP(&cacheFlags.yes, "yes", "y", false, "Confirm clearing the cache")
	cacheCmd.AddCommand(cacheClearCmd)
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	return withDesk(cmd, func(ctx context.Context, desk *bootstrap.Desk) error {
		modal := desk.Workspace.ClearCache()
		if !cacheFlags.yes {
			_ = desk.Modal.Cancel(modal.ID)
			return errors.New(modal.Content + " Re-run with --yes to confirm.")
		}
		if err := desk.Modal.Accept(ctx, modal.ID); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Grading cache cleared")
		return nil
	})
}
