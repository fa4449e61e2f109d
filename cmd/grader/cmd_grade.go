package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-grader/internal/bootstrap"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/pkg/gradingclient"
)

var gradeFlags struct {
	json bool
}

var gradeCmd = &cobra.Command{
	Use:   "grade <file>...",
	Short: "Grade .txt and .docx homework files and wait for the result",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGrade,
}

func init() {
	gradeCmd.Flags().BoolVar(&gradeFlags.json, "json", false, "Print the full grading response as JSON")
}

func runGrade(cmd *cobra.Command, args []string) error {
	files := make([]gradingclient.File, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		files = append(files, gradingclient.File{Name: filepath.Base(path), Data: data})
	}

	return withDesk(cmd, func(ctx context.Context, desk *bootstrap.Desk) error {
		run, err := desk.Workspace.Submit(ctx, files, service.SubmitOptions{})
		if err != nil {
			return err
		}
		logger.Info().Uint64("token", run.Token).Int("files", len(files)).Msg("grading started")
		if err := run.Wait(ctx); err != nil {
			return err
		}

		snapshot := desk.Workspace.Snapshot()
		if snapshot.State == service.StateFailed || snapshot.Result == nil {
			reason := snapshot.LastError
			if reason == "" {
				reason = snapshot.StatusText
			}
			return fmt.Errorf("grading failed: %s", reason)
		}

		out := cmd.OutOrStdout()
		if gradeFlags.json {
			return writeJSON(out, snapshot.Result)
		}

		result := snapshot.Result
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FILE\tSCORE\tSTATUS")
		for _, item := range result.Items {
			status := item.Status
			if item.ErrorMessage != nil && *item.ErrorMessage != "" {
				status = fmt.Sprintf("%s (%s)", status, *item.ErrorMessage)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", item.FileName, formatScore(item.Score), status)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		fmt.Fprintf(out, "\nBatch %s: %d/%d graded, average %s\n", result.BatchID, result.SuccessCount, result.TotalFiles, formatScore(result.AverageScore))
		if link := desk.Client.ResolveDownloadURL(result.DownloadResultURL); link != "" {
			fmt.Fprintf(out, "Results: %s\n", link)
		}
		if link := desk.Client.ResolveDownloadURL(result.DownloadErrorURL); link != "" {
			fmt.Fprintf(out, "Errors:  %s\n", link)
		}
		return nil
	})
}
