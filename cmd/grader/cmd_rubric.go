package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-grader/internal/bootstrap"
	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/rubric"
)

var rubricFlags struct {
	exportFormat string
	importFormat string
	output       string
	save         bool
}

var rubricCmd = &cobra.Command{
	Use:   "rubric",
	Short: "Inspect and edit the grading service's rubric",
}

var rubricShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Summarise categories, sections and validation warnings",
	Args:  cobra.NoArgs,
	RunE:  runRubricShow,
}

var rubricExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the rubric document as JSON or YAML",
	Args:  cobra.NoArgs,
	RunE:  runRubricExport,
}

var rubricImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the working rubric with a JSON or YAML document",
	Args:  cobra.ExactArgs(1),
	RunE:  runRubricImport,
}

var rubricSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Validate the working rubric, including any stored draft, and send it to the grading service",
	Args:  cobra.NoArgs,
	RunE:  runRubricSave,
}

func init() {
	rubricExportCmd.Flags().StringVarP(&rubricFlags.exportFormat, "format", "f", formatJSON, "Output format: json or yaml")
	rubricExportCmd.Flags().StringVarP(&rubricFlags.output, "output", "o", "", "Write to a file instead of stdout")
	rubricImportCmd.Flags().StringVarP(&rubricFlags.importFormat, "format", "f", "", "Input format: json or yaml (default from file extension)")
	rubricImportCmd.Flags().BoolVar(&rubricFlags.save, "save", false, "Save to the grading service after importing")

	rubricCmd.AddCommand(rubricShowCmd)
	rubricCmd.AddCommand(rubricExportCmd)
	rubricCmd.AddCommand(rubricImportCmd)
	rubricCmd.AddCommand(rubricSaveCmd)
}

func loadRubric(ctx context.Context, desk *bootstrap.Desk) (dto.RubricView, error) {
	view, err := desk.Rubric.Load(ctx)
	if err != nil {
		return view, fmt.Errorf("load rubric: %w", err)
	}
	return view, nil
}

func runRubricShow(cmd *cobra.Command, _ []string) error {
	return withDesk(cmd, func(ctx context.Context, desk *bootstrap.Desk) error {
		view, err := loadRubric(ctx, desk)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if view.Dirty {
			fmt.Fprintln(out, "Working copy has unsaved changes.")
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tNAME\tSECTIONS\tMAX")
		for _, key := range view.Config.Categories.Keys() {
			category, _ := view.Config.Categories.Get(key)
			var total float64
			for _, section := range category.Sections {
				total += section.MaxScore
			}
			marker := ""
			if key == view.ActiveKey {
				marker = " *"
			}
			fmt.Fprintf(tw, "%s%s\t%s\t%d\t%g\n", key, marker, category.DisplayName, len(category.Sections), total)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		printIssues(out, "Warnings", view.Warnings)
		return nil
	})
}

func runRubricExport(cmd *cobra.Command, _ []string) error {
	return withDesk(cmd, func(ctx context.Context, desk *bootstrap.Desk) error {
		view, err := loadRubric(ctx, desk)
		if err != nil {
			return err
		}
		var out io.Writer = cmd.OutOrStdout()
		if rubricFlags.output != "" {
			file, err := os.Create(rubricFlags.output)
			if err != nil {
				return err
			}
			defer file.Close()
			out = file
		}
		return writeDocument(out, rubricFlags.exportFormat, view.Config)
	})
}

func runRubricImport(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	format := rubricFlags.importFormat
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(args[0])), ".")
		if format != formatYAML && format != "yml" {
			format = ""
		}
	}
	document, err := documentToJSON(raw, format)
	if err != nil {
		return err
	}

	return withDesk(cmd, func(ctx context.Context, desk *bootstrap.Desk) error {
		if _, err := loadRubric(ctx, desk); err != nil {
			return err
		}
		view, err := desk.Rubric.Import(ctx, document)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Imported %d categories.\n", view.Config.Categories.Len())
		if !rubricFlags.save {
			fmt.Fprintln(out, "Kept as a local draft; run 'grader rubric save' to publish it.")
			return nil
		}
		return saveRubric(ctx, cmd, desk)
	})
}

func runRubricSave(cmd *cobra.Command, _ []string) error {
	return withDesk(cmd, func(ctx context.Context, desk *bootstrap.Desk) error {
		if _, err := loadRubric(ctx, desk); err != nil {
			return err
		}
		return saveRubric(ctx, cmd, desk)
	})
}

func saveRubric(ctx context.Context, cmd *cobra.Command, desk *bootstrap.Desk) error {
	out := cmd.OutOrStdout()
	resp, err := desk.Rubric.Save(ctx)
	var invalid *rubric.ValidationError
	if errors.As(err, &invalid) {
		printIssues(out, "Errors", invalid.Issues)
		return errors.New("rubric has validation errors and was not saved")
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Rubric saved.")
	printIssues(out, "Warnings", resp.Warnings)
	return nil
}

func printIssues(out io.Writer, title string, issues []rubric.Issue) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintf(out, "%s:\n", title)
	for _, issue := range issues {
		fmt.Fprintf(out, "  %s: %s\n", issue.Path, issue.Message)
	}
}
