package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-grader/internal/bootstrap"
	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/models"
)

var settingsFlags struct {
	apiURL          string
	apiKey          string
	modelName       string
	template        string
	mock            bool
	skipFormatCheck bool
	multi           bool
	scoreTargetMax  float64
	reset           bool
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the grading settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the grading, editor and theme settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change grading settings; only the given flags are applied",
	Args:  cobra.NoArgs,
	RunE:  runSettingsSet,
}

func init() {
	f := settingsSetCmd.Flags()
	f.StringVar(&settingsFlags.apiURL, "api-url", "", "Model endpoint URL")
	f.StringVar(&settingsFlags.apiKey, "api-key", "", "Model endpoint key")
	f.StringVar(&settingsFlags.modelName, "model", "", "Model name")
	f.StringVar(&settingsFlags.template, "template", "", "Rubric category key, or auto")
	f.BoolVar(&settingsFlags.mock, "mock", false, "Grade with the service's mock model")
	f.BoolVar(&settingsFlags.skipFormatCheck, "skip-format-check", true, "Skip .docx format validation")
	f.BoolVar(&settingsFlags.multi, "multi", false, "Grade with up to two model endpoints")
	f.Float64Var(&settingsFlags.scoreTargetMax, "score-target-max", 60, "Maximum of the reported score")
	f.BoolVar(&settingsFlags.reset, "reset", false, "Restore defaults before applying other flags")

	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

type settingsView struct {
	Grade  models.GradeConfig    `json:"grade"`
	Editor models.EditorSettings `json:"editor"`
	Theme  string                `json:"theme"`
}

func printSettings(cmd *cobra.Command, desk *bootstrap.Desk) error {
	grade := desk.Settings.Grade()
	grade.APIKey = maskSecret(grade.APIKey)
	for i := range grade.Models {
		grade.Models[i].APIKey = maskSecret(grade.Models[i].APIKey)
	}
	return writeJSON(cmd.OutOrStdout(), settingsView{
		Grade:  grade,
		Editor: desk.Settings.Editor(),
		Theme:  desk.Settings.Theme(),
	})
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	return withDesk(cmd, func(_ context.Context, desk *bootstrap.Desk) error {
		return printSettings(cmd, desk)
	})
}

func runSettingsSet(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	var patch dto.GradeSettingsPatch
	if flags.Changed("api-url") {
		patch.APIURL = &settingsFlags.apiURL
	}
	if flags.Changed("api-key") {
		patch.APIKey = &settingsFlags.apiKey
	}
	if flags.Changed("model") {
		patch.ModelName = &settingsFlags.modelName
	}
	if flags.Changed("template") {
		patch.Template = &settingsFlags.template
	}
	if flags.Changed("mock") {
		patch.Mock = &settingsFlags.mock
	}
	if flags.Changed("skip-format-check") {
		patch.SkipFormatCheck = &settingsFlags.skipFormatCheck
	}
	if flags.Changed("multi") {
		patch.MultiEnabled = &settingsFlags.multi
	}
	if flags.Changed("score-target-max") {
		patch.ScoreTargetMax = &settingsFlags.scoreTargetMax
	}

	return withDesk(cmd, func(ctx context.Context, desk *bootstrap.Desk) error {
		if settingsFlags.reset {
			desk.Settings.Reset()
		}
		if _, err := desk.Settings.UpdateGrade(patch); err != nil {
			return fmt.Errorf("update settings: %w", err)
		}
		if err := desk.Settings.Flush(ctx); err != nil {
			return err
		}
		return printSettings(cmd, desk)
	})
}
