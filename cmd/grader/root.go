package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-grader/internal/bootstrap"
	"github.com/noah-isme/gema-grader/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	verbose bool
}

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
	Level(zerolog.InfoLevel).
	With().Timestamp().Logger()

var rootCmd = &cobra.Command{
	Use:           "grader",
	Short:         "Submit homework for grading and edit the scoring rubric",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRun: func(*cobra.Command, []string) {
		if rootFlags.verbose {
			logger = logger.Level(zerolog.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootFlags.verbose, "verbose", "v", false, "Log debug output")
	rootCmd.AddCommand(gradeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(rubricCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.Version = version
}

// withDesk opens the desk for one command and always releases it afterwards.
func withDesk(cmd *cobra.Command, run func(ctx context.Context, desk *bootstrap.Desk) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	desk, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	runErr := run(ctx, desk)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := desk.Close(closeCtx); err != nil {
		logger.Warn().Err(err).Msg("failed to release grading desk")
	}
	return runErr
}
