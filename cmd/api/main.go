package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/bootstrap"
	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/handler"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/router"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	desk, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start grading desk")
	}

	if _, err := desk.Rubric.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("rubric configuration unavailable")
	}
	go desk.Rubric.RunAutoSave(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		ErrorHandler: handler.ErrorHandler,
		BodyLimit:    64 * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		WorkspaceHandler: handler.NewWorkspaceHandler(desk.Workspace, desk.Files, desk.Client, logger),
		RubricHandler:    handler.NewRubricHandler(desk.Rubric, desk.Validate, logger),
		SettingsHandler:  handler.NewSettingsHandler(desk.Settings, desk.Validate, logger),
		UIHandler:        handler.NewUIHandler(desk.Toasts, desk.Modal, desk.Validate, logger, cfg.StreamKeepAlive),
		Health:           handler.HealthCheck(cfg, desk.Store.Backend(), desk.Client),
	})

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Str("grading_service", desk.Client.BaseURL()).Msg("grading desk listening")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(ctx, app, desk, logger)
}

func waitForShutdown(ctx context.Context, app *fiber.App, desk *bootstrap.Desk, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := desk.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to release grading desk")
	}

	logger.Info().Msg("server stopped")
}
