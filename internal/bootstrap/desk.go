package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/database"
	"github.com/noah-isme/gema-grader/internal/rubric"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/store"
	"github.com/noah-isme/gema-grader/pkg/gradingclient"
)

// Desk is the wired set of services shared by the server and the CLI.
type Desk struct {
	Config    config.Config
	Validate  *validator.Validate
	Store     store.Store
	Client    *gradingclient.Client
	Files     *service.SubmissionFiles
	Toasts    service.NotificationCenter
	Modal     service.ConfirmationService
	Settings  service.SettingsService
	Rubric    service.RubricService
	Workspace service.WorkspaceService

	closers []func() error
	logger  zerolog.Logger
}

// New opens the store, connects optional NATS and builds every service. Settings and
// the cached workspace are restored before it returns.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Desk, error) {
	d := &Desk{Config: cfg, logger: logger.With().Str("component", "bootstrap").Logger()}

	st, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	d.Store = st
	d.closers = append(d.closers, closeStore)

	client, err := gradingclient.New(gradingclient.Config{
		BaseURL: cfg.GradingBaseURL,
		Timeout: cfg.GradingTimeout,
		Logger:  logger,
	})
	if err != nil {
		_ = d.Close(ctx)
		return nil, fmt.Errorf("create grading client: %w", err)
	}
	d.Client = client

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			d.logger.Warn().Err(err).Msg("grading events will not be published")
		} else {
			d.closers = append(d.closers, func() error { return natsConn.Drain() })
		}
	}

	d.Validate = validator.New(validator.WithRequiredStructEnabled())
	d.Files = service.NewSubmissionFiles(0)
	d.Toasts = service.NewNotificationCenter(cfg.ToastTTL, logger)
	d.Modal = service.NewConfirmationService(logger)
	d.Settings = service.NewSettingsService(st, d.Toasts, d.Validate, cfg.SettingsDebounce, cfg.DefaultTheme, logger)
	d.Rubric = service.NewRubricService(service.RubricOptions{
		Gateway:   client,
		Store:     st,
		Templates: d.Settings,
		Editor:    d.Settings,
		Notifier:  d.Toasts,
		Validator: rubric.NewValidator(d.Validate, rubric.Policy{RequireConsistentTotals: cfg.RequireConsistentRubric}),
		Logger:    logger,
	})
	d.Workspace = service.NewWorkspaceService(service.WorkspaceOptions{
		Grader:           client,
		Settings:         d.Settings,
		Store:            st,
		Notifier:         d.Toasts,
		Confirmer:        d.Modal,
		Events:           service.NewNATSEventPublisher(natsConn, cfg.NATSSubject, logger),
		Files:            d.Files,
		ProgressInterval: cfg.ProgressInterval,
		Logger:           logger,
	})

	if err := d.Settings.Load(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("using default settings")
	}
	if err := d.Workspace.Restore(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("workspace cache not restored")
	}
	return d, nil
}

// Close keeps unsaved rubric edits as a draft, flushes pending settings and releases
// connections in reverse order.
func (d *Desk) Close(ctx context.Context) error {
	var errs []error
	if d.Rubric != nil {
		if _, err := d.Rubric.SaveDraft(ctx); err != nil {
			errs = append(errs, fmt.Errorf("save rubric draft: %w", err))
		}
	}
	if d.Settings != nil {
		if err := d.Settings.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush settings: %w", err))
		}
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
