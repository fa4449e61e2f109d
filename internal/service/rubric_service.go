package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/rubric"
	"github.com/noah-isme/gema-grader/internal/store"
	"github.com/noah-isme/gema-grader/pkg/gradingclient"
)

// ErrNoActiveCategory indicates an edit that needs an active category while the rubric has none.
var ErrNoActiveCategory = errors.New("no rubric category selected")

// ErrRubricNotLoaded rejects saves and edits before a rubric was fetched from the grading service.
var ErrRubricNotLoaded = errors.New("rubric has not been loaded from the grading service")

const (
	defaultCategoryKey  = "default"
	defaultCategoryName = "Default"

	defaultConfigWarning = "No rubric configuration found on the grading service; a default category was created."
	rubricSavedMessage   = "Rubric saved"
	draftRestoredMessage = "Restored unsaved rubric draft"
)

// RubricGateway is the remote rubric document store.
type RubricGateway interface {
	FetchRubric(ctx context.Context) (*models.RubricConfig, error)
	SaveRubric(ctx context.Context, cfg *models.RubricConfig) error
	PreviewPrompt(ctx context.Context, req gradingclient.PreviewRequest) (*gradingclient.PreviewResponse, error)
}

// TemplateSyncer receives the rebuilt template options after every structural change.
type TemplateSyncer interface {
	SyncTemplate(options []models.TemplateOption) models.GradeConfig
}

// EditorSettingsSource supplies the auto-save settings.
type EditorSettingsSource interface {
	Editor() models.EditorSettings
}

// RubricService owns the editor's working copy of the rubric.
type RubricService interface {
	Load(ctx context.Context) (dto.RubricView, error)
	Reload(ctx context.Context) (dto.RubricView, error)
	View() dto.RubricView
	Templates() []models.TemplateOption
	Save(ctx context.Context) (dto.SaveRubricResponse, error)
	Import(ctx context.Context, raw []byte) (dto.RubricView, error)
	SelectCategory(key string) dto.RubricView
	AddCategory(key, displayName string) (dto.RubricView, error)
	RemoveCategory(key string) (dto.RubricView, error)
	RenameCategory(from, to string) (dto.RubricView, error)
	AddSection() (dto.RubricView, error)
	RemoveSection(index int) (dto.RubricView, error)
	AddItem(section int) (dto.RubricView, error)
	RemoveItem(section, item int) (dto.RubricView, error)
	SetField(req dto.FieldUpdateRequest) (dto.RubricView, error)
	NormalizeSectionScores() (dto.RubricView, error)
	Preview(ctx context.Context, req dto.PreviewRequest) (dto.PreviewResponse, error)
	SaveDraft(ctx context.Context) (bool, error)
	RunAutoSave(ctx context.Context)
}

// RubricOptions wires the rubric service collaborators.
type RubricOptions struct {
	Gateway   RubricGateway
	Store     store.Store
	Templates TemplateSyncer
	Editor    EditorSettingsSource
	Notifier  Notifier
	Validator *rubric.Validator
	Logger    zerolog.Logger
}

type rubricService struct {
	gateway   RubricGateway
	store     store.Store
	templates TemplateSyncer
	editorCfg EditorSettingsSource
	notifier  Notifier
	validator *rubric.Validator
	logger    zerolog.Logger
	tracer    trace.Tracer
	group     singleflight.Group

	mu        sync.Mutex
	editor    *rubric.Editor
	loaded    bool
	dirty     bool
	loadError string
	options   []models.TemplateOption
}

// NewRubricService constructs the rubric editor service.
func NewRubricService(opts RubricOptions) RubricService {
	validator := opts.Validator
	if validator == nil {
		validator = rubric.NewValidator(nil, rubric.Policy{})
	}
	return &rubricService{
		gateway:   opts.Gateway,
		store:     opts.Store,
		templates: opts.Templates,
		editorCfg: opts.Editor,
		notifier:  opts.Notifier,
		validator: validator,
		logger:    opts.Logger.With().Str("component", "rubric_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-grader/internal/service/rubric"),
		editor:    rubric.NewEditor(nil),
		options:   []models.TemplateOption{models.AutoTemplate},
	}
}

// Load returns the cached working copy, fetching it once on first access.
func (s *rubricService) Load(ctx context.Context) (dto.RubricView, error) {
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if loaded {
		return s.View(), nil
	}
	return s.fetch(ctx)
}

// Reload always goes to the grading service, discarding unsaved edits and the local draft.
func (s *rubricService) Reload(ctx context.Context) (dto.RubricView, error) {
	if s.store != nil {
		if err := s.store.Remove(ctx, store.KeyRubricDraft); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("failed to clear rubric draft")
		}
	}
	return s.fetch(ctx)
}

func (s *rubricService) fetch(ctx context.Context) (dto.RubricView, error) {
	_, err, _ := s.group.Do("rubric", func() (interface{}, error) {
		ctx, span := s.tracer.Start(ctx, "rubric.fetch")
		defer span.End()

		cfg, err := s.gateway.FetchRubric(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.applyFetchFailure(gradingclient.Message(err))
			return nil, err
		}
		s.applyFetched(ctx, cfg)
		return nil, nil
	})
	return s.View(), err
}

func (s *rubricService) applyFetchFailure(message string) {
	s.mu.Lock()
	s.loadError = message
	s.options = []models.TemplateOption{models.AutoTemplate}
	options := s.options
	s.mu.Unlock()

	s.logger.Error().Str("message", message).Msg("failed to load rubric configuration")
	s.syncTemplates(options)
	s.toast(message, ToastWarning)
}

func (s *rubricService) applyFetched(ctx context.Context, cfg *models.RubricConfig) {
	if cfg == nil {
		cfg = defaultRubric()
		s.toast(defaultConfigWarning, ToastWarning)
	}

	dirty := false
	var draft models.RubricConfig
	if s.store != nil {
		if err := s.store.Load(ctx, store.KeyRubricDraft, &draft); err == nil {
			cfg = &draft
			dirty = true
			s.toast(draftRestoredMessage, ToastInfo)
		} else if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("ignoring unreadable rubric draft")
		}
	}

	s.mu.Lock()
	s.editor.Replace(cfg)
	s.loaded = true
	s.dirty = dirty
	s.loadError = ""
	s.options = rubric.TemplateOptions(cfg)
	options := s.options
	s.mu.Unlock()

	s.syncTemplates(options)
}

func defaultRubric() *models.RubricConfig {
	cfg := &models.RubricConfig{}
	cfg.Categories.Set(defaultCategoryKey, &models.RubricCategory{
		DisplayName:    defaultCategoryName,
		Sections:       []models.RubricSection{},
		DocxValidation: models.DisabledDocxValidation(),
	})
	return cfg
}

func (s *rubricService) View() dto.RubricView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *rubricService) viewLocked() dto.RubricView {
	report := s.validator.Validate(s.editor.Config())
	warnings := append([]rubric.Issue{}, report.Warnings...)
	return dto.RubricView{
		Config:    s.editor.Config().Clone(),
		ActiveKey: s.editor.ActiveKey(),
		Templates: append([]models.TemplateOption{}, s.options...),
		Warnings:  warnings,
		LoadError: s.loadError,
		Dirty:     s.dirty,
	}
}

func (s *rubricService) Templates() []models.TemplateOption {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TemplateOption{}, s.options...)
}

// Save validates the working copy and writes it to the grading service. Blocking
// issues abort the save with a *rubric.ValidationError.
func (s *rubricService) Save(ctx context.Context) (dto.SaveRubricResponse, error) {
	ctx, span := s.tracer.Start(ctx, "rubric.save")
	defer span.End()

	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		span.SetStatus(codes.Error, ErrRubricNotLoaded.Error())
		return dto.SaveRubricResponse{}, ErrRubricNotLoaded
	}
	cfg := s.editor.Config().Clone()
	s.mu.Unlock()

	report := s.validator.Validate(cfg)
	if err := report.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return dto.SaveRubricResponse{Warnings: report.Warnings}, err
	}
	span.SetAttributes(attribute.Int("rubric.categories", cfg.Categories.Len()))

	if err := s.gateway.SaveRubric(ctx, cfg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error().Err(err).Msg("failed to save rubric")
		s.toast(gradingclient.Message(err), ToastError)
		return dto.SaveRubricResponse{Warnings: report.Warnings}, err
	}

	s.mu.Lock()
	s.dirty = false
	s.loaded = true
	s.loadError = ""
	s.options = rubric.TemplateOptions(s.editor.Config())
	options := s.options
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Remove(ctx, store.KeyRubricDraft); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("failed to clear rubric draft")
		}
	}
	s.syncTemplates(options)
	s.toast(rubricSavedMessage, ToastSuccess)
	return dto.SaveRubricResponse{Saved: true, Warnings: report.Warnings}, nil
}

// Import replaces the working copy with a schema-checked JSON document. It is not saved remotely.
func (s *rubricService) Import(ctx context.Context, raw []byte) (dto.RubricView, error) {
	cfg, err := rubric.DecodeDocument(raw)
	if err != nil {
		return s.View(), err
	}
	return s.edit(true, func(e *rubric.Editor) error {
		e.Replace(cfg)
		return nil
	})
}

func (s *rubricService) SelectCategory(key string) dto.RubricView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editor.SelectCategory(key)
	return s.viewLocked()
}

func (s *rubricService) AddCategory(key, displayName string) (dto.RubricView, error) {
	return s.edit(true, func(e *rubric.Editor) error {
		return e.AddCategory(key, displayName)
	})
}

func (s *rubricService) RemoveCategory(key string) (dto.RubricView, error) {
	return s.edit(true, func(e *rubric.Editor) error {
		if !e.RemoveCategory(key) {
			return rubric.ErrCategoryNotFound
		}
		return nil
	})
}

func (s *rubricService) RenameCategory(from, to string) (dto.RubricView, error) {
	return s.edit(true, func(e *rubric.Editor) error {
		return e.RenameCategory(from, to)
	})
}

func (s *rubricService) AddSection() (dto.RubricView, error) {
	return s.edit(false, func(e *rubric.Editor) error {
		key, err := activeKey(e)
		if err != nil {
			return err
		}
		_, err = e.AddSection(key)
		return err
	})
}

// RemoveSection is a no-op for out-of-range indices.
func (s *rubricService) RemoveSection(index int) (dto.RubricView, error) {
	return s.edit(false, func(e *rubric.Editor) error {
		key, err := activeKey(e)
		if err != nil {
			return err
		}
		e.RemoveSection(key, index)
		return nil
	})
}

func (s *rubricService) AddItem(section int) (dto.RubricView, error) {
	return s.edit(false, func(e *rubric.Editor) error {
		key, err := activeKey(e)
		if err != nil {
			return err
		}
		_, err = e.AddItem(key, section)
		return err
	})
}

// RemoveItem is a no-op for out-of-range indices.
func (s *rubricService) RemoveItem(section, item int) (dto.RubricView, error) {
	return s.edit(false, func(e *rubric.Editor) error {
		key, err := activeKey(e)
		if err != nil {
			return err
		}
		e.RemoveItem(key, section, item)
		return nil
	})
}

func (s *rubricService) SetField(req dto.FieldUpdateRequest) (dto.RubricView, error) {
	structural := req.Field == rubric.FieldDisplayName
	return s.edit(structural, func(e *rubric.Editor) error {
		if req.Scope == "config" {
			return e.SetField(rubric.ConfigTarget(), req.Field, req.Value)
		}
		key, err := activeKey(e)
		if err != nil {
			return err
		}
		target := rubric.CategoryTarget(key)
		switch {
		case req.Section != nil && req.Item != nil:
			target = rubric.ItemTarget(key, *req.Section, *req.Item)
		case req.Section != nil:
			target = rubric.SectionTarget(key, *req.Section)
		}
		return e.SetField(target, req.Field, req.Value)
	})
}

func (s *rubricService) NormalizeSectionScores() (dto.RubricView, error) {
	return s.edit(false, func(e *rubric.Editor) error {
		key, err := activeKey(e)
		if err != nil {
			return err
		}
		return e.NormalizeSectionScores(key)
	})
}

func activeKey(e *rubric.Editor) (string, error) {
	key := e.ActiveKey()
	if key == "" {
		return "", ErrNoActiveCategory
	}
	return key, nil
}

// edit applies fn to the working copy. Structural edits rebuild the template options
// and reconcile the selected template.
func (s *rubricService) edit(structural bool, fn func(e *rubric.Editor) error) (dto.RubricView, error) {
	s.mu.Lock()
	if !s.loaded {
		view := s.viewLocked()
		s.mu.Unlock()
		return view, ErrRubricNotLoaded
	}
	if err := fn(s.editor); err != nil {
		view := s.viewLocked()
		s.mu.Unlock()
		return view, err
	}
	s.dirty = true
	var options []models.TemplateOption
	if structural {
		s.options = rubric.TemplateOptions(s.editor.Config())
		options = s.options
	}
	view := s.viewLocked()
	s.mu.Unlock()

	if structural {
		s.syncTemplates(options)
	}
	return view, nil
}

// Preview renders the prompts of a category, remotely unless Local is set.
func (s *rubricService) Preview(ctx context.Context, req dto.PreviewRequest) (dto.PreviewResponse, error) {
	s.mu.Lock()
	cfg := s.editor.Config().Clone()
	key := strings.TrimSpace(req.CategoryKey)
	if key == "" {
		key = s.editor.ActiveKey()
	}
	s.mu.Unlock()

	category, ok := cfg.Categories.Get(key)
	if !ok || category == nil {
		return dto.PreviewResponse{}, rubric.ErrCategoryNotFound
	}
	target := req.ScoreTargetMax
	if target <= 0 {
		target = models.DefaultGradeConfig().ScoreTargetMax
	}

	if req.Local {
		return dto.PreviewResponse{
			SystemPrompt:   cfg.SystemPrompt,
			UserPrompt:     rubric.RenderCategoryPrompt(category),
			ScoreRubricMax: rubric.RubricTotal(category),
			ScoreTargetMax: target,
			Source:         "local",
		}, nil
	}

	resp, err := s.gateway.PreviewPrompt(ctx, gradingclient.PreviewRequest{PromptConfig: cfg, CategoryKey: key, ScoreTargetMax: target})
	if err != nil {
		return dto.PreviewResponse{}, err
	}
	return dto.PreviewResponse{
		SystemPrompt:   resp.SystemPrompt,
		UserPrompt:     resp.UserPrompt,
		ScoreRubricMax: resp.ScoreRubricMax,
		ScoreTargetMax: resp.ScoreTargetMax,
		Source:         "remote",
	}, nil
}

// SaveDraft stores the working copy locally when it has unsaved edits. It reports
// whether a draft was written.
func (s *rubricService) SaveDraft(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if !s.dirty || !s.loaded || s.store == nil {
		s.mu.Unlock()
		return false, nil
	}
	cfg := s.editor.Config().Clone()
	s.mu.Unlock()

	if err := s.store.Save(ctx, store.KeyRubricDraft, cfg); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store rubric draft")
		s.toast("Rubric draft could not be saved locally.", ToastWarning)
		return false, err
	}
	s.logger.Debug().Msg("rubric draft saved")
	return true, nil
}

// RunAutoSave writes drafts on the editor's auto-save interval until ctx ends. The
// interval is re-read after every tick so settings changes apply without a restart.
func (s *rubricService) RunAutoSave(ctx context.Context) {
	for {
		settings := models.DefaultEditorSettings()
		if s.editorCfg != nil {
			settings = s.editorCfg.Editor()
		}
		interval := time.Duration(settings.AutoSaveIntervalSeconds) * time.Second
		if interval <= 0 {
			interval = time.Minute
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if s.editorCfg != nil && !s.editorCfg.Editor().AutoSaveEnabled {
			continue
		}
		_, _ = s.SaveDraft(ctx)
	}
}

func (s *rubricService) syncTemplates(options []models.TemplateOption) {
	if s.templates != nil {
		s.templates.SyncTemplate(options)
	}
}

func (s *rubricService) toast(message string, severity ToastSeverity) {
	if s.notifier != nil {
		s.notifier.Show(message, severity)
	}
}
