package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/store"
)

var (
	// ErrModelLimit indicates the multi-model list is already at its bound.
	ErrModelLimit = errors.New("at most two model endpoints are supported")
	// ErrModelRowNotFound indicates a model row index that does not exist.
	ErrModelRowNotFound = errors.New("model row not found")
	// ErrUnknownModelField indicates a model row field other than api_url, api_key, model_name.
	ErrUnknownModelField = errors.New("unknown model field")
	// ErrInvalidScoreTarget indicates a target maximum that is not a positive finite number.
	ErrInvalidScoreTarget = errors.New("score target max must be greater than 0")
)

const storageWarning = "Settings could not be saved locally."

// SettingsService owns the grading settings, the rubric editor settings and the theme.
type SettingsService interface {
	Load(ctx context.Context) error
	Grade() models.GradeConfig
	UpdateGrade(patch dto.GradeSettingsPatch) (models.GradeConfig, error)
	SyncTemplate(options []models.TemplateOption) models.GradeConfig
	Reset() models.GradeConfig
	AddModelRow() (models.GradeConfig, error)
	RemoveModelRow(index int) (models.GradeConfig, error)
	SetModelField(index int, field, value string) (models.GradeConfig, error)
	Editor() models.EditorSettings
	UpdateEditor(ctx context.Context, patch dto.EditorSettingsPatch) (models.EditorSettings, error)
	Theme() string
	ToggleTheme(ctx context.Context) (string, error)
	Flush(ctx context.Context) error
}

type settingsService struct {
	mu       sync.Mutex
	store    store.Store
	notifier Notifier
	validate *validator.Validate
	logger   zerolog.Logger
	debounce time.Duration

	grade  models.GradeConfig
	editor models.EditorSettings
	theme  string

	timer   *time.Timer
	pending bool
}

// NewSettingsService constructs the settings owner. Grading settings are persisted
// debounce after the last change; editor settings and theme are written immediately.
func NewSettingsService(st store.Store, notifier Notifier, validate *validator.Validate, debounce time.Duration, defaultTheme string, logger zerolog.Logger) SettingsService {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	if defaultTheme != models.ThemeLight {
		defaultTheme = models.ThemeDark
	}
	return &settingsService{
		store:    st,
		notifier: notifier,
		validate: validate,
		logger:   logger.With().Str("component", "settings_service").Logger(),
		debounce: debounce,
		grade:    models.DefaultGradeConfig(),
		editor:   models.DefaultEditorSettings(),
		theme:    defaultTheme,
	}
}

// storedGradeSettings mirrors GradeConfig with optional fields so load can tell
// "absent" from "false"/"0".
type storedGradeSettings struct {
	APIURL          *string                `json:"api_url"`
	APIKey          *string                `json:"api_key"`
	ModelName       *string                `json:"model_name"`
	MultiEnabled    *bool                  `json:"multi_enabled"`
	Models          []models.ModelEndpoint `json:"models"`
	Template        *string                `json:"template"`
	Mock            *bool                  `json:"mock"`
	SkipFormatCheck *bool                  `json:"skip_format_check"`
	ScoreTargetMax  *float64               `json:"score_target_max"`
}

func (s *settingsService) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored storedGradeSettings
	switch err := s.store.Load(ctx, store.KeyGradeSettings, &stored); {
	case err == nil:
		s.grade = coerceGradeSettings(stored)
	case errors.Is(err, store.ErrNotFound):
	default:
		s.logger.Warn().Err(err).Msg("failed to load grading settings, using defaults")
	}

	var editor struct {
		AutoSaveEnabled         *bool `json:"auto_save_enabled"`
		AutoSaveIntervalSeconds *int  `json:"auto_save_interval_seconds"`
	}
	switch err := s.store.Load(ctx, store.KeyEditorSettings, &editor); {
	case err == nil:
		s.editor = applyEditorPatch(models.DefaultEditorSettings(), dto.EditorSettingsPatch{
			AutoSaveEnabled:         editor.AutoSaveEnabled,
			AutoSaveIntervalSeconds: editor.AutoSaveIntervalSeconds,
		})
	case errors.Is(err, store.ErrNotFound):
	default:
		s.logger.Warn().Err(err).Msg("failed to load editor settings, using defaults")
	}

	var theme string
	switch err := s.store.Load(ctx, store.KeyTheme, &theme); {
	case err == nil:
		if theme == models.ThemeDark || theme == models.ThemeLight {
			s.theme = theme
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		s.logger.Warn().Err(err).Msg("failed to load theme")
	}
	return nil
}

func coerceGradeSettings(stored storedGradeSettings) models.GradeConfig {
	cfg := models.DefaultGradeConfig()
	if stored.APIURL != nil {
		cfg.APIURL = *stored.APIURL
	}
	if stored.APIKey != nil {
		cfg.APIKey = *stored.APIKey
	}
	if stored.ModelName != nil {
		cfg.ModelName = *stored.ModelName
	}
	if stored.MultiEnabled != nil {
		cfg.MultiEnabled = *stored.MultiEnabled
	}
	if stored.Mock != nil {
		cfg.Mock = *stored.Mock
	}
	if stored.SkipFormatCheck != nil {
		cfg.SkipFormatCheck = *stored.SkipFormatCheck
	}
	if stored.Template != nil && strings.TrimSpace(*stored.Template) != "" {
		cfg.Template = strings.TrimSpace(*stored.Template)
	}
	if stored.ScoreTargetMax != nil && validScore(*stored.ScoreTargetMax) {
		cfg.ScoreTargetMax = *stored.ScoreTargetMax
	}
	cfg.Models = boundModels(stored.Models)
	if cfg.MultiEnabled && len(cfg.Models) == 0 {
		cfg.Models = []models.ModelEndpoint{{}}
	}
	return cfg
}

func boundModels(in []models.ModelEndpoint) []models.ModelEndpoint {
	if len(in) > models.MaxModelEndpoints {
		in = in[:models.MaxModelEndpoints]
	}
	return append([]models.ModelEndpoint{}, in...)
}

func validScore(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (s *settingsService) Grade() models.GradeConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grade.Clone()
}

func (s *settingsService) UpdateGrade(patch dto.GradeSettingsPatch) (models.GradeConfig, error) {
	if err := s.validate.Struct(patch); err != nil {
		return models.GradeConfig{}, err
	}
	if patch.ScoreTargetMax != nil && !validScore(*patch.ScoreTargetMax) {
		return models.GradeConfig{}, ErrInvalidScoreTarget
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.grade.Clone()
	if patch.APIURL != nil {
		next.APIURL = strings.TrimSpace(*patch.APIURL)
	}
	if patch.APIKey != nil {
		next.APIKey = strings.TrimSpace(*patch.APIKey)
	}
	if patch.ModelName != nil {
		next.ModelName = strings.TrimSpace(*patch.ModelName)
	}
	if patch.Models != nil {
		next.Models = boundModels(patch.Models)
	}
	if patch.MultiEnabled != nil {
		next.MultiEnabled = *patch.MultiEnabled
		if next.MultiEnabled && len(next.Models) == 0 {
			next.Models = []models.ModelEndpoint{{}}
		}
	}
	if patch.Template != nil {
		next.Template = strings.TrimSpace(*patch.Template)
	}
	if patch.Mock != nil {
		next.Mock = *patch.Mock
	}
	if patch.SkipFormatCheck != nil {
		next.SkipFormatCheck = *patch.SkipFormatCheck
	}
	if patch.ScoreTargetMax != nil {
		next.ScoreTargetMax = *patch.ScoreTargetMax
	}

	s.grade = next
	s.scheduleLocked()
	return next.Clone(), nil
}

// SyncTemplate resets the selected template to the first option when it is no longer offered.
func (s *settingsService) SyncTemplate(options []models.TemplateOption) models.GradeConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	selected := s.grade.Template
	reconciled := selected
	found := false
	for _, option := range options {
		if option.Value == selected {
			found = true
			break
		}
	}
	if !found {
		reconciled = models.AutoTemplate.Value
		if len(options) > 0 {
			reconciled = options[0].Value
		}
	}
	if reconciled != selected {
		s.logger.Info().Str("from", selected).Str("to", reconciled).Msg("template no longer available, reset")
		s.grade.Template = reconciled
		s.scheduleLocked()
	}
	return s.grade.Clone()
}

func (s *settingsService) Reset() models.GradeConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.grade = models.DefaultGradeConfig()
	s.scheduleLocked()
	return s.grade.Clone()
}

func (s *settingsService) AddModelRow() (models.GradeConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.grade.Models) >= models.MaxModelEndpoints {
		return s.grade.Clone(), ErrModelLimit
	}
	s.grade.Models = append(s.grade.Models, models.ModelEndpoint{})
	s.scheduleLocked()
	return s.grade.Clone(), nil
}

// RemoveModelRow deletes a row but always keeps at least one.
func (s *settingsService) RemoveModelRow(index int) (models.GradeConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.grade.Models) {
		return s.grade.Clone(), ErrModelRowNotFound
	}
	if len(s.grade.Models) == 1 {
		s.grade.Models[0] = models.ModelEndpoint{}
	} else {
		s.grade.Models = append(s.grade.Models[:index], s.grade.Models[index+1:]...)
	}
	s.scheduleLocked()
	return s.grade.Clone(), nil
}

// SetModelField writes a field of a model row, padding the list with empty rows up to index.
func (s *settingsService) SetModelField(index int, field, value string) (models.GradeConfig, error) {
	if index < 0 || index >= models.MaxModelEndpoints {
		return s.Grade(), ErrModelRowNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.grade.Models) <= index {
		s.grade.Models = append(s.grade.Models, models.ModelEndpoint{})
	}
	value = strings.TrimSpace(value)
	row := &s.grade.Models[index]
	switch field {
	case "api_url":
		row.APIURL = value
	case "api_key":
		row.APIKey = value
	case "model_name":
		row.ModelName = value
	default:
		return s.grade.Clone(), ErrUnknownModelField
	}
	s.scheduleLocked()
	return s.grade.Clone(), nil
}

func (s *settingsService) Editor() models.EditorSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editor
}

func (s *settingsService) UpdateEditor(ctx context.Context, patch dto.EditorSettingsPatch) (models.EditorSettings, error) {
	s.mu.Lock()
	s.editor = applyEditorPatch(s.editor, patch)
	editor := s.editor
	s.mu.Unlock()

	if err := s.store.Save(ctx, store.KeyEditorSettings, editor); err != nil {
		s.reportStorageError(err)
		return editor, err
	}
	return editor, nil
}

// applyEditorPatch ignores non-positive intervals.
func applyEditorPatch(current models.EditorSettings, patch dto.EditorSettingsPatch) models.EditorSettings {
	if patch.AutoSaveEnabled != nil {
		current.AutoSaveEnabled = *patch.AutoSaveEnabled
	}
	if patch.AutoSaveIntervalSeconds != nil && *patch.AutoSaveIntervalSeconds > 0 {
		current.AutoSaveIntervalSeconds = *patch.AutoSaveIntervalSeconds
	}
	return current
}

func (s *settingsService) Theme() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

func (s *settingsService) ToggleTheme(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.theme == models.ThemeDark {
		s.theme = models.ThemeLight
	} else {
		s.theme = models.ThemeDark
	}
	theme := s.theme
	s.mu.Unlock()

	if err := s.store.Save(ctx, store.KeyTheme, theme); err != nil {
		s.reportStorageError(err)
		return theme, err
	}
	return theme, nil
}

// Flush writes pending grading settings immediately and cancels the debounce timer.
func (s *settingsService) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !s.pending {
		s.mu.Unlock()
		return nil
	}
	s.pending = false
	grade := s.grade.Clone()
	s.mu.Unlock()

	return s.persistGrade(ctx, grade)
}

func (s *settingsService) scheduleLocked() {
	s.pending = true
	if s.debounce <= 0 {
		s.pending = false
		_ = s.persistGrade(context.Background(), s.grade.Clone())
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		_ = s.Flush(context.Background())
	})
}

func (s *settingsService) persistGrade(ctx context.Context, grade models.GradeConfig) error {
	if err := s.store.Save(ctx, store.KeyGradeSettings, grade); err != nil {
		s.reportStorageError(err)
		return err
	}
	s.logger.Debug().Msg("grading settings persisted")
	return nil
}

func (s *settingsService) reportStorageError(err error) {
	s.logger.Warn().Err(err).Msg("settings write failed")
	if s.notifier != nil {
		s.notifier.Show(storageWarning, ToastWarning)
	}
}
