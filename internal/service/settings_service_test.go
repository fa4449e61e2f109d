package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/store"
)

func newTestSettings(st store.Store, notifier Notifier) SettingsService {
	return NewSettingsService(st, notifier, nil, time.Hour, models.ThemeDark, testLogger())
}

func TestSettingsLoadCoercesStoredValues(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(0)
	require.NoError(t, st.Save(ctx, store.KeyGradeSettings, map[string]interface{}{
		"api_url":          "https://llm.example",
		"template":         "",
		"score_target_max": 0,
		"multi_enabled":    true,
		"models": []map[string]string{
			{"api_url": "a"}, {"api_url": "b"}, {"api_url": "c"},
		},
	}))
	require.NoError(t, st.Save(ctx, store.KeyEditorSettings, map[string]interface{}{"auto_save_interval_seconds": -5}))
	require.NoError(t, st.Save(ctx, store.KeyTheme, "light"))

	svc := newTestSettings(st, &recordingNotifier{})
	require.NoError(t, svc.Load(ctx))

	grade := svc.Grade()
	require.Equal(t, "https://llm.example", grade.APIURL)
	require.Equal(t, "", grade.APIKey)
	require.Equal(t, models.AutoTemplate.Value, grade.Template)
	require.Equal(t, 60.0, grade.ScoreTargetMax)
	require.True(t, grade.SkipFormatCheck)
	require.Len(t, grade.Models, models.MaxModelEndpoints)

	require.Equal(t, models.DefaultEditorSettings(), svc.Editor())
	require.Equal(t, models.ThemeLight, svc.Theme())
}

func TestSettingsExplicitFalseSkipFormatCheckSurvivesLoad(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(0)
	require.NoError(t, st.Save(ctx, store.KeyGradeSettings, map[string]interface{}{"skip_format_check": false}))

	svc := newTestSettings(st, nil)
	require.NoError(t, svc.Load(ctx))
	require.False(t, svc.Grade().SkipFormatCheck)
}

func TestSettingsPersistIsDebouncedUntilFlush(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(0)
	svc := newTestSettings(st, nil)

	url := "https://llm.example"
	_, err := svc.UpdateGrade(dto.GradeSettingsPatch{APIURL: &url})
	require.NoError(t, err)
	name := "grader-large"
	_, err = svc.UpdateGrade(dto.GradeSettingsPatch{ModelName: &name})
	require.NoError(t, err)

	var stored models.GradeConfig
	require.ErrorIs(t, st.Load(ctx, store.KeyGradeSettings, &stored), store.ErrNotFound)

	require.NoError(t, svc.Flush(ctx))
	require.NoError(t, st.Load(ctx, store.KeyGradeSettings, &stored))
	require.Equal(t, url, stored.APIURL)
	require.Equal(t, name, stored.ModelName)
}

func TestSettingsDebounceTimerWrites(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(0)
	svc := NewSettingsService(st, nil, nil, 10*time.Millisecond, models.ThemeDark, testLogger())

	mock := true
	_, err := svc.UpdateGrade(dto.GradeSettingsPatch{Mock: &mock})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		var stored models.GradeConfig
		return st.Load(ctx, store.KeyGradeSettings, &stored) == nil && stored.Mock
	}, time.Second, 5*time.Millisecond)
}

func TestSettingsRejectsInvalidPatch(t *testing.T) {
	svc := newTestSettings(store.NewMemoryStore(0), nil)

	bad := "not a url"
	_, err := svc.UpdateGrade(dto.GradeSettingsPatch{APIURL: &bad})
	require.Error(t, err)

	zero := 0.0
	_, err = svc.UpdateGrade(dto.GradeSettingsPatch{ScoreTargetMax: &zero})
	require.Error(t, err)
	require.Equal(t, 60.0, svc.Grade().ScoreTargetMax)
}

func TestSettingsModelRows(t *testing.T) {
	svc := newTestSettings(store.NewMemoryStore(0), nil)

	multi := true
	grade, err := svc.UpdateGrade(dto.GradeSettingsPatch{MultiEnabled: &multi})
	require.NoError(t, err)
	require.Len(t, grade.Models, 1)

	grade, err = svc.AddModelRow()
	require.NoError(t, err)
	require.Len(t, grade.Models, 2)
	_, err = svc.AddModelRow()
	require.ErrorIs(t, err, ErrModelLimit)

	grade, err = svc.SetModelField(1, "model_name", " second ")
	require.NoError(t, err)
	require.Equal(t, "second", grade.Models[1].ModelName)

	grade, err = svc.RemoveModelRow(0)
	require.NoError(t, err)
	require.Len(t, grade.Models, 1)
	require.Equal(t, "second", grade.Models[0].ModelName)

	grade, err = svc.RemoveModelRow(0)
	require.NoError(t, err)
	require.Len(t, grade.Models, 1)
	require.Equal(t, models.ModelEndpoint{}, grade.Models[0])

	_, err = svc.SetModelField(5, "api_url", "x")
	require.ErrorIs(t, err, ErrModelRowNotFound)
	_, err = svc.SetModelField(0, "temperature", "1")
	require.ErrorIs(t, err, ErrUnknownModelField)
}

func TestSettingsSetModelFieldPadsRows(t *testing.T) {
	svc := newTestSettings(store.NewMemoryStore(0), nil)
	grade, err := svc.SetModelField(1, "api_url", "https://b.example")
	require.NoError(t, err)
	require.Len(t, grade.Models, 2)
	require.Equal(t, models.ModelEndpoint{}, grade.Models[0])
}

func TestSettingsSyncTemplateResetsMissingSelection(t *testing.T) {
	svc := newTestSettings(store.NewMemoryStore(0), nil)
	template := "analysis"
	_, err := svc.UpdateGrade(dto.GradeSettingsPatch{Template: &template})
	require.NoError(t, err)

	options := []models.TemplateOption{models.AutoTemplate, {Label: "Analysis", Value: "analysis"}}
	require.Equal(t, "analysis", svc.SyncTemplate(options).Template)
	require.Equal(t, models.AutoTemplate.Value, svc.SyncTemplate(options[:1]).Template)
}

func TestSettingsResetRestoresDefaults(t *testing.T) {
	svc := newTestSettings(store.NewMemoryStore(0), nil)
	mock := true
	_, err := svc.UpdateGrade(dto.GradeSettingsPatch{Mock: &mock})
	require.NoError(t, err)
	require.Equal(t, models.DefaultGradeConfig(), svc.Reset())
}

func TestSettingsEditorAndTheme(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(0)
	svc := newTestSettings(st, nil)

	disabled := false
	interval := 0
	editor, err := svc.UpdateEditor(ctx, dto.EditorSettingsPatch{AutoSaveEnabled: &disabled, AutoSaveIntervalSeconds: &interval})
	require.NoError(t, err)
	require.False(t, editor.AutoSaveEnabled)
	require.Equal(t, 60, editor.AutoSaveIntervalSeconds)

	var stored models.EditorSettings
	require.NoError(t, st.Load(ctx, store.KeyEditorSettings, &stored))
	require.Equal(t, editor, stored)

	theme, err := svc.ToggleTheme(ctx)
	require.NoError(t, err)
	require.Equal(t, models.ThemeLight, theme)
	var storedTheme string
	require.NoError(t, st.Load(ctx, store.KeyTheme, &storedTheme))
	require.Equal(t, models.ThemeLight, storedTheme)
}

func TestSettingsStorageFailureWarns(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := newTestSettings(store.NewMemoryStore(4), notifier)

	_, err := svc.ToggleTheme(context.Background())
	require.ErrorIs(t, err, store.ErrQuotaExceeded)
	require.Equal(t, []string{storageWarning}, notifier.bySeverity(ToastWarning))
	require.Equal(t, models.ThemeLight, svc.Theme())
}
