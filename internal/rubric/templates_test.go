package rubric

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grader/internal/models"
)

func TestTemplateOptionsFollowCategories(t *testing.T) {
	editor := NewEditor(sampleConfig())

	options := TemplateOptions(editor.Config())
	require.Equal(t, []models.TemplateOption{
		models.AutoTemplate,
		{Label: "Career report", Value: "report"},
		{Label: "Major analysis", Value: "analysis"},
	}, options)

	require.True(t, editor.RemoveCategory("report"))
	require.NoError(t, editor.RenameCategory("analysis", "majors"))
	options = TemplateOptions(editor.Config())
	require.Equal(t, []models.TemplateOption{
		models.AutoTemplate,
		{Label: "Major analysis", Value: "majors"},
	}, options)

	require.Equal(t, []models.TemplateOption{models.AutoTemplate}, TemplateOptions(nil))
}

func TestReconcileTemplate(t *testing.T) {
	options := TemplateOptions(sampleConfig())

	require.Equal(t, "analysis", ReconcileTemplate("analysis", options))
	require.Equal(t, models.AutoTemplate.Value, ReconcileTemplate("gone", options))
	require.Equal(t, models.AutoTemplate.Value, ReconcileTemplate("gone", nil))
}

func TestRenderCategoryPrompt(t *testing.T) {
	cfg := sampleConfig()
	analysis, _ := cfg.Categories.Get("analysis")

	prompt := RenderCategoryPrompt(analysis)
	require.Contains(t, prompt, `"Major analysis"`)
	require.Contains(t, prompt, "1. Structure (10 points)")
	require.Contains(t, prompt, "1.2 Flow (6 points): Reads well")
	require.Contains(t, prompt, HomeworkPlaceholder)
	require.Equal(t, 10.0, RubricTotal(analysis))
	require.Empty(t, RenderCategoryPrompt(nil))
}
