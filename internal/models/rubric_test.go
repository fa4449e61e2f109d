package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

const orderedRubric = `{
  "system_prompt": "Grade fairly.",
  "categories": {
    "report": {"display_name": "Career report", "sections": []},
    "analysis": {
      "display_name": "Major analysis",
      "sections": [{"key": "Structure", "max_score": 10, "items": [{"key": "Outline", "max_score": 10, "description": "Has an outline"}]}],
      "docx_validation": {"enabled": true, "allowed_font_keywords": ["Song"], "allowed_font_size_pts": [12], "font_size_tolerance": 0.25, "target_line_spacing": 1.5, "line_spacing_tolerance": 0.1},
      "score_target_max": 40
    },
    "essay": {"display_name": "Essay", "sections": [], "docx_validation": null}
  }
}`

func TestCategoriesPreserveInsertionOrder(t *testing.T) {
	var cfg RubricConfig
	require.NoError(t, json.Unmarshal([]byte(orderedRubric), &cfg))
	require.Equal(t, []string{"report", "analysis", "essay"}, cfg.Categories.Keys())

	encoded, err := json.Marshal(cfg)
	require.NoError(t, err)

	var again RubricConfig
	require.NoError(t, json.Unmarshal(encoded, &again))
	require.Equal(t, []string{"report", "analysis", "essay"}, again.Categories.Keys())
}

func TestDocxValidationVariants(t *testing.T) {
	var cfg RubricConfig
	require.NoError(t, json.Unmarshal([]byte(orderedRubric), &cfg))

	report, ok := cfg.Categories.Get("report")
	require.True(t, ok)
	require.Equal(t, DocxDisabled, report.DocxValidation.Mode)
	require.Equal(t, DefaultFontSizeTolerance, report.DocxValidation.Rules.FontSizeTolerance)

	essay, _ := cfg.Categories.Get("essay")
	require.False(t, essay.DocxValidation.Enabled())

	analysis, _ := cfg.Categories.Get("analysis")
	require.True(t, analysis.DocxValidation.Enabled())
	require.Equal(t, []string{"Song"}, analysis.DocxValidation.Rules.AllowedFontKeywords)
	require.NotNil(t, analysis.DocxValidation.Rules.TargetLineSpacing)
	require.Equal(t, 1.5, *analysis.DocxValidation.Rules.TargetLineSpacing)
	require.NotNil(t, analysis.ScoreTargetMax)
	require.Equal(t, 40.0, *analysis.ScoreTargetMax)
}

func TestEmptySectionsEncodeAsArrays(t *testing.T) {
	cfg := RubricConfig{SystemPrompt: "x"}
	cfg.Categories.Set("empty", &RubricCategory{DisplayName: "Empty", DocxValidation: DisabledDocxValidation()})

	encoded, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.Contains(t, string(encoded), `"sections":[]`)
	require.Contains(t, string(encoded), `"enabled":false`)
}

func TestCategoriesRenameKeepsPosition(t *testing.T) {
	var categories Categories
	categories.Set("a", &RubricCategory{DisplayName: "A"})
	categories.Set("b", &RubricCategory{DisplayName: "B"})
	categories.Set("c", &RubricCategory{DisplayName: "C"})

	require.True(t, categories.Rename("b", "beta"))
	require.Equal(t, []string{"a", "beta", "c"}, categories.Keys())
	require.False(t, categories.Rename("a", "c"))
	require.False(t, categories.Rename("missing", "z"))

	require.True(t, categories.Delete("a"))
	require.False(t, categories.Delete("a"))
	require.Equal(t, []string{"beta", "c"}, categories.Keys())
}

func TestRubricConfigCloneIsDeep(t *testing.T) {
	var cfg RubricConfig
	require.NoError(t, json.Unmarshal([]byte(orderedRubric), &cfg))

	clone := cfg.Clone()
	analysis, _ := clone.Categories.Get("analysis")
	analysis.Sections[0].Items[0].Key = "changed"
	analysis.DocxValidation.Rules.AllowedFontKeywords[0] = "Hei"

	original, _ := cfg.Categories.Get("analysis")
	require.Equal(t, "Outline", original.Sections[0].Items[0].Key)
	require.Equal(t, "Song", original.DocxValidation.Rules.AllowedFontKeywords[0])
}
