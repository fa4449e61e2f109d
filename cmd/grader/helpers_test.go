package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grader/internal/rubric"
)

const yamlRubric = `system_prompt: Grade fairly.
categories:
  zeta:
    display_name: Zeta
    sections:
      - key: Structure
        max_score: 10
        items:
          - key: Outline
            max_score: 10
            description: Has an outline
  alpha:
    display_name: Alpha
    sections: []
`

func TestDocumentToJSONKeepsCategoryOrder(t *testing.T) {
	raw, err := documentToJSON([]byte(yamlRubric), formatYAML)
	require.NoError(t, err)

	cfg, err := rubric.DecodeDocument(raw)
	require.NoError(t, err)
	require.Equal(t, []string{"zeta", "alpha"}, cfg.Categories.Keys())

	zeta, ok := cfg.Categories.Get("zeta")
	require.True(t, ok)
	require.Len(t, zeta.Sections, 1)
	require.Equal(t, 10.0, zeta.Sections[0].Items[0].MaxScore)
}

func TestDocumentToJSONDetectsJSON(t *testing.T) {
	raw := []byte(`{"system_prompt":"x","categories":{}}`)
	out, err := documentToJSON(raw, "")
	require.NoError(t, err)
	require.Equal(t, raw, out)

	_, err = documentToJSON(raw, "toml")
	require.Error(t, err)
}

func TestWriteDocumentYAMLRoundTrip(t *testing.T) {
	raw, err := documentToJSON([]byte(yamlRubric), formatYAML)
	require.NoError(t, err)
	cfg, err := rubric.DecodeDocument(raw)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeDocument(&buf, formatYAML, cfg))
	require.Contains(t, buf.String(), "display_name: Zeta")

	again, err := documentToJSON(buf.Bytes(), formatYAML)
	require.NoError(t, err)
	decoded, err := rubric.DecodeDocument(again)
	require.NoError(t, err)
	require.Equal(t, cfg.Categories.Keys(), decoded.Categories.Keys())
	require.Equal(t, cfg.SystemPrompt, decoded.SystemPrompt)
}

func TestFormatScoreAndMask(t *testing.T) {
	score := 42.26
	require.Equal(t, "42.3", formatScore(&score))
	require.Equal(t, "-", formatScore(nil))
	require.Equal(t, "", maskSecret(""))
	require.NotEqual(t, "sk-1", maskSecret("sk-1"))
}
