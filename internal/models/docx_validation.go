package models

import (
	"encoding/json"
	"math"
)

// DocxMode selects the document-format policy variant of a category.
type DocxMode string

const (
	// DocxDisabled skips format checks for the category.
	DocxDisabled DocxMode = "disabled"
	// DocxEnforced checks fonts and spacing against the rules.
	DocxEnforced DocxMode = "enforced"
)

// DefaultFontSizeTolerance mirrors the grading service default.
const DefaultFontSizeTolerance = 0.5

// DocxRules are the format constraints applied to .docx submissions.
type DocxRules struct {
	AllowedFontKeywords  []string  `json:"allowed_font_keywords"`
	AllowedFontSizePts   []float64 `json:"allowed_font_size_pts"`
	FontSizeTolerance    float64   `json:"font_size_tolerance"`
	TargetLineSpacing    *float64  `json:"target_line_spacing"`
	LineSpacingTolerance *float64  `json:"line_spacing_tolerance"`
}

// DocxValidation is the tagged format policy of a category. An absent policy decodes as disabled.
type DocxValidation struct {
	Mode  DocxMode
	Rules DocxRules
}

// DisabledDocxValidation returns the disabled variant with default rules.
func DisabledDocxValidation() DocxValidation {
	return DocxValidation{
		Mode: DocxDisabled,
		Rules: DocxRules{
			AllowedFontKeywords: []string{},
			AllowedFontSizePts:  []float64{},
			FontSizeTolerance:   DefaultFontSizeTolerance,
		},
	}
}

// EnforcedDocxValidation returns the enforced variant for the given rules.
func EnforcedDocxValidation(rules DocxRules) DocxValidation {
	return DocxValidation{Mode: DocxEnforced, Rules: rules}.normalized()
}

// Enabled reports whether format checks apply.
func (d DocxValidation) Enabled() bool {
	return d.Mode == DocxEnforced
}

// Clone returns a deep copy.
func (d DocxValidation) Clone() DocxValidation {
	clone := d
	if d.Rules.AllowedFontKeywords != nil {
		clone.Rules.AllowedFontKeywords = append([]string{}, d.Rules.AllowedFontKeywords...)
	}
	if d.Rules.AllowedFontSizePts != nil {
		clone.Rules.AllowedFontSizePts = append([]float64{}, d.Rules.AllowedFontSizePts...)
	}
	if d.Rules.TargetLineSpacing != nil {
		v := *d.Rules.TargetLineSpacing
		clone.Rules.TargetLineSpacing = &v
	}
	if d.Rules.LineSpacingTolerance != nil {
		v := *d.Rules.LineSpacingTolerance
		clone.Rules.LineSpacingTolerance = &v
	}
	return clone
}

func (d DocxValidation) normalized() DocxValidation {
	if d.Mode != DocxEnforced {
		d.Mode = DocxDisabled
	}
	if d.Rules.AllowedFontKeywords == nil {
		d.Rules.AllowedFontKeywords = []string{}
	}
	if d.Rules.AllowedFontSizePts == nil {
		d.Rules.AllowedFontSizePts = []float64{}
	}
	if d.Rules.FontSizeTolerance <= 0 || math.IsNaN(d.Rules.FontSizeTolerance) {
		d.Rules.FontSizeTolerance = DefaultFontSizeTolerance
	}
	return d
}

type docxValidationWire struct {
	Enabled bool `json:"enabled"`
	DocxRules
}

// MarshalJSON writes the wire form `{enabled, allowed_font_keywords, ...}`.
func (d DocxValidation) MarshalJSON() ([]byte, error) {
	n := d.normalized()
	return json.Marshal(docxValidationWire{Enabled: n.Mode == DocxEnforced, DocxRules: n.Rules})
}

// UnmarshalJSON reads the wire form; null decodes to the disabled variant.
func (d *DocxValidation) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = DisabledDocxValidation()
		return nil
	}
	var wire docxValidationWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	mode := DocxDisabled
	if wire.Enabled {
		mode = DocxEnforced
	}
	*d = DocxValidation{Mode: mode, Rules: wire.DocxRules}.normalized()
	return nil
}
