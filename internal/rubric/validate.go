package rubric

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/gema-grader/internal/models"
)

const scoreEpsilon = 1e-6

// Policy controls how strictly a rubric is checked before it is saved.
type Policy struct {
	// RequireConsistentTotals turns section/item score mismatches into errors.
	RequireConsistentTotals bool
}

// Issue is one finding of a validation pass.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Report collects blocking errors and advisory warnings.
type Report struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// ValidationError wraps the blocking issues of a report.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.Path+": "+issue.Message)
	}
	return "rubric invalid: " + strings.Join(parts, "; ")
}

// Err returns a *ValidationError when the report has blocking issues.
func (r Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return &ValidationError{Issues: r.Errors}
}

// IsValidationError reports whether err carries rubric validation issues.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// Validator checks rubric trees against a Policy.
type Validator struct {
	validate *validator.Validate
	policy   Policy
}

// NewValidator builds a rubric validator.
func NewValidator(validate *validator.Validate, policy Policy) *Validator {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return &Validator{validate: validate, policy: policy}
}

// Validate checks the whole configuration. Empty categories, sections and item lists are valid.
func (v *Validator) Validate(cfg *models.RubricConfig) Report {
	var report Report
	if cfg == nil {
		report.Errors = append(report.Errors, Issue{Path: "config", Message: "no rubric loaded"})
		return report
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		report.Warnings = append(report.Warnings, Issue{Path: "system_prompt", Message: "system prompt is empty"})
	}
	if cfg.Categories.Len() == 0 {
		report.Warnings = append(report.Warnings, Issue{Path: "categories", Message: "no categories defined"})
	}

	for _, key := range cfg.Categories.Keys() {
		category, _ := cfg.Categories.Get(key)
		path := "categories." + key
		if category == nil {
			report.Errors = append(report.Errors, Issue{Path: path, Message: "category is empty"})
			continue
		}
		v.checkCategory(path, category, &report)
	}
	return report
}

func (v *Validator) checkCategory(path string, category *models.RubricCategory, report *Report) {
	if err := v.validate.Struct(category); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			for _, fe := range fieldErrors {
				report.Errors = append(report.Errors, Issue{Path: path + fieldPath(fe.Namespace()), Message: describeTag(fe)})
			}
		} else {
			report.Errors = append(report.Errors, Issue{Path: path, Message: err.Error()})
		}
	}

	sectionKeys := make(map[string]struct{}, len(category.Sections))
	for si, section := range category.Sections {
		sectionPath := fmt.Sprintf("%s.sections[%d]", path, si)
		if !finite(section.MaxScore) {
			report.Errors = append(report.Errors, Issue{Path: sectionPath + ".max_score", Message: "must be a finite number"})
		}
		if key := strings.TrimSpace(section.Key); key != "" {
			if _, dup := sectionKeys[key]; dup {
				report.Errors = append(report.Errors, Issue{Path: sectionPath + ".key", Message: fmt.Sprintf("duplicate section %q", key)})
			}
			sectionKeys[key] = struct{}{}
		}

		itemKeys := make(map[string]struct{}, len(section.Items))
		for ii, item := range section.Items {
			itemPath := fmt.Sprintf("%s.items[%d]", sectionPath, ii)
			if !finite(item.MaxScore) {
				report.Errors = append(report.Errors, Issue{Path: itemPath + ".max_score", Message: "must be a finite number"})
			}
			if key := strings.TrimSpace(item.Key); key != "" {
				if _, dup := itemKeys[key]; dup {
					report.Errors = append(report.Errors, Issue{Path: itemPath + ".key", Message: fmt.Sprintf("duplicate item %q", key)})
				}
				itemKeys[key] = struct{}{}
			}
		}

		if len(section.Items) > 0 {
			sum := itemSum(section)
			if math.Abs(sum-section.MaxScore) > scoreEpsilon {
				issue := Issue{Path: sectionPath + ".max_score", Message: fmt.Sprintf("section max %g differs from item total %g", section.MaxScore, sum)}
				if v.policy.RequireConsistentTotals {
					report.Errors = append(report.Errors, issue)
				} else {
					report.Warnings = append(report.Warnings, issue)
				}
			}
		}
	}

	if category.DocxValidation.Enabled() {
		rules := category.DocxValidation.Rules
		if len(rules.AllowedFontKeywords) == 0 {
			report.Errors = append(report.Errors, Issue{Path: path + ".docx_validation", Message: "enabled without allowed_font_keywords"})
		}
		if len(rules.AllowedFontSizePts) == 0 {
			report.Errors = append(report.Errors, Issue{Path: path + ".docx_validation", Message: "enabled without allowed_font_size_pts"})
		}
		for _, size := range rules.AllowedFontSizePts {
			if size <= 0 || !finite(size) {
				report.Errors = append(report.Errors, Issue{Path: path + ".docx_validation.allowed_font_size_pts", Message: "sizes must be positive"})
				break
			}
		}
		if rules.TargetLineSpacing != nil && *rules.TargetLineSpacing <= 0 {
			report.Errors = append(report.Errors, Issue{Path: path + ".docx_validation.target_line_spacing", Message: "must be positive"})
		}
	}
}

// fieldPath turns "RubricCategory.Sections[0].Items[1].MaxScore" into ".sections[0].items[1].max_score".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) <= 1 {
		return ""
	}
	var b strings.Builder
	for _, part := range parts[1:] {
		b.WriteByte('.')
		b.WriteString(snake(part))
	}
	return b.String()
}

func snake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && name[i-1] != '[' {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "gt":
		return "must be greater than " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
