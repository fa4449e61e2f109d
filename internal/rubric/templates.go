package rubric

import (
	"strings"

	"github.com/noah-isme/gema-grader/internal/models"
)

// TemplateOptions lists the grading template choices: the auto-detect sentinel followed by
// one option per category in insertion order. The option value is the category key.
func TemplateOptions(cfg *models.RubricConfig) []models.TemplateOption {
	options := []models.TemplateOption{models.AutoTemplate}
	if cfg == nil {
		return options
	}
	for _, key := range cfg.Categories.Keys() {
		label := key
		if category, ok := cfg.Categories.Get(key); ok && category != nil {
			if name := strings.TrimSpace(category.DisplayName); name != "" {
				label = name
			}
		}
		options = append(options, models.TemplateOption{Label: label, Value: key})
	}
	return options
}

// ReconcileTemplate returns selected when it is one of options, else the first option's value.
func ReconcileTemplate(selected string, options []models.TemplateOption) string {
	for _, option := range options {
		if option.Value == selected {
			return selected
		}
	}
	if len(options) == 0 {
		return models.AutoTemplate.Value
	}
	return options[0].Value
}
