package dto

import (
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/rubric"
)

// RubricView is the editor state returned to the UI.
type RubricView struct {
	Config    *models.RubricConfig    `json:"config"`
	ActiveKey string                  `json:"active_key"`
	Templates []models.TemplateOption `json:"templates"`
	Warnings  []rubric.Issue          `json:"warnings"`
	LoadError string                  `json:"load_error,omitempty"`
	Dirty     bool                    `json:"dirty"`
}

// SelectCategoryRequest switches the active category.
type SelectCategoryRequest struct {
	Key string `json:"key"`
}

// CategoryCreateRequest adds a category.
type CategoryCreateRequest struct {
	Key         string `json:"key" validate:"required,max=128"`
	DisplayName string `json:"display_name" validate:"max=256"`
}

// CategoryRenameRequest renames a category key.
type CategoryRenameRequest struct {
	Key string `json:"key" validate:"required,max=128"`
}

// FieldUpdateRequest sets a field on the active category or one of its nodes.
// Section and Item are nil when the field belongs to a higher level; Scope "config"
// addresses the root configuration.
type FieldUpdateRequest struct {
	Scope   string `json:"scope" validate:"omitempty,oneof=config category"`
	Section *int   `json:"section" validate:"omitempty,min=0"`
	Item    *int   `json:"item" validate:"omitempty,min=0"`
	Field   string `json:"field" validate:"required"`
	Value   string `json:"value"`
}

// PreviewRequest asks for a rendered prompt of a category.
type PreviewRequest struct {
	CategoryKey    string  `json:"category_key"`
	ScoreTargetMax float64 `json:"score_target_max" validate:"omitempty,gt=0"`
	Local          bool    `json:"local"`
}

// PreviewResponse carries the rendered prompts.
type PreviewResponse struct {
	SystemPrompt   string  `json:"system_prompt"`
	UserPrompt     string  `json:"user_prompt"`
	ScoreRubricMax float64 `json:"score_rubric_max"`
	ScoreTargetMax float64 `json:"score_target_max"`
	Source         string  `json:"source"`
}

// SaveRubricResponse reports the outcome of a save.
type SaveRubricResponse struct {
	Saved    bool           `json:"saved"`
	Warnings []rubric.Issue `json:"warnings"`
}
