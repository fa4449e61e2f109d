package dto

import "github.com/noah-isme/gema-grader/internal/models"

// GradeSettingsPatch is a partial update of the grading settings. Nil fields are left unchanged.
type GradeSettingsPatch struct {
	APIURL          *string                `json:"api_url" validate:"omitempty,url"`
	APIKey          *string                `json:"api_key"`
	ModelName       *string                `json:"model_name"`
	MultiEnabled    *bool                  `json:"multi_enabled"`
	Models          []models.ModelEndpoint `json:"models" validate:"omitempty,max=2,dive"`
	Template        *string                `json:"template" validate:"omitempty,min=1"`
	Mock            *bool                  `json:"mock"`
	SkipFormatCheck *bool                  `json:"skip_format_check"`
	ScoreTargetMax  *float64               `json:"score_target_max" validate:"omitempty,gt=0"`
}

// ModelFieldRequest sets one field of a model row.
type ModelFieldRequest struct {
	Field string `json:"field" validate:"required,oneof=api_url api_key model_name"`
	Value string `json:"value"`
}

// EditorSettingsPatch is a partial update of the rubric editor settings.
type EditorSettingsPatch struct {
	AutoSaveEnabled         *bool `json:"auto_save_enabled"`
	AutoSaveIntervalSeconds *int  `json:"auto_save_interval_seconds"`
}

// SettingsResponse is the full settings view of the desk.
type SettingsResponse struct {
	Grade  models.GradeConfig    `json:"grade"`
	Editor models.EditorSettings `json:"editor"`
	Theme  string                `json:"theme"`
}

// ThemeResponse reports the active theme.
type ThemeResponse struct {
	Theme string `json:"theme"`
}
