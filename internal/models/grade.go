package models

import "encoding/json"

// Grade item statuses reported by the grading service.
const (
	GradeItemStatusSuccess = "success"
	GradeItemStatusError   = "error"
)

// MaxModelEndpoints bounds multi-model grading.
const MaxModelEndpoints = 2

// ModelEndpoint describes one model used in multi-model grading.
type ModelEndpoint struct {
	APIURL    string `json:"api_url" validate:"omitempty,url"`
	APIKey    string `json:"api_key"`
	ModelName string `json:"model_name"`
}

// GradeConfig holds the session-scoped grading settings.
type GradeConfig struct {
	APIURL          string          `json:"api_url" validate:"omitempty,url"`
	APIKey          string          `json:"api_key"`
	ModelName       string          `json:"model_name"`
	MultiEnabled    bool            `json:"multi_enabled"`
	Models          []ModelEndpoint `json:"models" validate:"max=2,dive"`
	Template        string          `json:"template" validate:"required"`
	Mock            bool            `json:"mock"`
	SkipFormatCheck bool            `json:"skip_format_check"`
	ScoreTargetMax  float64         `json:"score_target_max" validate:"gt=0"`
}

// DefaultGradeConfig returns the settings used on first start and after a reset.
func DefaultGradeConfig() GradeConfig {
	return GradeConfig{
		Models:          []ModelEndpoint{},
		Template:        AutoTemplate.Value,
		SkipFormatCheck: true,
		ScoreTargetMax:  60,
	}
}

// Clone returns a copy that does not share the models slice.
func (c GradeConfig) Clone() GradeConfig {
	clone := c
	clone.Models = append([]ModelEndpoint{}, c.Models...)
	return clone
}

// GradeItem is the per-file result returned by the grading service.
type GradeItem struct {
	FileName          string          `json:"file_name"`
	StudentID         *string         `json:"student_id"`
	StudentName       *string         `json:"student_name"`
	Score             *float64        `json:"score"`
	ScoreRubricMax    *float64        `json:"score_rubric_max"`
	ScoreRubric       *float64        `json:"score_rubric"`
	DetailJSON        *string         `json:"detail_json"`
	Comment           *string         `json:"comment"`
	Status            string          `json:"status"`
	ErrorMessage      *string         `json:"error_message"`
	RawTextLength     int             `json:"raw_text_length"`
	RawResponse       *string         `json:"raw_response"`
	AggregateStrategy *string         `json:"aggregate_strategy,omitempty"`
	GraderResults     json.RawMessage `json:"grader_results,omitempty"`
}

// GradeResponse is the batch result returned by the grading service.
type GradeResponse struct {
	BatchID           string      `json:"batch_id"`
	TotalFiles        int         `json:"total_files"`
	SuccessCount      int         `json:"success_count"`
	ErrorCount        int         `json:"error_count"`
	AverageScore      *float64    `json:"average_score"`
	DownloadResultURL string      `json:"download_result_url"`
	DownloadErrorURL  string      `json:"download_error_url"`
	Items             []GradeItem `json:"items"`
}

// SanitizeForCache returns a copy with every item's raw model response removed.
func (r GradeResponse) SanitizeForCache() GradeResponse {
	sanitized := r
	sanitized.Items = make([]GradeItem, len(r.Items))
	for i, item := range r.Items {
		item.RawResponse = nil
		sanitized.Items[i] = item
	}
	return sanitized
}
