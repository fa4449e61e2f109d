package gradingclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/noah-isme/gema-grader/internal/models"
)

// File is one homework document submitted for grading.
type File struct {
	Name string
	Data []byte
}

type modelField struct {
	APIURL    string `json:"api_url"`
	APIKey    string `json:"api_key"`
	ModelName string `json:"model_name"`
}

// Grade submits files with the grading settings and returns the batch result.
func (c *Client) Grade(ctx context.Context, files []File, cfg models.GradeConfig) (*models.GradeResponse, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	body, contentType, err := BuildGradeForm(files, cfg)
	if err != nil {
		return nil, err
	}

	var resp models.GradeResponse
	if err := c.do(ctx, "grade", http.MethodPost, apiPrefix+"/grade", contentType, body, &resp, MessageGradeFailed); err != nil {
		return nil, err
	}
	if resp.Items == nil {
		resp.Items = []models.GradeItem{}
	}
	return &resp, nil
}

// BuildGradeForm encodes the multipart body of a grade request. Booleans are sent as
// "true"/"false" and the model list, when multi-model grading is on, as a JSON array
// of at most two endpoints.
func BuildGradeForm(files []File, cfg models.GradeConfig) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	for _, file := range files {
		part, err := writer.CreateFormFile("files", file.Name)
		if err != nil {
			return nil, "", fmt.Errorf("add file %s: %w", file.Name, err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", fmt.Errorf("write file %s: %w", file.Name, err)
		}
	}

	fields := [][2]string{
		{"api_url", cfg.APIURL},
		{"api_key", cfg.APIKey},
		{"model_name", cfg.ModelName},
		{"template", cfg.Template},
		{"mock", strconv.FormatBool(cfg.Mock)},
		{"skip_format_check", strconv.FormatBool(cfg.SkipFormatCheck)},
		{"score_target_max", strconv.FormatFloat(cfg.ScoreTargetMax, 'f', -1, 64)},
		{"multi_enabled", strconv.FormatBool(cfg.MultiEnabled)},
	}
	if cfg.MultiEnabled {
		endpoints := cfg.Models
		if len(endpoints) > models.MaxModelEndpoints {
			endpoints = endpoints[:models.MaxModelEndpoints]
		}
		encoded := make([]modelField, 0, len(endpoints))
		for _, endpoint := range endpoints {
			encoded = append(encoded, modelField{APIURL: endpoint.APIURL, APIKey: endpoint.APIKey, ModelName: endpoint.ModelName})
		}
		raw, err := json.Marshal(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("encode models: %w", err)
		}
		fields = append(fields, [2]string{"models", string(raw)})
	}

	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", field[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return buf, writer.FormDataContentType(), nil
}
