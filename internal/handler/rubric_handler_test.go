package handler_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/rubric"
	"github.com/noah-isme/gema-grader/pkg/gradingclient"
)

func TestRubricGetLoadsWorkingCopy(t *testing.T) {
	d := newDesk(t)
	status, env := d.do(t, http.MethodGet, "/api/v1/rubric", nil)
	require.Equal(t, http.StatusOK, status)

	var view dto.RubricView
	decodeData(t, env, &view)
	require.Equal(t, "report", view.ActiveKey)
	require.Equal(t, []string{"report"}, view.Config.Categories.Keys())
	require.Len(t, view.Templates, 2)
	require.Equal(t, models.AutoTemplate, view.Templates[0])
}

func TestRubricGetReportsLoadError(t *testing.T) {
	d := newDesk(t)
	d.gateway.fetchErr = &gradingclient.Error{StatusCode: http.StatusBadGateway, Message: "grading service offline"}

	status, env := d.do(t, http.MethodGet, "/api/v1/rubric", nil)
	require.Equal(t, http.StatusOK, status)
	var view dto.RubricView
	decodeData(t, env, &view)
	require.Equal(t, "grading service offline", view.LoadError)
	require.Equal(t, []models.TemplateOption{models.AutoTemplate}, view.Templates)

	status, env = d.do(t, http.MethodPost, "/api/v1/rubric/reload", nil)
	require.Equal(t, http.StatusBadGateway, status)
	require.Equal(t, "grading service offline", env.Message)
}

func TestRubricSaveBeforeLoadConflicts(t *testing.T) {
	d := newDesk(t)
	d.gateway.fetchErr = &gradingclient.Error{StatusCode: http.StatusBadGateway, Message: "grading service offline"}
	_, _ = d.do(t, http.MethodGet, "/api/v1/rubric", nil)

	status, _ := d.do(t, http.MethodPost, "/api/v1/rubric/save", nil)
	require.Equal(t, http.StatusConflict, status)
	status, _ = d.do(t, http.MethodPost, "/api/v1/rubric/sections", nil)
	require.Equal(t, http.StatusConflict, status)
}

func TestRubricCategoryRoutes(t *testing.T) {
	d := newDesk(t)
	_, _ = d.do(t, http.MethodGet, "/api/v1/rubric", nil)

	status, env := d.do(t, http.MethodPost, "/api/v1/rubric/categories", dto.CategoryCreateRequest{Key: "essay", DisplayName: "Essay"})
	require.Equal(t, http.StatusOK, status, env.Message)

	status, _ = d.do(t, http.MethodPost, "/api/v1/rubric/categories", dto.CategoryCreateRequest{Key: "essay"})
	require.Equal(t, http.StatusConflict, status)

	status, _ = d.do(t, http.MethodPost, "/api/v1/rubric/categories", dto.CategoryCreateRequest{})
	require.Equal(t, http.StatusBadRequest, status)

	status, env = d.do(t, http.MethodPut, "/api/v1/rubric/categories/essay", dto.CategoryRenameRequest{Key: "essays"})
	require.Equal(t, http.StatusOK, status)
	var view dto.RubricView
	decodeData(t, env, &view)
	require.Equal(t, []string{"report", "essays"}, view.Config.Categories.Keys())

	status, _ = d.do(t, http.MethodDelete, "/api/v1/rubric/categories/missing", nil)
	require.Equal(t, http.StatusNotFound, status)

	status, env = d.do(t, http.MethodGet, "/api/v1/rubric/templates", nil)
	require.Equal(t, http.StatusOK, status)
	var templates []models.TemplateOption
	decodeData(t, env, &templates)
	require.Len(t, templates, 3)
}

func TestRubricSectionAndFieldRoutes(t *testing.T) {
	d := newDesk(t)
	_, _ = d.do(t, http.MethodGet, "/api/v1/rubric", nil)

	status, _ := d.do(t, http.MethodPost, "/api/v1/rubric/sections", nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = d.do(t, http.MethodPost, "/api/v1/rubric/sections/1/items", nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = d.do(t, http.MethodPost, "/api/v1/rubric/sections/7/items", nil)
	require.Equal(t, http.StatusBadRequest, status)
	status, _ = d.do(t, http.MethodDelete, "/api/v1/rubric/sections/abc", nil)
	require.Equal(t, http.StatusBadRequest, status)

	section, item := 0, 0
	status, env := d.do(t, http.MethodPatch, "/api/v1/rubric/fields", dto.FieldUpdateRequest{Section: &section, Item: &item, Field: rubric.FieldMaxScore, Value: "NaN"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, rubric.ErrInvalidNumber.Error(), env.Message)

	status, env = d.do(t, http.MethodPatch, "/api/v1/rubric/fields", dto.FieldUpdateRequest{Section: &section, Item: &item, Field: rubric.FieldMaxScore, Value: "8"})
	require.Equal(t, http.StatusOK, status)
	var view dto.RubricView
	decodeData(t, env, &view)
	report, _ := view.Config.Categories.Get("report")
	require.Equal(t, 8.0, report.Sections[0].Items[0].MaxScore)

	status, env = d.do(t, http.MethodPost, "/api/v1/rubric/normalize", nil)
	require.Equal(t, http.StatusOK, status)
	decodeData(t, env, &view)
	report, _ = view.Config.Categories.Get("report")
	require.Equal(t, 8.0, report.Sections[0].MaxScore)

	status, _ = d.do(t, http.MethodDelete, "/api/v1/rubric/sections/1/items/0", nil)
	require.Equal(t, http.StatusOK, status)
}

func TestRubricSaveReportsBlockingIssues(t *testing.T) {
	d := newDesk(t)
	_, _ = d.do(t, http.MethodGet, "/api/v1/rubric", nil)

	status, _ := d.do(t, http.MethodPatch, "/api/v1/rubric/fields", dto.FieldUpdateRequest{Scope: "category", Field: rubric.FieldDisplayName, Value: " "})
	require.Equal(t, http.StatusOK, status)

	status, env := d.do(t, http.MethodPost, "/api/v1/rubric/save", nil)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Contains(t, string(env.Details), "categories.report.display_name")

	status, _ = d.do(t, http.MethodPatch, "/api/v1/rubric/fields", dto.FieldUpdateRequest{Scope: "category", Field: rubric.FieldDisplayName, Value: "Report"})
	require.Equal(t, http.StatusOK, status)
	status, env = d.do(t, http.MethodPost, "/api/v1/rubric/save", nil)
	require.Equal(t, http.StatusOK, status)
	var saved dto.SaveRubricResponse
	decodeData(t, env, &saved)
	require.True(t, saved.Saved)
}

func TestRubricImportAndPreview(t *testing.T) {
	d := newDesk(t)
	_, _ = d.do(t, http.MethodGet, "/api/v1/rubric", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rubric/import", bytes.NewReader([]byte(`{"categories": []}`)))
	req.Header.Set("Content-Type", "application/json")
	status, _ := d.send(t, req)
	require.Equal(t, http.StatusBadRequest, status)

	status, env := d.do(t, http.MethodPost, "/api/v1/rubric/preview", dto.PreviewRequest{Local: true})
	require.Equal(t, http.StatusOK, status)
	var preview dto.PreviewResponse
	decodeData(t, env, &preview)
	require.Equal(t, "local", preview.Source)
	require.Contains(t, preview.UserPrompt, rubric.HomeworkPlaceholder)

	status, env = d.do(t, http.MethodPost, "/api/v1/rubric/preview", nil)
	require.Equal(t, http.StatusOK, status)
	decodeData(t, env, &preview)
	require.Equal(t, "remote", preview.Source)

	status, _ = d.do(t, http.MethodPost, "/api/v1/rubric/preview", dto.PreviewRequest{CategoryKey: "missing"})
	require.Equal(t, http.StatusNotFound, status)
}
