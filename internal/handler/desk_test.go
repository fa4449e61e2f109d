package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/handler"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/router"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/store"
	"github.com/noah-isme/gema-grader/pkg/gradingclient"
)

const sampleRubric = `{
  "system_prompt": "Grade fairly.",
  "categories": {
    "report": {
      "display_name": "Career report",
      "sections": [{"key": "Structure", "max_score": 10, "items": [{"key": "Outline", "max_score": 10, "description": "Has an outline"}]}]
    }
  }
}`

// gateGrader answers with one success item per file once its gate is open.
type gateGrader struct {
	gate chan struct{}
}

func (g *gateGrader) Grade(ctx context.Context, files []gradingclient.File, _ models.GradeConfig) (*models.GradeResponse, error) {
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	score := 42.0
	items := make([]models.GradeItem, 0, len(files))
	for _, file := range files {
		items = append(items, models.GradeItem{FileName: file.Name, Score: &score, Status: models.GradeItemStatusSuccess})
	}
	return &models.GradeResponse{
		BatchID:           "batch-1",
		TotalFiles:        len(files),
		SuccessCount:      len(files),
		DownloadResultURL: "/api/download/result/batch-1",
		Items:             items,
	}, nil
}

type fakeRubricGateway struct {
	mu       sync.Mutex
	document []byte
	fetchErr error
}

func (g *fakeRubricGateway) FetchRubric(context.Context) (*models.RubricConfig, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	var cfg models.RubricConfig
	if err := json.Unmarshal(g.document, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (g *fakeRubricGateway) SaveRubric(_ context.Context, cfg *models.RubricConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.document = raw
	g.mu.Unlock()
	return nil
}

func (g *fakeRubricGateway) PreviewPrompt(_ context.Context, req gradingclient.PreviewRequest) (*gradingclient.PreviewResponse, error) {
	return &gradingclient.PreviewResponse{SystemPrompt: "remote", UserPrompt: "remote prompt", ScoreRubricMax: 10, ScoreTargetMax: req.ScoreTargetMax}, nil
}

type staticResolver struct{}

func (staticResolver) ResolveDownloadURL(path string) string {
	if path == "" {
		return ""
	}
	return "http://grading.test" + path
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type desk struct {
	app       *fiber.App
	settings  service.SettingsService
	workspace service.WorkspaceService
	rubric    service.RubricService
	toasts    service.NotificationCenter
	modal     service.ConfirmationService
	grader    *gateGrader
	gateway   *fakeRubricGateway
}

func newDesk(t *testing.T) *desk {
	t.Helper()
	logger := zerolog.Nop()
	st := store.NewMemoryStore(0)
	toasts := service.NewNotificationCenter(time.Minute, logger)
	modal := service.NewConfirmationService(logger)
	settings := service.NewSettingsService(st, toasts, nil, time.Hour, models.ThemeDark, logger)
	files := service.NewSubmissionFiles(1)
	grader := &gateGrader{}
	gateway := &fakeRubricGateway{document: []byte(sampleRubric)}

	workspace := service.NewWorkspaceService(service.WorkspaceOptions{
		Grader:    grader,
		Settings:  settings,
		Store:     st,
		Notifier:  toasts,
		Confirmer: modal,
		Files:     files,
		Logger:    logger,
	})
	rubricSvc := service.NewRubricService(service.RubricOptions{
		Gateway:   gateway,
		Store:     st,
		Templates: settings,
		Editor:    settings,
		Notifier:  toasts,
		Logger:    logger,
	})

	cfg := config.Config{AppName: "Grader Desk", AppEnv: "test", StoreDriver: config.StoreDriverMemory}
	app := fiber.New(fiber.Config{ErrorHandler: handler.ErrorHandler})
	middleware.Register(app, middleware.Config{})
	router.Register(app, cfg, router.Dependencies{
		WorkspaceHandler: handler.NewWorkspaceHandler(workspace, files, staticResolver{}, logger),
		RubricHandler:    handler.NewRubricHandler(rubricSvc, nil, logger),
		SettingsHandler:  handler.NewSettingsHandler(settings, nil, logger),
		UIHandler:        handler.NewUIHandler(toasts, modal, nil, logger, time.Second),
		Health:           handler.HealthCheck(cfg, st.Backend(), stubPinger{}),
	})

	return &desk{
		app:       app,
		settings:  settings,
		workspace: workspace,
		rubric:    rubricSvc,
		toasts:    toasts,
		modal:     modal,
		grader:    grader,
		gateway:   gateway,
	}
}

func (d *desk) enableMock(t *testing.T) {
	t.Helper()
	mock := true
	_, err := d.settings.UpdateGrade(dto.GradeSettingsPatch{Mock: &mock})
	require.NoError(t, err)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

func (d *desk) do(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return d.send(t, req)
}

func (d *desk) send(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()
	resp, err := d.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

type upload struct {
	name string
	data []byte
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files ...upload) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for _, file := range files {
		part, err := writer.CreateFormFile("files", file.name)
		require.NoError(t, err)
		_, err = part.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeData(t *testing.T, env envelope, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, out), string(env.Data))
}

func startServer(t *testing.T, app *fiber.App) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	t.Cleanup(func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	})
	return "http://" + listener.Addr().String()
}
