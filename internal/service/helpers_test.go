package service

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/pkg/gradingclient"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type recordingNotifier struct {
	mu     sync.Mutex
	toasts []Toast
}

func (n *recordingNotifier) Show(message string, severity ToastSeverity) Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	toast := Toast{ID: fmt.Sprint(len(n.toasts)), Message: message, Severity: severity}
	n.toasts = append(n.toasts, toast)
	return toast
}

func (n *recordingNotifier) bySeverity(severity ToastSeverity) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, toast := range n.toasts {
		if toast.Severity == severity {
			out = append(out, toast.Message)
		}
	}
	return out
}

type staticSettings struct {
	cfg models.GradeConfig
}

func (s staticSettings) Grade() models.GradeConfig {
	return s.cfg.Clone()
}

type gradeReply struct {
	resp *models.GradeResponse
	err  error
}

type pendingGrade struct {
	files []gradingclient.File
	cfg   models.GradeConfig
	reply chan gradeReply
}

// scriptedGrader blocks every call until the test answers it.
type scriptedGrader struct {
	calls chan *pendingGrade
}

func newScriptedGrader() *scriptedGrader {
	return &scriptedGrader{calls: make(chan *pendingGrade, 8)}
}

func (g *scriptedGrader) Grade(ctx context.Context, files []gradingclient.File, cfg models.GradeConfig) (*models.GradeResponse, error) {
	call := &pendingGrade{files: files, cfg: cfg, reply: make(chan gradeReply, 1)}
	g.calls <- call
	select {
	case reply := <-call.reply:
		return reply.resp, reply.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// echoGrader answers immediately with one success item per file.
type echoGrader struct{}

func (echoGrader) Grade(_ context.Context, files []gradingclient.File, _ models.GradeConfig) (*models.GradeResponse, error) {
	return batchResponse("echo", len(files)), nil
}

func batchResponse(batchID string, files int) *models.GradeResponse {
	raw := "model output for " + batchID
	score := 50.0
	items := make([]models.GradeItem, 0, files)
	for i := 0; i < files; i++ {
		items = append(items, models.GradeItem{
			FileName:    fmt.Sprintf("hw%d.txt", i),
			Score:       &score,
			Status:      models.GradeItemStatusSuccess,
			RawResponse: &raw,
		})
	}
	return &models.GradeResponse{
		BatchID:           batchID,
		TotalFiles:        files,
		SuccessCount:      files,
		DownloadResultURL: "/api/download/result/" + batchID,
		Items:             items,
	}
}

func homework(n int) []gradingclient.File {
	files := make([]gradingclient.File, 0, n)
	for i := 0; i < n; i++ {
		files = append(files, gradingclient.File{Name: fmt.Sprintf("hw%d.txt", i), Data: []byte("My career plan is to study distributed systems.")})
	}
	return files
}
