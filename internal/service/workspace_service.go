package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/observability"
	"github.com/noah-isme/gema-grader/internal/store"
	"github.com/noah-isme/gema-grader/pkg/gradingclient"
)

var (
	// ErrEndpointRequired indicates a real grading run without a model endpoint.
	ErrEndpointRequired = errors.New("model endpoint is required unless mock mode is enabled")
	// ErrSubmissionInFlight indicates a run is still in progress and supersede was not requested.
	ErrSubmissionInFlight = errors.New("a grading run is already in progress")
)

// Run states.
const (
	StateIdle       = "idle"
	StateSubmitting = "submitting"
	StateCompleted  = "completed"
	StateFailed     = "failed"
)

// Status texts shown to the operator.
const (
	StatusReady       = "Ready"
	StatusProcessing  = "Processing"
	StatusCompleted   = "Completed"
	StatusFailed      = "Failed"
	StatusInterrupted = "The last grading run was interrupted by a reload. Start grading again."

	cacheTooLargeWarning = "Grading result is too large to cache locally."
	cacheClearedMessage  = "Grading cache cleared"
)

const (
	progressStart = 5
	progressCap   = 90
	progressStep  = 5
	progressDone  = 100
)

const snapshotBufferSize = 8

// Grader sends a batch to the grading service.
type Grader interface {
	Grade(ctx context.Context, files []gradingclient.File, cfg models.GradeConfig) (*models.GradeResponse, error)
}

// GradeSettings supplies the current grading settings.
type GradeSettings interface {
	Grade() models.GradeConfig
}

// SubmitOptions controls how Submit treats a run that is still in flight.
type SubmitOptions struct {
	// Supersede starts a new run even when one is in flight; the older run's
	// outcome is then discarded.
	Supersede bool
}

// Run is a handle on one submitted grading run.
type Run struct {
	Token uint64
	done  chan struct{}
}

// Done is closed once the run's network call returned and its outcome was applied or discarded.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finished or ctx ends.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WorkspaceService runs at most one visible grading submission at a time, guarded by
// a monotonically increasing session token.
type WorkspaceService interface {
	Submit(ctx context.Context, files []gradingclient.File, opts SubmitOptions) (*Run, error)
	PersistState(ctx context.Context, inProgress bool) error
	Restore(ctx context.Context) error
	ClearCache() Modal
	ExecuteClearCache(ctx context.Context) error
	Snapshot() dto.WorkspaceSnapshot
	Subscribe() (<-chan dto.WorkspaceSnapshot, func())
}

// WorkspaceOptions wires the workspace collaborators.
type WorkspaceOptions struct {
	Grader           Grader
	Settings         GradeSettings
	Store            store.Store
	Notifier         Notifier
	Confirmer        Confirmer
	Events           EventPublisher
	Files            *SubmissionFiles
	ProgressInterval time.Duration
	Logger           zerolog.Logger
}

type workspaceService struct {
	grader    Grader
	settings  GradeSettings
	store     store.Store
	notifier  Notifier
	confirmer Confirmer
	events    EventPublisher
	files     *SubmissionFiles
	interval  time.Duration
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	mu         sync.Mutex
	token      uint64
	state      string
	statusText string
	progress   int
	loading    bool
	result     *models.GradeResponse
	lastError  string

	subscribers map[chan dto.WorkspaceSnapshot]struct{}
}

// NewWorkspaceService constructs the workspace session controller.
func NewWorkspaceService(opts WorkspaceOptions) WorkspaceService {
	events := opts.Events
	if events == nil {
		events = noopPublisher{}
	}
	files := opts.Files
	if files == nil {
		files = NewSubmissionFiles(0)
	}
	return &workspaceService{
		grader:      opts.Grader,
		settings:    opts.Settings,
		store:       opts.Store,
		notifier:    opts.Notifier,
		confirmer:   opts.Confirmer,
		events:      events,
		files:       files,
		interval:    opts.ProgressInterval,
		logger:      opts.Logger.With().Str("component", "workspace_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-grader/internal/service/workspace"),
		now:         time.Now,
		state:       StateIdle,
		statusText:  StatusReady,
		subscribers: make(map[chan dto.WorkspaceSnapshot]struct{}),
	}
}

func (s *workspaceService) Submit(ctx context.Context, files []gradingclient.File, opts SubmitOptions) (*Run, error) {
	cfg := s.settings.Grade()
	if err := s.validateSubmission(files, cfg); err != nil {
		observability.GradingRuns().WithLabelValues("rejected").Inc()
		s.toast(err.Error(), ToastWarning)
		return nil, err
	}

	s.mu.Lock()
	if s.loading && !opts.Supersede {
		s.mu.Unlock()
		observability.GradingRuns().WithLabelValues("rejected").Inc()
		return nil, ErrSubmissionInFlight
	}
	s.token++
	token := s.token
	s.loading = true
	s.state = StateSubmitting
	s.statusText = StatusProcessing
	s.progress = progressStart
	s.lastError = ""
	s.persistLocked(ctx, true)
	s.broadcastLocked()
	s.mu.Unlock()

	s.publish(ctx, WorkspaceEvent{Type: EventRunStarted, Token: token, Files: len(files), StatusText: StatusProcessing})
	s.logger.Info().Uint64("token", token).Int("files", len(files)).Str("template", cfg.Template).Bool("mock", cfg.Mock).Msg("grading run started")

	run := &Run{Token: token, done: make(chan struct{})}
	runCtx := context.WithoutCancel(ctx)
	stopTicker := s.startProgress(token)

	go func() {
		defer close(run.done)
		defer stopTicker()
		s.execute(runCtx, token, files, cfg)
	}()
	return run, nil
}

func (s *workspaceService) validateSubmission(files []gradingclient.File, cfg models.GradeConfig) error {
	if len(files) == 0 {
		return ErrNoFiles
	}
	if !cfg.Mock && !hasEndpoint(cfg) {
		return ErrEndpointRequired
	}
	return s.files.Check(files)
}

func hasEndpoint(cfg models.GradeConfig) bool {
	if strings.TrimSpace(cfg.APIURL) != "" {
		return true
	}
	if cfg.MultiEnabled {
		for _, endpoint := range cfg.Models {
			if strings.TrimSpace(endpoint.APIURL) != "" {
				return true
			}
		}
	}
	return false
}

func (s *workspaceService) execute(ctx context.Context, token uint64, files []gradingclient.File, cfg models.GradeConfig) {
	ctx, span := s.tracer.Start(ctx, "workspace.grade", trace.WithAttributes(
		attribute.Int64("workspace.token", int64(token)),
		attribute.Int("workspace.files", len(files)),
		attribute.Bool("workspace.mock", cfg.Mock),
	))
	defer span.End()

	resp, err := s.grader.Grade(ctx, files, cfg)

	s.mu.Lock()
	if token != s.token {
		current := s.token
		s.mu.Unlock()
		observability.GradingRuns().WithLabelValues("superseded").Inc()
		span.SetAttributes(attribute.Bool("workspace.superseded", true))
		s.logger.Debug().Uint64("token", token).Uint64("current", current).Msg("discarding superseded grading outcome")
		return
	}

	s.loading = false
	if err != nil {
		message := gradingclient.Message(err)
		s.state = StateFailed
		s.statusText = StatusFailed
		s.lastError = message
		s.progress = 0
		s.persistLocked(ctx, false)
		s.broadcastLocked()
		s.mu.Unlock()

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.GradingRuns().WithLabelValues("failed").Inc()
		s.logger.Error().Err(err).Uint64("token", token).Msg("grading run failed")
		s.toast(message, ToastError)
		s.publish(ctx, WorkspaceEvent{Type: EventRunFailed, Token: token, StatusText: message})
		return
	}

	s.result = resp
	s.state = StateCompleted
	s.statusText = StatusCompleted
	s.progress = progressDone
	s.persistLocked(ctx, false)
	s.broadcastLocked()
	s.mu.Unlock()

	observability.GradingRuns().WithLabelValues("applied").Inc()
	s.logger.Info().Uint64("token", token).Str("batch_id", resp.BatchID).Int("success", resp.SuccessCount).Int("errors", resp.ErrorCount).Msg("grading run completed")
	s.toast(fmt.Sprintf("Grading finished: %d file(s) processed successfully", resp.SuccessCount), ToastSuccess)
	s.publish(ctx, WorkspaceEvent{Type: EventRunCompleted, Token: token, Files: resp.TotalFiles, BatchID: resp.BatchID, StatusText: StatusCompleted})
}

// startProgress advances the indicator while the run with token is current. The
// returned function stops the ticker and waits for it to exit.
func (s *workspaceService) startProgress(token uint64) func() {
	if s.interval <= 0 {
		return func() {}
	}
	stop := make(chan struct{})
	exited := make(chan struct{})
	ticker := time.NewTicker(s.interval)

	go func() {
		defer close(exited)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.mu.Lock()
				if token != s.token || !s.loading {
					s.mu.Unlock()
					return
				}
				if s.progress < progressCap {
					s.progress += progressStep
					if s.progress > progressCap {
						s.progress = progressCap
					}
					s.broadcastLocked()
				}
				s.mu.Unlock()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-exited
		})
	}
}

func (s *workspaceService) PersistState(ctx context.Context, inProgress bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx, inProgress)
}

// persistLocked writes the workspace snapshot. Failures are reported as a warning
// and never abort the caller.
func (s *workspaceService) persistLocked(ctx context.Context, inProgress bool) error {
	if s.store == nil {
		return nil
	}
	cache := models.WorkspaceCache{
		Version:    models.WorkspaceCacheVersion,
		SavedAt:    s.now().UnixMilli(),
		InProgress: inProgress,
		StatusText: s.statusText,
	}
	if s.result != nil {
		sanitized := s.result.SanitizeForCache()
		cache.Result = &sanitized
	}

	if err := s.store.Save(ctx, store.KeyWorkspace, cache); err != nil {
		s.logger.Warn().Err(err).Bool("in_progress", inProgress).Msg("failed to cache workspace state")
		message := cacheTooLargeWarning
		if !errors.Is(err, store.ErrQuotaExceeded) {
			message = "Workspace state could not be cached locally."
		}
		s.toast(message, ToastWarning)
		return err
	}
	return nil
}

func (s *workspaceService) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var cache models.WorkspaceCache
	if err := s.store.Load(ctx, store.KeyWorkspace, &cache); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		s.logger.Warn().Err(err).Msg("ignoring unreadable workspace cache")
		return nil
	}
	if cache.Version != models.WorkspaceCacheVersion {
		s.logger.Info().Int("version", cache.Version).Msg("ignoring workspace cache with unknown version")
		return nil
	}

	if cache.Result != nil {
		s.result = cache.Result
		s.state = StateCompleted
	}
	if text := strings.TrimSpace(cache.StatusText); text != "" {
		s.statusText = text
	}
	if cache.InProgress {
		s.statusText = StatusInterrupted
		s.state = StateIdle
		if s.result != nil {
			s.state = StateCompleted
		}
		s.logger.Warn().Msg("previous grading run was interrupted")
		s.toast(StatusInterrupted, ToastWarning)
		if err := s.persistLocked(ctx, false); err != nil {
			return err
		}
	}
	s.broadcastLocked()
	return nil
}

// ClearCache asks the operator to confirm before the workspace is cleared.
func (s *workspaceService) ClearCache() Modal {
	return s.confirmer.Confirm(ConfirmOptions{
		Title:       "Clear local cache",
		Content:     "Clear the grading cache? This removes the current result and workspace state (grading and editor settings are kept) and cannot be undone.",
		ConfirmText: "Clear now",
		Danger:      true,
		OnConfirm:   s.ExecuteClearCache,
	})
}

func (s *workspaceService) ExecuteClearCache(ctx context.Context) error {
	s.mu.Lock()
	s.token++
	token := s.token
	s.loading = false
	s.state = StateIdle
	s.statusText = StatusReady
	s.progress = 0
	s.result = nil
	s.lastError = ""
	var removeErr error
	if s.store != nil {
		removeErr = s.store.Remove(ctx, store.KeyWorkspace)
	}
	s.broadcastLocked()
	s.mu.Unlock()

	if removeErr != nil && !errors.Is(removeErr, store.ErrNotFound) {
		s.logger.Warn().Err(removeErr).Msg("failed to remove workspace cache")
	}
	s.toast(cacheClearedMessage, ToastSuccess)
	s.publish(ctx, WorkspaceEvent{Type: EventCacheCleared, Token: token, StatusText: StatusReady})
	return nil
}

func (s *workspaceService) Snapshot() dto.WorkspaceSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *workspaceService) snapshotLocked() dto.WorkspaceSnapshot {
	return dto.WorkspaceSnapshot{
		Token:      s.token,
		State:      s.state,
		StatusText: s.statusText,
		Progress:   s.progress,
		Loading:    s.loading,
		Result:     s.result,
		LastError:  s.lastError,
	}
}

func (s *workspaceService) Subscribe() (<-chan dto.WorkspaceSnapshot, func()) {
	ch := make(chan dto.WorkspaceSnapshot, snapshotBufferSize)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()
	observability.StreamClients().WithLabelValues("workspace").Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, ch)
			close(ch)
			s.mu.Unlock()
			observability.StreamClients().WithLabelValues("workspace").Dec()
		})
	}
}

func (s *workspaceService) broadcastLocked() {
	snapshot := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

func (s *workspaceService) toast(message string, severity ToastSeverity) {
	if s.notifier != nil {
		s.notifier.Show(message, severity)
	}
}

func (s *workspaceService) publish(ctx context.Context, event WorkspaceEvent) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("type", event.Type).Msg("workspace event not published")
	}
}
