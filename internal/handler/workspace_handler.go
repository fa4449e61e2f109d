package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/utils"
)

const wsWriteTimeout = 5 * time.Second

// DownloadResolver turns result download paths into absolute URLs.
type DownloadResolver interface {
	ResolveDownloadURL(path string) string
}

// DownloadLinks are the resolved spreadsheet links of the cached result.
type DownloadLinks struct {
	Result string `json:"result,omitempty"`
	Errors string `json:"errors,omitempty"`
}

// WorkspaceHandler exposes the grading workspace.
type WorkspaceHandler struct {
	service   service.WorkspaceService
	files     *service.SubmissionFiles
	downloads DownloadResolver
	logger    zerolog.Logger
}

// NewWorkspaceHandler constructs a workspace handler.
func NewWorkspaceHandler(svc service.WorkspaceService, files *service.SubmissionFiles, downloads DownloadResolver, logger zerolog.Logger) *WorkspaceHandler {
	if files == nil {
		files = service.NewSubmissionFiles(0)
	}
	return &WorkspaceHandler{
		service:   svc,
		files:     files,
		downloads: downloads,
		logger:    logger.With().Str("component", "workspace_handler").Logger(),
	}
}

// Register binds the workspace routes.
func (h *WorkspaceHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", requestContext(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/", h.snapshot)
	router.Post("/grade", h.grade)
	router.Post("/clear", h.clear)
	router.Get("/downloads", h.downloadLinks)
	router.Get("/ws", websocket.New(h.stream))
}

func (h *WorkspaceHandler) snapshot(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "workspace", h.service.Snapshot())
}

func (h *WorkspaceHandler) grade(c *fiber.Ctx) error {
	supersede, err := parseFormBool(c, "supersede")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid supersede flag")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, service.ErrNoFiles.Error())
	}
	files, err := h.files.FromMultipart(form.File["files"])
	if err != nil {
		return h.handleError(c, err)
	}

	run, err := h.service.Submit(requestContext(c), files, service.SubmitOptions{Supersede: supersede})
	if err != nil {
		return h.handleError(c, err)
	}

	requestLogger(h.logger, c).Info().Uint64("token", run.Token).Int("files", len(files)).Msg("grading run accepted")
	return utils.SendAccepted(c, "grading started", dto.GradeAcceptedResponse{Token: run.Token, Files: len(files)})
}

func (h *WorkspaceHandler) clear(c *fiber.Ctx) error {
	modal := h.service.ClearCache()
	return utils.SendSuccess(c, "confirmation required", dto.ClearRequestedResponse{ModalID: modal.ID})
}

func (h *WorkspaceHandler) downloadLinks(c *fiber.Ctx) error {
	snapshot := h.service.Snapshot()
	if snapshot.Result == nil {
		return utils.SendError(c, fiber.StatusNotFound, "no grading result available")
	}
	links := DownloadLinks{}
	if h.downloads != nil {
		links.Result = h.downloads.ResolveDownloadURL(snapshot.Result.DownloadResultURL)
		links.Errors = h.downloads.ResolveDownloadURL(snapshot.Result.DownloadErrorURL)
	}
	return utils.SendSuccess(c, "downloads", links)
}

func (h *WorkspaceHandler) stream(conn *websocket.Conn) {
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	// The first update is the current snapshot.
	updates, cleanup := h.service.Subscribe()
	defer cleanup()

	h.logger.Debug().Msg("workspace websocket connected")

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case snapshot, ok := <-updates:
			if !ok {
				return
			}
			if err := h.write(conn, snapshot); err != nil {
				h.logger.Debug().Err(err).Msg("workspace websocket write failed")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *WorkspaceHandler) write(conn *websocket.Conn, snapshot dto.WorkspaceSnapshot) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(snapshot)
}

func (h *WorkspaceHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNoFiles), errors.Is(err, service.ErrFileTypeNotAllowed):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrFileTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrEndpointRequired):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrSubmissionInFlight):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("grading request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to start grading")
	}
}
