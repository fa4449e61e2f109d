package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/utils"
)

// UIHandler serves the toast list, its SSE stream and the confirmation dialog.
type UIHandler struct {
	toasts    service.NotificationCenter
	modal     service.ConfirmationService
	validator *validator.Validate
	logger    zerolog.Logger
	keepAlive time.Duration
}

// NewUIHandler constructs a UI state handler.
func NewUIHandler(toasts service.NotificationCenter, modal service.ConfirmationService, validate *validator.Validate, logger zerolog.Logger, keepAlive time.Duration) *UIHandler {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	return &UIHandler{
		toasts:    toasts,
		modal:     modal,
		validator: validate,
		logger:    logger.With().Str("component", "ui_handler").Logger(),
		keepAlive: keepAlive,
	}
}

// Register binds the UI routes.
func (h *UIHandler) Register(router fiber.Router) {
	router.Get("/toasts", h.listToasts)
	router.Get("/toasts/stream", h.streamToasts)
	router.Delete("/toasts/:id", h.dismissToast)
	router.Get("/modal", h.currentModal)
	router.Post("/modal/confirm", h.confirm)
	router.Post("/modal/cancel", h.cancel)
}

func (h *UIHandler) listToasts(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "toasts", h.toasts.List())
}

func (h *UIHandler) dismissToast(c *fiber.Ctx) error {
	if !h.toasts.Dismiss(c.Params("id")) {
		return utils.SendError(c, fiber.StatusNotFound, "toast not found")
	}
	return utils.SendSuccess(c, "toast dismissed", nil)
}

func (h *UIHandler) streamToasts(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(requestContext(c))
	stream, cleanup := h.toasts.Subscribe()
	keepAlive := h.keepAlive

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			cleanup()
			cancel()
		}()

		ticker := time.NewTicker(keepAlive / 2)
		defer ticker.Stop()

		for {
			select {
			case toast, ok := <-stream:
				if !ok {
					return
				}
				if err := writeEvent(w, "toast", toast); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write toast event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write toast keepalive")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func (h *UIHandler) currentModal(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "modal", h.modal.Current())
}

func (h *UIHandler) confirm(c *fiber.Ctx) error {
	var req dto.ModalActionRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}
	if err := h.modal.Accept(requestContext(c), req.ID); err != nil {
		if errors.Is(err, service.ErrNoModal) {
			return utils.SendError(c, fiber.StatusNotFound, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("confirmed action failed")
		return utils.SendError(c, fiber.StatusInternalServerError, err.Error())
	}
	return utils.SendSuccess(c, "confirmed", h.modal.Current())
}

func (h *UIHandler) cancel(c *fiber.Ctx) error {
	var req dto.ModalActionRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}
	if err := h.modal.Cancel(req.ID); err != nil {
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	}
	return utils.SendSuccess(c, "cancelled", h.modal.Current())
}

func writeEvent(w *bufio.Writer, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
