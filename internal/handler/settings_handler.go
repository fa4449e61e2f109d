package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/utils"
)

// SettingsHandler exposes grading settings, editor settings and the theme.
type SettingsHandler struct {
	service   service.SettingsService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewSettingsHandler constructs a settings handler.
func NewSettingsHandler(svc service.SettingsService, validate *validator.Validate, logger zerolog.Logger) *SettingsHandler {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return &SettingsHandler{
		service:   svc,
		validator: validate,
		logger:    logger.With().Str("component", "settings_handler").Logger(),
	}
}

// Register binds the settings routes.
func (h *SettingsHandler) Register(router fiber.Router) {
	router.Get("/", h.get)
	router.Patch("/", h.updateGrade)
	router.Post("/reset", h.reset)
	router.Post("/models", h.addModel)
	router.Patch("/models/:index", h.setModelField)
	router.Delete("/models/:index", h.removeModel)
	router.Get("/editor", h.editor)
	router.Patch("/editor", h.updateEditor)
	router.Get("/theme", h.theme)
	router.Post("/theme/toggle", h.toggleTheme)
}

func (h *SettingsHandler) get(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "settings", dto.SettingsResponse{
		Grade:  h.service.Grade(),
		Editor: h.service.Editor(),
		Theme:  h.service.Theme(),
	})
}

func (h *SettingsHandler) updateGrade(c *fiber.Ctx) error {
	var patch dto.GradeSettingsPatch
	if err := c.BodyParser(&patch); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	grade, err := h.service.UpdateGrade(patch)
	return h.respondGrade(c, "settings updated", grade, err)
}

func (h *SettingsHandler) reset(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "settings reset", h.service.Reset())
}

func (h *SettingsHandler) addModel(c *fiber.Ctx) error {
	grade, err := h.service.AddModelRow()
	return h.respondGrade(c, "model row added", grade, err)
}

func (h *SettingsHandler) setModelField(c *fiber.Ctx) error {
	index, err := parseIndexParam(c, "index")
	if err != nil {
		return err
	}
	var req dto.ModelFieldRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}
	grade, err := h.service.SetModelField(index, req.Field, req.Value)
	return h.respondGrade(c, "model row updated", grade, err)
}

func (h *SettingsHandler) removeModel(c *fiber.Ctx) error {
	index, err := parseIndexParam(c, "index")
	if err != nil {
		return err
	}
	grade, err := h.service.RemoveModelRow(index)
	return h.respondGrade(c, "model row removed", grade, err)
}

func (h *SettingsHandler) editor(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "editor settings", h.service.Editor())
}

func (h *SettingsHandler) updateEditor(c *fiber.Ctx) error {
	var patch dto.EditorSettingsPatch
	if err := c.BodyParser(&patch); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	editor, err := h.service.UpdateEditor(requestContext(c), patch)
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Msg("editor settings kept in memory only")
	}
	return utils.SendSuccess(c, "editor settings updated", editor)
}

func (h *SettingsHandler) theme(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "theme", dto.ThemeResponse{Theme: h.service.Theme()})
}

func (h *SettingsHandler) toggleTheme(c *fiber.Ctx) error {
	theme, err := h.service.ToggleTheme(requestContext(c))
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Msg("theme kept in memory only")
	}
	return utils.SendSuccess(c, "theme toggled", dto.ThemeResponse{Theme: theme})
}

func (h *SettingsHandler) respondGrade(c *fiber.Ctx, message string, grade models.GradeConfig, err error) error {
	switch {
	case err == nil:
		return utils.SendSuccess(c, message, grade)
	case isValidationError(err), errors.Is(err, service.ErrInvalidScoreTarget), errors.Is(err, service.ErrUnknownModelField):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrModelRowNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrModelLimit):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("settings update failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to update settings")
	}
}
