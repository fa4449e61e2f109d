package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/utils"
)

// RubricHandler exposes the rubric editor.
type RubricHandler struct {
	service   service.RubricService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewRubricHandler constructs a rubric handler.
func NewRubricHandler(svc service.RubricService, validate *validator.Validate, logger zerolog.Logger) *RubricHandler {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return &RubricHandler{
		service:   svc,
		validator: validate,
		logger:    logger.With().Str("component", "rubric_handler").Logger(),
	}
}

// Register binds the rubric routes.
func (h *RubricHandler) Register(router fiber.Router) {
	router.Get("/", h.get)
	router.Post("/reload", h.reload)
	router.Post("/save", h.save)
	router.Post("/import", h.importDocument)
	router.Put("/active", h.selectCategory)
	router.Get("/templates", h.templates)
	router.Post("/categories", h.addCategory)
	router.Put("/categories/:key", h.renameCategory)
	router.Delete("/categories/:key", h.removeCategory)
	router.Post("/sections", h.addSection)
	router.Delete("/sections/:index", h.removeSection)
	router.Post("/sections/:index/items", h.addItem)
	router.Delete("/sections/:index/items/:item", h.removeItem)
	router.Patch("/fields", h.setField)
	router.Post("/normalize", h.normalize)
	router.Post("/preview", h.preview)
}

func (h *RubricHandler) get(c *fiber.Ctx) error {
	view, err := h.service.Load(requestContext(c))
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Msg("rubric served without remote configuration")
	}
	return utils.SendSuccess(c, "rubric", view)
}

func (h *RubricHandler) reload(c *fiber.Ctx) error {
	view, err := h.service.Reload(requestContext(c))
	if err != nil {
		return sendGatewayError(c, err)
	}
	return utils.SendSuccess(c, "rubric reloaded", view)
}

func (h *RubricHandler) save(c *fiber.Ctx) error {
	resp, err := h.service.Save(requestContext(c))
	if err != nil {
		return sendRubricError(c, err)
	}
	return utils.SendSuccess(c, "rubric saved", resp)
}

func (h *RubricHandler) importDocument(c *fiber.Ctx) error {
	view, err := h.service.Import(requestContext(c), c.Body())
	if errors.Is(err, service.ErrRubricNotLoaded) {
		return sendRubricError(c, err)
	}
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	return utils.SendSuccess(c, "rubric imported", view)
}

func (h *RubricHandler) selectCategory(c *fiber.Ctx) error {
	var req dto.SelectCategoryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return utils.SendSuccess(c, "category selected", h.service.SelectCategory(req.Key))
}

func (h *RubricHandler) templates(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "templates", h.service.Templates())
}

func (h *RubricHandler) addCategory(c *fiber.Ctx) error {
	var req dto.CategoryCreateRequest
	if err := h.parse(c, &req); err != nil {
		return err
	}
	view, err := h.service.AddCategory(req.Key, req.DisplayName)
	return h.respond(c, "category added", view, err)
}

func (h *RubricHandler) renameCategory(c *fiber.Ctx) error {
	var req dto.CategoryRenameRequest
	if err := h.parse(c, &req); err != nil {
		return err
	}
	view, err := h.service.RenameCategory(c.Params("key"), req.Key)
	return h.respond(c, "category renamed", view, err)
}

func (h *RubricHandler) removeCategory(c *fiber.Ctx) error {
	view, err := h.service.RemoveCategory(c.Params("key"))
	return h.respond(c, "category removed", view, err)
}

func (h *RubricHandler) addSection(c *fiber.Ctx) error {
	view, err := h.service.AddSection()
	return h.respond(c, "section added", view, err)
}

func (h *RubricHandler) removeSection(c *fiber.Ctx) error {
	index, err := parseIndexParam(c, "index")
	if err != nil {
		return err
	}
	view, err := h.service.RemoveSection(index)
	return h.respond(c, "section removed", view, err)
}

func (h *RubricHandler) addItem(c *fiber.Ctx) error {
	index, err := parseIndexParam(c, "index")
	if err != nil {
		return err
	}
	view, err := h.service.AddItem(index)
	return h.respond(c, "item added", view, err)
}

func (h *RubricHandler) removeItem(c *fiber.Ctx) error {
	section, err := parseIndexParam(c, "index")
	if err != nil {
		return err
	}
	item, err := parseIndexParam(c, "item")
	if err != nil {
		return err
	}
	view, err := h.service.RemoveItem(section, item)
	return h.respond(c, "item removed", view, err)
}

func (h *RubricHandler) setField(c *fiber.Ctx) error {
	var req dto.FieldUpdateRequest
	if err := h.parse(c, &req); err != nil {
		return err
	}
	view, err := h.service.SetField(req)
	return h.respond(c, "field updated", view, err)
}

func (h *RubricHandler) normalize(c *fiber.Ctx) error {
	view, err := h.service.NormalizeSectionScores()
	return h.respond(c, "section scores normalised", view, err)
}

func (h *RubricHandler) preview(c *fiber.Ctx) error {
	var req dto.PreviewRequest
	if len(c.Body()) > 0 {
		if err := h.parse(c, &req); err != nil {
			return err
		}
	}
	resp, err := h.service.Preview(requestContext(c), req)
	if err != nil {
		return sendRubricError(c, err)
	}
	return utils.SendSuccess(c, "prompt preview", resp)
}

func (h *RubricHandler) parse(c *fiber.Ctx, out interface{}) error {
	return parseBody(c, h.validator, out)
}

// respond sends the view on success. Failed edits still carry the unchanged view in details.
func (h *RubricHandler) respond(c *fiber.Ctx, message string, view dto.RubricView, err error) error {
	if err == nil {
		return utils.SendSuccess(c, message, view)
	}
	if errors.Is(err, service.ErrNoActiveCategory) {
		return utils.SendErrorWithDetails(c, fiber.StatusConflict, err.Error(), view)
	}
	return sendRubricError(c, err)
}
