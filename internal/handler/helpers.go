package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/rubric"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/store"
	"github.com/noah-isme/gema-grader/internal/utils"
	"github.com/noah-isme/gema-grader/pkg/gradingclient"
)

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// ErrorHandler renders errors returned from handlers in the API envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "internal server error"
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		status = fiberErr.Code
		message = fiberErr.Message
	}
	return utils.SendError(c, status, message)
}

// parseBody decodes and validates a JSON body, returning a 400 *fiber.Error on failure.
func parseBody(c *fiber.Ctx, validate *validator.Validate, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if validate != nil {
		if err := validate.Struct(out); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}
	return nil
}

// parseIndexParam reads a non-negative integer route parameter.
func parseIndexParam(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Params(key))
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+key)
	}
	return parsed, nil
}

// parseFormBool treats an absent form value as false.
func parseFormBool(c *fiber.Ctx, key string) (bool, error) {
	value := strings.TrimSpace(c.FormValue(key))
	if value == "" {
		return false, nil
	}
	return strconv.ParseBool(value)
}

// sendGatewayError reports a failed call to the grading service with its normalised message.
func sendGatewayError(c *fiber.Ctx, err error) error {
	var remote *gradingclient.Error
	if errors.As(err, &remote) {
		return utils.SendError(c, fiber.StatusBadGateway, remote.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return utils.SendError(c, fiber.StatusGatewayTimeout, gradingclient.Message(err))
	}
	return utils.SendError(c, fiber.StatusBadGateway, gradingclient.Message(err))
}

// sendRubricError maps rubric editor failures onto HTTP statuses.
func sendRubricError(c *fiber.Ctx, err error) error {
	var invalid *rubric.ValidationError
	switch {
	case errors.As(err, &invalid):
		return utils.SendErrorWithDetails(c, fiber.StatusUnprocessableEntity, "rubric has blocking issues", invalid.Issues)
	case errors.Is(err, rubric.ErrCategoryNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, rubric.ErrCategoryExists),
		errors.Is(err, service.ErrRubricNotLoaded):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, rubric.ErrEmptyKey),
		errors.Is(err, rubric.ErrIndexOutOfRange),
		errors.Is(err, rubric.ErrUnknownField),
		errors.Is(err, rubric.ErrInvalidNumber):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrQuotaExceeded):
		return utils.SendError(c, fiber.StatusInsufficientStorage, err.Error())
	default:
		return sendGatewayError(c, err)
	}
}
