package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/handler"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/observability"
)

// Grading submissions allowed per client within gradeRateWindow.
const (
	gradeRateLimit  = 10
	gradeRateWindow = time.Minute
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	WorkspaceHandler *handler.WorkspaceHandler
	RubricHandler    *handler.RubricHandler
	SettingsHandler  *handler.SettingsHandler
	UIHandler        *handler.UIHandler
	Health           fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})

	health := deps.Health
	if health == nil {
		health = handler.HealthCheck(cfg, cfg.StoreDriver, nil)
	}
	api.Get("/health", health)

	if deps.WorkspaceHandler != nil {
		workspace := api.Group("/workspace")
		workspace.Use("/grade", middleware.RateLimit("grade", gradeRateLimit, gradeRateWindow))
		deps.WorkspaceHandler.Register(workspace)
	}

	if deps.RubricHandler != nil {
		deps.RubricHandler.Register(api.Group("/rubric"))
	}

	if deps.SettingsHandler != nil {
		deps.SettingsHandler.Register(api.Group("/settings"))
	}

	if deps.UIHandler != nil {
		deps.UIHandler.Register(api.Group("/ui"))
	}
}
