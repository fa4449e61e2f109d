package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/utils"
	"github.com/noah-isme/gema-grader/pkg/gradingclient"
)

const pingTimeout = 3 * time.Second

// Pinger checks that the grading service answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	Service        string    `json:"service"`
	Environment    string    `json:"environment"`
	StoreBackend   string    `json:"store_backend"`
	GradingService string    `json:"grading_service"`
	GradingError   string    `json:"grading_error,omitempty"`
}

// HealthCheck reports desk liveness. The desk stays "ok" when the grading service is
// down; that is reported separately as "unreachable".
func HealthCheck(cfg config.Config, storeBackend string, pinger Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:         "ok",
			Timestamp:      time.Now().UTC(),
			Service:        cfg.AppName,
			Environment:    cfg.AppEnv,
			StoreBackend:   storeBackend,
			GradingService: "unknown",
		}

		if pinger != nil {
			ctx, cancel := context.WithTimeout(requestContext(c), pingTimeout)
			defer cancel()
			if err := pinger.Ping(ctx); err != nil {
				payload.GradingService = "unreachable"
				payload.GradingError = gradingclient.Message(err)
			} else {
				payload.GradingService = "reachable"
			}
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
