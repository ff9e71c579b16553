package controller

import (
	"ai-docchat-be/internal/metrics"

	"github.com/gofiber/fiber/v2"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type IHealthController interface {
	RegisterRoutes(r fiber.Router)
	Health(ctx *fiber.Ctx) error
}

type healthController struct {
	version string
}

func NewHealthController(version string) IHealthController {
	return &healthController{version: version}
}

func (c *healthController) RegisterRoutes(r fiber.Router) {
	r.Get("/health", c.Health)
	r.Get("/metrics", metrics.Handler())
}

func (c *healthController) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(HealthResponse{Status: "healthy", Version: c.version})
}
