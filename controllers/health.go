package controllers

import (
	"time"

	"sktutorials_go/services"

	"github.com/gofiber/fiber/v2"
)

type HealthController struct {
	service *services.HealthService
	started time.Time
}

func NewHealthController(service *services.HealthService) *HealthController {
	if service == nil {
		service = services.NewHealthService("", "")
	}
	return &HealthController{service: service, started: time.Now()}
}

// GetHealthStatus returns dependency checks plus today's ledger snapshot.
// Only a dead database turns the response into a 503.
func (hc *HealthController) GetHealthStatus(c *fiber.Ctx) error {
	report := hc.service.GetHealthReport()
	return c.Status(hc.service.HTTPStatusForOverall(report.Status)).JSON(report)
}

// GetLiveness answers without touching any dependency, for container probes.
func (hc *HealthController) GetLiveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":         "alive",
		"uptime_seconds": int64(time.Since(hc.started).Seconds()),
	})
}
