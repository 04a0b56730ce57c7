package controllers

import (
	"errors"

	"sktutorials_go/middleware"
	"sktutorials_go/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type SettingsController struct {
	service *services.SettingsService
}

func NewSettingsController() *SettingsController {
	return &SettingsController{service: services.NewSettingsService()}
}

// GET /api/settings
func (sc *SettingsController) GetSettings(c *fiber.Ctx) error {
	settings, err := sc.service.GetOrCreate(c.UserContext())
	if err != nil {
		return handleSettingsError(c, err)
	}
	return c.JSON(fiber.Map{"settings": sc.service.BuildDTO(settings)})
}

// PUT /api/settings
func (sc *SettingsController) UpdateSettings(c *fiber.Ctx) error {
	var input services.UpdateSettingsInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	settings, err := sc.service.Update(c.UserContext(), input)
	if err != nil {
		return handleSettingsError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "settings", settings.ID, fiber.Map{
		"reminders_enabled": settings.RemindersEnabled,
	})
	return c.JSON(fiber.Map{
		"message":  "Settings updated",
		"settings": sc.service.BuildDTO(settings),
	})
}

func handleSettingsError(c *fiber.Ctx, err error) error {
	if err == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Unknown settings error"})
	}

	if errors.Is(err, services.ErrSettingsValidation) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var internal *services.SettingsInternalError
	if errors.As(err, &internal) {
		logrus.WithError(internal.Err).WithField("code", internal.Code).Error("Settings operation failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update settings", "code": internal.Code})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update settings"})
}
