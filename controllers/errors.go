package controllers

import (
	"errors"

	"sktutorials_go/services/fees"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// respondFeeError maps ledger errors onto HTTP responses. Store failures are
// logged and hidden behind a generic message.
func respondFeeError(c *fiber.Ctx, err error) error {
	var verr *fees.ValidationError
	var nf *fees.NotFoundError
	switch {
	case errors.As(err, &verr):
		body := fiber.Map{"error": verr.Error()}
		if verr.Field != "" {
			body["field"] = verr.Field
		}
		return c.Status(fiber.StatusBadRequest).JSON(body)
	case errors.As(err, &nf):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": nf.Error()})
	}

	logrus.WithError(err).WithFields(logrus.Fields{
		"method": c.Method(),
		"path":   c.Path(),
	}).Error("Request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
}
