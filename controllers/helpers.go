package controllers

import (
	"strconv"
	"strings"

	"sktutorials_go/middleware"
	"sktutorials_go/services/fees"

	"github.com/gofiber/fiber/v2"
)

// Broadcaster pushes an event to every connected WebSocket client.
type Broadcaster interface {
	Broadcast(message interface{})
}

func broadcast(b Broadcaster, event string, data interface{}) {
	if b == nil {
		return
	}
	b.Broadcast(fiber.Map{"type": event, "data": data})
}

// paramID reads a positive numeric route parameter.
func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, &fees.ValidationError{Field: name, Message: "must be a positive integer"}
	}
	return uint(id), nil
}

// queryUint reads an optional numeric query value; empty means 0.
func queryUint(c *fiber.Ctx, name string) (uint, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, &fees.ValidationError{Field: name, Message: "must be a positive integer"}
	}
	return uint(v), nil
}

func currentUserID(c *fiber.Ctx) uint {
	if claims, err := middleware.GetCurrentClaims(c); err == nil {
		return claims.UserID
	}
	return 0
}
