package controllers

import (
	"errors"
	"strings"

	"sktutorials_go/middleware"
	notifsvc "sktutorials_go/services/notifications"
	"sktutorials_go/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type NotificationController struct {
	service *notifsvc.Service
}

func NewNotificationController(service *notifsvc.Service) *NotificationController {
	if service == nil {
		service = notifsvc.NewService()
	}
	return &NotificationController{service: service}
}

func recipientOf(c *fiber.Ctx) (notifsvc.Recipient, error) {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return notifsvc.Recipient{}, err
	}
	return notifsvc.Recipient{UserID: claims.UserID, Role: claims.Role}, nil
}

// GetNotifications returns the caller's inbox: rows addressed to them and to their role.
func (nc *NotificationController) GetNotifications(c *fiber.Ctx) error {
	r, err := recipientOf(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	page, limit, offset := utils.Pagination(c, 10, 100)

	rows, total, err := nc.service.List(r, c.QueryBool("unread", false), offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch notifications",
		})
	}

	dtos := make([]utils.NotificationDTO, 0, len(rows))
	for _, n := range rows {
		dtos = append(dtos, utils.ToNotificationDTO(n))
	}
	return c.JSON(fiber.Map{
		"notifications": dtos,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// CreateNotification sends an announcement to roles and/or users (admin only)
func (nc *NotificationController) CreateNotification(c *fiber.Ctx) error {
	var req struct {
		Roles   []string `json:"roles"`
		UserIDs []uint   `json:"user_ids"`
		Title   string   `json:"title"`
		Message string   `json:"message"`
		Type    string   `json:"type"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title and message are required"})
	}
	for _, role := range req.Roles {
		if !utils.IsValidRole(role) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid role: " + role})
		}
	}

	n := notifsvc.New(req.Title, req.Message, req.Type, nil).ToRoles(req.Roles...).ToUsers(req.UserIDs...)
	if err := nc.service.EnqueueOrCreate(n); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	middleware.LogActivity(c, "CREATE", "notifications", 0, fiber.Map{
		"roles": req.Roles,
		"users": len(req.UserIDs),
		"title": req.Title,
	})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Notification queued"})
}

// MarkAsRead marks one notification as read
func (nc *NotificationController) MarkAsRead(c *fiber.Ctx) error {
	r, err := recipientOf(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	id, err := paramID(c, "id")
	if err != nil {
		return respondFeeError(c, err)
	}
	if err := nc.service.MarkRead(r, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Notification not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update notification"})
	}
	return c.JSON(fiber.Map{"message": "Notification marked as read"})
}

// MarkAllAsRead marks the whole inbox as read
func (nc *NotificationController) MarkAllAsRead(c *fiber.Ctx) error {
	r, err := recipientOf(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	n, err := nc.service.MarkAllRead(r)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update notifications"})
	}
	return c.JSON(fiber.Map{"message": "All notifications marked as read", "updated": n})
}
