package controllers

import (
	"strconv"

	"sktutorials_go/middleware"
	"sktutorials_go/services/fees"

	"github.com/gofiber/fiber/v2"
)

// InstallmentController edits a student's installment schedule.
type InstallmentController struct {
	fees *fees.Service
	hub  Broadcaster
}

func NewInstallmentController(feeSvc *fees.Service, hub Broadcaster) *InstallmentController {
	return &InstallmentController{fees: feeSvc, hub: hub}
}

type replaceScheduleRequest struct {
	Installments []fees.Installment `json:"installments"`
}

type installmentCountRequest struct {
	Count int `json:"count"`
}

// respond sends the saved schedule together with the re-projected summary.
func (ic *InstallmentController) respond(c *fiber.Ctx, id uint, sched fees.Schedule, action string) error {
	summary, err := ic.fees.Summary(c.UserContext(), id)
	if err != nil {
		return respondFeeError(c, err)
	}
	broadcast(ic.hub, "fees.updated", fiber.Map{
		"student_id": id,
		"paid_fee":   summary.PaidFee,
		"amount_due": summary.AmountDue,
		"status":     summary.Status,
	})
	middleware.LogActivity(c, "UPDATE", "installments", id, fiber.Map{
		"action":       action,
		"installments": sched.Count(),
		"paid_fee":     sched.PaidFee.String(),
	})
	return c.JSON(fiber.Map{
		"schedule": sched,
		"summary":  summary,
	})
}

// GET /api/students/:id/installments
func (ic *InstallmentController) GetSchedule(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondFeeError(c, err)
	}
	sched, err := ic.fees.GetSchedule(c.UserContext(), id)
	if err != nil {
		return respondFeeError(c, err)
	}
	return c.JSON(fiber.Map{"schedule": sched})
}

// PUT /api/students/:id/installments
func (ic *InstallmentController) ReplaceSchedule(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondFeeError(c, err)
	}
	var req replaceScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	sched, err := ic.fees.ReplaceSchedule(c.UserContext(), id, req.Installments)
	if err != nil {
		return respondFeeError(c, err)
	}
	return ic.respond(c, id, sched, "replace")
}

// POST /api/students/:id/installments/count
func (ic *InstallmentController) SetCount(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondFeeError(c, err)
	}
	var req installmentCountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	sched, err := ic.fees.SetInstallmentCount(c.UserContext(), id, req.Count)
	if err != nil {
		return respondFeeError(c, err)
	}
	return ic.respond(c, id, sched, "count")
}

// POST /api/students/:id/installments/slots
func (ic *InstallmentController) AddSlot(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondFeeError(c, err)
	}
	sched, err := ic.fees.AddInstallmentSlot(c.UserContext(), id)
	if err != nil {
		return respondFeeError(c, err)
	}
	return ic.respond(c, id, sched, "add_slot")
}

// PATCH /api/students/:id/installments/:index
func (ic *InstallmentController) UpdateInstallment(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondFeeError(c, err)
	}
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return respondFeeError(c, &fees.ValidationError{Field: "index", Message: "must be an integer"})
	}
	var patch fees.InstallmentPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	sched, err := ic.fees.UpdateInstallment(c.UserContext(), id, index, patch)
	if err != nil {
		return respondFeeError(c, err)
	}
	return ic.respond(c, id, sched, "update")
}
