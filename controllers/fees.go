package controllers

import (
	"errors"
	"io"
	"strings"

	"sktutorials_go/config"
	"sktutorials_go/middleware"
	"sktutorials_go/services"
	"sktutorials_go/services/fees"
	"sktutorials_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// FeesController serves fee summaries, the payment ledger and reminders.
type FeesController struct {
	fees      *fees.Service
	reminders *services.FeeReminderService
	importer  *services.PaymentImporter
	hub       Broadcaster
}

func NewFeesController(feeSvc *fees.Service, reminders *services.FeeReminderService, importer *services.PaymentImporter, hub Broadcaster) *FeesController {
	return &FeesController{fees: feeSvc, reminders: reminders, importer: importer, hub: hub}
}

type recordPaymentRequest struct {
	StudentID     uint            `json:"student_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   string          `json:"payment_date"`
	PaymentMethod string          `json:"payment_method"`
	Description   string          `json:"description"`
}

// GET /api/fees/summaries?search=&status=
func (fc *FeesController) GetSummaries(c *fiber.Ctx) error {
	filter := fees.SummaryFilter{Search: c.Query("search")}
	if raw := c.Query("status"); raw != "" {
		status, ok := fees.ParseStatus(raw)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "status must be one of All, Paid, Partial, Unpaid",
				"field": "status",
			})
		}
		filter.Status = status
	}

	summaries, totals, err := fc.fees.Summaries(c.UserContext(), filter)
	if err != nil {
		return respondFeeError(c, err)
	}
	return c.JSON(fiber.Map{
		"summaries": summaries,
		"totals":    totals,
	})
}

// GET /api/fees/summaries/:id
func (fc *FeesController) GetSummary(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondFeeError(c, err)
	}
	summary, err := fc.fees.Summary(c.UserContext(), id)
	if err != nil {
		return respondFeeError(c, err)
	}
	return c.JSON(fiber.Map{"summary": summary})
}

// GET /api/fees/payments
func (fc *FeesController) GetPayments(c *fiber.Ctx) error {
	studentID, err := queryUint(c, "student_id")
	if err != nil {
		return respondFeeError(c, err)
	}
	filter := fees.PaymentFilter{
		StudentID: studentID,
		StartDate: c.Query("start_date"),
		EndDate:   c.Query("end_date"),
	}
	if raw := c.Query("method"); raw != "" {
		m, ok := fees.ParsePaymentMethod(raw)
		if !ok {
			return respondFeeError(c, &fees.ValidationError{Field: "method", Message: "must be one of cash, card, cheque, upi"})
		}
		filter.Method = m
	}
	page, limit, offset := utils.Pagination(c, 20, 100)
	filter.Offset, filter.Limit = offset, limit

	payments, total, err := fc.fees.Payments(c.UserContext(), filter)
	if err != nil {
		return respondFeeError(c, err)
	}
	return c.JSON(fiber.Map{
		"payments": payments,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// POST /api/fees/payments
func (fc *FeesController) RecordPayment(c *fiber.Ctx) error {
	var req recordPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	receipt, err := fc.fees.RecordPayment(c.UserContext(), fees.PaymentInput{
		StudentID:   req.StudentID,
		Amount:      req.Amount,
		Date:        req.PaymentDate,
		Method:      fees.PaymentMethod(req.PaymentMethod),
		Description: req.Description,
		RecordedBy:  currentUserID(c),
	})
	if err != nil {
		return respondFeeError(c, err)
	}

	broadcast(fc.hub, "fees.updated", fiber.Map{
		"student_id": receipt.Payment.StudentID,
		"paid_fee":   receipt.PaidFee,
		"amount_due": receipt.AmountDue,
		"status":     receipt.Status,
	})
	middleware.LogActivity(c, "CREATE", "payments", receipt.Payment.ID, fiber.Map{
		"student_id": receipt.Payment.StudentID,
		"amount":     receipt.Payment.Amount.String(),
		"receipt_no": receipt.Payment.ReceiptNo,
	})

	return c.Status(fiber.StatusCreated).JSON(receipt)
}

// POST /api/fees/payments/import (multipart field: file)
func (fc *FeesController) ImportPayments(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required"})
	}
	allowed := []string{"csv", "xlsx"}
	if config.AppConfig != nil && config.AppConfig.AllowedExtensions != "" {
		allowed = strings.Split(config.AppConfig.AllowedExtensions, ",")
	}
	if !utils.IsValidFileExtension(fh.Filename, allowed) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": services.ErrUnsupportedImport.Error()})
	}
	if config.AppConfig != nil && config.AppConfig.MaxFileSize > 0 && fh.Size > config.AppConfig.MaxFileSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "file too large"})
	}

	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot open file"})
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot read file"})
	}

	report, err := fc.importer.Import(c.UserContext(), utils.SanitizeString(fh.Filename), data, currentUserID(c))
	switch {
	case err == nil:
	case fees.IsStore(err) && report.Aborted():
		// partial report below; rows listed in Receipts are committed
	case fees.IsStore(err) || fees.IsValidation(err):
		return respondFeeError(c, err)
	default:
		// unreadable or empty spreadsheet
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if report.Imported > 0 {
		broadcast(fc.hub, "fees.updated", fiber.Map{"imported": report.Imported})
	}
	middleware.LogActivity(c, "IMPORT", "payments", 0, fiber.Map{
		"file_name":  report.FileName,
		"imported":   report.Imported,
		"duplicates": report.Duplicates,
		"errors":     len(report.Errors),
		"aborted_at": report.AbortedAtRow,
	})
	if report.Aborted() {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":  "Import stopped part-way; see report for the rows already recorded",
			"report": report,
		})
	}
	return c.JSON(report)
}

// GET /api/fees/due-today
func (fc *FeesController) GetDueToday(c *fiber.Ctx) error {
	due, err := fc.reminders.Preview(c.UserContext())
	if err != nil {
		return respondFeeError(c, err)
	}
	return c.JSON(fiber.Map{
		"date":     fc.fees.Today(),
		"count":    len(due),
		"students": due,
	})
}

// POST /api/fees/reminders/send?force=true
func (fc *FeesController) SendReminders(c *fiber.Ctx) error {
	force := c.QueryBool("force", false)
	report, err := fc.reminders.Run(c.UserContext(), force)
	if err != nil {
		if errors.Is(err, services.ErrReminderRunning) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		return respondFeeError(c, err)
	}

	broadcast(fc.hub, "reminders.sent", report)
	middleware.LogActivity(c, "SEND", "fee_reminders", 0, fiber.Map{
		"force":    force,
		"selected": report.Selected,
		"sent":     report.Sent,
		"failed":   len(report.Failed),
	})
	return c.JSON(report)
}
