package controllers

import (
	"sktutorials_go/middleware"
	"sktutorials_go/services"
	"sktutorials_go/utils"

	"github.com/gofiber/fiber/v2"
)

type AttendanceController struct {
	service *services.AttendanceService
}

func NewAttendanceController(service *services.AttendanceService) *AttendanceController {
	return &AttendanceController{service: service}
}

func attendanceFilter(c *fiber.Ctx) (services.AttendanceFilter, error) {
	studentID, err := queryUint(c, "student_id")
	if err != nil {
		return services.AttendanceFilter{}, err
	}
	return services.AttendanceFilter{
		Search:    c.Query("search"),
		StudentID: studentID,
		Status:    c.Query("status"),
		StartDate: c.Query("start_date"),
		EndDate:   c.Query("end_date"),
	}, nil
}

// GET /api/attendance
func (ac *AttendanceController) List(c *fiber.Ctx) error {
	f, err := attendanceFilter(c)
	if err != nil {
		return respondFeeError(c, err)
	}
	page, limit, offset := utils.Pagination(c, 50, 500)
	f.Offset, f.Limit = offset, limit

	records, total, err := ac.service.List(c.UserContext(), f)
	if err != nil {
		return respondFeeError(c, err)
	}
	return c.JSON(fiber.Map{
		"attendance": records,
		"pagination": fiber.Map{"page": page, "limit": limit, "total": total},
	})
}

// GET /api/attendance/summary
func (ac *AttendanceController) Summary(c *fiber.Ctx) error {
	f, err := attendanceFilter(c)
	if err != nil {
		return respondFeeError(c, err)
	}
	summary, err := ac.service.Summary(c.UserContext(), f)
	if err != nil {
		return respondFeeError(c, err)
	}
	return c.JSON(summary)
}

// POST /api/attendance
func (ac *AttendanceController) Record(c *fiber.Ctx) error {
	var in services.AttendanceInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	rec, err := ac.service.Record(c.UserContext(), in)
	if err != nil {
		return respondFeeError(c, err)
	}
	middleware.LogActivity(c, "CREATE", "attendance", rec.ID, fiber.Map{"student_id": rec.StudentID, "status": rec.Status})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"attendance": rec})
}

// POST /api/attendance/bulk
func (ac *AttendanceController) RecordBulk(c *fiber.Ctx) error {
	var in services.BulkAttendanceInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	recs, err := ac.service.RecordBulk(c.UserContext(), in)
	if err != nil {
		return respondFeeError(c, err)
	}
	middleware.LogActivity(c, "CREATE", "attendance", 0, fiber.Map{"date": in.Date, "count": len(recs)})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"attendance": recs, "count": len(recs)})
}

type PerformanceController struct {
	service *services.PerformanceService
}

func NewPerformanceController(service *services.PerformanceService) *PerformanceController {
	return &PerformanceController{service: service}
}

func performanceFilter(c *fiber.Ctx) (services.PerformanceFilter, error) {
	studentID, err := queryUint(c, "student_id")
	if err != nil {
		return services.PerformanceFilter{}, err
	}
	return services.PerformanceFilter{
		Search:    c.Query("search"),
		StudentID: studentID,
		Subject:   c.Query("subject"),
	}, nil
}

// GET /api/performance
func (pc *PerformanceController) List(c *fiber.Ctx) error {
	f, err := performanceFilter(c)
	if err != nil {
		return respondFeeError(c, err)
	}
	page, limit, offset := utils.Pagination(c, 50, 500)
	f.Offset, f.Limit = offset, limit

	records, total, err := pc.service.List(c.UserContext(), f)
	if err != nil {
		return respondFeeError(c, err)
	}
	return c.JSON(fiber.Map{
		"performance": records,
		"pagination":  fiber.Map{"page": page, "limit": limit, "total": total},
	})
}

// GET /api/performance/stats
func (pc *PerformanceController) Stats(c *fiber.Ctx) error {
	f, err := performanceFilter(c)
	if err != nil {
		return respondFeeError(c, err)
	}
	stats, err := pc.service.Stats(c.UserContext(), f)
	if err != nil {
		return respondFeeError(c, err)
	}
	return c.JSON(stats)
}

// POST /api/performance
func (pc *PerformanceController) Record(c *fiber.Ctx) error {
	var in services.PerformanceInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	rec, err := pc.service.Record(c.UserContext(), in)
	if err != nil {
		return respondFeeError(c, err)
	}
	middleware.LogActivity(c, "CREATE", "performance", rec.ID, fiber.Map{"student_id": rec.StudentID, "grade": rec.Grade})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"performance": rec})
}

type DashboardController struct {
	service *services.DashboardService
}

func NewDashboardController(service *services.DashboardService) *DashboardController {
	return &DashboardController{service: service}
}

// GET /api/dashboard
func (dc *DashboardController) Get(c *fiber.Ctx) error {
	report, err := dc.service.Report(c.UserContext())
	if err != nil {
		return respondFeeError(c, err)
	}
	return c.JSON(report)
}
