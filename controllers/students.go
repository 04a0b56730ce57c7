package controllers

import (
	"strconv"

	"sktutorials_go/middleware"
	"sktutorials_go/services"
	"sktutorials_go/utils"

	"github.com/gofiber/fiber/v2"
)

type StudentController struct {
	service *services.StudentService
}

func NewStudentController(service *services.StudentService) *StudentController {
	if service == nil {
		service = services.NewStudentService()
	}
	return &StudentController{service: service}
}

// GetStudents returns students with pagination
func (sc *StudentController) GetStudents(c *fiber.Ctx) error {
	page, limit, offset := utils.Pagination(c, 20, 200)
	year, _ := strconv.Atoi(c.Query("year"))

	students, total, err := sc.service.List(c.UserContext(), services.StudentFilter{
		Search:   c.Query("search"),
		Category: c.Query("category"),
		Course:   c.Query("course"),
		Year:     year,
		Offset:   offset,
		Limit:    limit,
	})
	if err != nil {
		return respondFeeError(c, err)
	}

	return c.JSON(fiber.Map{
		"students": utils.ToStudentDTOs(students),
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetGroupedStudents groups students by category, course and year
func (sc *StudentController) GetGroupedStudents(c *fiber.Ctx) error {
	groups, err := sc.service.Grouped(c.UserContext(),
		c.Query("category", "All"), c.Query("course", "All"), c.Query("year", "All"))
	if err != nil {
		return respondFeeError(c, err)
	}
	return c.JSON(fiber.Map{"groups": groups})
}

// GetStudent returns a specific student by ID
func (sc *StudentController) GetStudent(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondFeeError(c, err)
	}
	student, err := sc.service.Get(c.UserContext(), id)
	if err != nil {
		return respondFeeError(c, err)
	}
	return c.JSON(fiber.Map{"student": utils.ToStudentDTO(*student)})
}

// CreateStudent adds a student
func (sc *StudentController) CreateStudent(c *fiber.Ctx) error {
	var input services.StudentInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	student, err := sc.service.Create(c.UserContext(), input)
	if err != nil {
		return respondFeeError(c, err)
	}
	middleware.LogActivity(c, "CREATE", "students", student.ID, fiber.Map{"name": student.Name})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Student created successfully",
		"student": utils.ToStudentDTO(*student),
	})
}

// UpdateStudent changes profile fields and the total fee
func (sc *StudentController) UpdateStudent(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondFeeError(c, err)
	}
	var input services.UpdateStudentInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	student, err := sc.service.Update(c.UserContext(), id, input)
	if err != nil {
		return respondFeeError(c, err)
	}
	middleware.LogActivity(c, "UPDATE", "students", id, fiber.Map{"total_fee_changed": input.TotalFee != nil})
	return c.JSON(fiber.Map{
		"message": "Student updated successfully",
		"student": utils.ToStudentDTO(*student),
	})
}

// DeleteStudent soft-deletes a student
func (sc *StudentController) DeleteStudent(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondFeeError(c, err)
	}
	if err := sc.service.Delete(c.UserContext(), id); err != nil {
		return respondFeeError(c, err)
	}
	middleware.LogActivity(c, "DELETE", "students", id, nil)
	return c.JSON(fiber.Map{"message": "Student deleted successfully"})
}
