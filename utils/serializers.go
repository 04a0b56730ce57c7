package utils

import (
	"strconv"
	"strings"
	"time"

	"sktutorials_go/models"
	"sktutorials_go/services/fees"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const dateLayout = "2006-01-02"

// Compact representations used across APIs
type Sender struct {
	Type string `json:"type"` // "system" or "user"
	Name string `json:"name,omitempty"`
}

type Recipient struct {
	Type string `json:"type"` // "user" or "role"
	ID   uint   `json:"id,omitempty"`
	Role string `json:"role,omitempty"`
}

type NotificationDTO struct {
	ID        uint        `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	Title     string      `json:"title"`
	Message   string      `json:"message"`
	Type      string      `json:"type"`
	Data      models.JSON `json:"data,omitempty"`
	Read      bool        `json:"read"`
	ReadAt    *time.Time  `json:"read_at,omitempty"`
	Sender    Sender      `json:"sender"`
	Recipient Recipient   `json:"recipient"`
}

// ToNotificationDTO maps a models.Notification to the compact DTO.
func ToNotificationDTO(n models.Notification) NotificationDTO {
	recipient := Recipient{Type: "role", Role: n.Role}
	if n.UserID != nil {
		recipient = Recipient{Type: "user", ID: *n.UserID}
	}

	return NotificationDTO{
		ID:        n.ID,
		CreatedAt: n.CreatedAt,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		Data:      n.Data,
		Read:      n.Read,
		ReadAt:    n.ReadAt,
		// notifications are only raised by background jobs today
		Sender:    Sender{Type: "system", Name: "Notification Service"},
		Recipient: recipient,
	}
}

// StudentDTO is a student with the fee projection applied. The stored
// fee_status column is ignored.
type StudentDTO struct {
	ID             uint            `json:"id"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Course         string          `json:"course"`
	Year           int             `json:"year"`
	Semester       *int            `json:"semester,omitempty"`
	Email          string          `json:"email,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	LineLinked     bool            `json:"line_linked"`
	EnrollmentDate string          `json:"enrollment_date,omitempty"`
	Birthday       string          `json:"birthday,omitempty"`
	Subjects       []string        `json:"subjects"`
	TotalFee       decimal.Decimal `json:"total_fee"`
	PaidFee        decimal.Decimal `json:"paid_fee"`
	AmountDue      decimal.Decimal `json:"amount_due"`
	FeeStatus      fees.FeeStatus  `json:"fee_status"`
	Installments   int             `json:"installments"`
	LastPayment    string          `json:"last_payment,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func ToStudentDTO(s models.Student) StudentDTO {
	total := nullToZero(s.TotalFee)
	paid := nullToZero(s.PaidFee)
	subjects := []string{}
	for _, sub := range strings.Split(s.Subjects, ",") {
		if sub = strings.TrimSpace(sub); sub != "" {
			subjects = append(subjects, sub)
		}
	}
	return StudentDTO{
		ID:             s.ID,
		Name:           s.Name,
		Category:       s.Category,
		Course:         s.Course,
		Year:           s.Year,
		Semester:       s.Semester,
		Email:          s.Email,
		Phone:          s.Phone,
		LineLinked:     s.LineUserID != "",
		EnrollmentDate: FormatDate(s.EnrollmentDate),
		Birthday:       FormatDate(s.Birthday),
		Subjects:       subjects,
		TotalFee:       total,
		PaidFee:        paid,
		AmountDue:      total.Sub(paid),
		FeeStatus:      fees.DeriveStatus(total, paid),
		Installments:   s.Installments,
		LastPayment:    FormatDate(s.LastPayment),
		CreatedAt:      s.CreatedAt,
	}
}

func ToStudentDTOs(in []models.Student) []StudentDTO {
	out := make([]StudentDTO, 0, len(in))
	for _, s := range in {
		out = append(out, ToStudentDTO(s))
	}
	return out
}

// GroupedStudents is category -> course -> year -> students.
type GroupedStudents map[string]map[string]map[string][]StudentDTO

// GroupStudents groups students by category, course and year. A filter of
// "All" or "" matches everything.
func GroupStudents(students []StudentDTO, category, course, year string) GroupedStudents {
	groups := GroupedStudents{}
	for _, s := range students {
		y := strconv.Itoa(s.Year)
		if !matchesFilter(category, s.Category) || !matchesFilter(course, s.Course) || !matchesFilter(year, y) {
			continue
		}
		if groups[s.Category] == nil {
			groups[s.Category] = map[string]map[string][]StudentDTO{}
		}
		if groups[s.Category][s.Course] == nil {
			groups[s.Category][s.Course] = map[string][]StudentDTO{}
		}
		groups[s.Category][s.Course][y] = append(groups[s.Category][s.Course][y], s)
	}
	return groups
}

func matchesFilter(filter, value string) bool {
	return filter == "" || filter == "All" || filter == value
}

func FormatDate(d *datatypes.Date) string {
	if d == nil {
		return ""
	}
	return time.Time(*d).Format(dateLayout)
}

func nullToZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}
