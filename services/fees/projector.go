package fees

import (
	"strings"

	"github.com/shopspring/decimal"
)

type FeeStatus string

const (
	StatusPaid    FeeStatus = "Paid"
	StatusPartial FeeStatus = "Partial"
	StatusUnpaid  FeeStatus = "Unpaid"
)

// ParseStatus accepts a status name in any case. "" and "all" return ok with
// an empty status, meaning no filter.
func ParseStatus(s string) (FeeStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return "", true
	case "paid":
		return StatusPaid, true
	case "partial":
		return StatusPartial, true
	case "unpaid":
		return StatusUnpaid, true
	}
	return "", false
}

// DeriveStatus applies the status tie-break in order: nothing paid off the
// total is Unpaid (this includes a zero total), paid equal to total is Paid,
// a due strictly between zero and total is Partial, and anything else,
// which is only an overpayment, falls back to Unpaid.
func DeriveStatus(total, paid decimal.Decimal) FeeStatus {
	due := total.Sub(paid)
	switch {
	case due.Equal(total):
		return StatusUnpaid
	case paid.Equal(total):
		return StatusPaid
	case due.IsPositive() && due.LessThan(total):
		return StatusPartial
	default:
		return StatusUnpaid
	}
}

// Summary is the projected fee view of one student.
type Summary struct {
	StudentID    uint            `json:"student_id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Course       string          `json:"course"`
	Year         int             `json:"year"`
	TotalFee     decimal.Decimal `json:"total_fee"`
	PaidFee      decimal.Decimal `json:"paid_fee"`
	AmountDue    decimal.Decimal `json:"amount_due"`
	Status       FeeStatus       `json:"status"`
	LastPayment  string          `json:"last_payment,omitempty"`
	Installments int             `json:"installments"`
	// Overpaid marks a negative amount due. Status stays Unpaid for these.
	Overpaid bool `json:"overpaid"`
}

func Summarize(s Student) Summary {
	due := s.AmountDue()
	return Summary{
		StudentID:    s.ID,
		Name:         s.Name,
		Category:     s.Category,
		Course:       s.Course,
		Year:         s.Year,
		TotalFee:     s.TotalFee,
		PaidFee:      s.PaidFee,
		AmountDue:    due,
		Status:       DeriveStatus(s.TotalFee, s.PaidFee),
		LastPayment:  s.LastPayment,
		Installments: len(s.Installments),
		Overpaid:     due.IsNegative(),
	}
}

// Project summarises every student, keeping input order.
func Project(students []Student) []Summary {
	out := make([]Summary, 0, len(students))
	for _, s := range students {
		out = append(out, Summarize(s))
	}
	return out
}

type SummaryFilter struct {
	Search string
	Status FeeStatus
}

// FilterSummaries keeps summaries whose name, category or course contains
// Search (case-insensitive) and whose status matches Status when set.
func FilterSummaries(in []Summary, f SummaryFilter) []Summary {
	term := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]Summary, 0, len(in))
	for _, s := range in {
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(s.Name), term) &&
			!strings.Contains(strings.ToLower(s.Category), term) &&
			!strings.Contains(strings.ToLower(s.Course), term) {
			continue
		}
		out = append(out, s)
	}
	return out
}

type Totals struct {
	Students       int             `json:"students"`
	TotalFees      decimal.Decimal `json:"total_fees"`
	TotalCollected decimal.Decimal `json:"total_collected"`
	TotalPending   decimal.Decimal `json:"total_pending"`
	Paid           int             `json:"paid"`
	Partial        int             `json:"partial"`
	Unpaid         int             `json:"unpaid"`
}

// ComputeTotals sums the projected amounts. Pending is the plain sum of
// amount due, so an overpaid student lowers it.
func ComputeTotals(in []Summary) Totals {
	t := Totals{
		TotalFees:      decimal.Zero,
		TotalCollected: decimal.Zero,
		TotalPending:   decimal.Zero,
	}
	for _, s := range in {
		t.Students++
		t.TotalFees = t.TotalFees.Add(s.TotalFee)
		t.TotalCollected = t.TotalCollected.Add(s.PaidFee)
		t.TotalPending = t.TotalPending.Add(s.AmountDue)
		switch s.Status {
		case StatusPaid:
			t.Paid++
		case StatusPartial:
			t.Partial++
		default:
			t.Unpaid++
		}
	}
	return t
}
