// Package fees holds the fee ledger: status projection, payment recording,
// installment scheduling and due-reminder selection.
package fees

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used across the ledger. An empty
// string stands for "no date".
const DateLayout = "2006-01-02"

type PaymentMethod string

const (
	MethodCash   PaymentMethod = "cash"
	MethodCard   PaymentMethod = "card"
	MethodCheque PaymentMethod = "cheque"
	MethodUPI    PaymentMethod = "upi"
)

// PaymentStatusPaid is the only status a ledger row is written with.
const PaymentStatusPaid = "Paid"

// ParsePaymentMethod normalises user input. Empty input means cash.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch PaymentMethod(strings.ToLower(strings.TrimSpace(s))) {
	case "", MethodCash:
		return MethodCash, true
	case MethodCard:
		return MethodCard, true
	case MethodCheque:
		return MethodCheque, true
	case MethodUPI:
		return MethodUPI, true
	}
	return "", false
}

// Student is the fee view of a student record. Absent fee columns are zero.
type Student struct {
	ID           uint            `json:"id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Course       string          `json:"course"`
	Year         int             `json:"year"`
	Phone        string          `json:"phone"`
	LineUserID   string          `json:"line_user_id,omitempty"`
	TotalFee     decimal.Decimal `json:"total_fee"`
	PaidFee      decimal.Decimal `json:"paid_fee"`
	LastPayment  string          `json:"last_payment,omitempty"`
	Installments []Installment   `json:"installments"`
}

// AmountDue is total minus paid. It is negative for an overpaid student.
func (s Student) AmountDue() decimal.Decimal {
	return s.TotalFee.Sub(s.PaidFee)
}

// Installment is one slot of a schedule.
type Installment struct {
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	DueDate     string          `json:"due_date"`
}

// Payment is a ledger entry.
type Payment struct {
	ID          uint            `json:"id"`
	StudentID   uint            `json:"student_id"`
	StudentName string          `json:"student_name"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate string          `json:"payment_date"`
	Method      PaymentMethod   `json:"payment_method"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	ReceiptNo   string          `json:"receipt_no"`
	RecordedBy  uint            `json:"recorded_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

// PaymentFilter narrows a ledger listing. Zero values mean "any".
type PaymentFilter struct {
	StudentID uint
	Method    PaymentMethod
	StartDate string
	EndDate   string
	Offset    int
	Limit     int
}

// validDate reports whether s is empty or a YYYY-MM-DD calendar date.
func validDate(s string) bool {
	if s == "" {
		return true
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

func cloneInstallments(in []Installment) []Installment {
	if in == nil {
		return nil
	}
	out := make([]Installment, len(in))
	copy(out, in)
	return out
}
