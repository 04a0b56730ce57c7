package fees

import (
	"github.com/shopspring/decimal"
)

const (
	MinInstallments = 1
	MaxInstallments = 24
)

// Schedule is a student's ordered installment plan. Once a student is billed
// by installments the amounts are the only source of PaidFee.
type Schedule struct {
	StudentID    uint            `json:"student_id"`
	TotalFee     decimal.Decimal `json:"total_fee"`
	PaidFee      decimal.Decimal `json:"paid_fee"`
	Installments []Installment   `json:"installments"`
}

// ScheduleOf copies the installment plan out of a student record.
func ScheduleOf(s Student) Schedule {
	return Schedule{
		StudentID:    s.ID,
		TotalFee:     s.TotalFee,
		PaidFee:      s.PaidFee,
		Installments: cloneInstallments(s.Installments),
	}
}

// Count is the number of installment slots.
func (s *Schedule) Count() int { return len(s.Installments) }

// Sum adds up every installment amount.
func (s *Schedule) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, in := range s.Installments {
		sum = sum.Add(in.Amount)
	}
	return sum
}

// SetInstallmentCount resizes the plan to n slots, n clamped to [1, 24], and
// gives every slot an equal share of the total fee rounded to cents. The
// rounding remainder is not redistributed. Dates and descriptions survive
// for indices that still exist; new slots start empty.
func (s *Schedule) SetInstallmentCount(n int) {
	if n < MinInstallments {
		n = MinInstallments
	}
	if n > MaxInstallments {
		n = MaxInstallments
	}
	share := s.TotalFee.Div(decimal.NewFromInt(int64(n))).Round(2)

	next := make([]Installment, n)
	for i := range next {
		if i < len(s.Installments) {
			next[i] = s.Installments[i]
		}
		next[i].Amount = share
	}
	s.Installments = next
	s.PaidFee = s.Sum()
}

func (s *Schedule) checkIndex(i int) error {
	if i < 0 || i >= len(s.Installments) {
		return invalid("index", "installment %d out of range [0, %d)", i, len(s.Installments))
	}
	return nil
}

// SetInstallmentAmount overwrites one slot and recomputes PaidFee.
func (s *Schedule) SetInstallmentAmount(i int, amount decimal.Decimal) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	if amount.IsNegative() {
		return invalid("amount", "must not be negative")
	}
	s.Installments[i].Amount = amount
	s.PaidFee = s.Sum()
	return nil
}

func (s *Schedule) SetInstallmentDate(i int, date string) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	if !validDate(date) {
		return invalid("date", "expected YYYY-MM-DD, got %q", date)
	}
	s.Installments[i].Date = date
	return nil
}

func (s *Schedule) SetInstallmentDueDate(i int, date string) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	if !validDate(date) {
		return invalid("due_date", "expected YYYY-MM-DD, got %q", date)
	}
	s.Installments[i].DueDate = date
	return nil
}

func (s *Schedule) SetInstallmentDescription(i int, text string) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	s.Installments[i].Description = text
	return nil
}

// AddInstallmentSlot appends an empty zero-amount slot. Unlike
// SetInstallmentCount it does not stop at 24.
func (s *Schedule) AddInstallmentSlot() {
	s.Installments = append(s.Installments, Installment{Amount: decimal.Zero})
}

// Replace swaps in a whole new plan after checking every slot.
func (s *Schedule) Replace(in []Installment) error {
	if len(in) == 0 {
		return invalid("installments", "at least one installment is required")
	}
	for i, slot := range in {
		if slot.Amount.IsNegative() {
			return invalid("installments", "amount of installment %d must not be negative", i)
		}
		if !validDate(slot.Date) {
			return invalid("installments", "date of installment %d: expected YYYY-MM-DD, got %q", i, slot.Date)
		}
		if !validDate(slot.DueDate) {
			return invalid("installments", "due date of installment %d: expected YYYY-MM-DD, got %q", i, slot.DueDate)
		}
	}
	s.Installments = cloneInstallments(in)
	s.PaidFee = s.Sum()
	return nil
}

// Normalize prepares the plan for writing: PaidFee is recomputed from the
// amounts one last time. Stores write empty dates as NULL and the count as
// len(Installments).
func (s *Schedule) Normalize() {
	if s.Installments == nil {
		s.Installments = []Installment{}
	}
	s.PaidFee = s.Sum()
}

// InstallmentPatch updates one slot. Nil fields are left alone.
type InstallmentPatch struct {
	Amount      *decimal.Decimal `json:"amount"`
	Date        *string          `json:"date"`
	Description *string          `json:"description"`
	DueDate     *string          `json:"due_date"`
}

func (s *Schedule) Apply(i int, p InstallmentPatch) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	if p.Amount != nil {
		if err := s.SetInstallmentAmount(i, *p.Amount); err != nil {
			return err
		}
	}
	if p.Date != nil {
		if err := s.SetInstallmentDate(i, *p.Date); err != nil {
			return err
		}
	}
	if p.DueDate != nil {
		if err := s.SetInstallmentDueDate(i, *p.DueDate); err != nil {
			return err
		}
	}
	if p.Description != nil {
		if err := s.SetInstallmentDescription(i, *p.Description); err != nil {
			return err
		}
	}
	return nil
}
