package fees

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Service runs ledger operations against a Store.
type Service struct {
	store    Store
	validate *validator.Validate
	now      func() time.Time
	loc      *time.Location
}

type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the institute time zone used to decide "today".
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	s := &Service{
		store:    store,
		validate: v,
		now:      time.Now,
		loc:      time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today is the current calendar date in the institute time zone.
func (s *Service) Today() string {
	return s.now().In(s.loc).Format(DateLayout)
}

// Summaries projects every student, then filters. Totals cover the
// filtered rows only, matching what the list shows.
func (s *Service) Summaries(ctx context.Context, f SummaryFilter) ([]Summary, Totals, error) {
	students, err := s.store.ListStudents(ctx)
	if err != nil {
		return nil, Totals{}, err
	}
	rows := FilterSummaries(Project(students), f)
	return rows, ComputeTotals(rows), nil
}

func (s *Service) Summary(ctx context.Context, studentID uint) (Summary, error) {
	st, err := s.store.GetStudent(ctx, studentID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(st), nil
}

func (s *Service) Payments(ctx context.Context, f PaymentFilter) ([]Payment, int64, error) {
	if !validDate(f.StartDate) {
		return nil, 0, invalid("start_date", "expected YYYY-MM-DD")
	}
	if !validDate(f.EndDate) {
		return nil, 0, invalid("end_date", "expected YYYY-MM-DD")
	}
	return s.store.ListPayments(ctx, f)
}

// PaymentInput is a request to record one payment.
type PaymentInput struct {
	StudentID   uint            `json:"student_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"-"`
	Date        string          `json:"payment_date" validate:"omitempty,datetime=2006-01-02"`
	Method      PaymentMethod   `json:"payment_method" validate:"omitempty,oneof=cash card cheque upi"`
	Description string          `json:"description" validate:"max=1000"`
	RecordedBy  uint            `json:"-"`
}

// Receipt is the outcome of a recorded payment.
type Receipt struct {
	PaidFee   decimal.Decimal `json:"paid_fee"`
	AmountDue decimal.Decimal `json:"amount_due"`
	Status    FeeStatus       `json:"status"`
	Payment   Payment         `json:"payment"`
}

func (s *Service) validatePayment(in *PaymentInput) error {
	method, ok := ParsePaymentMethod(string(in.Method))
	if !ok {
		return invalid("payment_method", "must be one of cash, card, cheque, upi")
	}
	in.Method = method
	in.Date = strings.TrimSpace(in.Date)
	in.Description = strings.TrimSpace(in.Description)

	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return invalid(fe.Field(), "failed %q validation", fe.Tag())
		}
		return invalid("", "%v", err)
	}
	if !in.Amount.IsPositive() {
		return invalid("amount", "must be greater than zero")
	}
	if in.Date == "" {
		in.Date = s.Today()
	}
	return nil
}

// RecordPayment appends a ledger row and credits the student's paid fee in
// one transaction. The ledger row is written first; if either write fails
// neither is kept.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (Receipt, error) {
	if err := s.validatePayment(&in); err != nil {
		return Receipt{}, err
	}

	var receipt Receipt
	err := s.store.Transaction(ctx, func(tx Store) error {
		st, err := tx.LockStudent(ctx, in.StudentID)
		if err != nil {
			return err
		}

		p := Payment{
			StudentID:   st.ID,
			StudentName: st.Name,
			Amount:      in.Amount,
			PaymentDate: in.Date,
			Method:      in.Method,
			Description: in.Description,
			Status:      PaymentStatusPaid,
			ReceiptNo:   newReceiptNo(in.Date),
			RecordedBy:  in.RecordedBy,
		}
		if err := tx.InsertPayment(ctx, &p); err != nil {
			return err
		}

		paid := st.PaidFee.Add(in.Amount)
		status := DeriveStatus(st.TotalFee, paid)
		if err := tx.UpdatePaidFee(ctx, st.ID, paid, status, in.Date); err != nil {
			return err
		}

		receipt = Receipt{
			PaidFee:   paid,
			AmountDue: st.TotalFee.Sub(paid),
			Status:    status,
			Payment:   p,
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}

	logrus.WithFields(logrus.Fields{
		"student_id": in.StudentID,
		"amount":     in.Amount.String(),
		"method":     in.Method,
		"receipt_no": receipt.Payment.ReceiptNo,
		"paid_fee":   receipt.PaidFee.String(),
	}).Info("Payment recorded")
	return receipt, nil
}

func newReceiptNo(date string) string {
	compact := strings.ReplaceAll(date, "-", "")
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("RCPT-%s-%s", compact, id[:10])
}

func (s *Service) GetSchedule(ctx context.Context, studentID uint) (Schedule, error) {
	st, err := s.store.GetStudent(ctx, studentID)
	if err != nil {
		return Schedule{}, err
	}
	return ScheduleOf(st), nil
}

// editSchedule loads a student's plan under lock, applies edit and writes the
// normalised plan back in the same transaction.
func (s *Service) editSchedule(ctx context.Context, studentID uint, edit func(*Schedule) error) (Schedule, error) {
	if studentID == 0 {
		return Schedule{}, invalid("student_id", "is required")
	}
	var out Schedule
	err := s.store.Transaction(ctx, func(tx Store) error {
		st, err := tx.LockStudent(ctx, studentID)
		if err != nil {
			return err
		}
		sched := ScheduleOf(st)
		if err := edit(&sched); err != nil {
			return err
		}
		sched.Normalize()
		if err := tx.SaveSchedule(ctx, sched, DeriveStatus(sched.TotalFee, sched.PaidFee)); err != nil {
			return err
		}
		out = sched
		return nil
	})
	if err != nil {
		return Schedule{}, err
	}
	logrus.WithFields(logrus.Fields{
		"student_id":   studentID,
		"installments": out.Count(),
		"paid_fee":     out.PaidFee.String(),
	}).Info("Installment schedule saved")
	return out, nil
}

func (s *Service) SetInstallmentCount(ctx context.Context, studentID uint, n int) (Schedule, error) {
	return s.editSchedule(ctx, studentID, func(sched *Schedule) error {
		sched.SetInstallmentCount(n)
		return nil
	})
}

func (s *Service) UpdateInstallment(ctx context.Context, studentID uint, index int, p InstallmentPatch) (Schedule, error) {
	return s.editSchedule(ctx, studentID, func(sched *Schedule) error {
		return sched.Apply(index, p)
	})
}

func (s *Service) AddInstallmentSlot(ctx context.Context, studentID uint) (Schedule, error) {
	return s.editSchedule(ctx, studentID, func(sched *Schedule) error {
		sched.AddInstallmentSlot()
		return nil
	})
}

func (s *Service) ReplaceSchedule(ctx context.Context, studentID uint, installments []Installment) (Schedule, error) {
	return s.editSchedule(ctx, studentID, func(sched *Schedule) error {
		return sched.Replace(installments)
	})
}

// DueToday lists students with an installment due today and money owed.
func (s *Service) DueToday(ctx context.Context) ([]Student, error) {
	students, err := s.store.ListStudents(ctx)
	if err != nil {
		return nil, err
	}
	return SelectDueToday(students, s.Today()), nil
}
