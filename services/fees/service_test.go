package fees

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 10, 8, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, students ...Student) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	for _, s := range students {
		store.AddStudent(s)
	}
	return NewService(store, WithClock(func() time.Time { return fixedNow }), WithLocation(time.UTC)), store
}

func payments(t *testing.T, svc *Service, studentID uint) []Payment {
	t.Helper()
	rows, total, err := svc.Payments(context.Background(), PaymentFilter{StudentID: studentID})
	require.NoError(t, err)
	require.Equal(t, int64(len(rows)), total)
	return rows
}

func TestRecordPaymentAccumulates(t *testing.T) {
	svc, store := newTestService(t, Student{ID: 1, Name: "Neha", TotalFee: d("3000")})
	ctx := context.Background()

	first, err := svc.RecordPayment(ctx, PaymentInput{StudentID: 1, Amount: d("1000"), Method: MethodUPI})
	require.NoError(t, err)
	assert.True(t, first.PaidFee.Equal(d("1000")))
	assert.Equal(t, StatusPartial, first.Status)

	second, err := svc.RecordPayment(ctx, PaymentInput{StudentID: 1, Amount: d("500"), Date: "2025-06-01"})
	require.NoError(t, err)
	assert.True(t, second.PaidFee.Equal(d("1500")), "paid = %s", second.PaidFee)
	assert.True(t, second.AmountDue.Equal(d("1500")))

	st, err := store.GetStudent(ctx, 1)
	require.NoError(t, err)
	assert.True(t, st.PaidFee.Equal(d("1500")))
	assert.Equal(t, "2025-06-01", st.LastPayment)
	assert.Equal(t, StatusPartial, store.StoredStatus(1))

	rows := payments(t, svc, 1)
	require.Len(t, rows, 2)
	assert.Equal(t, "2025-06-10", rows[0].PaymentDate)
	assert.Equal(t, MethodUPI, rows[0].Method)
	assert.Equal(t, "Neha", rows[0].StudentName)
	assert.Equal(t, PaymentStatusPaid, rows[0].Status)
	assert.NotEqual(t, rows[0].ReceiptNo, rows[1].ReceiptNo)
}

func TestRecordPaymentWritesOneLedgerRow(t *testing.T) {
	svc, _ := newTestService(t, Student{ID: 4, Name: "Om", TotalFee: d("800")})

	receipt, err := svc.RecordPayment(context.Background(), PaymentInput{StudentID: 4, Amount: d("800"), Description: "  full fee  "})
	require.NoError(t, err)

	assert.Equal(t, StatusPaid, receipt.Status)
	assert.True(t, receipt.AmountDue.IsZero())
	assert.Equal(t, MethodCash, receipt.Payment.Method)
	assert.Equal(t, "full fee", receipt.Payment.Description)
	assert.True(t, strings.HasPrefix(receipt.Payment.ReceiptNo, "RCPT-20250610-"), receipt.Payment.ReceiptNo)
	assert.Len(t, payments(t, svc, 4), 1)
}

func TestRecordPaymentRejectsInput(t *testing.T) {
	tests := []struct {
		name  string
		in    PaymentInput
		field string
	}{
		{name: "zero amount", in: PaymentInput{StudentID: 1, Amount: d("0")}, field: "amount"},
		{name: "negative amount", in: PaymentInput{StudentID: 1, Amount: d("-10")}, field: "amount"},
		{name: "missing student", in: PaymentInput{Amount: d("10")}, field: "student_id"},
		{name: "bad method", in: PaymentInput{StudentID: 1, Amount: d("10"), Method: "bitcoin"}, field: "payment_method"},
		{name: "bad date", in: PaymentInput{StudentID: 1, Amount: d("10"), Date: "10/06/2025"}, field: "payment_date"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			svc, store := newTestService(t, Student{ID: 1, Name: "Isha", TotalFee: d("1000"), PaidFee: d("200")})

			_, err := svc.RecordPayment(context.Background(), tc.in)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tc.field, verr.Field)
			st, _ := store.GetStudent(context.Background(), 1)
			assert.True(t, st.PaidFee.Equal(d("200")))
			assert.Empty(t, payments(t, svc, 1))
		})
	}
}

func TestRecordPaymentUnknownStudent(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.RecordPayment(context.Background(), PaymentInput{StudentID: 99, Amount: d("100")})

	assert.True(t, IsNotFound(err), "got %v", err)
	assert.Empty(t, payments(t, svc, 0))
}

func TestRecordPaymentRollsBack(t *testing.T) {
	boom := errors.New("disk full")
	tests := []struct {
		name   string
		inject func(*MemoryStore)
	}{
		{name: "ledger insert fails", inject: func(m *MemoryStore) { m.InsertPaymentErr = boom }},
		{name: "paid fee update fails", inject: func(m *MemoryStore) { m.UpdatePaidFeeErr = boom }},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			svc, store := newTestService(t, Student{ID: 2, Name: "Arjun", TotalFee: d("1000"), PaidFee: d("100")})
			tc.inject(store)

			_, err := svc.RecordPayment(context.Background(), PaymentInput{StudentID: 2, Amount: d("300")})

			require.Error(t, err)
			assert.True(t, IsStore(err))
			assert.ErrorIs(t, err, boom)

			store.InsertPaymentErr, store.UpdatePaidFeeErr = nil, nil
			st, _ := store.GetStudent(context.Background(), 2)
			assert.True(t, st.PaidFee.Equal(d("100")), "paid = %s", st.PaidFee)
			assert.Empty(t, payments(t, svc, 2))
		})
	}
}

func TestScheduleOperationsPersist(t *testing.T) {
	svc, store := newTestService(t, Student{ID: 3, Name: "Tara", TotalFee: d("1200")})
	ctx := context.Background()

	sched, err := svc.SetInstallmentCount(ctx, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, sched.Count())
	assert.Equal(t, StatusPaid, store.StoredStatus(3))
	assert.Equal(t, 3, store.StoredInstallmentCount(3))

	amount := d("0")
	due := "2025-06-10"
	sched, err = svc.UpdateInstallment(ctx, 3, 2, InstallmentPatch{Amount: &amount, DueDate: &due})
	require.NoError(t, err)
	assert.True(t, sched.PaidFee.Equal(d("800")))
	assert.Equal(t, StatusPartial, store.StoredStatus(3))

	sched, err = svc.AddInstallmentSlot(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, sched.Count())
	assert.Equal(t, 4, store.StoredInstallmentCount(3))

	stored, err := svc.GetSchedule(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Count())
	assert.Equal(t, due, stored.Installments[2].DueDate)
	assert.True(t, stored.PaidFee.Equal(d("800")))

	summary, err := svc.Summary(ctx, 3)
	require.NoError(t, err)
	assert.True(t, summary.AmountDue.Equal(d("400")))
}

func TestScheduleEditFailureLeavesPlanAlone(t *testing.T) {
	svc, store := newTestService(t, Student{ID: 5, Name: "Dev", TotalFee: d("600")})
	ctx := context.Background()
	_, err := svc.SetInstallmentCount(ctx, 5, 2)
	require.NoError(t, err)

	_, err = svc.UpdateInstallment(ctx, 5, 7, InstallmentPatch{})
	assert.True(t, IsValidation(err))
	_, err = svc.ReplaceSchedule(ctx, 5, nil)
	assert.True(t, IsValidation(err))
	_, err = svc.SetInstallmentCount(ctx, 42, 2)
	assert.True(t, IsNotFound(err))

	st, _ := store.GetStudent(ctx, 5)
	assert.Len(t, st.Installments, 2)
	assert.True(t, st.PaidFee.Equal(d("600")))
}

func TestSummariesFiltersAndTotals(t *testing.T) {
	svc, _ := newTestService(t,
		Student{ID: 1, Name: "Bala", Course: "Maths", TotalFee: d("1000"), PaidFee: d("1000")},
		Student{ID: 2, Name: "Chitra", Course: "Maths", TotalFee: d("1000"), PaidFee: d("250")},
		Student{ID: 3, Name: "Deepa", Course: "Biology", TotalFee: d("500")},
	)

	rows, totals, err := svc.Summaries(context.Background(), SummaryFilter{Search: "maths"})
	require.NoError(t, err)

	assert.Len(t, rows, 2)
	assert.Equal(t, 2, totals.Students)
	assert.True(t, totals.TotalPending.Equal(d("750")))
}

func TestPaymentsRejectsBadRange(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.Payments(context.Background(), PaymentFilter{StartDate: "June"})

	assert.True(t, IsValidation(err))
}

func TestDueTodayUsesInstituteClock(t *testing.T) {
	svc, _ := newTestService(t,
		Student{ID: 1, Name: "Due", TotalFee: d("900"), PaidFee: d("300"), Installments: []Installment{{Amount: d("300"), DueDate: "2025-06-10"}}},
		Student{ID: 2, Name: "Later", TotalFee: d("900"), PaidFee: d("300"), Installments: []Installment{{Amount: d("300"), DueDate: "2025-06-11"}}},
	)

	due, err := svc.DueToday(context.Background())
	require.NoError(t, err)

	require.Len(t, due, 1)
	assert.Equal(t, "Due", due[0].Name)
	assert.Equal(t, "2025-06-10", svc.Today())
}
