package fees

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name  string
		total string
		paid  string
		want  FeeStatus
	}{
		{name: "fully paid", total: "1000", paid: "1000", want: StatusPaid},
		{name: "nothing paid", total: "1000", paid: "0", want: StatusUnpaid},
		{name: "zero total zero paid", total: "0", paid: "0", want: StatusUnpaid},
		{name: "partly paid", total: "1000", paid: "400", want: StatusPartial},
		{name: "one cent short", total: "1000", paid: "999.99", want: StatusPartial},
		{name: "overpaid falls back", total: "1000", paid: "1200", want: StatusUnpaid},
		{name: "paid against zero total", total: "0", paid: "50", want: StatusUnpaid},
		{name: "scale does not matter", total: "1000.00", paid: "1000", want: StatusPaid},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveStatus(d(tc.total), d(tc.paid))
			if got != tc.want {
				t.Fatalf("DeriveStatus(%s, %s) = %s, want %s", tc.total, tc.paid, got, tc.want)
			}
		})
	}
}

func TestSummarizeAmountDueIsNotClamped(t *testing.T) {
	s := Summarize(Student{ID: 7, Name: "Asha", TotalFee: d("1000"), PaidFee: d("1250")})

	assert.True(t, s.AmountDue.Equal(d("-250")), "amount due = %s", s.AmountDue)
	assert.Equal(t, StatusUnpaid, s.Status)
	assert.True(t, s.Overpaid)
}

func TestSummarizeAbsentFeesAreZero(t *testing.T) {
	s := Summarize(Student{ID: 1, Name: "Ravi"})

	assert.True(t, s.TotalFee.IsZero())
	assert.True(t, s.PaidFee.IsZero())
	assert.True(t, s.AmountDue.IsZero())
	assert.Equal(t, StatusUnpaid, s.Status)
	assert.False(t, s.Overpaid)
}

func TestProjectIsRepeatable(t *testing.T) {
	students := []Student{
		{ID: 1, Name: "A", TotalFee: d("1200"), PaidFee: d("400")},
		{ID: 2, Name: "B", TotalFee: d("900"), PaidFee: d("900")},
		{ID: 3, Name: "C"},
	}

	first := Project(students)
	second := Project(students)

	assert.Equal(t, first, second)
	assert.Len(t, first, 3)
	assert.Equal(t, []FeeStatus{StatusPartial, StatusPaid, StatusUnpaid},
		[]FeeStatus{first[0].Status, first[1].Status, first[2].Status})
}

func TestFilterSummaries(t *testing.T) {
	rows := Project([]Student{
		{ID: 1, Name: "Meera Iyer", Category: "School", Course: "Maths", TotalFee: d("1000"), PaidFee: d("1000")},
		{ID: 2, Name: "Karan Shah", Category: "College", Course: "Physics", TotalFee: d("1000"), PaidFee: d("300")},
		{ID: 3, Name: "Priya Nair", Category: "School", Course: "Physics", TotalFee: d("1000")},
	})

	tests := []struct {
		name   string
		filter SummaryFilter
		want   []uint
	}{
		{name: "no filter", filter: SummaryFilter{}, want: []uint{1, 2, 3}},
		{name: "search name", filter: SummaryFilter{Search: "karan"}, want: []uint{2}},
		{name: "search course", filter: SummaryFilter{Search: "PHYSICS"}, want: []uint{2, 3}},
		{name: "status only", filter: SummaryFilter{Status: StatusUnpaid}, want: []uint{3}},
		{name: "search and status", filter: SummaryFilter{Search: "school", Status: StatusPaid}, want: []uint{1}},
		{name: "no match", filter: SummaryFilter{Search: "chemistry"}, want: []uint{}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := FilterSummaries(rows, tc.filter)
			ids := make([]uint, 0, len(got))
			for _, s := range got {
				ids = append(ids, s.StudentID)
			}
			assert.Equal(t, tc.want, ids)
		})
	}
}

func TestComputeTotals(t *testing.T) {
	rows := Project([]Student{
		{ID: 1, TotalFee: d("1000"), PaidFee: d("1000")},
		{ID: 2, TotalFee: d("1500"), PaidFee: d("500")},
		{ID: 3, TotalFee: d("800")},
	})

	totals := ComputeTotals(rows)

	assert.Equal(t, 3, totals.Students)
	assert.True(t, totals.TotalFees.Equal(d("3300")))
	assert.True(t, totals.TotalCollected.Equal(d("1500")))
	assert.True(t, totals.TotalPending.Equal(d("1800")))
	assert.Equal(t, 1, totals.Paid)
	assert.Equal(t, 1, totals.Partial)
	assert.Equal(t, 1, totals.Unpaid)
}

func TestParseStatus(t *testing.T) {
	for in, want := range map[string]FeeStatus{"": "", "All": "", "paid": StatusPaid, "PARTIAL": StatusPartial, "Unpaid": StatusUnpaid} {
		got, ok := ParseStatus(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseStatus("overdue")
	assert.False(t, ok)
}
