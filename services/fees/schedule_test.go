package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amounts(s Schedule) []string {
	out := make([]string, 0, len(s.Installments))
	for _, in := range s.Installments {
		out = append(out, in.Amount.String())
	}
	return out
}

func TestSetInstallmentCountEqualSplit(t *testing.T) {
	s := Schedule{TotalFee: d("1200")}

	s.SetInstallmentCount(3)

	assert.Equal(t, []string{"400", "400", "400"}, amounts(s))
	assert.True(t, s.PaidFee.Equal(d("1200")), "paid = %s", s.PaidFee)
}

func TestSetInstallmentCountClamps(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want int
	}{
		{name: "above max", n: 30, want: MaxInstallments},
		{name: "at max", n: 24, want: 24},
		{name: "zero", n: 0, want: MinInstallments},
		{name: "negative", n: -4, want: MinInstallments},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			s := Schedule{TotalFee: d("2400")}
			s.SetInstallmentCount(tc.n)
			if s.Count() != tc.want {
				t.Fatalf("SetInstallmentCount(%d) gave %d slots, want %d", tc.n, s.Count(), tc.want)
			}
		})
	}
}

func TestSetInstallmentCountDoesNotRedistributeRemainder(t *testing.T) {
	s := Schedule{TotalFee: d("1000")}

	s.SetInstallmentCount(3)

	assert.Equal(t, []string{"333.33", "333.33", "333.33"}, amounts(s))
	assert.True(t, s.PaidFee.Equal(d("999.99")))
}

func TestSetInstallmentCountKeepsAndPadsDates(t *testing.T) {
	s := Schedule{
		TotalFee: d("900"),
		Installments: []Installment{
			{Amount: d("100"), Date: "2025-01-05", Description: "first", DueDate: "2025-01-10"},
			{Amount: d("200"), Date: "2025-02-05", Description: "second", DueDate: "2025-02-10"},
		},
	}

	s.SetInstallmentCount(3)
	require.Equal(t, 3, s.Count())
	assert.Equal(t, "2025-01-10", s.Installments[0].DueDate)
	assert.Equal(t, "second", s.Installments[1].Description)
	assert.Equal(t, "300", s.Installments[2].Amount.String())
	assert.Empty(t, s.Installments[2].Date+s.Installments[2].DueDate+s.Installments[2].Description)

	s.SetInstallmentCount(1)
	require.Equal(t, 1, s.Count())
	assert.Equal(t, "2025-01-05", s.Installments[0].Date)
	assert.True(t, s.PaidFee.Equal(d("900")))
}

func TestSetInstallmentAmount(t *testing.T) {
	s := Schedule{TotalFee: d("1200")}
	s.SetInstallmentCount(3)

	require.NoError(t, s.SetInstallmentAmount(1, d("100")))
	assert.True(t, s.PaidFee.Equal(d("900")), "paid = %s", s.PaidFee)

	err := s.SetInstallmentAmount(3, d("100"))
	assert.True(t, IsValidation(err))
	err = s.SetInstallmentAmount(-1, d("100"))
	assert.True(t, IsValidation(err))
	err = s.SetInstallmentAmount(0, d("-5"))
	assert.True(t, IsValidation(err))
	assert.True(t, s.PaidFee.Equal(d("900")))
}

func TestSetInstallmentDates(t *testing.T) {
	s := Schedule{TotalFee: d("500")}
	s.SetInstallmentCount(1)

	require.NoError(t, s.SetInstallmentDueDate(0, "2025-03-01"))
	require.NoError(t, s.SetInstallmentDate(0, ""))
	assert.True(t, IsValidation(s.SetInstallmentDueDate(0, "01/03/2025")))
	assert.True(t, IsValidation(s.SetInstallmentDate(1, "2025-03-01")))
	assert.Equal(t, "2025-03-01", s.Installments[0].DueDate)
}

func TestAddInstallmentSlotIsNotCapped(t *testing.T) {
	s := Schedule{TotalFee: d("2400")}
	s.SetInstallmentCount(24)

	s.AddInstallmentSlot()

	require.Equal(t, 25, s.Count())
	assert.True(t, s.Installments[24].Amount.IsZero())
	assert.Empty(t, s.Installments[24].DueDate)
	s.Normalize()
	assert.True(t, s.PaidFee.Equal(d("2400")))
}

func TestReplace(t *testing.T) {
	s := Schedule{TotalFee: d("1000")}

	err := s.Replace([]Installment{
		{Amount: d("250"), DueDate: "2025-04-01"},
		{Amount: d("250"), Date: "2025-04-03", Description: "cash at desk"},
	})
	require.NoError(t, err)
	assert.True(t, s.PaidFee.Equal(d("500")))

	assert.True(t, IsValidation(s.Replace(nil)))
	assert.True(t, IsValidation(s.Replace([]Installment{{Amount: d("-1")}})))
	assert.True(t, IsValidation(s.Replace([]Installment{{Amount: d("1"), DueDate: "tomorrow"}})))
	assert.Equal(t, 2, s.Count())
}

func TestApplyPatch(t *testing.T) {
	s := Schedule{TotalFee: d("600")}
	s.SetInstallmentCount(2)
	amount := d("100")
	due := "2025-05-05"
	note := "late fee waived"

	require.NoError(t, s.Apply(1, InstallmentPatch{Amount: &amount, DueDate: &due, Description: &note}))

	got := s.Installments[1]
	assert.True(t, got.Amount.Equal(d("100")))
	assert.Equal(t, due, got.DueDate)
	assert.Equal(t, note, got.Description)
	assert.Empty(t, got.Date)
	assert.True(t, s.PaidFee.Equal(d("400")))
	assert.True(t, IsValidation(s.Apply(5, InstallmentPatch{})))
}
