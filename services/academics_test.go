package services

import (
	"testing"

	"sktutorials_go/models"
	"sktutorials_go/services/fees"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrade(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{100, "A+"}, {90, "A+"}, {89.99, "A"}, {80, "A"}, {70, "B+"},
		{65, "B"}, {50, "C"}, {49.5, "F"}, {0, "F"},
	}
	for _, tc := range tests {
		if got := Grade(tc.pct); got != tc.want {
			t.Fatalf("Grade(%v) = %q, want %q", tc.pct, got, tc.want)
		}
	}
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 66.67, Percentage(2, 3))
	assert.Equal(t, 0.0, Percentage(5, 0))
}

func TestComputePerformanceStats(t *testing.T) {
	stats := ComputePerformanceStats([]models.PerformanceRecord{
		{Percentage: 92}, {Percentage: 81}, {Percentage: 40},
	})
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 71.0, stats.AveragePercentage)
	assert.Equal(t, 92.0, stats.HighestPercentage)
	assert.Equal(t, map[string]int{"A+": 1, "A": 1, "F": 1}, stats.GradeCounts)

	empty := ComputePerformanceStats(nil)
	assert.Zero(t, empty.Count)
	assert.Empty(t, empty.GradeCounts)
}

func TestSummarizeAttendance(t *testing.T) {
	s := SummarizeAttendance(map[string]int64{AttendancePresent: 2, AttendanceAbsent: 1, AttendanceLate: 3})
	assert.Equal(t, AttendanceSummary{Total: 6, Present: 2, Absent: 1, Late: 3, Percentage: 33.33}, s)

	assert.Equal(t, AttendanceSummary{}, SummarizeAttendance(nil))
}

func TestPerformanceInputValidation(t *testing.T) {
	err := validateInput(PerformanceInput{StudentID: 1, ExamName: "Unit 1", Date: "2025-06-01", Marks: 60, TotalMarks: 50})
	var verr *fees.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "total_marks", verr.Field)

	err = validateInput(AttendanceInput{StudentID: 1, Date: "2025-06-01", Status: "holiday"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "status", verr.Field)
}
