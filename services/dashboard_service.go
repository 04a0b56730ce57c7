package services

import (
	"context"
	"time"

	"sktutorials_go/services/fees"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// DashboardReport is the landing page overview.
type DashboardReport struct {
	Date           string            `json:"date"`
	TotalStudents  int               `json:"total_students"`
	Fees           fees.Totals       `json:"fees"`
	DueToday       int               `json:"due_today"`
	Attendance     AttendanceSummary `json:"attendance_today"`
	RecentPayments []fees.Payment    `json:"recent_payments"`
	CollectionRate float64           `json:"collection_rate"`
}

type DashboardService struct {
	fees       *fees.Service
	attendance func(ctx context.Context, day time.Time) (AttendanceSummary, error)
}

func NewDashboardService(feeSvc *fees.Service, attendance *AttendanceService) *DashboardService {
	d := &DashboardService{fees: feeSvc}
	if attendance != nil {
		d.attendance = attendance.TodaySummary
	}
	return d
}

// Report assembles the overview from the fee projection and today's
// attendance.
func (d *DashboardService) Report(ctx context.Context) (DashboardReport, error) {
	today := d.fees.Today()
	summaries, totals, err := d.fees.Summaries(ctx, fees.SummaryFilter{})
	if err != nil {
		return DashboardReport{}, err
	}
	due, err := d.fees.DueToday(ctx)
	if err != nil {
		return DashboardReport{}, err
	}
	recent, _, err := d.fees.Payments(ctx, fees.PaymentFilter{Limit: 5})
	if err != nil {
		return DashboardReport{}, err
	}

	report := DashboardReport{
		Date:           today,
		TotalStudents:  len(summaries),
		Fees:           totals,
		DueToday:       len(due),
		RecentPayments: recent,
	}
	if !totals.TotalFees.IsZero() {
		rate, _ := totals.TotalCollected.Div(totals.TotalFees).Mul(hundred).Round(2).Float64()
		report.CollectionRate = rate
	}
	if d.attendance != nil {
		day, _ := time.Parse(fees.DateLayout, today)
		if report.Attendance, err = d.attendance(ctx, day); err != nil {
			return DashboardReport{}, err
		}
	}
	return report, nil
}
