package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombineStatus(t *testing.T) {
	cases := []struct {
		current, candidate, want string
	}{
		{overallStatusOK, overallStatusOK, overallStatusOK},
		{overallStatusOK, overallStatusDegraded, overallStatusDegraded},
		{overallStatusDegraded, overallStatusOK, overallStatusDegraded},
		{overallStatusDegraded, overallStatusCritical, overallStatusCritical},
		{"bogus", overallStatusDegraded, overallStatusDegraded},
		{overallStatusOK, "bogus", overallStatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.current+"+"+tc.candidate, func(t *testing.T) {
			if got := combineStatus(tc.current, tc.candidate); got != tc.want {
				t.Fatalf("combineStatus(%q, %q) = %q, want %q", tc.current, tc.candidate, got, tc.want)
			}
		})
	}
}

func TestHumanizeDuration(t *testing.T) {
	cases := map[time.Duration]string{
		0:                                    "0s",
		45 * time.Second:                     "45s",
		90 * time.Minute:                     "1h 30m",
		26*time.Hour + 3*time.Second:         "1d 2h 3s",
		2*time.Minute + 400*time.Millisecond: "2m",
	}
	for d, want := range cases {
		if got := humanizeDuration(d); got != want {
			t.Fatalf("humanizeDuration(%v) = %q, want %q", d, got, want)
		}
	}
}

func TestCheckMessaging(t *testing.T) {
	hs := NewHealthService("", "")
	hs.SetMessengers(NewMessengerSet(NewWhatsAppService("http://gateway.local/send", ""), NewLineMessagingService("", "")))

	deps := hs.checkMessaging()

	assert.Equal(t, []DependencyStatus{
		{Name: ChannelLine, Status: dependencyStatusDisabled},
		{Name: ChannelWhatsApp, Status: dependencyStatusUp},
	}, deps)
	assert.Equal(t, 503, hs.HTTPStatusForOverall(overallStatusCritical))
	assert.Equal(t, 200, hs.HTTPStatusForOverall(overallStatusDegraded))
}

func stubProbe(status, severity string) probe {
	return func(context.Context) (DependencyStatus, string) {
		return DependencyStatus{Name: "stub", Status: status}, severity
	}
}

func TestGetHealthReport(t *testing.T) {
	okLedger := func(context.Context) (LedgerHealth, error) {
		return LedgerHealth{Date: "2025-06-10", Students: 12, PaymentsToday: 3, RemindersSent: 4}, nil
	}

	cases := []struct {
		name       string
		probes     []probe
		ledger     func(context.Context) (LedgerHealth, error)
		wantStatus string
		wantLedger bool
	}{
		{
			name:       "all up",
			probes:     []probe{stubProbe(dependencyStatusUp, overallStatusCritical)},
			ledger:     okLedger,
			wantStatus: overallStatusOK,
			wantLedger: true,
		},
		{
			name:       "database down skips ledger",
			probes:     []probe{stubProbe(dependencyStatusDown, overallStatusCritical)},
			ledger:     okLedger,
			wantStatus: overallStatusCritical,
		},
		{
			name:   "failed reminders degrade",
			probes: []probe{stubProbe(dependencyStatusUp, overallStatusCritical)},
			ledger: func(context.Context) (LedgerHealth, error) {
				return LedgerHealth{Date: "2025-06-10", RemindersSent: 2, RemindersFailed: 1}, nil
			},
			wantStatus: overallStatusDegraded,
			wantLedger: true,
		},
		{
			name:   "ledger query error degrades",
			probes: []probe{stubProbe(dependencyStatusUp, overallStatusCritical)},
			ledger: func(context.Context) (LedgerHealth, error) {
				return LedgerHealth{}, errors.New("no such table: payments")
			},
			wantStatus: overallStatusDegraded,
		},
		{
			name:       "optional redis down stays ok",
			probes:     []probe{stubProbe(dependencyStatusUp, overallStatusCritical), stubProbe(dependencyStatusDown, overallStatusOK)},
			ledger:     okLedger,
			wantStatus: overallStatusOK,
			wantLedger: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hs := NewHealthService("fees", "test")
			hs.probes = tc.probes
			hs.ledger = tc.ledger
			hs.SetJobs(func() []ScheduledJob { return []ScheduledJob{{Name: "fee-reminders", Spec: "0 9 * * *"}} })

			report := hs.GetHealthReport()

			if report.Status != tc.wantStatus {
				t.Fatalf("status = %q, want %q", report.Status, tc.wantStatus)
			}
			assert.Len(t, report.Dependencies, len(tc.probes))
			assert.Equal(t, tc.wantLedger, report.Ledger != nil)
			require.Len(t, report.Jobs, 1)
			assert.Equal(t, "fees", report.Service)
		})
	}
}
