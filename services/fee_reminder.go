package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"sktutorials_go/database"
	"sktutorials_go/models"
	"sktutorials_go/services/fees"
	notifsvc "sktutorials_go/services/notifications"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Reminder attempt outcomes stored in reminder_logs.
const (
	ReminderSent    = "sent"
	ReminderFailed  = "failed"
	ReminderSkipped = "skipped"
)

// ErrReminderRunning is returned when a run is already in progress.
var ErrReminderRunning = errors.New("a reminder run is already in progress")

// ReminderLedger remembers which reminders went out, so a student gets at
// most one reminder per channel per day.
type ReminderLedger interface {
	AlreadySent(ctx context.Context, studentID uint, date, channel string) (bool, error)
	Record(ctx context.Context, entry models.ReminderLog) error
}

// GormReminderLedger keeps the ledger in the reminder_logs table.
type GormReminderLedger struct {
	db *gorm.DB
}

func NewGormReminderLedger(db *gorm.DB) *GormReminderLedger {
	return &GormReminderLedger{db: db}
}

func (l *GormReminderLedger) AlreadySent(ctx context.Context, studentID uint, date, channel string) (bool, error) {
	d, err := time.Parse(fees.DateLayout, date)
	if err != nil {
		return false, err
	}
	var count int64
	err = l.db.WithContext(ctx).Model(&models.ReminderLog{}).
		Where("student_id = ? AND date = ? AND channel = ? AND status = ?", studentID, datatypes.Date(d), channel, ReminderSent).
		Count(&count).Error
	return count > 0, err
}

func (l *GormReminderLedger) Record(ctx context.Context, entry models.ReminderLog) error {
	return l.db.WithContext(ctx).Create(&entry).Error
}

// DueReminder is one student selected for today with the rendered text.
type DueReminder struct {
	StudentID uint            `json:"student_id"`
	Name      string          `json:"name"`
	Course    string          `json:"course"`
	Phone     string          `json:"phone"`
	AmountDue decimal.Decimal `json:"amount_due"`
	Message   string          `json:"message"`
}

// ReminderFailure describes one delivery that did not go out.
type ReminderFailure struct {
	StudentID uint   `json:"student_id"`
	Name      string `json:"name"`
	Channel   string `json:"channel"`
	Error     string `json:"error"`
}

// ReminderReport summarises a reminder run.
type ReminderReport struct {
	Date     string            `json:"date"`
	Disabled bool              `json:"disabled,omitempty"`
	Selected int               `json:"selected"`
	Sent     int               `json:"sent"`
	Skipped  int               `json:"skipped"`
	Failed   []ReminderFailure `json:"failed"`
}

// ReminderDeps wires a FeeReminderService. Nil funcs are treated as no-ops.
type ReminderDeps struct {
	Fees        *fees.Service
	Ledger      ReminderLedger
	Messengers  MessengerSet
	Settings    func(ctx context.Context) (ReminderSettings, error)
	StaffGroups func(ctx context.Context) ([]string, error)
	Notify      func(title, message string, data any) error
}

// FeeReminderService selects students with an installment due today and
// sends each one a reminder on every enabled channel.
type FeeReminderService struct {
	deps ReminderDeps
	mu   sync.Mutex
}

func NewFeeReminderServiceWith(deps ReminderDeps) *FeeReminderService {
	return &FeeReminderService{deps: deps}
}

// NewFeeReminderService wires the service to the database, settings, LINE
// staff groups and in-app notifications.
func NewFeeReminderService(feeSvc *fees.Service, messengers MessengerSet) *FeeReminderService {
	db := database.GetDB()
	settings := NewSettingsService()
	return NewFeeReminderServiceWith(ReminderDeps{
		Fees:       feeSvc,
		Ledger:     NewGormReminderLedger(db),
		Messengers: messengers,
		Settings:   settings.ReminderSettings,
		StaffGroups: func(ctx context.Context) ([]string, error) {
			var ids []string
			err := db.WithContext(ctx).Model(&models.LineGroup{}).Where("is_active = ?", true).Pluck("group_id", &ids).Error
			return ids, err
		},
		Notify: func(title, message string, data any) error {
			return notifsvc.NewService().EnqueueOrCreate(
				notifsvc.New(title, message, notifsvc.TypeWarning, data).ToRoles("admin", "owner"),
			)
		},
	})
}

// Preview lists today's selection with the messages that would be sent.
func (s *FeeReminderService) Preview(ctx context.Context) ([]DueReminder, error) {
	rs, err := s.deps.Settings(ctx)
	if err != nil {
		return nil, err
	}
	due, err := s.deps.Fees.DueToday(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DueReminder, 0, len(due))
	for _, st := range due {
		out = append(out, DueReminder{
			StudentID: st.ID,
			Name:      st.Name,
			Course:    st.Course,
			Phone:     st.Phone,
			AmountDue: st.AmountDue(),
			Message:   fees.FormatReminder(rs.Template, st, rs.Currency),
		})
	}
	return out, nil
}

func recipientFor(channel string, st fees.Student) string {
	switch channel {
	case ChannelWhatsApp:
		return st.Phone
	case ChannelLine:
		return st.LineUserID
	}
	return ""
}

// Run sends today's reminders. With force set, reminders are sent even when
// disabled in settings or already delivered today.
func (s *FeeReminderService) Run(ctx context.Context, force bool) (ReminderReport, error) {
	if !s.mu.TryLock() {
		return ReminderReport{}, ErrReminderRunning
	}
	defer s.mu.Unlock()

	today := s.deps.Fees.Today()
	report := ReminderReport{Date: today, Failed: []ReminderFailure{}}

	rs, err := s.deps.Settings(ctx)
	if err != nil {
		return report, err
	}
	if !rs.Enabled && !force {
		report.Disabled = true
		return report, nil
	}

	due, err := s.deps.Fees.DueToday(ctx)
	if err != nil {
		return report, err
	}
	report.Selected = len(due)

	for _, st := range due {
		msg := fees.FormatReminder(rs.Template, st, rs.Currency)
		for _, channel := range rs.Channels {
			s.deliver(ctx, &report, st, channel, msg, force)
		}
	}

	logrus.WithFields(logrus.Fields{
		"date":     today,
		"selected": report.Selected,
		"sent":     report.Sent,
		"skipped":  report.Skipped,
		"failed":   len(report.Failed),
		"force":    force,
	}).Info("Fee reminder run finished")

	if report.Selected > 0 {
		s.announce(ctx, report, due)
	}
	return report, nil
}

func (s *FeeReminderService) deliver(ctx context.Context, report *ReminderReport, st fees.Student, channel, msg string, force bool) {
	entry := models.ReminderLog{
		StudentID: st.ID,
		Channel:   channel,
		AmountDue: st.AmountDue(),
		Message:   msg,
	}
	if d, err := time.Parse(fees.DateLayout, report.Date); err == nil {
		entry.Date = datatypes.Date(d)
	}

	m := s.deps.Messengers.Active(channel)
	to := recipientFor(channel, st)
	switch {
	case m == nil:
		report.Skipped++
		return
	case to == "":
		report.Skipped++
		entry.Status = ReminderSkipped
		entry.Error = ErrNoRecipient.Error()
		s.record(ctx, entry)
		return
	}

	if !force {
		sent, err := s.deps.Ledger.AlreadySent(ctx, st.ID, report.Date, channel)
		if err != nil {
			logrus.WithError(err).WithField("student_id", st.ID).Warn("Reminder ledger lookup failed")
		}
		if sent {
			report.Skipped++
			return
		}
	}

	if err := m.Send(ctx, to, msg); err != nil {
		if errors.Is(err, ErrNoRecipient) {
			report.Skipped++
			entry.Status = ReminderSkipped
		} else {
			report.Failed = append(report.Failed, ReminderFailure{StudentID: st.ID, Name: st.Name, Channel: channel, Error: err.Error()})
			entry.Status = ReminderFailed
		}
		entry.Error = err.Error()
		s.record(ctx, entry)
		return
	}

	now := time.Now()
	entry.Status = ReminderSent
	entry.SentAt = &now
	report.Sent++
	s.record(ctx, entry)
}

func (s *FeeReminderService) record(ctx context.Context, entry models.ReminderLog) {
	if s.deps.Ledger == nil {
		return
	}
	if err := s.deps.Ledger.Record(ctx, entry); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"student_id": entry.StudentID,
			"channel":    entry.Channel,
		}).Error("Failed to record reminder")
	}
}

// announce tells staff about the run: a summary to LINE staff groups and an
// in-app notification to admins and owners.
func (s *FeeReminderService) announce(ctx context.Context, report ReminderReport, due []fees.Student) {
	summary := staffSummary(report, due)

	if line := s.deps.Messengers.Active(ChannelLine); line != nil && s.deps.StaffGroups != nil {
		groups, err := s.deps.StaffGroups(ctx)
		if err != nil {
			logrus.WithError(err).Warn("Could not load LINE staff groups")
		}
		for _, g := range groups {
			if err := line.Send(ctx, g, summary); err != nil {
				logrus.WithError(err).WithField("group_id", g).Warn("Staff group summary not delivered")
			}
		}
	}

	if s.deps.Notify != nil {
		title := fmt.Sprintf("%d fee installment(s) due today", report.Selected)
		if err := s.deps.Notify(title, summary, report); err != nil {
			logrus.WithError(err).Warn("Reminder notification not created")
		}
	}
}

func staffSummary(report ReminderReport, due []fees.Student) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fee reminders %s: %d due, %d sent, %d skipped, %d failed", report.Date, report.Selected, report.Sent, report.Skipped, len(report.Failed))
	for i, st := range due {
		if i == 10 {
			fmt.Fprintf(&b, "\n...and %d more", len(due)-i)
			break
		}
		fmt.Fprintf(&b, "\n- %s: %s", st.Name, st.AmountDue().StringFixed(2))
	}
	return b.String()
}
