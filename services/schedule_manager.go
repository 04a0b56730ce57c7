package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const reminderJobTimeout = 10 * time.Minute

// ScheduledJob describes one registered cron job.
type ScheduledJob struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev,omitempty"`
}

// ScheduleManager runs the background jobs: daily fee reminders and
// activity-log maintenance.
type ScheduleManager struct {
	cron  *cron.Cron
	names map[cron.EntryID]string
	specs map[cron.EntryID]string
}

// NewScheduleManager creates a manager whose schedules are evaluated in loc.
func NewScheduleManager(loc *time.Location) *ScheduleManager {
	if loc == nil {
		loc = time.Local
	}
	return &ScheduleManager{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
		),
		names: map[cron.EntryID]string{},
		specs: map[cron.EntryID]string{},
	}
}

// AddJob registers fn under a standard five-field cron spec.
func (sm *ScheduleManager) AddJob(name, spec string, fn func()) error {
	id, err := sm.cron.AddFunc(spec, func() {
		start := time.Now()
		fn()
		logrus.WithFields(logrus.Fields{"job": name, "took": time.Since(start).String()}).Debug("Scheduled job finished")
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	sm.names[id] = name
	sm.specs[id] = spec
	return nil
}

// RegisterReminders schedules the daily due-reminder run.
func (sm *ScheduleManager) RegisterReminders(spec string, reminders *FeeReminderService) error {
	return sm.AddJob("fee-reminders", spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), reminderJobTimeout)
		defer cancel()
		if _, err := reminders.Run(ctx, false); err != nil {
			logrus.WithError(err).Error("Scheduled fee reminder run failed")
		}
	})
}

// RegisterLogMaintenance flushes cached activity logs hourly and archives
// old rows on spec.
func (sm *ScheduleManager) RegisterLogMaintenance(spec string, archive *LogArchiveService) error {
	if err := sm.AddJob("log-flush", "@hourly", func() {
		if err := archive.FlushCachedLogsToDatabase(); err != nil {
			logrus.WithError(err).Debug("Log flush skipped")
		}
	}); err != nil {
		return err
	}
	return sm.AddJob("log-archive", spec, archive.RunMaintenance)
}

// Jobs lists registered jobs with their next run times.
func (sm *ScheduleManager) Jobs() []ScheduledJob {
	entries := sm.cron.Entries()
	out := make([]ScheduledJob, 0, len(entries))
	for _, e := range entries {
		out = append(out, ScheduledJob{
			Name: sm.names[e.ID],
			Spec: sm.specs[e.ID],
			Next: e.Next,
			Prev: e.Prev,
		})
	}
	return out
}

func (sm *ScheduleManager) Start() {
	sm.cron.Start()
	for _, j := range sm.Jobs() {
		logrus.WithFields(logrus.Fields{"job": j.Name, "spec": j.Spec, "next": j.Next}).Info("Scheduled job registered")
	}
}

// Stop stops the scheduler and waits for running jobs.
func (sm *ScheduleManager) Stop() {
	<-sm.cron.Stop().Done()
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logrus.WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logrus.WithError(err).WithFields(kvFields(keysAndValues)).Error("cron: " + msg)
}

func kvFields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
