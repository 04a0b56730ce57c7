package services

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"sktutorials_go/config"
	"sktutorials_go/database"
	"sktutorials_go/models"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	overallStatusOK       = "ok"
	overallStatusDegraded = "degraded"
	overallStatusCritical = "critical"

	dependencyStatusUp       = "up"
	dependencyStatusDown     = "down"
	dependencyStatusDisabled = "disabled"

	defaultServiceName = "SK Tutorials API"
	defaultVersion     = "1.0.0"
	defaultTimeout     = 1500 * time.Millisecond
)

// HealthReport is the body of GET /health.
type HealthReport struct {
	Status       string             `json:"status"`
	Service      string             `json:"service"`
	Version      string             `json:"version"`
	Environment  string             `json:"environment"`
	Time         time.Time          `json:"time"`
	Uptime       string             `json:"uptime"`
	Dependencies []DependencyStatus `json:"dependencies"`
	Ledger       *LedgerHealth      `json:"ledger,omitempty"`
	Jobs         []ScheduledJob     `json:"jobs,omitempty"`
	Runtime      RuntimeInfo        `json:"runtime"`
	Flags        HealthFlags        `json:"flags"`
}

type DependencyStatus struct {
	Name      string                 `json:"name"`
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// LedgerHealth is a snapshot of today's ledger activity in the institute
// timezone.
type LedgerHealth struct {
	Date             string `json:"date"`
	Students         int64  `json:"students"`
	PaymentsToday    int64  `json:"payments_today"`
	RemindersSent    int64  `json:"reminders_sent"`
	RemindersFailed  int64  `json:"reminders_failed"`
	LastReminderTime string `json:"last_reminder_time,omitempty"`
}

type RuntimeInfo struct {
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`
	HeapBytes  uint64 `json:"heap_bytes"`
}

type HealthFlags struct {
	SkipMigrate           bool   `json:"skip_migrate"`
	Seed                  bool   `json:"seed"`
	UseRedisNotifications bool   `json:"use_redis_notifications"`
	Timezone              string `json:"timezone"`
	ReminderCron          string `json:"reminder_cron"`
}

// probe checks one dependency and says how bad it is when it is down.
type probe func(ctx context.Context) (DependencyStatus, string)

// HealthService aggregates dependency checks, the ledger snapshot and the
// cron listing.
type HealthService struct {
	serviceName string
	version     string
	startTime   time.Time
	timeout     time.Duration
	messengers  MessengerSet
	jobs        func() []ScheduledJob
	ledger      func(ctx context.Context) (LedgerHealth, error)
	probes      []probe
}

func NewHealthService(serviceName, version string) *HealthService {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = defaultServiceName
	}
	if strings.TrimSpace(version) == "" {
		version = defaultVersion
	}
	s := &HealthService{
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		timeout:     defaultTimeout,
	}
	s.probes = []probe{probeDatabase, probeRedis}
	s.ledger = func(ctx context.Context) (LedgerHealth, error) {
		if database.DB == nil {
			return LedgerHealth{}, fmt.Errorf("database connection not initialised")
		}
		loc := time.UTC
		if config.AppConfig != nil {
			loc = config.AppConfig.Location()
		}
		return ledgerSnapshot(ctx, database.DB, time.Now().In(loc))
	}
	return s
}

// SetStartTime overrides the start time used for uptime.
func (s *HealthService) SetStartTime(t time.Time) {
	if !t.IsZero() {
		s.startTime = t
	}
}

func (s *HealthService) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// SetMessengers lets the report show which reminder channels are configured.
func (s *HealthService) SetMessengers(m MessengerSet) {
	s.messengers = m
}

func (s *HealthService) SetJobs(fn func() []ScheduledJob) {
	s.jobs = fn
}

// GetHealthReport runs every probe within the service timeout.
func (s *HealthService) GetHealthReport() HealthReport {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	report := HealthReport{
		Status:      overallStatusOK,
		Service:     s.serviceName,
		Version:     s.version,
		Environment: currentEnvironment(),
		Time:        time.Now().UTC(),
		Uptime:      humanizeDuration(time.Since(s.startTime)),
		Flags:       collectFlags(),
		Runtime:     runtimeInfo(),
	}

	for _, p := range s.probes {
		dep, severity := p(ctx)
		report.Dependencies = append(report.Dependencies, dep)
		if dep.Status == dependencyStatusDown {
			report.Status = combineStatus(report.Status, severity)
		}
	}
	report.Dependencies = append(report.Dependencies, s.checkMessaging()...)

	if report.Status != overallStatusCritical && s.ledger != nil {
		ledger, err := s.ledger(ctx)
		if err != nil {
			logrus.WithError(err).Warn("Health ledger snapshot failed")
			report.Status = combineStatus(report.Status, overallStatusDegraded)
		} else {
			report.Ledger = &ledger
			report.Status = combineStatus(report.Status, ledgerStatus(ledger))
		}
	}

	if s.jobs != nil {
		report.Jobs = s.jobs()
	}
	return report
}

// HTTPStatusForOverall answers 503 only when the database is unusable.
func (s *HealthService) HTTPStatusForOverall(status string) int {
	if status == overallStatusCritical {
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusOK
}

func probeDatabase(ctx context.Context) (DependencyStatus, string) {
	dep := DependencyStatus{Name: databaseName(), Status: dependencyStatusDown}
	if database.DB == nil {
		dep.Error = "database connection not initialised"
		return dep, overallStatusCritical
	}
	sqlDB, err := database.DB.DB()
	if err != nil {
		dep.Error = err.Error()
		return dep, overallStatusCritical
	}

	start := time.Now()
	err = sqlDB.PingContext(ctx)
	dep.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		dep.Error = err.Error()
		return dep, overallStatusCritical
	}

	stats := sqlDB.Stats()
	dep.Status = dependencyStatusUp
	dep.Details = map[string]interface{}{
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"wait_count":       stats.WaitCount,
	}
	return dep, overallStatusCritical
}

// probeRedis treats a missing Redis as degraded only when notifications
// depend on it; the log cache and import fingerprints fall back without it.
func probeRedis(ctx context.Context) (DependencyStatus, string) {
	dep := DependencyStatus{Name: "redis"}
	required := config.AppConfig != nil && config.AppConfig.UseRedisNotifications
	severity := overallStatusOK
	if required {
		severity = overallStatusDegraded
	}

	client := database.GetRedisClient()
	if client == nil {
		dep.Status = dependencyStatusDisabled
		if required {
			dep.Status = dependencyStatusDown
			dep.Error = "redis client not initialised"
		}
		return dep, severity
	}

	start := time.Now()
	err := client.Ping(ctx).Err()
	dep.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		dep.Status = dependencyStatusDown
		dep.Error = err.Error()
		return dep, severity
	}
	dep.Status = dependencyStatusUp
	dep.Details = map[string]interface{}{"address": client.Options().Addr}
	return dep, severity
}

func databaseName() string {
	if config.AppConfig != nil && config.AppConfig.IsPostgres() {
		return "postgres"
	}
	return "mysql"
}

// checkMessaging reports configuration only; gateways are not probed.
func (s *HealthService) checkMessaging() []DependencyStatus {
	var out []DependencyStatus
	for channel, enabled := range s.messengers.Status() {
		dep := DependencyStatus{Name: channel, Status: dependencyStatusDisabled}
		if enabled {
			dep.Status = dependencyStatusUp
		}
		out = append(out, dep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ledgerSnapshot counts today's payments and reminder deliveries.
func ledgerSnapshot(ctx context.Context, db *gorm.DB, now time.Time) (LedgerHealth, error) {
	day := now.Format("2006-01-02")
	out := LedgerHealth{Date: day}
	db = db.WithContext(ctx)

	if err := db.Model(&models.Student{}).Count(&out.Students).Error; err != nil {
		return out, err
	}
	if err := db.Model(&models.Payment{}).Where("payment_date = ?", day).Count(&out.PaymentsToday).Error; err != nil {
		return out, err
	}

	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&models.ReminderLog{}).Select("status, COUNT(*) AS count").
		Where("date = ?", day).Group("status").Scan(&rows).Error; err != nil {
		return out, err
	}
	for _, r := range rows {
		switch r.Status {
		case ReminderSent:
			out.RemindersSent = r.Count
		case ReminderFailed:
			out.RemindersFailed = r.Count
		}
	}

	var last models.ReminderLog
	err := db.Where("date = ?", day).Order("created_at DESC").Limit(1).Find(&last).Error
	if err != nil {
		return out, err
	}
	if last.ID != 0 {
		out.LastReminderTime = last.CreatedAt.In(now.Location()).Format(time.RFC3339)
	}
	return out, nil
}

// ledgerStatus flags a reminder run that had failed deliveries.
func ledgerStatus(l LedgerHealth) string {
	if l.RemindersFailed > 0 {
		return overallStatusDegraded
	}
	return overallStatusOK
}

func runtimeInfo() RuntimeInfo {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return RuntimeInfo{
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		HeapBytes:  mem.HeapAlloc,
	}
}

func collectFlags() HealthFlags {
	if config.AppConfig == nil {
		return HealthFlags{}
	}
	return HealthFlags{
		SkipMigrate:           config.AppConfig.SkipMigrate,
		Seed:                  config.AppConfig.Seed,
		UseRedisNotifications: config.AppConfig.UseRedisNotifications,
		Timezone:              config.AppConfig.Timezone,
		ReminderCron:          config.AppConfig.ReminderCron,
	}
}

func currentEnvironment() string {
	if config.AppConfig == nil || strings.TrimSpace(config.AppConfig.AppEnv) == "" {
		return "unknown"
	}
	return strings.TrimSpace(config.AppConfig.AppEnv)
}

func combineStatus(current, candidate string) string {
	order := map[string]int{
		overallStatusOK:       0,
		overallStatusDegraded: 1,
		overallStatusCritical: 2,
	}
	if _, ok := order[current]; !ok {
		current = overallStatusOK
	}
	if v, ok := order[candidate]; ok && v > order[current] {
		return candidate
	}
	return current
}

func humanizeDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}

	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d %= 24 * time.Hour
	hours := d / time.Hour
	d %= time.Hour
	minutes := d / time.Minute
	seconds := (d % time.Minute) / time.Second

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	return strings.Join(parts, " ")
}
