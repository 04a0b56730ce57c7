package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"sktutorials_go/database"
	"sktutorials_go/models"
	"sktutorials_go/services/fees"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
	AttendanceLate    = "late"
)

// AttendanceInput records one student's attendance for a day.
type AttendanceInput struct {
	StudentID uint   `json:"student_id" validate:"required"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Subject   string `json:"subject" validate:"max=100"`
	Status    string `json:"status" validate:"required,oneof=present absent late"`
	Remarks   string `json:"remarks" validate:"max=500"`
}

// BulkAttendanceInput marks a whole class for one date and subject.
type BulkAttendanceInput struct {
	Date    string            `json:"date" validate:"required,datetime=2006-01-02"`
	Subject string            `json:"subject" validate:"max=100"`
	Entries []AttendanceEntry `json:"entries" validate:"required,min=1,dive"`
}

type AttendanceEntry struct {
	StudentID uint   `json:"student_id" validate:"required"`
	Status    string `json:"status" validate:"required,oneof=present absent late"`
	Remarks   string `json:"remarks" validate:"max=500"`
}

// AttendanceFilter narrows listings and summaries. Zero values mean "any".
type AttendanceFilter struct {
	Search    string
	StudentID uint
	Status    string
	StartDate string
	EndDate   string
	Offset    int
	Limit     int
}

// AttendanceSummary counts records by status.
type AttendanceSummary struct {
	Total      int64   `json:"total"`
	Present    int64   `json:"present"`
	Absent     int64   `json:"absent"`
	Late       int64   `json:"late"`
	Percentage float64 `json:"percentage"`
}

// SummarizeAttendance builds a summary from per-status counts. Percentage
// is present over total, 0 when there are no records.
func SummarizeAttendance(counts map[string]int64) AttendanceSummary {
	s := AttendanceSummary{
		Present: counts[AttendancePresent],
		Absent:  counts[AttendanceAbsent],
		Late:    counts[AttendanceLate],
	}
	s.Total = s.Present + s.Absent + s.Late
	if s.Total > 0 {
		s.Percentage = round2(float64(s.Present) / float64(s.Total) * 100)
	}
	return s
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

type AttendanceService struct {
	db *gorm.DB
}

func NewAttendanceService() *AttendanceService {
	return &AttendanceService{db: database.GetDB()}
}

func loadStudent(tx *gorm.DB, id uint) (models.Student, error) {
	var st models.Student
	if err := tx.First(&st, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return st, &fees.NotFoundError{Resource: "student", ID: id}
		}
		return st, storeErr("load student", err)
	}
	return st, nil
}

// forUpdate row-locks the next query until tx commits.
func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func studentName(tx *gorm.DB, id uint) (string, error) {
	st, err := loadStudent(tx, id)
	return st.Name, err
}

// Record stores one attendance mark.
func (s *AttendanceService) Record(ctx context.Context, in AttendanceInput) (*models.AttendanceRecord, error) {
	in.Status = strings.ToLower(strings.TrimSpace(in.Status))
	if err := validateInput(in); err != nil {
		return nil, err
	}
	day, err := parseDay("date", in.Date)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	name, err := studentName(db, in.StudentID)
	if err != nil {
		return nil, err
	}
	rec := &models.AttendanceRecord{
		StudentID:   in.StudentID,
		StudentName: name,
		Date:        datatypes.Date(day),
		Subject:     strings.TrimSpace(in.Subject),
		Status:      in.Status,
		Remarks:     strings.TrimSpace(in.Remarks),
	}
	if err := db.Create(rec).Error; err != nil {
		return nil, storeErr("insert attendance", err)
	}
	return rec, nil
}

// RecordBulk stores a class register in one transaction.
func (s *AttendanceService) RecordBulk(ctx context.Context, in BulkAttendanceInput) ([]models.AttendanceRecord, error) {
	for i := range in.Entries {
		in.Entries[i].Status = strings.ToLower(strings.TrimSpace(in.Entries[i].Status))
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	day, err := parseDay("date", in.Date)
	if err != nil {
		return nil, err
	}

	out := make([]models.AttendanceRecord, 0, len(in.Entries))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range in.Entries {
			name, err := studentName(tx, e.StudentID)
			if err != nil {
				return err
			}
			out = append(out, models.AttendanceRecord{
				StudentID:   e.StudentID,
				StudentName: name,
				Date:        datatypes.Date(day),
				Subject:     strings.TrimSpace(in.Subject),
				Status:      e.Status,
				Remarks:     strings.TrimSpace(e.Remarks),
			})
		}
		if err := tx.Create(&out).Error; err != nil {
			return storeErr("insert attendance", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *AttendanceService) filtered(ctx context.Context, f AttendanceFilter) (*gorm.DB, error) {
	q := s.db.WithContext(ctx).Model(&models.AttendanceRecord{})
	if f.StudentID != 0 {
		q = q.Where("student_id = ?", f.StudentID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", strings.ToLower(f.Status))
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("(LOWER(student_name) LIKE ? OR LOWER(subject) LIKE ?)", like, like)
	}
	if f.StartDate != "" {
		d, err := parseDay("start_date", f.StartDate)
		if err != nil {
			return nil, err
		}
		q = q.Where("date >= ?", datatypes.Date(d))
	}
	if f.EndDate != "" {
		d, err := parseDay("end_date", f.EndDate)
		if err != nil {
			return nil, err
		}
		q = q.Where("date <= ?", datatypes.Date(d))
	}
	return q, nil
}

// List returns matching records, newest first, and the total match count.
func (s *AttendanceService) List(ctx context.Context, f AttendanceFilter) ([]models.AttendanceRecord, int64, error) {
	q, err := s.filtered(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, storeErr("count attendance", err)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}
	var out []models.AttendanceRecord
	if err := q.Order("date DESC, id DESC").Find(&out).Error; err != nil {
		return nil, 0, storeErr("list attendance", err)
	}
	return out, total, nil
}

// Summary counts matching records by status.
func (s *AttendanceService) Summary(ctx context.Context, f AttendanceFilter) (AttendanceSummary, error) {
	q, err := s.filtered(ctx, f)
	if err != nil {
		return AttendanceSummary{}, err
	}
	var rows []struct {
		Status string
		Count  int64
	}
	if err := q.Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return AttendanceSummary{}, storeErr("summarize attendance", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[strings.ToLower(r.Status)] += r.Count
	}
	return SummarizeAttendance(counts), nil
}

// TodaySummary summarises attendance for the given calendar day.
func (s *AttendanceService) TodaySummary(ctx context.Context, today time.Time) (AttendanceSummary, error) {
	day := today.Format(fees.DateLayout)
	return s.Summary(ctx, AttendanceFilter{StartDate: day, EndDate: day})
}
