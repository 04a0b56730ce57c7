package services

import (
	"context"
	"strings"

	"sktutorials_go/database"
	"sktutorials_go/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PerformanceInput records one exam result.
type PerformanceInput struct {
	StudentID  uint    `json:"student_id" validate:"required"`
	ExamName   string  `json:"exam_name" validate:"required,max=200"`
	Subject    string  `json:"subject" validate:"max=100"`
	Date       string  `json:"date" validate:"required,datetime=2006-01-02"`
	Marks      float64 `json:"marks" validate:"gte=0"`
	TotalMarks float64 `json:"total_marks" validate:"gt=0,gtefield=Marks"`
}

// PerformanceFilter narrows listings and stats.
type PerformanceFilter struct {
	Search    string
	StudentID uint
	Subject   string
	Offset    int
	Limit     int
}

// PerformanceStats aggregates a set of results.
type PerformanceStats struct {
	Count             int            `json:"count"`
	AveragePercentage float64        `json:"average_percentage"`
	HighestPercentage float64        `json:"highest_percentage"`
	GradeCounts       map[string]int `json:"grade_counts"`
}

// Grade maps a percentage to a letter grade.
func Grade(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A+"
	case percentage >= 80:
		return "A"
	case percentage >= 70:
		return "B+"
	case percentage >= 60:
		return "B"
	case percentage >= 50:
		return "C"
	default:
		return "F"
	}
}

// Percentage is marks over total to two decimals; 0 when total is not positive.
func Percentage(marks, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return round2(marks / total * 100)
}

func ComputePerformanceStats(records []models.PerformanceRecord) PerformanceStats {
	stats := PerformanceStats{Count: len(records), GradeCounts: map[string]int{}}
	if len(records) == 0 {
		return stats
	}
	var sum float64
	for i, r := range records {
		sum += r.Percentage
		if i == 0 || r.Percentage > stats.HighestPercentage {
			stats.HighestPercentage = r.Percentage
		}
		stats.GradeCounts[Grade(r.Percentage)]++
	}
	stats.AveragePercentage = round2(sum / float64(len(records)))
	return stats
}

type PerformanceService struct {
	db *gorm.DB
}

func NewPerformanceService() *PerformanceService {
	return &PerformanceService{db: database.GetDB()}
}

// Record stores an exam result with its derived percentage and grade.
func (s *PerformanceService) Record(ctx context.Context, in PerformanceInput) (*models.PerformanceRecord, error) {
	in.ExamName = strings.TrimSpace(in.ExamName)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	day, err := parseDay("date", in.Date)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	st, err := loadStudent(db, in.StudentID)
	if err != nil {
		return nil, err
	}

	pct := Percentage(in.Marks, in.TotalMarks)
	rec := &models.PerformanceRecord{
		StudentID:       st.ID,
		StudentName:     st.Name,
		StudentCategory: st.Category,
		ExamName:        in.ExamName,
		Subject:         strings.TrimSpace(in.Subject),
		Date:            datatypes.Date(day),
		Marks:           in.Marks,
		TotalMarks:      in.TotalMarks,
		Percentage:      pct,
		Grade:           Grade(pct),
	}
	if err := db.Create(rec).Error; err != nil {
		return nil, storeErr("insert performance", err)
	}
	return rec, nil
}

func (s *PerformanceService) filtered(ctx context.Context, f PerformanceFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.PerformanceRecord{})
	if f.StudentID != 0 {
		q = q.Where("student_id = ?", f.StudentID)
	}
	if f.Subject != "" {
		q = q.Where("subject = ?", f.Subject)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("(LOWER(student_name) LIKE ? OR LOWER(exam_name) LIKE ? OR LOWER(subject) LIKE ?)", like, like, like)
	}
	return q
}

func (s *PerformanceService) List(ctx context.Context, f PerformanceFilter) ([]models.PerformanceRecord, int64, error) {
	q := s.filtered(ctx, f)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, storeErr("count performance", err)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}
	var out []models.PerformanceRecord
	if err := q.Order("date DESC, id DESC").Find(&out).Error; err != nil {
		return nil, 0, storeErr("list performance", err)
	}
	return out, total, nil
}

func (s *PerformanceService) Stats(ctx context.Context, f PerformanceFilter) (PerformanceStats, error) {
	var records []models.PerformanceRecord
	if err := s.filtered(ctx, f).Select("id", "percentage").Find(&records).Error; err != nil {
		return PerformanceStats{}, storeErr("performance stats", err)
	}
	return ComputePerformanceStats(records), nil
}
