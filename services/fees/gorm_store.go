package fees

import (
	"context"
	"errors"
	"time"

	"sktutorials_go/models"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	pgForeignKeyViolation    = "23503"
	mysqlForeignKeyViolation = 1452
)

// GormStore keeps the ledger in the students, student_installments and
// payments tables.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) withInstallments(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("InstallmentRows", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

func (s *GormStore) ListStudents(ctx context.Context) ([]Student, error) {
	var rows []models.Student
	if err := s.withInstallments(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, &StoreError{Op: "list students", Err: err}
	}
	out := make([]Student, 0, len(rows))
	for _, r := range rows {
		out = append(out, studentFromModel(r))
	}
	return out, nil
}

func (s *GormStore) GetStudent(ctx context.Context, id uint) (Student, error) {
	var row models.Student
	if err := s.withInstallments(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Student{}, studentNotFound(id)
		}
		return Student{}, &StoreError{Op: "get student", Err: err}
	}
	return studentFromModel(row), nil
}

func (s *GormStore) ListPayments(ctx context.Context, f PaymentFilter) ([]Payment, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Payment{})
	if f.StudentID != 0 {
		query = query.Where("student_id = ?", f.StudentID)
	}
	if f.Method != "" {
		query = query.Where("payment_method = ?", string(f.Method))
	}
	if f.StartDate != "" {
		query = query.Where("payment_date >= ?", f.StartDate)
	}
	if f.EndDate != "" {
		query = query.Where("payment_date <= ?", f.EndDate)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, &StoreError{Op: "count payments", Err: err}
	}

	if f.Limit > 0 {
		query = query.Limit(f.Limit).Offset(f.Offset)
	}
	var rows []models.Payment
	if err := query.Order("payment_date DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, 0, &StoreError{Op: "list payments", Err: err}
	}
	out := make([]Payment, 0, len(rows))
	for _, r := range rows {
		out = append(out, paymentFromModel(r))
	}
	return out, total, nil
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) LockStudent(ctx context.Context, id uint) (Student, error) {
	var row models.Student
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&row, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Student{}, studentNotFound(id)
		}
		return Student{}, &StoreError{Op: "lock student", Err: err}
	}
	if err := s.db.WithContext(ctx).
		Where("student_id = ?", id).
		Order("position ASC").
		Find(&row.InstallmentRows).Error; err != nil {
		return Student{}, &StoreError{Op: "load installments", Err: err}
	}
	return studentFromModel(row), nil
}

func (s *GormStore) InsertPayment(ctx context.Context, p *Payment) error {
	row := paymentToModel(*p)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isForeignKeyViolation(err) {
			return studentNotFound(p.StudentID)
		}
		return &StoreError{Op: "insert payment", Err: err}
	}
	p.ID = row.ID
	p.CreatedAt = row.CreatedAt
	return nil
}

func (s *GormStore) UpdatePaidFee(ctx context.Context, id uint, paid decimal.Decimal, status FeeStatus, lastPayment string) error {
	updates := map[string]interface{}{
		"paid_fee":   paid,
		"fee_status": string(status),
	}
	if lastPayment != "" {
		updates["last_payment"] = toDatePtr(lastPayment)
	}
	res := s.db.WithContext(ctx).Model(&models.Student{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return &StoreError{Op: "update paid fee", Err: res.Error}
	}
	return nil
}

// SaveSchedule replaces the installment rows of a student and writes the
// derived count, paid fee and status back onto the student. Callers lock the
// student first, so a missing row is reported there.
func (s *GormStore) SaveSchedule(ctx context.Context, sched Schedule, status FeeStatus) error {
	db := s.db.WithContext(ctx)
	if err := db.Unscoped().Where("student_id = ?", sched.StudentID).Delete(&models.StudentInstallment{}).Error; err != nil {
		return &StoreError{Op: "clear installments", Err: err}
	}

	if rows := installmentRows(sched); len(rows) > 0 {
		if err := db.Create(&rows).Error; err != nil {
			if isForeignKeyViolation(err) {
				return studentNotFound(sched.StudentID)
			}
			return &StoreError{Op: "insert installments", Err: err}
		}
	}

	res := db.Model(&models.Student{}).Where("id = ?", sched.StudentID).Updates(scheduleColumns(sched, status))
	if res.Error != nil {
		return &StoreError{Op: "update student schedule", Err: res.Error}
	}
	return nil
}

// installmentRows numbers slots by position; empty dates become NULL.
func installmentRows(sched Schedule) []models.StudentInstallment {
	rows := make([]models.StudentInstallment, 0, len(sched.Installments))
	for i, in := range sched.Installments {
		rows = append(rows, models.StudentInstallment{
			StudentID:       sched.StudentID,
			Position:        i,
			Amount:          in.Amount,
			InstallmentDate: toDatePtr(in.Date),
			Description:     in.Description,
			DueDate:         toDatePtr(in.DueDate),
		})
	}
	return rows
}

// scheduleColumns is the student update written with a schedule. The
// installments column always equals the number of slots.
func scheduleColumns(sched Schedule, status FeeStatus) map[string]interface{} {
	return map[string]interface{}{
		"installments": len(sched.Installments),
		"paid_fee":     sched.PaidFee,
		"fee_status":   string(status),
	}
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlForeignKeyViolation {
		return true
	}
	return false
}

func studentFromModel(m models.Student) Student {
	s := Student{
		ID:           m.ID,
		Name:         m.Name,
		Category:     m.Category,
		Course:       m.Course,
		Year:         m.Year,
		Phone:        m.Phone,
		LineUserID:   m.LineUserID,
		TotalFee:     decimalOrZero(m.TotalFee),
		PaidFee:      decimalOrZero(m.PaidFee),
		LastPayment:  fromDatePtr(m.LastPayment),
		Installments: make([]Installment, 0, len(m.InstallmentRows)),
	}
	for _, r := range m.InstallmentRows {
		s.Installments = append(s.Installments, Installment{
			Amount:      r.Amount,
			Date:        fromDatePtr(r.InstallmentDate),
			Description: r.Description,
			DueDate:     fromDatePtr(r.DueDate),
		})
	}
	return s
}

func paymentToModel(p Payment) models.Payment {
	return models.Payment{
		StudentID:     p.StudentID,
		StudentName:   p.StudentName,
		Amount:        p.Amount,
		PaymentDate:   toDate(p.PaymentDate),
		PaymentMethod: string(p.Method),
		Description:   p.Description,
		Status:        p.Status,
		ReceiptNo:     p.ReceiptNo,
		RecordedBy:    p.RecordedBy,
	}
}

func paymentFromModel(m models.Payment) Payment {
	return Payment{
		ID:          m.ID,
		StudentID:   m.StudentID,
		StudentName: m.StudentName,
		Amount:      m.Amount,
		PaymentDate: time.Time(m.PaymentDate).Format(DateLayout),
		Method:      PaymentMethod(m.PaymentMethod),
		Description: m.Description,
		Status:      m.Status,
		ReceiptNo:   m.ReceiptNo,
		RecordedBy:  m.RecordedBy,
		CreatedAt:   m.CreatedAt,
	}
}

func decimalOrZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}

func toDate(s string) datatypes.Date {
	t, _ := time.Parse(DateLayout, s)
	return datatypes.Date(t)
}

// toDatePtr maps "" to NULL.
func toDatePtr(s string) *datatypes.Date {
	if s == "" {
		return nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil
	}
	d := datatypes.Date(t)
	return &d
}

func fromDatePtr(d *datatypes.Date) string {
	if d == nil {
		return ""
	}
	return time.Time(*d).Format(DateLayout)
}
