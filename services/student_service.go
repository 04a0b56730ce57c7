package services

import (
	"context"
	"errors"
	"strings"

	"sktutorials_go/database"
	"sktutorials_go/models"
	"sktutorials_go/services/fees"
	"sktutorials_go/utils"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StudentInput creates a student. Fee columns other than total_fee are
// owned by the ledger and cannot be set here.
type StudentInput struct {
	Name           string           `json:"name" validate:"required,max=200"`
	Category       string           `json:"category" validate:"max=100"`
	Course         string           `json:"course" validate:"max=100"`
	Year           int              `json:"year" validate:"gte=0"`
	Semester       *int             `json:"semester" validate:"omitempty,gte=1,lte=12"`
	Email          string           `json:"email" validate:"omitempty,email"`
	Phone          string           `json:"phone" validate:"max=20"`
	EnrollmentDate string           `json:"enrollment_date" validate:"omitempty,datetime=2006-01-02"`
	Birthday       string           `json:"birthday" validate:"omitempty,datetime=2006-01-02"`
	Subjects       []string         `json:"subjects"`
	TotalFee       *decimal.Decimal `json:"total_fee" validate:"-"`
}

// UpdateStudentInput changes a student. Nil fields are left alone.
type UpdateStudentInput struct {
	Name           *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Category       *string          `json:"category" validate:"omitempty,max=100"`
	Course         *string          `json:"course" validate:"omitempty,max=100"`
	Year           *int             `json:"year" validate:"omitempty,gte=0"`
	Semester       *int             `json:"semester" validate:"omitempty,gte=1,lte=12"`
	Email          *string          `json:"email" validate:"omitempty,email"`
	Phone          *string          `json:"phone" validate:"omitempty,max=20"`
	EnrollmentDate *string          `json:"enrollment_date" validate:"omitempty,datetime=2006-01-02"`
	Birthday       *string          `json:"birthday" validate:"omitempty,datetime=2006-01-02"`
	Subjects       []string         `json:"subjects"`
	TotalFee       *decimal.Decimal `json:"total_fee" validate:"-"`
}

// StudentFilter narrows the student list.
type StudentFilter struct {
	Search   string
	Category string
	Course   string
	Year     int
	Offset   int
	Limit    int
}

// ErrPhoneNotRegistered means no student has the given phone number.
var ErrPhoneNotRegistered = errors.New("no student registered with this phone number")

type StudentService struct {
	db *gorm.DB
}

func NewStudentService() *StudentService {
	return &StudentService{db: database.GetDB()}
}

func checkTotalFee(total *decimal.Decimal) error {
	if total != nil && total.IsNegative() {
		return &fees.ValidationError{Field: "total_fee", Message: "must not be negative"}
	}
	return nil
}

func optionalDate(field, s string) (*datatypes.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := parseDay(field, s)
	if err != nil {
		return nil, err
	}
	dd := datatypes.Date(d)
	return &dd, nil
}

func joinSubjects(in []string) string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, ",")
}

// Create adds a student with nothing paid.
func (s *StudentService) Create(ctx context.Context, in StudentInput) (*models.Student, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if err := checkTotalFee(in.TotalFee); err != nil {
		return nil, err
	}
	enrolled, err := optionalDate("enrollment_date", in.EnrollmentDate)
	if err != nil {
		return nil, err
	}
	birthday, err := optionalDate("birthday", in.Birthday)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	if in.TotalFee != nil {
		total = in.TotalFee.Round(2)
	}
	st := &models.Student{
		Name:           in.Name,
		Category:       strings.TrimSpace(in.Category),
		Course:         strings.TrimSpace(in.Course),
		Year:           in.Year,
		Semester:       in.Semester,
		Email:          strings.TrimSpace(in.Email),
		Phone:          strings.TrimSpace(in.Phone),
		EnrollmentDate: enrolled,
		Birthday:       birthday,
		Subjects:       joinSubjects(in.Subjects),
		TotalFee:       decimal.NewNullDecimal(total),
		PaidFee:        decimal.NewNullDecimal(decimal.Zero),
		FeeStatus:      string(fees.DeriveStatus(total, decimal.Zero)),
	}
	if err := s.db.WithContext(ctx).Create(st).Error; err != nil {
		return nil, storeErr("insert student", err)
	}
	return st, nil
}

func (s *StudentService) Get(ctx context.Context, id uint) (*models.Student, error) {
	st, err := loadStudent(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// buildStudentUpdates turns input into a column map. paid_fee is never
// touched; a total_fee change rewrites fee_status against the current paid fee.
func buildStudentUpdates(in UpdateStudentInput, current models.Student) (map[string]interface{}, error) {
	updates := map[string]interface{}{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, &fees.ValidationError{Field: "name", Message: "must not be empty"}
		}
		updates["name"] = name
	}
	if in.Category != nil {
		updates["category"] = strings.TrimSpace(*in.Category)
	}
	if in.Course != nil {
		updates["course"] = strings.TrimSpace(*in.Course)
	}
	if in.Year != nil {
		updates["year"] = *in.Year
	}
	if in.Semester != nil {
		updates["semester"] = *in.Semester
	}
	if in.Email != nil {
		updates["email"] = strings.TrimSpace(*in.Email)
	}
	if in.Phone != nil {
		updates["phone"] = strings.TrimSpace(*in.Phone)
	}
	if in.EnrollmentDate != nil {
		d, err := optionalDate("enrollment_date", *in.EnrollmentDate)
		if err != nil {
			return nil, err
		}
		updates["enrollment_date"] = d
	}
	if in.Birthday != nil {
		d, err := optionalDate("birthday", *in.Birthday)
		if err != nil {
			return nil, err
		}
		updates["birthday"] = d
	}
	if in.Subjects != nil {
		updates["subjects"] = joinSubjects(in.Subjects)
	}
	if in.TotalFee != nil {
		if err := checkTotalFee(in.TotalFee); err != nil {
			return nil, err
		}
		total := in.TotalFee.Round(2)
		paid := decimal.Zero
		if current.PaidFee.Valid {
			paid = current.PaidFee.Decimal
		}
		updates["total_fee"] = decimal.NewNullDecimal(total)
		updates["fee_status"] = string(fees.DeriveStatus(total, paid))
	}
	return updates, nil
}

func (s *StudentService) Update(ctx context.Context, id uint, in UpdateStudentInput) (*models.Student, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	var out models.Student
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// a concurrent payment must not slip between reading paid_fee and
		// writing fee_status
		current, err := loadStudent(forUpdate(tx), id)
		if err != nil {
			return err
		}
		updates, err := buildStudentUpdates(in, current)
		if err != nil {
			return err
		}
		if len(updates) > 0 {
			if err := tx.Model(&current).Updates(updates).Error; err != nil {
				return storeErr("update student", err)
			}
		}
		out, err = loadStudent(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete soft-deletes a student. Ledger rows stay.
func (s *StudentService) Delete(ctx context.Context, id uint) error {
	db := s.db.WithContext(ctx)
	if _, err := loadStudent(db, id); err != nil {
		return err
	}
	if err := db.Delete(&models.Student{}, id).Error; err != nil {
		return storeErr("delete student", err)
	}
	return nil
}

func (s *StudentService) filtered(ctx context.Context, f StudentFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.Student{})
	if f.Category != "" && f.Category != "All" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Course != "" && f.Course != "All" {
		q = q.Where("course = ?", f.Course)
	}
	if f.Year != 0 {
		q = q.Where("year = ?", f.Year)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("(LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ?)", like, like, like)
	}
	return q
}

func (s *StudentService) List(ctx context.Context, f StudentFilter) ([]models.Student, int64, error) {
	q := s.filtered(ctx, f)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, storeErr("count students", err)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}
	var out []models.Student
	if err := q.Order("name ASC").Find(&out).Error; err != nil {
		return nil, 0, storeErr("list students", err)
	}
	return out, total, nil
}

// Grouped returns students grouped by category, course and year.
func (s *StudentService) Grouped(ctx context.Context, category, course, year string) (utils.GroupedStudents, error) {
	var all []models.Student
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&all).Error; err != nil {
		return nil, storeErr("list students", err)
	}
	return utils.GroupStudents(utils.ToStudentDTOs(all), category, course, year), nil
}

// LinkLineUser stores a LINE user id against the student registered with
// phone. It returns the linked student.
func (s *StudentService) LinkLineUser(ctx context.Context, phone, lineUserID string) (*models.Student, error) {
	want := utils.NormalizePhone(phone)
	if want == "" {
		return nil, &fees.ValidationError{Field: "phone", Message: "not a phone number"}
	}
	var candidates []models.Student
	if err := s.db.WithContext(ctx).Where("phone <> ''").Find(&candidates).Error; err != nil {
		return nil, storeErr("list students", err)
	}
	for _, st := range candidates {
		if utils.NormalizePhone(st.Phone) != want {
			continue
		}
		if err := s.db.WithContext(ctx).Model(&st).Update("line_user_id", lineUserID).Error; err != nil {
			return nil, storeErr("link line user", err)
		}
		st.LineUserID = lineUserID
		return &st, nil
	}
	return nil, ErrPhoneNotRegistered
}

// Count returns the number of active students.
func (s *StudentService) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Student{}).Count(&n).Error
	return n, err
}
