package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Student is the institute's student record. Fee columns are owned by the
// fee ledger: paid_fee changes only through recorded payments or an
// installment save, and fee_status is a write-through copy of the derived
// status kept for older readers.
type Student struct {
	BaseModel
	Name           string              `json:"name" gorm:"size:200;not null;index"`
	Category       string              `json:"category" gorm:"size:100;index"`
	Course         string              `json:"course" gorm:"size:100;index"`
	Year           int                 `json:"year"`
	Semester       *int                `json:"semester"`
	Email          string              `json:"email" gorm:"size:255"`
	Phone          string              `json:"phone" gorm:"size:20;index"`
	LineUserID     string              `json:"line_user_id" gorm:"size:100"`
	EnrollmentDate *datatypes.Date     `json:"enrollment_date"`
	Birthday       *datatypes.Date     `json:"birthday"`
	Subjects       string              `json:"subjects" gorm:"size:500"`
	TotalFee       decimal.NullDecimal `json:"total_fee" gorm:"type:decimal(12,2)"`
	PaidFee        decimal.NullDecimal `json:"paid_fee" gorm:"type:decimal(12,2)"`
	Installments   int                 `json:"installments" gorm:"default:0"`
	FeeStatus      string              `json:"fee_status" gorm:"size:20"`
	LastPayment    *datatypes.Date     `json:"last_payment"`

	// Relationships
	InstallmentRows []StudentInstallment `json:"installment_rows,omitempty" gorm:"foreignKey:StudentID"`
}

// StudentInstallment is one slot of a student's installment schedule.
// Position orders the slots; it is rewritten on every save.
type StudentInstallment struct {
	BaseModel
	StudentID       uint            `json:"student_id" gorm:"not null;index:idx_installment_position,priority:1"`
	Position        int             `json:"position" gorm:"not null;index:idx_installment_position,priority:2"`
	Amount          decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	InstallmentDate *datatypes.Date `json:"installment_date"`
	Description     string          `json:"description" gorm:"size:255"`
	DueDate         *datatypes.Date `json:"due_date" gorm:"index"`
}

// Payment is an append-only ledger row.
type Payment struct {
	BaseModel
	StudentID     uint            `json:"student_id" gorm:"not null;index"`
	StudentName   string          `json:"student_name" gorm:"size:200"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	PaymentDate   datatypes.Date  `json:"payment_date" gorm:"not null;index"`
	PaymentMethod string          `json:"payment_method" gorm:"size:20;not null"` // cash, card, cheque, upi
	Description   string          `json:"description" gorm:"type:text"`
	Status        string          `json:"status" gorm:"size:20;not null;default:'Paid'"`
	ReceiptNo     string          `json:"receipt_no" gorm:"size:40;uniqueIndex"`
	RecordedBy    uint            `json:"recorded_by"`

	Student *Student `json:"-" gorm:"foreignKey:StudentID;constraint:OnDelete:RESTRICT"`
}

// ReminderLog records one due-reminder attempt on one channel.
type ReminderLog struct {
	BaseModel
	StudentID uint            `json:"student_id" gorm:"not null;index:idx_reminder_day,priority:1"`
	Date      datatypes.Date  `json:"date" gorm:"not null;index:idx_reminder_day,priority:2"`
	Channel   string          `json:"channel" gorm:"size:20;not null;index:idx_reminder_day,priority:3"`
	Status    string          `json:"status" gorm:"size:20;not null"` // sent, failed, skipped
	AmountDue decimal.Decimal `json:"amount_due" gorm:"type:decimal(12,2)"`
	Message   string          `json:"message" gorm:"type:text"`
	Error     string          `json:"error" gorm:"type:text"`
	SentAt    *time.Time      `json:"sent_at"`
}
