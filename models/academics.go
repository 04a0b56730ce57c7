package models

import (
	"gorm.io/datatypes"
)

type AttendanceRecord struct {
	BaseModel
	StudentID   uint           `json:"student_id" gorm:"not null;index"`
	StudentName string         `json:"student_name" gorm:"size:200"`
	Date        datatypes.Date `json:"date" gorm:"not null;index"`
	Subject     string         `json:"subject" gorm:"size:100"`
	Status      string         `json:"status" gorm:"size:20;not null"` // present, absent, late
	Remarks     string         `json:"remarks" gorm:"size:500"`
}

type PerformanceRecord struct {
	BaseModel
	StudentID       uint           `json:"student_id" gorm:"not null;index"`
	StudentName     string         `json:"student_name" gorm:"size:200"`
	StudentCategory string         `json:"student_category" gorm:"size:100"`
	ExamName        string         `json:"exam_name" gorm:"size:200;not null"`
	Subject         string         `json:"subject" gorm:"size:100"`
	Date            datatypes.Date `json:"date" gorm:"not null"`
	Marks           float64        `json:"marks"`
	TotalMarks      float64        `json:"total_marks"`
	Percentage      float64        `json:"percentage"`
	Grade           string         `json:"grade" gorm:"size:5"`
}

// InstituteSettings holds the single settings row of the institute.
type InstituteSettings struct {
	BaseModel
	InstituteName    string `json:"institute_name" gorm:"size:200"`
	CurrencySymbol   string `json:"currency_symbol" gorm:"size:10"`
	ReminderTemplate string `json:"reminder_template" gorm:"type:text"`
	RemindersEnabled bool   `json:"reminders_enabled" gorm:"default:true"`
	ReminderChannels JSON   `json:"reminder_channels" gorm:"type:json"`
}
