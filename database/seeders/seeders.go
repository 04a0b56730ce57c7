package seeders

import (
	"encoding/json"
	"log"
	"time"

	"sktutorials_go/database"
	"sktutorials_go/models"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SeedAll runs all seeders
func SeedAll() {
	log.Println("Starting database seeding...")

	SeedSettings()
	SeedStudents()
	SeedPayments()

	log.Println("Database seeding completed successfully!")
}

func date(y int, m time.Month, d int) datatypes.Date {
	return datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

func datePtr(y int, m time.Month, d int) *datatypes.Date {
	v := date(y, m, d)
	return &v
}

func money(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

// SeedSettings creates the single settings row
func SeedSettings() {
	var count int64
	database.DB.Model(&models.InstituteSettings{}).Count(&count)
	if count > 0 {
		log.Println("Settings already seeded, skipping...")
		return
	}

	channels, _ := json.Marshal([]string{"whatsapp", "line"})
	settings := models.InstituteSettings{
		InstituteName:    "SK Tutorials",
		CurrencySymbol:   "₹",
		ReminderTemplate: "Dear {name}, your fee of {currency}{due} is due. Please make the payment at the earliest.",
		RemindersEnabled: true,
		ReminderChannels: channels,
	}
	if err := database.DB.Create(&settings).Error; err != nil {
		log.Printf("Error seeding settings: %v", err)
		return
	}
	log.Println("Settings seeded successfully")
}

// SeedStudents seeds a handful of students across categories, with and
// without installment plans.
func SeedStudents() {
	var count int64
	database.DB.Model(&models.Student{}).Count(&count)
	if count > 0 {
		log.Println("Students already seeded, skipping...")
		return
	}

	created := time.Date(2025, 6, 1, 4, 30, 0, 0, time.UTC)
	students := []models.Student{
		{
			BaseModel:      models.BaseModel{ID: 1, CreatedAt: created},
			Name:           "Aarav Sharma",
			Category:       "School",
			Course:         "Mathematics",
			Year:           10,
			Phone:          "+919812345601",
			EnrollmentDate: datePtr(2025, 6, 1),
			Subjects:       "Algebra, Geometry",
			TotalFee:       money("12000"),
			PaidFee:        money("8000"),
			Installments:   3,
			FeeStatus:      "Partial",
			LastPayment:    datePtr(2025, 8, 5),
			InstallmentRows: []models.StudentInstallment{
				{Position: 0, Amount: decimal.RequireFromString("4000"), InstallmentDate: datePtr(2025, 6, 5), DueDate: datePtr(2025, 6, 10), Description: "First term"},
				{Position: 1, Amount: decimal.RequireFromString("4000"), InstallmentDate: datePtr(2025, 8, 5), DueDate: datePtr(2025, 8, 10), Description: "Second term"},
				{Position: 2, Amount: decimal.Zero, DueDate: datePtr(2025, 10, 10), Description: "Third term"},
			},
		},
		{
			BaseModel:      models.BaseModel{ID: 2, CreatedAt: created},
			Name:           "Diya Patel",
			Category:       "College",
			Course:         "Physics",
			Year:           1,
			Semester:       intPtr(2),
			Phone:          "+919812345602",
			EnrollmentDate: datePtr(2025, 7, 15),
			Subjects:       "Mechanics, Optics",
			TotalFee:       money("18000"),
			PaidFee:        money("18000"),
			FeeStatus:      "Paid",
			LastPayment:    datePtr(2025, 7, 15),
		},
		{
			BaseModel:      models.BaseModel{ID: 3, CreatedAt: created},
			Name:           "Kabir Rao",
			Category:       "School",
			Course:         "Chemistry",
			Year:           12,
			Phone:          "+919812345603",
			EnrollmentDate: datePtr(2025, 6, 20),
			TotalFee:       money("15000"),
			FeeStatus:      "Unpaid",
		},
	}

	for _, student := range students {
		if err := database.DB.Create(&student).Error; err != nil {
			log.Printf("Error seeding student %s: %v", student.Name, err)
		}
	}

	log.Println("Students seeded successfully")
}

// SeedPayments seeds ledger rows matching the seeded paid fees.
func SeedPayments() {
	var count int64
	database.DB.Model(&models.Payment{}).Count(&count)
	if count > 0 {
		log.Println("Payments already seeded, skipping...")
		return
	}

	payments := []models.Payment{
		{StudentID: 1, StudentName: "Aarav Sharma", Amount: decimal.RequireFromString("4000"), PaymentDate: date(2025, 6, 5), PaymentMethod: "upi", Status: "Paid", ReceiptNo: "RCPT-20250605-SEED000001", Description: "First term"},
		{StudentID: 1, StudentName: "Aarav Sharma", Amount: decimal.RequireFromString("4000"), PaymentDate: date(2025, 8, 5), PaymentMethod: "cash", Status: "Paid", ReceiptNo: "RCPT-20250805-SEED000002", Description: "Second term"},
		{StudentID: 2, StudentName: "Diya Patel", Amount: decimal.RequireFromString("18000"), PaymentDate: date(2025, 7, 15), PaymentMethod: "card", Status: "Paid", ReceiptNo: "RCPT-20250715-SEED000003", Description: "Full year"},
	}

	for _, p := range payments {
		if err := database.DB.Create(&p).Error; err != nil {
			log.Printf("Error seeding payment %s: %v", p.ReceiptNo, err)
		}
	}

	log.Println("Payments seeded successfully")
}

func intPtr(v int) *int { return &v }
