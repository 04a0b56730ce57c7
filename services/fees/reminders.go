package fees

import (
	"strings"
)

// DefaultReminderTemplate is used when the institute has not set its own.
const DefaultReminderTemplate = "Dear {name}, your fee of {currency}{due} is due. Please make the payment at the earliest."

const DefaultCurrency = "₹"

// SelectDueToday returns the students that still owe money and have an
// installment due exactly on today (YYYY-MM-DD). Earlier due dates do not
// qualify.
func SelectDueToday(students []Student, today string) []Student {
	var out []Student
	for _, s := range students {
		if !s.AmountDue().IsPositive() {
			continue
		}
		for _, in := range s.Installments {
			if in.DueDate != "" && in.DueDate == today {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// FormatReminder fills {name}, {due}, {currency} and {course} in template.
func FormatReminder(template string, s Student, currency string) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultReminderTemplate
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	r := strings.NewReplacer(
		"{name}", s.Name,
		"{due}", s.AmountDue().String(),
		"{currency}", currency,
		"{course}", s.Course,
	)
	return r.Replace(template)
}
