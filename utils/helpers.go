package utils

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/gofiber/fiber/v2"
)

const defaultCountryCode = "91"

// IsValidRole checks if a role is valid
func IsValidRole(role string) bool {
	switch role {
	case "owner", "admin", "staff", "teacher":
		return true
	}
	return false
}

// IsValidFileExtension checks if file extension is allowed
func IsValidFileExtension(filename string, allowedExtensions []string) bool {
	if filename == "" {
		return false
	}

	parts := strings.Split(filename, ".")
	if len(parts) < 2 {
		return false
	}

	ext := strings.ToLower(parts[len(parts)-1])
	for _, allowedExt := range allowedExtensions {
		if ext == strings.ToLower(strings.TrimSpace(allowedExt)) {
			return true
		}
	}
	return false
}

// SanitizeString removes dangerous characters from string
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}

// NormalizePhone reduces a phone number to E.164 digits with a leading '+'.
// Ten-digit local numbers get the institute country code. Returns "" when
// too few digits remain.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case strings.HasPrefix(digits, "00"):
		digits = digits[2:]
	case len(digits) == 11 && strings.HasPrefix(digits, "0"):
		digits = defaultCountryCode + digits[1:]
	case len(digits) == 10:
		digits = defaultCountryCode + digits
	}
	if len(digits) < 10 || len(digits) > 15 {
		return ""
	}
	return "+" + digits
}

// Pagination reads page/limit query values, clamping limit to [1, max].
func Pagination(c *fiber.Ctx, defLimit, max int) (page, limit, offset int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	limit, _ = strconv.Atoi(c.Query("limit", strconv.Itoa(defLimit)))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defLimit
	}
	if limit > max {
		limit = max
	}
	return page, limit, (page - 1) * limit
}
