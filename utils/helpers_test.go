package utils

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "98123 45601", want: "+919812345601"},
		{in: "+91 98123-45601", want: "+919812345601"},
		{in: "09812345601", want: "+919812345601"},
		{in: "0091 9812345601", want: "+919812345601"},
		{in: "+66 81 234 5678", want: "+66812345678"},
		{in: "12345", want: ""},
		{in: "", want: ""},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			if got := NormalizePhone(tc.in); got != tc.want {
				t.Fatalf("NormalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestIsValidFileExtension(t *testing.T) {
	allowed := []string{"csv", " xlsx"}
	assert.True(t, IsValidFileExtension("fees.CSV", allowed))
	assert.True(t, IsValidFileExtension("june.payments.xlsx", allowed))
	assert.False(t, IsValidFileExtension("fees.xls", allowed))
	assert.False(t, IsValidFileExtension("fees", allowed))
}

func TestPagination(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		page, limit, offset := Pagination(c, 20, 100)
		return c.JSON(fiber.Map{"page": page, "limit": limit, "offset": offset})
	})

	cases := map[string]string{
		"/":                    `{"page":1,"limit":20,"offset":0}`,
		"/?page=3&limit=10":    `{"page":3,"limit":10,"offset":20}`,
		"/?page=-1&limit=5000": `{"page":1,"limit":100,"offset":0}`,
	}
	for url, want := range cases {
		resp, err := app.Test(httptest.NewRequest("GET", url, nil))
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.JSONEq(t, want, string(body), url)
	}
}
