package storage

import (
	"strings"
	"testing"
	"time"
)

func TestObjectKey(t *testing.T) {
	now := time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC)

	key := ObjectKey("imports/payments", 4, "March Fees.XLSX", now)

	if !strings.HasPrefix(key, "imports/payments/4/2025/03/07/") {
		t.Fatalf("unexpected key prefix: %s", key)
	}
	if !strings.HasSuffix(key, ".xlsx") {
		t.Fatalf("unexpected key extension: %s", key)
	}
	if got := ObjectKey("x", 0, "noext", now); !strings.HasSuffix(got, ".bin") {
		t.Fatalf("expected .bin fallback, got %s", got)
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"csv":  "text/csv",
		"XLSX": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"exe":  "application/octet-stream",
	}
	for ext, want := range cases {
		if got := ContentType(ext); got != want {
			t.Fatalf("ContentType(%q) = %q, want %q", ext, got, want)
		}
	}
}
