package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sktutorials_go/services"
	"sktutorials_go/services/fees"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHub struct {
	events []string
}

func (h *recordingHub) Broadcast(message interface{}) {
	if m, ok := message.(fiber.Map); ok {
		h.events = append(h.events, m["type"].(string))
	}
}

func newFeesApp(t *testing.T) (*fiber.App, *fees.MemoryStore, *recordingHub) {
	t.Helper()
	store := fees.NewMemoryStore()
	store.AddStudent(fees.Student{ID: 1, Name: "Asha", Course: "Maths", TotalFee: decimal.NewFromInt(3000), PaidFee: decimal.NewFromInt(1000),
		Installments: []fees.Installment{{Amount: decimal.NewFromInt(1000), Date: "2025-05-01"}}})
	store.AddStudent(fees.Student{ID: 2, Name: "Bilal", Course: "Physics", TotalFee: decimal.NewFromInt(2000)})

	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	feeSvc := fees.NewService(store, fees.WithClock(func() time.Time { return now }), fees.WithLocation(time.UTC))
	hub := &recordingHub{}

	fc := NewFeesController(feeSvc, nil, nil, hub)
	ic := NewInstallmentController(feeSvc, hub)

	app := fiber.New()
	app.Get("/fees/summaries", fc.GetSummaries)
	app.Get("/fees/summaries/:id", fc.GetSummary)
	app.Get("/fees/payments", fc.GetPayments)
	app.Post("/fees/payments", fc.RecordPayment)
	app.Get("/students/:id/installments", ic.GetSchedule)
	app.Put("/students/:id/installments", ic.ReplaceSchedule)
	app.Post("/students/:id/installments/count", ic.SetCount)
	app.Post("/students/:id/installments/slots", ic.AddSlot)
	app.Patch("/students/:id/installments/:index", ic.UpdateInstallment)
	return app, store, hub
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestGetSummaries(t *testing.T) {
	app, _, _ := newFeesApp(t)

	tests := []struct {
		name  string
		query string
		code  int
		count int
	}{
		{name: "all", query: "", code: fiber.StatusOK, count: 2},
		{name: "explicit all", query: "?status=All", code: fiber.StatusOK, count: 2},
		{name: "lowercase all", query: "?status=all", code: fiber.StatusOK, count: 2},
		{name: "lowercase status", query: "?status=partial", code: fiber.StatusOK, count: 1},
		{name: "partial", query: "?status=Partial", code: fiber.StatusOK, count: 1},
		{name: "search by course", query: "?search=phys", code: fiber.StatusOK, count: 1},
		{name: "unknown status", query: "?status=Overdue", code: fiber.StatusBadRequest},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			code, body := doJSON(t, app, "GET", "/fees/summaries"+tc.query, "")
			if code != tc.code {
				t.Fatalf("expected %d, got %d (%v)", tc.code, code, body)
			}
			if tc.code != fiber.StatusOK {
				assert.Equal(t, "status", body["field"])
				return
			}
			assert.Len(t, body["summaries"], tc.count)
			assert.Contains(t, body, "totals")
		})
	}
}

func TestGetSummaryNotFound(t *testing.T) {
	app, _, _ := newFeesApp(t)

	code, _ := doJSON(t, app, "GET", "/fees/summaries/99", "")
	assert.Equal(t, fiber.StatusNotFound, code)

	code, body := doJSON(t, app, "GET", "/fees/summaries/abc", "")
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Equal(t, "id", body["field"])
}

func TestRecordPayment(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		code  int
		field string
	}{
		{name: "ok", body: `{"student_id":1,"amount":"1500","payment_method":"UPI","payment_date":"2025-06-09"}`, code: fiber.StatusCreated},
		{name: "defaults to cash and today", body: `{"student_id":2,"amount":500}`, code: fiber.StatusCreated},
		{name: "zero amount", body: `{"student_id":1,"amount":"0"}`, code: fiber.StatusBadRequest, field: "amount"},
		{name: "bad method", body: `{"student_id":1,"amount":"10","payment_method":"bitcoin"}`, code: fiber.StatusBadRequest, field: "payment_method"},
		{name: "unknown student", body: `{"student_id":42,"amount":"10"}`, code: fiber.StatusNotFound},
		{name: "malformed", body: `{"student_id":`, code: fiber.StatusBadRequest},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			app, _, hub := newFeesApp(t)
			code, body := doJSON(t, app, "POST", "/fees/payments", tc.body)
			if code != tc.code {
				t.Fatalf("expected %d, got %d (%v)", tc.code, code, body)
			}
			if tc.field != "" {
				assert.Equal(t, tc.field, body["field"])
			}
			if code == fiber.StatusCreated {
				assert.Equal(t, []string{"fees.updated"}, hub.events)
			} else {
				assert.Empty(t, hub.events)
			}
		})
	}
}

func TestRecordPaymentUpdatesSummary(t *testing.T) {
	app, _, _ := newFeesApp(t)

	code, receipt := doJSON(t, app, "POST", "/fees/payments", `{"student_id":1,"amount":"2000","payment_method":"card"}`)
	require.Equal(t, fiber.StatusCreated, code)
	assert.Equal(t, "Paid", receipt["status"])
	payment := receipt["payment"].(map[string]interface{})
	assert.Equal(t, "2025-06-10", payment["payment_date"])
	assert.Equal(t, "card", payment["payment_method"])

	code, body := doJSON(t, app, "GET", "/fees/payments?student_id=1", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Len(t, body["payments"], 1)
	assert.EqualValues(t, 1, body["pagination"].(map[string]interface{})["total"])

	code, body = doJSON(t, app, "GET", "/fees/payments?method=wire", "")
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Equal(t, "method", body["field"])
}

func TestInstallmentEndpoints(t *testing.T) {
	app, store, hub := newFeesApp(t)

	code, body := doJSON(t, app, "POST", "/students/2/installments/count", `{"count":4}`)
	require.Equal(t, fiber.StatusOK, code, body)
	sched := body["schedule"].(map[string]interface{})
	assert.Len(t, sched["installments"], 4)
	assert.Equal(t, "Paid", body["summary"].(map[string]interface{})["status"])
	assert.Equal(t, fees.StatusPaid, store.StoredStatus(2))

	code, body = doJSON(t, app, "PATCH", "/students/2/installments/1", `{"amount":"0"}`)
	require.Equal(t, fiber.StatusOK, code, body)
	assert.Equal(t, "Partial", body["summary"].(map[string]interface{})["status"])

	code, body = doJSON(t, app, "PATCH", "/students/2/installments/9", `{"amount":"10"}`)
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Equal(t, "index", body["field"])

	code, body = doJSON(t, app, "POST", "/students/2/installments/slots", "")
	require.Equal(t, fiber.StatusOK, code, body)
	assert.Len(t, body["schedule"].(map[string]interface{})["installments"], 5)

	code, body = doJSON(t, app, "PUT", "/students/1/installments", `{"installments":[{"amount":"3000","date":"2025-06-01"}]}`)
	require.Equal(t, fiber.StatusOK, code, body)
	assert.Equal(t, "Paid", body["summary"].(map[string]interface{})["status"])

	code, _ = doJSON(t, app, "GET", "/students/77/installments", "")
	assert.Equal(t, fiber.StatusNotFound, code)

	assert.Len(t, hub.events, 4)
}

func TestRespondFeeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{name: "validation", err: &fees.ValidationError{Field: "amount", Message: "must be greater than zero"}, code: fiber.StatusBadRequest},
		{name: "not found", err: &fees.NotFoundError{Resource: "student", ID: 3}, code: fiber.StatusNotFound},
		{name: "store", err: &fees.StoreError{Op: "insert payment", Err: errors.New("deadlock")}, code: fiber.StatusInternalServerError, msg: "Internal server error"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error { return respondFeeError(c, tc.err) })
			code, body := doJSON(t, app, "GET", "/", "")
			if code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, code)
			}
			if tc.msg != "" {
				assert.Equal(t, tc.msg, body["error"])
				assert.NotContains(t, body["error"], "deadlock")
			}
		})
	}
}

func TestParamHelpers(t *testing.T) {
	app := fiber.New()
	app.Get("/items/:id", func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return respondFeeError(c, err)
		}
		n, err := queryUint(c, "n")
		if err != nil {
			return respondFeeError(c, err)
		}
		return c.JSON(fiber.Map{"id": id, "n": n})
	})

	tests := []struct {
		path string
		code int
	}{
		{"/items/5", fiber.StatusOK},
		{"/items/5?n=3", fiber.StatusOK},
		{"/items/0", fiber.StatusBadRequest},
		{"/items/-1", fiber.StatusBadRequest},
		{"/items/5?n=x", fiber.StatusBadRequest},
	}
	for _, tc := range tests {
		code, _ := doJSON(t, app, "GET", tc.path, "")
		assert.Equal(t, tc.code, code, tc.path)
	}
}

func uploadCSV(t *testing.T, app *fiber.App, path, name, content string) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestImportPaymentsReportsCommittedRowsOnFailure(t *testing.T) {
	store := fees.NewMemoryStore()
	store.AddStudent(fees.Student{ID: 1, Name: "Asha", TotalFee: decimal.NewFromInt(3000)})
	store.AddStudent(fees.Student{ID: 2, Name: "Bilal", TotalFee: decimal.NewFromInt(2000)})
	store.BeforeInsertPayment = func(p fees.Payment) error {
		if p.StudentID == 2 {
			return errors.New("deadlock detected")
		}
		return nil
	}
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	feeSvc := fees.NewService(store, fees.WithClock(func() time.Time { return now }), fees.WithLocation(time.UTC))
	hub := &recordingHub{}
	fc := NewFeesController(feeSvc, nil, services.NewPaymentImporter(feeSvc, nil, nil), hub)

	app := fiber.New()
	app.Post("/fees/payments/import", fc.ImportPayments)

	tests := []struct {
		name     string
		csv      string
		code     int
		imported float64
		aborted  float64
	}{
		{name: "clean file", csv: "Student ID,Amount\n1,100\n", code: fiber.StatusOK, imported: 1},
		{name: "fails on second row", csv: "Student ID,Amount\n1,250\n2,300\n1,50\n", code: fiber.StatusInternalServerError, imported: 1, aborted: 3},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			code, body := uploadCSV(t, app, "/fees/payments/import", "june.csv", tc.csv)
			if code != tc.code {
				t.Fatalf("expected %d, got %d (%v)", tc.code, code, body)
			}
			report := body
			if tc.aborted > 0 {
				assert.Contains(t, body, "error")
				require.Contains(t, body, "report")
				report = body["report"].(map[string]interface{})
			}
			assert.Equal(t, tc.imported, report["imported"])
			assert.Len(t, report["receipts"], int(tc.imported))
			if tc.aborted > 0 {
				assert.Equal(t, tc.aborted, report["aborted_at_row"])
			} else {
				assert.NotContains(t, report, "aborted_at_row")
			}
		})
	}

	asha, err := store.GetStudent(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "350", asha.PaidFee.String())
	assert.Equal(t, []string{"fees.updated", "fees.updated"}, hub.events)
}
