package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"sktutorials_go/services/fees"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type memoryPrints struct {
	claimed map[string]bool
}

func (m *memoryPrints) Claim(ctx context.Context, fp string) (bool, error) {
	if m.claimed[fp] {
		return false, nil
	}
	m.claimed[fp] = true
	return true, nil
}

func (m *memoryPrints) Release(ctx context.Context, fp string) error {
	delete(m.claimed, fp)
	return nil
}

type fakeUploader struct {
	files map[string][]byte
	err   error
}

func (f *fakeUploader) UploadBytes(data []byte, folder string, userID uint, filename string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	key := folder + "/" + filename
	f.files[key] = data
	return key, nil
}

func newImportFixture(t *testing.T) (*PaymentImporter, *fees.MemoryStore, *memoryPrints, *fakeUploader) {
	t.Helper()
	store := fees.NewMemoryStore()
	store.AddStudent(fees.Student{ID: 1, Name: "Asha", TotalFee: dec("3000")})
	store.AddStudent(fees.Student{ID: 2, Name: "Bilal", TotalFee: dec("2000")})
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	feeSvc := fees.NewService(store, fees.WithClock(func() time.Time { return now }), fees.WithLocation(time.UTC))
	prints := &memoryPrints{claimed: map[string]bool{}}
	up := &fakeUploader{files: map[string][]byte{}}
	return NewPaymentImporter(feeSvc, prints, up), store, prints, up
}

const importCSV = "\xef\xbb\xbfStudent ID,Amount,Payment Date,Payment Method,Description\n" +
	"1,\"₹1,000\",05/06/2025,UPI,June\n" +
	"1,\"₹1,000\",05/06/2025,UPI,June\n" +
	"2,500,2025-06-07,,\n" +
	",,,,\n" +
	"x,100,,cash,\n" +
	"2,-5,,cash,\n" +
	"9,100,,cash,\n" +
	"2,100,31/31/2025,cash,\n" +
	"2,100,,bitcoin,\n"

func TestImportCSV(t *testing.T) {
	imp, store, _, up := newImportFixture(t)
	ctx := context.Background()

	report, err := imp.Import(ctx, "june.csv", []byte(importCSV), 42)
	require.NoError(t, err)

	assert.Equal(t, 8, report.DataRows)
	assert.Equal(t, 2, report.Imported)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, "1500", report.Total.String())
	assert.Len(t, report.Receipts, 2)
	assert.Equal(t, "imports/june.csv", report.SourceKey)
	assert.Contains(t, up.files, "imports/june.csv")

	fields := map[int]string{}
	for _, e := range report.Errors {
		fields[e.Row] = e.Field
	}
	assert.Equal(t, map[int]string{6: "student_id", 7: "amount", 8: "", 9: "payment_date", 10: "payment_method"}, fields)

	asha, err := store.GetStudent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "1000", asha.PaidFee.String())
	assert.Equal(t, "2025-06-05", asha.LastPayment)

	payments, _, err := store.ListPayments(ctx, fees.PaymentFilter{StudentID: 1})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, fees.MethodUPI, payments[0].Method)
	assert.Equal(t, uint(42), payments[0].RecordedBy)

	// the same file again records nothing
	again, err := imp.Import(ctx, "june.csv", []byte(importCSV), 42)
	require.NoError(t, err)
	assert.Zero(t, again.Imported)
	assert.Equal(t, 3, again.Duplicates)
}

func TestImportReleasesFingerprintOnFailure(t *testing.T) {
	imp, _, prints, _ := newImportFixture(t)
	csv := "Student ID,Amount\n9,100\n"

	report, err := imp.Import(context.Background(), "a.csv", []byte(csv), 1)
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	assert.Empty(t, prints.claimed)
}

func TestImportStoreFailureKeepsPartialReport(t *testing.T) {
	imp, store, prints, _ := newImportFixture(t)
	store.BeforeInsertPayment = func(p fees.Payment) error {
		if p.StudentID == 2 {
			return errors.New("connection reset")
		}
		return nil
	}
	csv := "Student ID,Amount\n1,400\n2,300\n1,200\n"

	report, err := imp.Import(context.Background(), "july.csv", []byte(csv), 7)

	require.Error(t, err)
	assert.True(t, fees.IsStore(err))
	assert.True(t, report.Aborted())
	assert.Equal(t, 3, report.AbortedAtRow)
	assert.NotEmpty(t, report.AbortReason)
	assert.Equal(t, 1, report.Imported)
	require.Len(t, report.Receipts, 1)
	assert.Equal(t, "400", report.Total.String())
	assert.Len(t, prints.claimed, 1, "only the committed row keeps its fingerprint")

	rows, _, err := store.ListPayments(context.Background(), fees.PaymentFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, report.Receipts[0], rows[0].ReceiptNo)
}

func TestImportXLSX(t *testing.T) {
	imp, store, _, up := newImportFixture(t)
	up.err = errors.New("no bucket")

	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Student ID", "Amount", "Payment Date", "Payment Method"},
		{2, 750, "2025-06-08", "cheque"},
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	report, err := imp.Import(context.Background(), "june.xlsx", buf.Bytes(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	assert.Empty(t, report.SourceKey)

	bilal, err := store.GetStudent(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "750", bilal.PaidFee.String())
}

func TestImportRejectsBadFiles(t *testing.T) {
	imp, _, _, _ := newImportFixture(t)
	ctx := context.Background()

	_, err := imp.Import(ctx, "notes.txt", []byte("x"), 1)
	assert.ErrorIs(t, err, ErrUnsupportedImport)

	_, err = imp.Import(ctx, "empty.csv", []byte("Student ID,Amount\n"), 1)
	assert.ErrorIs(t, err, ErrEmptyImport)

	_, err = imp.Import(ctx, "cols.csv", []byte("Name,Fee\nAsha,100\n"), 1)
	assert.True(t, fees.IsValidation(err))
}

func TestParseImportDate(t *testing.T) {
	tests := map[string]string{
		"2025-06-05": "2025-06-05",
		"05/06/2025": "2025-06-05",
		"5/6/2025":   "2025-06-05",
		"5-Jun-2025": "2025-06-05",
		"":           "",
	}
	for in, want := range tests {
		got, ok := parseImportDate(in)
		if !ok || got != want {
			t.Fatalf("parseImportDate(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := parseImportDate("June 5th"); ok {
		t.Fatalf("expected free text to be rejected")
	}
}
