package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"sktutorials_go/database"
	"sktutorials_go/services/fees"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/blake2b"
)

// Import column headers.
const (
	colStudentID   = "Student ID"
	colAmount      = "Amount"
	colPaymentDate = "Payment Date"
	colMethod      = "Payment Method"
	colDescription = "Description"

	importFolder         = "imports"
	importFingerprintTTL = 30 * 24 * time.Hour
	maxImportErrors      = 200
)

var (
	ErrUnsupportedImport = errors.New("unsupported file type (csv,xlsx)")
	ErrEmptyImport       = errors.New("file is empty")
)

// FingerprintStore remembers imported rows across uploads.
type FingerprintStore interface {
	// Claim reports false if fp was already claimed.
	Claim(ctx context.Context, fp string) (bool, error)
	Release(ctx context.Context, fp string) error
}

// RedisFingerprints keeps row fingerprints in Redis for 30 days.
type RedisFingerprints struct {
	client *redis.Client
}

func NewRedisFingerprints(client *redis.Client) *RedisFingerprints {
	return &RedisFingerprints{client: client}
}

func (r *RedisFingerprints) key(fp string) string { return "import:payment:" + fp }

func (r *RedisFingerprints) Claim(ctx context.Context, fp string) (bool, error) {
	return r.client.SetNX(ctx, r.key(fp), time.Now().Unix(), importFingerprintTTL).Result()
}

func (r *RedisFingerprints) Release(ctx context.Context, fp string) error {
	return r.client.Del(ctx, r.key(fp)).Err()
}

// Uploader stores the source file. Satisfied by storage.StorageService.
type Uploader interface {
	UploadBytes(data []byte, folder string, userID uint, filename string) (string, error)
}

// ImportRowError describes a row that was not recorded.
type ImportRowError struct {
	Row   int    `json:"row"`
	Field string `json:"field,omitempty"`
	Error string `json:"error"`
}

// ImportReport summarises one import.
type ImportReport struct {
	FileName   string           `json:"file_name"`
	SourceKey  string           `json:"source_key,omitempty"`
	DataRows   int              `json:"data_rows"`
	Imported   int              `json:"imported"`
	Duplicates int              `json:"duplicates"`
	Total      decimal.Decimal  `json:"total_amount"`
	Receipts   []string         `json:"receipts"`
	Errors     []ImportRowError `json:"errors"`
	// AbortedAtRow is the sheet row where a store failure stopped the import.
	// Rows before it that appear in Receipts are committed.
	AbortedAtRow int    `json:"aborted_at_row,omitempty"`
	AbortReason  string `json:"abort_reason,omitempty"`
}

// Aborted reports whether the import stopped before the last row.
func (r ImportReport) Aborted() bool {
	return r.AbortedAtRow > 0
}

// PaymentImporter records payments from a spreadsheet, one ledger
// transaction per row.
type PaymentImporter struct {
	fees     *fees.Service
	prints   FingerprintStore
	uploader Uploader
}

// NewPaymentImporter wires the importer. prints and uploader may be nil.
func NewPaymentImporter(feeSvc *fees.Service, prints FingerprintStore, uploader Uploader) *PaymentImporter {
	return &PaymentImporter{fees: feeSvc, prints: prints, uploader: uploader}
}

// NewDefaultPaymentImporter uses Redis for fingerprints when available.
func NewDefaultPaymentImporter(feeSvc *fees.Service, uploader Uploader) *PaymentImporter {
	var prints FingerprintStore
	if client := database.GetRedisClient(); client != nil {
		prints = NewRedisFingerprints(client)
	}
	return NewPaymentImporter(feeSvc, prints, uploader)
}

// ReadRows returns the first sheet of an xlsx file or all records of a csv.
func ReadRows(filename string, data []byte) ([][]string, error) {
	switch strings.ToLower(fileExt(filename)) {
	case "csv":
		cr := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
		cr.TrimLeadingSpace = true
		cr.FieldsPerRecord = -1
		var rows [][]string
		for {
			rec, err := cr.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, errors.Wrap(err, "read csv")
			}
			rows = append(rows, rec)
		}
		return rows, nil
	case "xlsx":
		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "open xlsx")
		}
		defer f.Close()
		sheet := f.GetSheetName(0)
		if sheet == "" {
			sheet = "Sheet1"
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, errors.Wrapf(err, "read sheet %q", sheet)
		}
		return rows, nil
	}
	return nil, ErrUnsupportedImport
}

func fileExt(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return ""
}

func mapHeaderIndexes(header []string) map[string]int {
	m := map[string]int{}
	for i, h := range header {
		m[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return m
}

// parseImportDate accepts ISO and day-first dates and returns YYYY-MM-DD.
// Empty input stays empty so the ledger applies today.
func parseImportDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", true
	}
	layouts := []string{fees.DateLayout, "02/01/2006", "2/1/2006", "02-01-2006", "2-Jan-2006", "02-Jan-06", time.RFC3339}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.Format(fees.DateLayout), true
		}
	}
	return "", false
}

// parseImportAmount strips currency symbols and thousands separators.
func parseImportAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(",", "", "₹", "", "Rs.", "", "Rs", "", "INR", "", " ", "").Replace(s)
	return decimal.NewFromString(s)
}

func rowFingerprint(in fees.PaymentInput) string {
	key := strings.Join([]string{
		strconv.FormatUint(uint64(in.StudentID), 10),
		in.Amount.StringFixed(2),
		in.Date,
		string(in.Method),
		strings.ToLower(in.Description),
	}, "|")
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}

type parsedRow struct {
	row   int
	input fees.PaymentInput
	err   *ImportRowError
}

func parseImportRows(rows [][]string, recordedBy uint) ([]parsedRow, error) {
	col := mapHeaderIndexes(rows[0])
	for _, required := range []string{colStudentID, colAmount} {
		if _, ok := col[strings.ToLower(required)]; !ok {
			return nil, fmt.Errorf("missing column: %s", required)
		}
	}

	out := make([]parsedRow, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		r := rows[i]
		rowNo := i + 1
		get := func(key string) string {
			if idx, ok := col[strings.ToLower(key)]; ok && idx < len(r) {
				return strings.TrimSpace(r[idx])
			}
			return ""
		}
		if strings.TrimSpace(strings.Join(r, "")) == "" {
			continue
		}

		id, err := strconv.ParseUint(get(colStudentID), 10, 32)
		if err != nil || id == 0 {
			out = append(out, parsedRow{err: &ImportRowError{Row: rowNo, Field: "student_id", Error: "invalid student id"}})
			continue
		}
		amount, err := parseImportAmount(get(colAmount))
		if err != nil {
			out = append(out, parsedRow{err: &ImportRowError{Row: rowNo, Field: "amount", Error: "invalid amount"}})
			continue
		}
		date, ok := parseImportDate(get(colPaymentDate))
		if !ok {
			out = append(out, parsedRow{err: &ImportRowError{Row: rowNo, Field: "payment_date", Error: "unrecognised date"}})
			continue
		}
		method := fees.MethodCash
		if raw := get(colMethod); raw != "" {
			m, ok := fees.ParsePaymentMethod(raw)
			if !ok {
				out = append(out, parsedRow{err: &ImportRowError{Row: rowNo, Field: "payment_method", Error: "unknown payment method"}})
				continue
			}
			method = m
		}
		out = append(out, parsedRow{row: rowNo, input: fees.PaymentInput{
			StudentID:   uint(id),
			Amount:      amount,
			Date:        date,
			Method:      method,
			Description: get(colDescription),
			RecordedBy:  recordedBy,
		}})
	}
	return out, nil
}

// Import parses the file, uploads the source when storage is configured, and
// records each row through the ledger. Rows already seen in this file or a
// previous import are counted as duplicates. A store error stops the loop;
// the report still lists every row committed before it.
func (p *PaymentImporter) Import(ctx context.Context, filename string, data []byte, recordedBy uint) (ImportReport, error) {
	report := ImportReport{FileName: filename, Total: decimal.Zero, Receipts: []string{}, Errors: []ImportRowError{}}

	rows, err := ReadRows(filename, data)
	if err != nil {
		return report, err
	}
	if len(rows) < 2 {
		return report, ErrEmptyImport
	}
	parsed, err := parseImportRows(rows, recordedBy)
	if err != nil {
		return report, &fees.ValidationError{Field: "file", Message: err.Error()}
	}
	report.DataRows = len(parsed)

	if p.uploader != nil {
		key, err := p.uploader.UploadBytes(data, importFolder, recordedBy, filename)
		if err != nil {
			logrus.WithError(errors.Wrap(err, "upload import source")).Warn("Import source not archived")
		} else {
			report.SourceKey = key
		}
	}

	seen := map[string]bool{}
	for _, row := range parsed {
		if row.err != nil {
			report.addError(*row.err)
			continue
		}
		fp := rowFingerprint(row.input)
		if seen[fp] {
			report.Duplicates++
			continue
		}
		seen[fp] = true

		claimed := false
		if p.prints != nil {
			ok, err := p.prints.Claim(ctx, fp)
			if err != nil {
				logrus.WithError(err).Warn("Import fingerprint lookup failed")
			} else if !ok {
				report.Duplicates++
				continue
			} else {
				claimed = true
			}
		}

		receipt, err := p.fees.RecordPayment(ctx, row.input)
		if err != nil {
			if claimed {
				if rerr := p.prints.Release(ctx, fp); rerr != nil {
					logrus.WithError(rerr).Warn("Import fingerprint not released")
				}
			}
			e := ImportRowError{Row: row.row, Error: err.Error()}
			var verr *fees.ValidationError
			if errors.As(err, &verr) {
				e.Field, e.Error = verr.Field, verr.Message
			}
			if fees.IsStore(err) {
				report.AbortedAtRow = row.row
				report.AbortReason = "ledger unavailable, rows from here on were not recorded"
				logrus.WithError(err).WithFields(logrus.Fields{
					"file":     filename,
					"row":      row.row,
					"imported": report.Imported,
				}).Error("Payment import aborted")
				return report, err
			}
			report.addError(e)
			continue
		}
		report.Imported++
		report.Total = report.Total.Add(receipt.Payment.Amount)
		report.Receipts = append(report.Receipts, receipt.Payment.ReceiptNo)
	}

	logrus.WithFields(logrus.Fields{
		"file":       filename,
		"rows":       report.DataRows,
		"imported":   report.Imported,
		"duplicates": report.Duplicates,
		"errors":     len(report.Errors),
	}).Info("Payment import finished")
	return report, nil
}

func (r *ImportReport) addError(e ImportRowError) {
	if len(r.Errors) < maxImportErrors {
		r.Errors = append(r.Errors, e)
	}
}
