package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"feeledger/internal/core"
	"feeledger/internal/metrics"
	"feeledger/internal/services"
	"feeledger/internal/sheets"
)

// studentCodePattern finds a student code embedded in free-form remarks.
var studentCodePattern = regexp.MustCompile(`[A-Z]{2,5}\d{2,}`)

var (
	errStudentNotFound  = errors.New("student not found")
	errAmbiguousStudent = errors.New("more than one student matches")
)

// Ledger is the part of services.Ledger an import needs.
type Ledger interface {
	ListStudents(ctx context.Context) ([]core.Student, error)
	ApplyPayment(ctx context.Context, in services.PaymentInput) (core.Balance, error)
	ApplyPaymentIdempotent(ctx context.Context, in services.PaymentInput) (core.Balance, bool, error)
	RecordImport(ctx context.Context, batch core.ImportBatch) (core.ImportBatch, error)
}

type Importer struct {
	ledger Ledger
}

func NewImporter(ledger Ledger) *Importer {
	return &Importer{ledger: ledger}
}

// ImportXLSX imports the first sheet of an uploaded workbook.
func (im *Importer) ImportXLSX(ctx context.Context, source string, r io.Reader) (core.ImportBatch, error) {
	cells, err := ReadXLSX(r)
	if err != nil {
		return core.ImportBatch{}, fmt.Errorf("import %s: %w", source, err)
	}
	return im.Import(ctx, source, cells)
}

// ImportSheet imports the statement tab of a spreadsheet.
func (im *Importer) ImportSheet(ctx context.Context, source string, reader sheets.StatementReader) (core.ImportBatch, error) {
	cells, err := reader.ReadStatement(ctx)
	if err != nil {
		return core.ImportBatch{}, fmt.Errorf("import %s: %w", source, err)
	}
	return im.Import(ctx, source, cells)
}

// Import applies every statement row and records the batch summary. Row
// failures are collected; only an unreadable statement or an unavailable
// store fails the whole import.
func (im *Importer) Import(ctx context.Context, source string, cells [][]string) (core.ImportBatch, error) {
	rows, err := ParseRows(cells)
	if err != nil {
		return core.ImportBatch{}, fmt.Errorf("import %s: %w", source, err)
	}
	students, err := im.ledger.ListStudents(ctx)
	if err != nil {
		return core.ImportBatch{}, fmt.Errorf("import %s: list students: %w", source, err)
	}
	dir := newDirectory(students)

	batch := core.ImportBatch{Source: source, Total: len(rows)}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		skipped, err := im.applyRow(ctx, dir, source, row)
		switch {
		case err != nil:
			batch.Failed++
			batch.Errors = append(batch.Errors, core.ImportRowError{
				Row:        row.Line,
				StudentRef: firstNonEmpty(row.StudentRef, row.Remarks),
				Message:    err.Error(),
			})
		case skipped:
			batch.Skipped++
		default:
			batch.Processed++
		}
	}

	metrics.AddImportRows(metrics.OutcomeApplied, batch.Processed)
	metrics.AddImportRows(metrics.OutcomeSkipped, batch.Skipped)
	metrics.AddImportRows(metrics.OutcomeFailed, batch.Failed)

	recorded, err := im.ledger.RecordImport(ctx, batch)
	if err != nil {
		return batch, err
	}
	slog.InfoContext(ctx, "Statement imported",
		"source", source,
		"batch_id", recorded.ID,
		"total", recorded.Total,
		"processed", recorded.Processed,
		"skipped", recorded.Skipped,
		"failed", recorded.Failed)
	return recorded, nil
}

func (im *Importer) applyRow(ctx context.Context, dir *directory, source string, row Row) (bool, error) {
	amount, err := ParseAmount(row.Amount)
	if err != nil {
		return false, fmt.Errorf("invalid amount %q", row.Amount)
	}
	date, err := ParseDate(row.Date)
	if err != nil {
		return false, err
	}
	student, err := dir.resolve(row)
	if err != nil {
		return false, err
	}

	in := services.PaymentInput{
		StudentID:      student.ID,
		Amount:         amount,
		Date:           date,
		Method:         core.MethodImport,
		TransactionRef: row.Ref,
		Remark:         remark(source, row),
	}
	if in.TransactionRef == "" {
		_, err := im.ledger.ApplyPayment(ctx, in)
		return false, err
	}
	_, skipped, err := im.ledger.ApplyPaymentIdempotent(ctx, in)
	return skipped, err
}

func remark(source string, row Row) string {
	if row.Remarks != "" {
		return row.Remarks
	}
	return "Uploaded from " + source
}

// directory resolves statement references to registered students.
type directory struct {
	byCode map[string]core.Student
	byName map[string][]core.Student
}

func newDirectory(students []core.Student) *directory {
	d := &directory{
		byCode: make(map[string]core.Student, len(students)),
		byName: make(map[string][]core.Student, len(students)),
	}
	for _, s := range students {
		d.byCode[strings.ToUpper(s.Code)] = s
		key := normalizeName(s.Name)
		d.byName[key] = append(d.byName[key], s)
	}
	return d
}

// resolve tries a code found in the remarks, then the student cell as a code,
// then the student cell as a name.
func (d *directory) resolve(row Row) (core.Student, error) {
	for _, code := range studentCodePattern.FindAllString(row.Remarks, -1) {
		if s, ok := d.byCode[code]; ok {
			return s, nil
		}
	}
	ref := strings.TrimSpace(row.StudentRef)
	if ref == "" {
		return core.Student{}, fmt.Errorf("%w: no student reference", errStudentNotFound)
	}
	if s, ok := d.byCode[strings.ToUpper(ref)]; ok {
		return s, nil
	}
	switch matches := d.byName[normalizeName(ref)]; len(matches) {
	case 0:
		return core.Student{}, fmt.Errorf("%w: %s", errStudentNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return core.Student{}, fmt.Errorf("%w: %s", errAmbiguousStudent, ref)
	}
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
