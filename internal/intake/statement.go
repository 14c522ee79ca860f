// Package intake turns bank statement rows into ledger payments.
package intake

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"feeledger/internal/core"
)

var (
	ErrMissingColumn  = errors.New("statement is missing a required column")
	ErrEmptyStatement = errors.New("statement has no rows")
	// ErrUnreadableWorkbook wraps any failure to open an uploaded workbook.
	ErrUnreadableWorkbook = errors.New("statement is not a readable workbook")
)

// Row is one statement line with its cells already picked by header.
type Row struct {
	Line       int // 1-based row number in the source, header included
	StudentRef string
	Amount     string
	Ref        string
	Date       string
	Remarks    string
}

type column int

const (
	colStudent column = iota
	colAmount
	colRef
	colDate
	colRemarks
)

// headerAliases lists accepted header names per column, compared case-insensitively.
var headerAliases = map[column][]string{
	colStudent: {"student name", "name", "student id", "student", "student_name"},
	colAmount:  {"amount", "amount paid", "credit"},
	colRef:     {"upi ref no.", "upi ref no", "upi ref", "upi_ref", "transaction ref", "transaction_ref", "reference"},
	colDate:    {"date", "payment date", "payment_date", "txn date"},
	colRemarks: {"remarks", "remark", "narration", "description"},
}

// ParseRows locates the header in the first row and extracts every following
// non-empty row. A statement needs at least an amount column and either a
// student or a remarks column.
func ParseRows(cells [][]string) ([]Row, error) {
	if len(cells) == 0 {
		return nil, ErrEmptyStatement
	}
	index := headerIndex(cells[0])
	if _, ok := index[colAmount]; !ok {
		return nil, fmt.Errorf("%w: Amount", ErrMissingColumn)
	}
	_, hasStudent := index[colStudent]
	_, hasRemarks := index[colRemarks]
	if !hasStudent && !hasRemarks {
		return nil, fmt.Errorf("%w: Student Name or Remarks", ErrMissingColumn)
	}

	rows := make([]Row, 0, len(cells)-1)
	for i, line := range cells[1:] {
		cell := func(c column) string {
			pos, ok := index[c]
			if !ok || pos >= len(line) {
				return ""
			}
			return strings.TrimSpace(line[pos])
		}
		r := Row{
			Line:       i + 2,
			StudentRef: cell(colStudent),
			Amount:     cell(colAmount),
			Ref:        cell(colRef),
			Date:       cell(colDate),
			Remarks:    cell(colRemarks),
		}
		if r.StudentRef == "" && r.Amount == "" && r.Ref == "" && r.Remarks == "" {
			continue
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func headerIndex(header []string) map[column]int {
	index := make(map[column]int)
	for pos, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		for col, aliases := range headerAliases {
			if _, seen := index[col]; seen {
				continue
			}
			for _, alias := range aliases {
				if name == alias {
					index[col] = pos
				}
			}
		}
	}
	return index
}

// ReadXLSX returns the cells of the first sheet of a workbook.
func ReadXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}
	defer f.Close()

	sheetsList := f.GetSheetList()
	if len(sheetsList) == 0 {
		return nil, ErrEmptyStatement
	}
	rows, err := f.GetRows(sheetsList[0])
	if err != nil {
		return nil, fmt.Errorf("%w: sheet %q: %v", ErrUnreadableWorkbook, sheetsList[0], err)
	}
	return rows, nil
}

// ParseAmount accepts statement amounts such as "1500", "1,500.00" or "₹ 1500.5".
func ParseAmount(s string) (core.Money, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			return r
		case r == '-' || r == '+':
			return r
		default:
			return -1
		}
	}, s)
	if strings.Contains(cleaned, ".") {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}
	cents, err := core.ParseDecimalToCents(cleaned)
	if err != nil {
		return core.Money{}, err
	}
	m := core.Cents(cents)
	if err := m.Validate(); err != nil {
		return core.Money{}, err
	}
	return m, nil
}

var dateLayouts = []string{
	core.DateLayout,
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"01-02-06",
	time.RFC3339,
}

// ParseDate accepts the date formats banks commonly export. An empty cell yields the zero date.
func ParseDate(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.Date{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return core.DateOf(t), nil
		}
	}
	return core.Date{}, fmt.Errorf("unrecognized date %q", s)
}
