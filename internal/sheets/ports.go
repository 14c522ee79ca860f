package sheets

import (
	"context"

	"feeledger/internal/core"
)

// Ports for outbound adapters.
type (
	// StatusMirror keeps a spreadsheet tab with one row per student in step with the ledger.
	StatusMirror interface {
		// ReplaceStatuses rewrites the whole tab.
		ReplaceStatuses(ctx context.Context, rows []core.StudentStatus) error
		// UpsertStatus updates the student's row, appending it when missing.
		UpsertStatus(ctx context.Context, row core.StudentStatus) error
		RemoveStudent(ctx context.Context, studentID string) error
	}

	// StatementReader returns the raw cells of a bank statement tab, header row first.
	StatementReader interface {
		ReadStatement(ctx context.Context) ([][]string, error)
	}
)

// StatusHeader is the header row of the status mirror tab.
var StatusHeader = []string{
	"Code", "Name", "Class", "Fee", "Balance", "Status", "Amount", "Total Paid", "Last Payment", "Student ID",
}

// StatusIDColumn is the zero-based index of the student id in a status row.
const StatusIDColumn = 9

// StatusRow renders a status as the cells of one mirror row.
func StatusRow(s core.StudentStatus) []string {
	return []string{
		s.Code,
		s.Name,
		s.ClassName,
		s.Fee.String(),
		s.Balance.String(),
		string(s.Status),
		s.Amount.String(),
		s.TotalPaid.String(),
		s.LastPaymentDate.String(),
		s.StudentID,
	}
}
