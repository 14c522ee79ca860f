// Package services holds the fee ledger's use cases: applying and removing
// payments, rolling balances into a new billing cycle and projecting statuses
// for readers. Persistence and messaging are reached through the ports below.
package services

import (
	"context"

	"feeledger/internal/core"
)

// LedgerStore persists students, balances and payments.
// Reads outside WithStudentTx are snapshots and must not feed a balance write.
type LedgerStore interface {
	// CreateStudent stores a student together with its opening balance at
	// version 1. Returns core.ErrDuplicateStudentCode if the code is taken.
	CreateStudent(ctx context.Context, s core.Student, b core.Balance) error
	GetStudent(ctx context.Context, id string) (core.Student, error)
	FindStudentByCode(ctx context.Context, code string) (core.Student, error)
	ListStudents(ctx context.Context) ([]core.Student, error)
	// DeleteStudent removes the student, its balance and every live or archived payment.
	DeleteStudent(ctx context.Context, id string) error

	GetBalance(ctx context.Context, studentID string) (core.Balance, error)
	ListBalances(ctx context.Context) ([]core.Balance, error)

	GetPayment(ctx context.Context, id string) (core.Payment, error)
	// ListPayments returns the live payments of a student, newest first.
	ListPayments(ctx context.Context, studentID string) ([]core.Payment, error)

	// WithStudentTx runs fn in a single transaction scoped to one student.
	// The transaction commits when fn returns nil and rolls back otherwise.
	// Returns core.ErrUnknownStudent if the student or its balance is missing.
	WithStudentTx(ctx context.Context, studentID string, fn func(tx StudentTx) error) error

	SaveImportBatch(ctx context.Context, b core.ImportBatch) error
}

// StudentTx is the read-modify-write view of one student inside a transaction.
type StudentTx interface {
	Student() core.Student
	Balance() core.Balance

	SetFee(fee core.Money) error
	// SaveBalance writes b if the stored version still equals b.Version and
	// returns the balance with its new version. A stale version yields
	// core.ErrConcurrentUpdate.
	SaveBalance(b core.Balance) (core.Balance, error)

	// InsertPayment returns core.ErrDuplicateTransactionRef when the reference
	// is already recorded on a live or archived payment.
	InsertPayment(p core.Payment) error
	// DeletePayment returns core.ErrPaymentNotFound if the payment is not a live
	// payment of this student.
	DeletePayment(paymentID string) (core.Payment, error)
	TransactionRefExists(ref string) (bool, error)
	// LatestPaymentDate is the most recent date among live payments, zero if none.
	LatestPaymentDate() (core.Date, error)
	// ArchivePayments moves the live payments dated inside p to the archive.
	ArchivePayments(p core.Period, runID string) (int, error)
}

// EventPublisher announces ledger changes to other processes.
type EventPublisher interface {
	PublishBalanceChanged(ctx context.Context, b core.Balance) error
	PublishStudentRemoved(ctx context.Context, studentID string) error
	PublishReconciliationCompleted(ctx context.Context, runID string, p core.Period, reconciled, failed int) error
}
