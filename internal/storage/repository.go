// Package storage is the SQLite ledger store.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"feeledger/internal/core"
	"feeledger/internal/services"
)

// dsnOptions enables foreign keys for the cascade deletes, waits on a locked
// database instead of failing, and takes the write lock when a transaction begins.
const dsnOptions = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

var _ services.LedgerStore = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the pool opens
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; per-student transactions queue on the pool.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) CreateStudent(ctx context.Context, s core.Student, b core.Balance) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if err := q.CreateStudent(ctx, studentToRow(s)); err != nil {
		if isUniqueViolation(err) {
			return core.ErrDuplicateStudentCode
		}
		return fmt.Errorf("create student: %w", err)
	}
	if err := q.CreateBalance(ctx, balanceToRow(b)); err != nil {
		return fmt.Errorf("create balance: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.DebugContext(ctx, "Student saved to SQLite", "student_id", s.ID, "code", s.Code)
	return nil
}

func (r *SQLiteRepository) GetStudent(ctx context.Context, id string) (core.Student, error) {
	row, err := r.queries.GetStudent(ctx, id)
	if err != nil {
		return core.Student{}, notFound(err, core.ErrUnknownStudent, "get student")
	}
	return rowToStudent(row)
}

func (r *SQLiteRepository) FindStudentByCode(ctx context.Context, code string) (core.Student, error) {
	row, err := r.queries.GetStudentByCode(ctx, code)
	if err != nil {
		return core.Student{}, notFound(err, core.ErrUnknownStudent, "find student")
	}
	return rowToStudent(row)
}

func (r *SQLiteRepository) ListStudents(ctx context.Context) ([]core.Student, error) {
	rows, err := r.queries.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	students := make([]core.Student, 0, len(rows))
	for _, row := range rows {
		s, err := rowToStudent(row)
		if err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, nil
}

func (r *SQLiteRepository) DeleteStudent(ctx context.Context, id string) error {
	n, err := r.queries.DeleteStudent(ctx, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if n == 0 {
		return core.ErrUnknownStudent
	}
	return nil
}

func (r *SQLiteRepository) GetBalance(ctx context.Context, studentID string) (core.Balance, error) {
	row, err := r.queries.GetBalance(ctx, studentID)
	if err != nil {
		return core.Balance{}, notFound(err, core.ErrUnknownStudent, "get balance")
	}
	return rowToBalance(row)
}

func (r *SQLiteRepository) ListBalances(ctx context.Context) ([]core.Balance, error) {
	rows, err := r.queries.ListBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	balances := make([]core.Balance, 0, len(rows))
	for _, row := range rows {
		b, err := rowToBalance(row)
		if err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, nil
}

func (r *SQLiteRepository) GetPayment(ctx context.Context, id string) (core.Payment, error) {
	row, err := r.queries.GetPayment(ctx, id)
	if err != nil {
		return core.Payment{}, notFound(err, core.ErrPaymentNotFound, "get payment")
	}
	return rowToPayment(row)
}

func (r *SQLiteRepository) ListPayments(ctx context.Context, studentID string) ([]core.Payment, error) {
	rows, err := r.queries.ListPayments(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	payments := make([]core.Payment, 0, len(rows))
	for _, row := range rows {
		p, err := rowToPayment(row)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, nil
}

// CountArchivedPayments returns how many of the student's payments were archived.
func (r *SQLiteRepository) CountArchivedPayments(ctx context.Context, studentID string) (int, error) {
	n, err := r.queries.CountArchivedPayments(ctx, studentID)
	if err != nil {
		return 0, fmt.Errorf("count archived payments: %w", err)
	}
	return int(n), nil
}

func (r *SQLiteRepository) SaveImportBatch(ctx context.Context, b core.ImportBatch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if err := q.CreateImportBatch(ctx, b.ID, b.Source, b.Total, b.Processed, b.Skipped, b.Failed, formatTime(b.CreatedAt)); err != nil {
		return fmt.Errorf("create import batch: %w", err)
	}
	for _, e := range b.Errors {
		if err := q.CreateImportError(ctx, b.ID, e.Row, e.StudentRef, e.Message); err != nil {
			return fmt.Errorf("create import error: %w", err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) WithStudentTx(ctx context.Context, studentID string, fn func(tx services.StudentTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	srow, err := q.GetStudent(ctx, studentID)
	if err != nil {
		return notFound(err, core.ErrUnknownStudent, "get student")
	}
	student, err := rowToStudent(srow)
	if err != nil {
		return err
	}
	brow, err := q.GetBalance(ctx, studentID)
	if err != nil {
		return notFound(err, core.ErrUnknownStudent, "get balance")
	}
	balance, err := rowToBalance(brow)
	if err != nil {
		return err
	}

	stx := &studentTx{ctx: ctx, q: q, student: student, balance: balance}
	if err := fn(stx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// studentTx implements services.StudentTx over an open *sql.Tx.
type studentTx struct {
	ctx     context.Context
	q       *Queries
	student core.Student
	balance core.Balance
}

func (t *studentTx) Student() core.Student { return t.student }

func (t *studentTx) Balance() core.Balance { return t.balance }

func (t *studentTx) SetFee(fee core.Money) error {
	now := time.Now().UTC()
	n, err := t.q.UpdateStudentFee(t.ctx, t.student.ID, fee.Cents, formatTime(now))
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrUnknownStudent
	}
	t.student.Fee = fee
	t.student.UpdatedAt = now
	return nil
}

func (t *studentTx) SaveBalance(b core.Balance) (core.Balance, error) {
	b.StudentID = t.student.ID
	n, err := t.q.UpdateBalance(t.ctx, balanceToRow(b))
	if err != nil {
		return core.Balance{}, err
	}
	if n == 0 {
		return core.Balance{}, core.ErrConcurrentUpdate
	}
	b.Version++
	t.balance = b
	return b, nil
}

func (t *studentTx) InsertPayment(p core.Payment) error {
	if p.TransactionRef != "" {
		exists, err := t.q.TransactionRefExists(t.ctx, p.TransactionRef)
		if err != nil {
			return fmt.Errorf("check transaction ref: %w", err)
		}
		if exists {
			return core.ErrDuplicateTransactionRef
		}
	}
	p.StudentID = t.student.ID
	if err := t.q.CreatePayment(t.ctx, paymentToRow(p)); err != nil {
		if isUniqueViolation(err) {
			return core.ErrDuplicateTransactionRef
		}
		return err
	}
	return nil
}

func (t *studentTx) DeletePayment(paymentID string) (core.Payment, error) {
	row, err := t.q.GetStudentPayment(t.ctx, paymentID, t.student.ID)
	if err != nil {
		return core.Payment{}, notFound(err, core.ErrPaymentNotFound, "get payment")
	}
	if err := t.q.DeletePayment(t.ctx, paymentID); err != nil {
		return core.Payment{}, fmt.Errorf("delete payment: %w", err)
	}
	return rowToPayment(row)
}

func (t *studentTx) TransactionRefExists(ref string) (bool, error) {
	return t.q.TransactionRefExists(t.ctx, ref)
}

func (t *studentTx) LatestPaymentDate() (core.Date, error) {
	d, err := t.q.LatestPaymentDate(t.ctx, t.student.ID)
	if err != nil {
		return core.Date{}, err
	}
	return parseNullDate(d)
}

func (t *studentTx) ArchivePayments(p core.Period, runID string) (int, error) {
	n, err := t.q.ArchivePayments(t.ctx, t.student.ID,
		p.Start.Format(core.DateLayout), p.End.Format(core.DateLayout),
		runID, formatTime(time.Now()))
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func notFound(err error, sentinel error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
