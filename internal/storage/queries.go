package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the ledger's SQL. Rows are returned as stored; conversion to
// core types happens in the repository.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type StudentRow struct {
	ID        string
	Code      string
	Name      string
	FeeCents  int64
	ClassName string
	Email     string
	Phone     string
	Notes     string
	CreatedAt string
	UpdatedAt string
}

type BalanceRow struct {
	StudentID            string
	CurrentBalanceCents  int64
	TotalPaidCents       int64
	LastPaymentDate      sql.NullString
	TotalFeesCents       int64
	Version              int64
	LastReconciledPeriod string
	ReconciledUntil      sql.NullString
	UpdatedAt            string
}

type PaymentRow struct {
	ID             string
	StudentID      string
	AmountCents    int64
	PaymentDate    string
	Method         string
	TransactionRef sql.NullString
	Remark         string
	CreatedAt      string
}

const studentColumns = `id, code, name, fee_cents, class_name, email, phone, notes, created_at, updated_at`

func scanStudent(row interface{ Scan(...interface{}) error }) (StudentRow, error) {
	var s StudentRow
	err := row.Scan(&s.ID, &s.Code, &s.Name, &s.FeeCents, &s.ClassName, &s.Email, &s.Phone, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

const createStudent = `INSERT INTO students (` + studentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateStudent(ctx context.Context, s StudentRow) error {
	_, err := q.db.ExecContext(ctx, createStudent,
		s.ID, s.Code, s.Name, s.FeeCents, s.ClassName, s.Email, s.Phone, s.Notes, s.CreatedAt, s.UpdatedAt)
	return err
}

const getStudent = `SELECT ` + studentColumns + ` FROM students WHERE id = ?`

func (q *Queries) GetStudent(ctx context.Context, id string) (StudentRow, error) {
	return scanStudent(q.db.QueryRowContext(ctx, getStudent, id))
}

const getStudentByCode = `SELECT ` + studentColumns + ` FROM students WHERE code = ?`

func (q *Queries) GetStudentByCode(ctx context.Context, code string) (StudentRow, error) {
	return scanStudent(q.db.QueryRowContext(ctx, getStudentByCode, code))
}

const listStudents = `SELECT ` + studentColumns + ` FROM students ORDER BY name COLLATE NOCASE, code`

func (q *Queries) ListStudents(ctx context.Context) ([]StudentRow, error) {
	rows, err := q.db.QueryContext(ctx, listStudents)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []StudentRow
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const updateStudentFee = `UPDATE students SET fee_cents = ?, updated_at = ? WHERE id = ?`

func (q *Queries) UpdateStudentFee(ctx context.Context, id string, feeCents int64, updatedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateStudentFee, feeCents, updatedAt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteStudent = `DELETE FROM students WHERE id = ?`

func (q *Queries) DeleteStudent(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteStudent, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const balanceColumns = `student_id, current_balance_cents, total_paid_cents, last_payment_date, total_fees_cents, version, last_reconciled_period, reconciled_until, updated_at`

func scanBalance(row interface{ Scan(...interface{}) error }) (BalanceRow, error) {
	var b BalanceRow
	err := row.Scan(&b.StudentID, &b.CurrentBalanceCents, &b.TotalPaidCents, &b.LastPaymentDate,
		&b.TotalFeesCents, &b.Version, &b.LastReconciledPeriod, &b.ReconciledUntil, &b.UpdatedAt)
	return b, err
}

const createBalance = `INSERT INTO student_balances (` + balanceColumns + `) VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)`

func (q *Queries) CreateBalance(ctx context.Context, b BalanceRow) error {
	_, err := q.db.ExecContext(ctx, createBalance,
		b.StudentID, b.CurrentBalanceCents, b.TotalPaidCents, b.LastPaymentDate, b.TotalFeesCents, b.LastReconciledPeriod, b.ReconciledUntil, b.UpdatedAt)
	return err
}

const getBalance = `SELECT ` + balanceColumns + ` FROM student_balances WHERE student_id = ?`

func (q *Queries) GetBalance(ctx context.Context, studentID string) (BalanceRow, error) {
	return scanBalance(q.db.QueryRowContext(ctx, getBalance, studentID))
}

const listBalances = `SELECT ` + balanceColumns + ` FROM student_balances ORDER BY student_id`

func (q *Queries) ListBalances(ctx context.Context) ([]BalanceRow, error) {
	rows, err := q.db.QueryContext(ctx, listBalances)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BalanceRow
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

// updateBalance only matches while the stored version is the one that was read.
const updateBalance = `UPDATE student_balances
SET current_balance_cents = ?, total_paid_cents = ?, last_payment_date = ?, total_fees_cents = ?,
    last_reconciled_period = ?, reconciled_until = ?, updated_at = ?, version = version + 1
WHERE student_id = ? AND version = ?`

func (q *Queries) UpdateBalance(ctx context.Context, b BalanceRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateBalance,
		b.CurrentBalanceCents, b.TotalPaidCents, b.LastPaymentDate, b.TotalFeesCents,
		b.LastReconciledPeriod, b.ReconciledUntil, b.UpdatedAt, b.StudentID, b.Version)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const paymentColumns = `id, student_id, amount_cents, payment_date, method, transaction_ref, remark, created_at`

func scanPayment(row interface{ Scan(...interface{}) error }) (PaymentRow, error) {
	var p PaymentRow
	err := row.Scan(&p.ID, &p.StudentID, &p.AmountCents, &p.PaymentDate, &p.Method, &p.TransactionRef, &p.Remark, &p.CreatedAt)
	return p, err
}

const createPayment = `INSERT INTO payments (` + paymentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreatePayment(ctx context.Context, p PaymentRow) error {
	_, err := q.db.ExecContext(ctx, createPayment,
		p.ID, p.StudentID, p.AmountCents, p.PaymentDate, p.Method, p.TransactionRef, p.Remark, p.CreatedAt)
	return err
}

const getPayment = `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`

func (q *Queries) GetPayment(ctx context.Context, id string) (PaymentRow, error) {
	return scanPayment(q.db.QueryRowContext(ctx, getPayment, id))
}

const getStudentPayment = `SELECT ` + paymentColumns + ` FROM payments WHERE id = ? AND student_id = ?`

func (q *Queries) GetStudentPayment(ctx context.Context, id, studentID string) (PaymentRow, error) {
	return scanPayment(q.db.QueryRowContext(ctx, getStudentPayment, id, studentID))
}

const listPayments = `SELECT ` + paymentColumns + ` FROM payments WHERE student_id = ?
ORDER BY payment_date DESC, created_at DESC`

func (q *Queries) ListPayments(ctx context.Context, studentID string) ([]PaymentRow, error) {
	rows, err := q.db.QueryContext(ctx, listPayments, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PaymentRow
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const deletePayment = `DELETE FROM payments WHERE id = ?`

func (q *Queries) DeletePayment(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deletePayment, id)
	return err
}

const transactionRefExists = `SELECT
    EXISTS (SELECT 1 FROM payments WHERE transaction_ref = ?1)
    OR EXISTS (SELECT 1 FROM payments_archive WHERE transaction_ref = ?1)`

func (q *Queries) TransactionRefExists(ctx context.Context, ref string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, transactionRefExists, ref).Scan(&exists)
	return exists, err
}

const latestPaymentDate = `SELECT MAX(payment_date) FROM payments WHERE student_id = ?`

func (q *Queries) LatestPaymentDate(ctx context.Context, studentID string) (sql.NullString, error) {
	var d sql.NullString
	err := q.db.QueryRowContext(ctx, latestPaymentDate, studentID).Scan(&d)
	return d, err
}

const archivePayments = `INSERT INTO payments_archive (` + paymentColumns + `, run_id, archived_at)
SELECT ` + paymentColumns + `, ?, ? FROM payments
WHERE student_id = ? AND payment_date >= ? AND payment_date < ?`

const purgePayments = `DELETE FROM payments WHERE student_id = ? AND payment_date >= ? AND payment_date < ?`

// ArchivePayments copies the student's payments dated in [from, to) to the
// archive and deletes them. Both statements must run in the same transaction.
func (q *Queries) ArchivePayments(ctx context.Context, studentID, from, to, runID, archivedAt string) (int64, error) {
	if _, err := q.db.ExecContext(ctx, archivePayments, runID, archivedAt, studentID, from, to); err != nil {
		return 0, err
	}
	res, err := q.db.ExecContext(ctx, purgePayments, studentID, from, to)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countArchivedPayments = `SELECT COUNT(*) FROM payments_archive WHERE student_id = ?`

func (q *Queries) CountArchivedPayments(ctx context.Context, studentID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countArchivedPayments, studentID).Scan(&n)
	return n, err
}

const createImportBatch = `INSERT INTO import_batches (id, source, total_rows, processed, skipped, failed, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateImportBatch(ctx context.Context, id, source string, total, processed, skipped, failed int, createdAt string) error {
	_, err := q.db.ExecContext(ctx, createImportBatch, id, source, total, processed, skipped, failed, createdAt)
	return err
}

const createImportError = `INSERT INTO import_errors (batch_id, row_number, student_ref, message) VALUES (?, ?, ?, ?)`

func (q *Queries) CreateImportError(ctx context.Context, batchID string, row int, studentRef, message string) error {
	_, err := q.db.ExecContext(ctx, createImportError, batchID, row, studentRef, message)
	return err
}
