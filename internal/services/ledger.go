package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"feeledger/internal/core"
	"feeledger/internal/metrics"
)

// PaymentInput is a raw payment fact handed over by manual entry or an import.
type PaymentInput struct {
	StudentID      string
	Amount         core.Money
	Date           core.Date // zero means today
	Method         core.PaymentMethod
	TransactionRef string
	Remark         string
}

// StudentInput carries the registry fields of a new student.
type StudentInput struct {
	Code      string
	Name      string
	Fee       core.Money
	ClassName string
	Email     string
	Phone     string
	Notes     string
	MarkPaid  bool // opens the ledger settled instead of owing the first fee
}

// Ledger keeps every student's balance consistent with the payments applied to it.
type Ledger struct {
	store  LedgerStore
	events EventPublisher
	locks  *studentLocks
	now    func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// NewLedger creates a ledger over store. events may be nil when no broker is configured.
func NewLedger(store LedgerStore, events EventPublisher, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		events: events,
		locks:  newStudentLocks(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ApplyPayment records a payment and decrements the student's balance.
// A payment with a transaction reference goes through ApplyPaymentIdempotent;
// a duplicate returns the unchanged balance and core.ErrDuplicateTransactionRef.
func (l *Ledger) ApplyPayment(ctx context.Context, in PaymentInput) (core.Balance, error) {
	if strings.TrimSpace(in.TransactionRef) != "" {
		b, skipped, err := l.ApplyPaymentIdempotent(ctx, in)
		if err != nil {
			return core.Balance{}, err
		}
		if skipped {
			return b, core.ErrDuplicateTransactionRef
		}
		return b, nil
	}
	b, _, err := l.applyPayment(ctx, in, false)
	return b, err
}

// ApplyPaymentIdempotent applies the payment unless its transaction reference
// was already recorded, in which case it reports skipped and changes nothing.
func (l *Ledger) ApplyPaymentIdempotent(ctx context.Context, in PaymentInput) (core.Balance, bool, error) {
	if strings.TrimSpace(in.TransactionRef) == "" {
		return core.Balance{}, false, fmt.Errorf("apply payment: transaction reference required")
	}
	return l.applyPayment(ctx, in, true)
}

func (l *Ledger) applyPayment(ctx context.Context, in PaymentInput, dedupe bool) (core.Balance, bool, error) {
	if err := in.Amount.Validate(); err != nil {
		metrics.ObservePayment(string(in.Method), metrics.OutcomeRejected)
		return core.Balance{}, false, err
	}
	now := l.now()
	p := core.Payment{
		ID:             uuid.NewString(),
		StudentID:      in.StudentID,
		Amount:         in.Amount,
		Date:           in.Date,
		Method:         in.Method,
		TransactionRef: strings.TrimSpace(in.TransactionRef),
		Remark:         strings.TrimSpace(in.Remark),
		CreatedAt:      now,
	}
	if p.Date.IsEmpty() {
		p.Date = core.DateOf(now)
	}
	if p.Method == "" {
		p.Method = core.MethodManual
	}
	if err := p.Validate(); err != nil {
		metrics.ObservePayment(string(p.Method), metrics.OutcomeRejected)
		return core.Balance{}, false, err
	}

	unlock := l.locks.Lock(p.StudentID)
	defer unlock()

	var (
		result  core.Balance
		skipped bool
	)
	err := l.store.WithStudentTx(ctx, p.StudentID, func(tx StudentTx) error {
		if dedupe {
			exists, err := tx.TransactionRefExists(p.TransactionRef)
			if err != nil {
				return fmt.Errorf("check transaction ref: %w", err)
			}
			if exists {
				skipped = true
				result = tx.Balance()
				return nil
			}
		}
		if err := tx.InsertPayment(p); err != nil {
			if errors.Is(err, core.ErrDuplicateTransactionRef) {
				skipped = true
				result = tx.Balance()
				return nil
			}
			return fmt.Errorf("insert payment: %w", err)
		}
		// The closed cycle's fee was settled against its payments already.
		if cur := tx.Balance(); !cur.AcceptsPaymentOn(p.Date) {
			return fmt.Errorf("%w: %s is before %s", core.ErrClosedPeriod, p.Date, cur.ReconciledUntil)
		}
		next, err := tx.Balance().ApplyPayment(p.Amount, p.Date)
		if err != nil {
			return err
		}
		next.UpdatedAt = now
		saved, err := tx.SaveBalance(next)
		if err != nil {
			return fmt.Errorf("save balance: %w", err)
		}
		result = saved
		return nil
	})
	if errors.Is(err, core.ErrClosedPeriod) {
		metrics.ObservePayment(string(p.Method), metrics.OutcomeRejected)
		return core.Balance{}, false, err
	}
	if err != nil {
		metrics.ObservePayment(string(p.Method), metrics.OutcomeFailed)
		return core.Balance{}, false, fmt.Errorf("apply payment: %w", err)
	}

	if skipped {
		metrics.ObservePayment(string(p.Method), metrics.OutcomeSkipped)
		slog.InfoContext(ctx, "Skipped duplicate payment",
			"student_id", p.StudentID,
			"transaction_ref", p.TransactionRef)
		return result, true, nil
	}

	metrics.ObservePayment(string(p.Method), metrics.OutcomeApplied)
	slog.InfoContext(ctx, "Applied payment",
		"student_id", p.StudentID,
		"payment_id", p.ID,
		"amount_cents", p.Amount.Cents,
		"method", p.Method,
		"balance_cents", result.Current.Cents)
	l.publishBalance(ctx, result)
	return result, false, nil
}

// RemovePayment reverses a single live payment.
func (l *Ledger) RemovePayment(ctx context.Context, paymentID string) (core.Balance, error) {
	p, err := l.store.GetPayment(ctx, paymentID)
	if err != nil {
		return core.Balance{}, fmt.Errorf("remove payment: %w", err)
	}

	unlock := l.locks.Lock(p.StudentID)
	defer unlock()

	var result core.Balance
	err = l.store.WithStudentTx(ctx, p.StudentID, func(tx StudentTx) error {
		deleted, err := tx.DeletePayment(paymentID)
		if err != nil {
			return err
		}
		latest, err := tx.LatestPaymentDate()
		if err != nil {
			return fmt.Errorf("latest payment date: %w", err)
		}
		next := tx.Balance().RevertPayment(deleted.Amount, latest)
		next.UpdatedAt = l.now()
		saved, err := tx.SaveBalance(next)
		if err != nil {
			return fmt.Errorf("save balance: %w", err)
		}
		result = saved
		return nil
	})
	if err != nil {
		return core.Balance{}, fmt.Errorf("remove payment: %w", err)
	}

	slog.InfoContext(ctx, "Removed payment",
		"student_id", p.StudentID,
		"payment_id", paymentID,
		"amount_cents", p.Amount.Cents,
		"balance_cents", result.Current.Cents)
	l.publishBalance(ctx, result)
	return result, nil
}

// RegisterStudent enrolls a student and opens its balance.
func (l *Ledger) RegisterStudent(ctx context.Context, in StudentInput) (core.Student, core.Balance, error) {
	now := l.now()
	s := core.Student{
		ID:        uuid.NewString(),
		Code:      strings.ToUpper(strings.TrimSpace(in.Code)),
		Name:      strings.TrimSpace(in.Name),
		Fee:       in.Fee,
		ClassName: strings.TrimSpace(in.ClassName),
		Email:     strings.TrimSpace(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
		Notes:     strings.TrimSpace(in.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Validate(); err != nil {
		return core.Student{}, core.Balance{}, err
	}
	b := core.NewBalance(s.ID, s.Fee, in.MarkPaid, now)
	if err := l.store.CreateStudent(ctx, s, b); err != nil {
		return core.Student{}, core.Balance{}, fmt.Errorf("register student: %w", err)
	}
	b.Version = 1

	slog.InfoContext(ctx, "Registered student",
		"student_id", s.ID,
		"code", s.Code,
		"fee_cents", s.Fee.Cents,
		"mark_paid", in.MarkPaid)
	l.publishBalance(ctx, b)
	return s, b, nil
}

// UpdateFee changes the recurring fee. The current balance is untouched; the
// new fee applies from the next reconciliation.
func (l *Ledger) UpdateFee(ctx context.Context, studentID string, fee core.Money) (core.Student, error) {
	if fee.Cents < 0 {
		return core.Student{}, core.ErrInvalidFee
	}

	unlock := l.locks.Lock(studentID)
	defer unlock()

	var (
		student core.Student
		saved   core.Balance
	)
	err := l.store.WithStudentTx(ctx, studentID, func(tx StudentTx) error {
		if err := tx.SetFee(fee); err != nil {
			return fmt.Errorf("set fee: %w", err)
		}
		b := tx.Balance()
		b.TotalFees = fee
		b.UpdatedAt = l.now()
		var err error
		if saved, err = tx.SaveBalance(b); err != nil {
			return fmt.Errorf("save balance: %w", err)
		}
		student = tx.Student()
		student.Fee = fee
		return nil
	})
	if err != nil {
		return core.Student{}, fmt.Errorf("update fee: %w", err)
	}

	slog.InfoContext(ctx, "Updated fee", "student_id", studentID, "fee_cents", fee.Cents)
	l.publishBalance(ctx, saved)
	return student, nil
}

// RemoveStudent withdraws a student together with its balance and payment history.
func (l *Ledger) RemoveStudent(ctx context.Context, studentID string) error {
	unlock := l.locks.Lock(studentID)
	defer unlock()

	if err := l.store.DeleteStudent(ctx, studentID); err != nil {
		return fmt.Errorf("remove student: %w", err)
	}
	slog.InfoContext(ctx, "Removed student", "student_id", studentID)

	if l.events == nil {
		return nil
	}
	if err := l.events.PublishStudentRemoved(ctx, studentID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish student removal", "student_id", studentID, "error", err)
	}
	return nil
}

func (l *Ledger) GetStudent(ctx context.Context, studentID string) (core.Student, core.Balance, error) {
	s, err := l.store.GetStudent(ctx, studentID)
	if err != nil {
		return core.Student{}, core.Balance{}, err
	}
	b, err := l.store.GetBalance(ctx, studentID)
	if err != nil {
		return core.Student{}, core.Balance{}, err
	}
	return s, b, nil
}

func (l *Ledger) FindStudentByCode(ctx context.Context, code string) (core.Student, error) {
	return l.store.FindStudentByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

func (l *Ledger) ListStudents(ctx context.Context) ([]core.Student, error) {
	return l.store.ListStudents(ctx)
}

// ListPayments returns the live payments of the open period.
func (l *Ledger) ListPayments(ctx context.Context, studentID string) ([]core.Payment, error) {
	if _, err := l.store.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	return l.store.ListPayments(ctx, studentID)
}

// RecordImport stores the outcome of a bulk import.
func (l *Ledger) RecordImport(ctx context.Context, batch core.ImportBatch) (core.ImportBatch, error) {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = l.now()
	}
	if err := l.store.SaveImportBatch(ctx, batch); err != nil {
		return batch, fmt.Errorf("record import: %w", err)
	}
	return batch, nil
}

func (l *Ledger) publishBalance(ctx context.Context, b core.Balance) {
	if l.events == nil {
		slog.DebugContext(ctx, "Event publisher not available, skipping balance event")
		return
	}
	if err := l.events.PublishBalanceChanged(ctx, b); err != nil {
		// The balance is committed; subscribers resync on startup.
		slog.ErrorContext(ctx, "Failed to publish balance event",
			"student_id", b.StudentID, "error", err)
	}
}
