package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"feeledger/internal/core"
	"feeledger/internal/services"
	"feeledger/internal/storage/memory"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type recordingPublisher struct {
	mu          sync.Mutex
	balances    []core.Balance
	removed     []string
	completions int
	failed      int
}

func (p *recordingPublisher) PublishBalanceChanged(_ context.Context, b core.Balance) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances = append(p.balances, b)
	return nil
}

func (p *recordingPublisher) PublishStudentRemoved(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, id)
	return nil
}

func (p *recordingPublisher) PublishReconciliationCompleted(_ context.Context, _ string, _ core.Period, _, failed int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completions++
	p.failed += failed
	return nil
}

// flakyStore fails the transaction of selected students after fn ran, so
// every staged write must be rolled back.
type flakyStore struct {
	*memory.Store
	mu      sync.Mutex
	failFor map[string]error
}

func (f *flakyStore) fail(studentID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor == nil {
		f.failFor = make(map[string]error)
	}
	f.failFor[studentID] = err
}

func (f *flakyStore) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFor = nil
}

func (f *flakyStore) WithStudentTx(ctx context.Context, id string, fn func(services.StudentTx) error) error {
	f.mu.Lock()
	injected := f.failFor[id]
	f.mu.Unlock()
	return f.Store.WithStudentTx(ctx, id, func(tx services.StudentTx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return injected
	})
}

type fixture struct {
	store  *flakyStore
	clock  *testClock
	events *recordingPublisher
	ledger *services.Ledger
}

var (
	febEnrollment = time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)
	february      = core.MonthPeriod(2025, time.February, 1)
	marchFirst    = time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  &flakyStore{Store: memory.New()},
		clock:  &testClock{t: febEnrollment},
		events: &recordingPublisher{},
	}
	f.ledger = services.NewLedger(f.store, f.events, services.WithClock(f.clock.Now))
	return f
}

func (f *fixture) register(t *testing.T, code string, fee int64, markPaid bool) core.Student {
	t.Helper()
	s, _, err := f.ledger.RegisterStudent(context.Background(), services.StudentInput{
		Code:     code,
		Name:     "Student " + code,
		Fee:      core.Cents(fee),
		MarkPaid: markPaid,
	})
	require.NoError(t, err)
	return s
}

func (f *fixture) pay(t *testing.T, studentID string, amount int64, day int) core.Balance {
	t.Helper()
	b, err := f.ledger.ApplyPayment(context.Background(), services.PaymentInput{
		StudentID: studentID,
		Amount:    core.Cents(amount),
		Date:      core.NewDate(2025, 2, day),
		Method:    core.MethodCash,
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) balance(t *testing.T, studentID string) core.Balance {
	t.Helper()
	b, err := f.store.GetBalance(context.Background(), studentID)
	require.NoError(t, err)
	return b
}

func TestRegisterStudentOpensBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	owing := f.register(t, "stu001", 1000, false)
	require.Equal(t, "STU001", owing.Code)
	require.Equal(t, int64(1000), f.balance(t, owing.ID).Current.Cents)

	paid := f.register(t, "STU002", 1000, true)
	b := f.balance(t, paid.ID)
	require.True(t, b.Current.IsZero())
	require.Equal(t, int64(1000), b.TotalPaid.Cents)

	_, _, err := f.ledger.RegisterStudent(ctx, services.StudentInput{Code: "STU001", Name: "Dup", Fee: core.Cents(1)})
	require.ErrorIs(t, err, core.ErrDuplicateStudentCode)

	_, _, err = f.ledger.RegisterStudent(ctx, services.StudentInput{Code: "STU003", Name: "Neg", Fee: core.Cents(-1)})
	require.ErrorIs(t, err, core.ErrInvalidFee)

	require.Len(t, f.events.balances, 2)
}

func TestPaymentOnSettledStudentBecomesExcess(t *testing.T) {
	f := newFixture(t)
	s := f.register(t, "STU001", 1000, true)

	b := f.pay(t, s.ID, 250, 5)
	require.Equal(t, int64(-250), b.Current.Cents)

	view, err := services.NewProjection(f.store).GetStatus(context.Background(), s.ID)
	require.NoError(t, err)
	require.Equal(t, core.StatusExcess, view.Status)
	require.Equal(t, int64(250), view.Amount.Cents)
}

func TestSplitPaymentsSettleFreshStudent(t *testing.T) {
	for _, split := range [][]int64{{1000}, {400, 600}, {1, 1, 998}, {250, 250, 250, 250}} {
		t.Run(fmt.Sprint(split), func(t *testing.T) {
			f := newFixture(t)
			s := f.register(t, "STU001", 1000, false)
			var b core.Balance
			for i, a := range split {
				b = f.pay(t, s.ID, a, i+1)
			}
			require.True(t, b.Current.IsZero())
			require.Equal(t, core.StatusPaid, b.View().Status)
			require.Equal(t, int64(1000), b.TotalPaid.Cents)
			require.Equal(t, int64(1+len(split)), b.Version)
		})
	}
}

func TestApplyPaymentErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "STU001", 1000, false)

	_, err := f.ledger.ApplyPayment(ctx, services.PaymentInput{StudentID: s.ID, Amount: core.Cents(0)})
	require.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = f.ledger.ApplyPayment(ctx, services.PaymentInput{StudentID: s.ID, Amount: core.Cents(-10)})
	require.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = f.ledger.ApplyPayment(ctx, services.PaymentInput{StudentID: "missing", Amount: core.Cents(10)})
	require.ErrorIs(t, err, core.ErrUnknownStudent)

	require.Equal(t, int64(1000), f.balance(t, s.ID).Current.Cents)
}

func TestApplyPaymentDefaults(t *testing.T) {
	f := newFixture(t)
	s := f.register(t, "STU001", 1000, false)

	_, err := f.ledger.ApplyPayment(context.Background(), services.PaymentInput{StudentID: s.ID, Amount: core.Cents(100)})
	require.NoError(t, err)

	payments, err := f.ledger.ListPayments(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Equal(t, core.MethodManual, payments[0].Method)
	require.Equal(t, "2025-02-03", payments[0].Date.String())
}

func TestDuplicateTransactionRefNeverChangesBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "STU001", 1000, false)
	other := f.register(t, "STU002", 1000, false)

	in := services.PaymentInput{
		StudentID:      s.ID,
		Amount:         core.Cents(300),
		Date:           core.NewDate(2025, 2, 4),
		Method:         core.MethodImport,
		TransactionRef: "UPI-4711",
	}
	first, skipped, err := f.ledger.ApplyPaymentIdempotent(ctx, in)
	require.NoError(t, err)
	require.False(t, skipped)
	require.Equal(t, int64(700), first.Current.Cents)

	for i := 0; i < 3; i++ {
		again, skipped, err := f.ledger.ApplyPaymentIdempotent(ctx, in)
		require.NoError(t, err)
		require.True(t, skipped)
		require.Equal(t, first, again)
	}

	b, err := f.ledger.ApplyPayment(ctx, in)
	require.ErrorIs(t, err, core.ErrDuplicateTransactionRef)
	require.Equal(t, int64(700), b.Current.Cents)

	// The reference is global, not per student.
	in.StudentID = other.ID
	_, skipped, err = f.ledger.ApplyPaymentIdempotent(ctx, in)
	require.NoError(t, err)
	require.True(t, skipped)
	require.Equal(t, int64(1000), f.balance(t, other.ID).Current.Cents)

	payments, err := f.ledger.ListPayments(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
}

func TestDuplicateRefDetectedAfterArchive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "STU001", 1000, false)

	in := services.PaymentInput{StudentID: s.ID, Amount: core.Cents(1000), Date: core.NewDate(2025, 2, 10), TransactionRef: "BANK-1"}
	_, err := f.ledger.ApplyPayment(ctx, in)
	require.NoError(t, err)

	f.clock.Set(marchFirst)
	_, err = services.NewReconciler(f.ledger, services.DefaultReconcilerConfig()).ReconcileAll(ctx, february)
	require.NoError(t, err)
	require.Equal(t, int64(1000), f.balance(t, s.ID).Current.Cents)

	// Re-importing last month's statement must not credit the payment again.
	_, skipped, err := f.ledger.ApplyPaymentIdempotent(ctx, in)
	require.NoError(t, err)
	require.True(t, skipped)
	require.Equal(t, int64(1000), f.balance(t, s.ID).Current.Cents)
}

func TestPaymentIntoReconciledPeriodRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "STU001", 1000, false)

	f.clock.Set(marchFirst)
	_, err := services.NewReconciler(f.ledger, services.DefaultReconcilerConfig()).ReconcileAll(ctx, february)
	require.NoError(t, err)
	require.Equal(t, int64(2000), f.balance(t, s.ID).Current.Cents)

	_, err = f.ledger.ApplyPayment(ctx, services.PaymentInput{StudentID: s.ID, Amount: core.Cents(500), Date: core.NewDate(2025, 2, 27)})
	require.ErrorIs(t, err, core.ErrClosedPeriod)
	require.Equal(t, int64(2000), f.balance(t, s.ID).Current.Cents)
	payments, err := f.ledger.ListPayments(ctx, s.ID)
	require.NoError(t, err)
	require.Empty(t, payments)

	b, err := f.ledger.ApplyPayment(ctx, services.PaymentInput{StudentID: s.ID, Amount: core.Cents(500), Date: core.NewDate(2025, 3, 1)})
	require.NoError(t, err)
	require.Equal(t, int64(1500), b.Current.Cents)
}

func TestRemovePaymentInvertsApply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "STU001", 1000, false)
	before := f.pay(t, s.ID, 300, 2)

	after := f.pay(t, s.ID, 900, 9)
	require.Equal(t, int64(-200), after.Current.Cents)

	payments, err := f.ledger.ListPayments(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	require.Equal(t, "2025-02-09", payments[0].Date.String())

	restored, err := f.ledger.RemovePayment(ctx, payments[0].ID)
	require.NoError(t, err)
	require.Equal(t, before.Current, restored.Current)
	require.Equal(t, before.TotalPaid, restored.TotalPaid)
	require.Equal(t, before.LastPaymentDate, restored.LastPaymentDate)

	restored, err = f.ledger.RemovePayment(ctx, payments[1].ID)
	require.NoError(t, err)
	require.Equal(t, int64(1000), restored.Current.Cents)
	require.True(t, restored.LastPaymentDate.IsEmpty())

	_, err = f.ledger.RemovePayment(ctx, payments[1].ID)
	require.ErrorIs(t, err, core.ErrPaymentNotFound)
}

func TestRemovePaymentFreesTransactionRef(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "STU001", 1000, false)

	in := services.PaymentInput{StudentID: s.ID, Amount: core.Cents(100), Date: core.NewDate(2025, 2, 4), TransactionRef: "R-1"}
	_, err := f.ledger.ApplyPayment(ctx, in)
	require.NoError(t, err)
	payments, err := f.ledger.ListPayments(ctx, s.ID)
	require.NoError(t, err)
	_, err = f.ledger.RemovePayment(ctx, payments[0].ID)
	require.NoError(t, err)

	in.Amount = core.Cents(150)
	b, err := f.ledger.ApplyPayment(ctx, in)
	require.NoError(t, err)
	require.Equal(t, int64(850), b.Current.Cents)
}

func TestUpdateFeeKeepsBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "STU001", 1000, false)

	updated, err := f.ledger.UpdateFee(ctx, s.ID, core.Cents(1500))
	require.NoError(t, err)
	require.Equal(t, int64(1500), updated.Fee.Cents)

	b := f.balance(t, s.ID)
	require.Equal(t, int64(1000), b.Current.Cents)
	require.Equal(t, int64(1500), b.TotalFees.Cents)

	_, err = f.ledger.UpdateFee(ctx, s.ID, core.Cents(-1))
	require.ErrorIs(t, err, core.ErrInvalidFee)
	_, err = f.ledger.UpdateFee(ctx, "missing", core.Cents(1))
	require.ErrorIs(t, err, core.ErrUnknownStudent)

	f.clock.Set(marchFirst)
	_, err = services.NewReconciler(f.ledger, services.DefaultReconcilerConfig()).ReconcileAll(ctx, february)
	require.NoError(t, err)
	require.Equal(t, int64(2500), f.balance(t, s.ID).Current.Cents)
}

func TestRemoveStudentCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "STU001", 1000, false)
	f.pay(t, s.ID, 100, 2)

	require.NoError(t, f.ledger.RemoveStudent(ctx, s.ID))
	require.Equal(t, []string{s.ID}, f.events.removed)

	_, _, err := f.ledger.GetStudent(ctx, s.ID)
	require.ErrorIs(t, err, core.ErrUnknownStudent)
	_, err = f.store.GetBalance(ctx, s.ID)
	require.ErrorIs(t, err, core.ErrUnknownStudent)
	_, err = f.ledger.ListPayments(ctx, s.ID)
	require.ErrorIs(t, err, core.ErrUnknownStudent)

	require.ErrorIs(t, f.ledger.RemoveStudent(ctx, s.ID), core.ErrUnknownStudent)
}

func TestConcurrentPaymentsOnOneStudent(t *testing.T) {
	f := newFixture(t)
	s := f.register(t, "STU001", 10000, false)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.ApplyPayment(context.Background(), services.PaymentInput{
				StudentID: s.ID,
				Amount:    core.Cents(200),
				Date:      core.NewDate(2025, 2, 1+i%27),
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	b := f.balance(t, s.ID)
	require.True(t, b.Current.IsZero())
	require.Equal(t, int64(10000), b.TotalPaid.Cents)
	require.Equal(t, int64(51), b.Version)
}

func TestRecordImport(t *testing.T) {
	f := newFixture(t)
	batch, err := f.ledger.RecordImport(context.Background(), core.ImportBatch{
		Source:    "statement.xlsx",
		Total:     3,
		Processed: 1,
		Skipped:   1,
		Failed:    1,
		Errors:    []core.ImportRowError{{Row: 4, StudentRef: "ZZ99", Message: "unknown student"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, batch.ID)
	require.Equal(t, febEnrollment, batch.CreatedAt)

	stored := f.store.ImportBatches()
	require.Len(t, stored, 1)
	require.Equal(t, batch.ID, stored[0].ID)
	require.Len(t, stored[0].Errors, 1)
}

func TestFlakyStoreRollsBackPayment(t *testing.T) {
	f := newFixture(t)
	s := f.register(t, "STU001", 1000, false)
	f.store.fail(s.ID, errors.New("disk full"))

	_, err := f.ledger.ApplyPayment(context.Background(), services.PaymentInput{StudentID: s.ID, Amount: core.Cents(100)})
	require.Error(t, err)
	require.Equal(t, int64(1000), f.balance(t, s.ID).Current.Cents)

	payments, err := f.ledger.ListPayments(context.Background(), s.ID)
	require.NoError(t, err)
	require.Empty(t, payments)
}
