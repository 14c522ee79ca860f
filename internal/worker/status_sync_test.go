package worker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"feeledger/internal/amqp"
	"feeledger/internal/core"
	"feeledger/internal/services"
	sheetsmem "feeledger/internal/sheets/memory"
	"feeledger/internal/storage/memory"
	"feeledger/internal/worker"
)

type harness struct {
	ledger *services.Ledger
	mirror *sheetsmem.Store
	worker *worker.StatusSyncWorker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.New()
	mirror := sheetsmem.New(nil)
	return &harness{
		ledger: services.NewLedger(store, nil),
		mirror: mirror,
		worker: worker.NewStatusSyncWorker(services.NewProjection(store), mirror),
	}
}

func (h *harness) register(t *testing.T, code, name string, fee int64) core.Student {
	t.Helper()
	s, _, err := h.ledger.RegisterStudent(context.Background(), services.StudentInput{Code: code, Name: name, Fee: core.Cents(fee)})
	require.NoError(t, err)
	return s
}

func TestStatusSyncFullSyncOrdersByName(t *testing.T) {
	h := newHarness(t)
	h.register(t, "STU002", "Ravi", 1000)
	h.register(t, "STU001", "Asha", 0)

	require.NoError(t, h.worker.FullSync(context.Background()))

	rows := h.mirror.Rows()
	require.Len(t, rows, 2)
	require.Equal(t, "Asha", rows[0][1])
	require.Equal(t, "paid", rows[0][5])
	require.Equal(t, "Ravi", rows[1][1])
	require.Equal(t, "pending", rows[1][5])
}

func TestStatusSyncBalanceChangedUpserts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.register(t, "STU001", "Asha", 1000)

	b, err := h.ledger.ApplyPayment(ctx, services.PaymentInput{
		StudentID: s.ID,
		Amount:    core.Cents(1500),
		Date:      core.NewDate(2025, 2, 3),
		Method:    core.MethodCash,
	})
	require.NoError(t, err)

	require.NoError(t, h.worker.HandleBalanceChanged(ctx, amqp.NewBalanceChangedMessage(b)))
	require.NoError(t, h.worker.HandleBalanceChanged(ctx, amqp.NewBalanceChangedMessage(b)))

	rows := h.mirror.Rows()
	require.Len(t, rows, 1)
	require.Equal(t, "-5.00", rows[0][4])
	require.Equal(t, "excess", rows[0][5])
	require.Equal(t, "2025-02-03", rows[0][8])
}

func TestStatusSyncRemovesDeletedStudents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.register(t, "STU001", "Asha", 1000)
	b := h.register(t, "STU002", "Ravi", 1000)
	require.NoError(t, h.worker.FullSync(ctx))

	require.NoError(t, h.ledger.RemoveStudent(ctx, a.ID))
	require.NoError(t, h.worker.HandleStudentRemoved(ctx, amqp.NewStudentRemovedMessage(a.ID)))
	require.Len(t, h.mirror.Rows(), 1)

	// A late balance event for a deleted student also drops the row.
	require.NoError(t, h.ledger.RemoveStudent(ctx, b.ID))
	require.NoError(t, h.worker.HandleBalanceChanged(ctx, &amqp.BalanceChangedMessage{StudentID: b.ID}))
	require.Empty(t, h.mirror.Rows())
}

func TestStatusSyncReconciliationTriggersFullSync(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "STU001", "Asha", 1000)

	msg := amqp.NewReconciliationCompletedMessage("run-1", core.MonthPeriod(2025, 2, 1), 1, 0)
	require.NoError(t, h.worker.HandleReconciliationCompleted(ctx, msg))
	require.Len(t, h.mirror.Rows(), 1)
	require.Equal(t, 1, h.mirror.Writes())
}

type failingMirror struct{ sheetsmem.Store }

func (*failingMirror) UpsertStatus(context.Context, core.StudentStatus) error {
	return errors.New("quota exceeded")
}

func TestStatusSyncMirrorErrorIsReturned(t *testing.T) {
	store := memory.New()
	ledger := services.NewLedger(store, nil)
	s, b, err := ledger.RegisterStudent(context.Background(), services.StudentInput{Code: "STU001", Name: "Asha", Fee: core.Cents(100)})
	require.NoError(t, err)
	require.Equal(t, s.ID, b.StudentID)

	w := worker.NewStatusSyncWorker(services.NewProjection(store), &failingMirror{})
	err = w.HandleBalanceChanged(context.Background(), amqp.NewBalanceChangedMessage(b))
	require.Error(t, err)
	require.Contains(t, err.Error(), "quota exceeded")
}
