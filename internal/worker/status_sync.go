package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"feeledger/internal/amqp"
	"feeledger/internal/core"
	"feeledger/internal/sheets"
)

// StatusReader is the read side the worker mirrors from.
type StatusReader interface {
	StudentStatus(ctx context.Context, studentID string) (core.StudentStatus, error)
	Snapshot(ctx context.Context) ([]core.StudentStatus, error)
}

// StatusSyncWorker mirrors ledger status into a spreadsheet tab as ledger events arrive.
type StatusSyncWorker struct {
	statuses StatusReader
	mirror   sheets.StatusMirror
}

var _ amqp.Handler = (*StatusSyncWorker)(nil)

func NewStatusSyncWorker(statuses StatusReader, mirror sheets.StatusMirror) *StatusSyncWorker {
	return &StatusSyncWorker{statuses: statuses, mirror: mirror}
}

// HandleBalanceChanged reloads the student and rewrites its row. The message
// only identifies the student; the store is the source of truth.
func (w *StatusSyncWorker) HandleBalanceChanged(ctx context.Context, msg *amqp.BalanceChangedMessage) error {
	slog.InfoContext(ctx, "Processing balance change",
		"student_id", msg.StudentID,
		"version", msg.Version)

	row, err := w.statuses.StudentStatus(ctx, msg.StudentID)
	if errors.Is(err, core.ErrUnknownStudent) {
		slog.InfoContext(ctx, "Student no longer exists, removing from sheet", "student_id", msg.StudentID)
		return w.remove(ctx, msg.StudentID)
	}
	if err != nil {
		return fmt.Errorf("load student status: %w", err)
	}

	if err := w.mirror.UpsertStatus(ctx, row); err != nil {
		return fmt.Errorf("upsert status row: %w", err)
	}

	slog.InfoContext(ctx, "Successfully synced student status",
		"student_id", row.StudentID,
		"status", row.Status,
		"balance_cents", row.Balance.Cents)
	return nil
}

func (w *StatusSyncWorker) HandleStudentRemoved(ctx context.Context, msg *amqp.StudentRemovedMessage) error {
	slog.InfoContext(ctx, "Processing student removal", "student_id", msg.StudentID)
	return w.remove(ctx, msg.StudentID)
}

// HandleReconciliationCompleted rewrites the whole tab since every balance moved.
func (w *StatusSyncWorker) HandleReconciliationCompleted(ctx context.Context, msg *amqp.ReconciliationCompletedMessage) error {
	slog.InfoContext(ctx, "Processing reconciliation completion",
		"run_id", msg.RunID,
		"period_start", msg.PeriodStart,
		"period_end", msg.PeriodEnd,
		"reconciled", msg.Reconciled,
		"failed", msg.Failed)
	return w.FullSync(ctx)
}

// FullSync replaces the mirror with the current snapshot. Run at startup to
// recover from events missed while the worker was down.
func (w *StatusSyncWorker) FullSync(ctx context.Context) error {
	rows, err := w.statuses.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("load status snapshot: %w", err)
	}
	if err := w.mirror.ReplaceStatuses(ctx, rows); err != nil {
		return fmt.Errorf("replace status rows: %w", err)
	}
	slog.InfoContext(ctx, "Status sheet fully synced", "students", len(rows))
	return nil
}

func (w *StatusSyncWorker) remove(ctx context.Context, studentID string) error {
	if err := w.mirror.RemoveStudent(ctx, studentID); err != nil {
		return fmt.Errorf("remove status row: %w", err)
	}
	return nil
}
