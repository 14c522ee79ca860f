package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"feeledger/internal/core"
	"feeledger/internal/metrics"
)

// ErrPartialReconciliation matches a *PartialReconciliationError.
var ErrPartialReconciliation = errors.New("ledger: partial reconciliation failure")

// PartialReconciliationError lists the students a run could not reconcile.
// Re-running the same period for them is safe: students already rolled over
// for it are skipped.
type PartialReconciliationError struct {
	Period     core.Period
	StudentIDs []string
}

func (e *PartialReconciliationError) Error() string {
	return fmt.Sprintf("reconcile %s: %d student(s) failed: %s",
		e.Period, len(e.StudentIDs), strings.Join(e.StudentIDs, ", "))
}

func (e *PartialReconciliationError) Is(target error) bool {
	return target == ErrPartialReconciliation
}

// StudentFailure is a student that could not be reconciled and why.
type StudentFailure struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// ReconcileReport summarises one reconciliation run.
type ReconcileReport struct {
	RunID             string                  `json:"run_id"`
	Period            core.Period             `json:"-"`
	Reconciled        int                     `json:"reconciled"`
	Archived          int                     `json:"archived_payments"`
	CaughtUp          int                     `json:"caught_up_periods"`
	AlreadyReconciled []string                `json:"already_reconciled"`
	NotEnrolled       []string                `json:"not_enrolled"`
	Failures          []StudentFailure        `json:"failures"`
	Transitions       map[core.Transition]int `json:"transitions"`
}

// FailedIDs returns the ids to pass to ReconcileStudents for a retry.
func (r ReconcileReport) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		ids = append(ids, f.StudentID)
	}
	return ids
}

// ReconcilerConfig holds the reconciler's tunables.
type ReconcilerConfig struct {
	// Concurrency bounds how many students are reconciled at once (default: 4)
	Concurrency int
	Policy      core.RolloverPolicy
	// BillingDay places missed cycles when a balance lags behind (default: 1)
	BillingDay int
}

func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Concurrency: 4,
		Policy:      core.DefaultRolloverPolicy(),
		BillingDay:  1,
	}
}

// Reconciler rolls every balance into the next billing cycle and archives the
// closed period's payments. It shares the ledger's store and per-student locks
// so a payment and a rollover on the same student never interleave.
type Reconciler struct {
	ledger *Ledger
	config ReconcilerConfig
}

func NewReconciler(ledger *Ledger, config ReconcilerConfig) *Reconciler {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.BillingDay < 1 {
		config.BillingDay = 1
	}
	return &Reconciler{ledger: ledger, config: config}
}

type reconcileOutcome int

const (
	outcomeReconciled reconcileOutcome = iota
	outcomeAlreadyReconciled
	outcomeNotEnrolled
)

// ReconcileAll reconciles every student for the closed period p.
func (r *Reconciler) ReconcileAll(ctx context.Context, p core.Period) (ReconcileReport, error) {
	if err := p.Validate(); err != nil {
		return ReconcileReport{}, err
	}
	students, err := r.ledger.store.ListStudents(ctx)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("list students: %w", err)
	}
	return r.run(ctx, p, students, nil)
}

// ReconcileStudents reconciles only the given students for p. It is the retry
// path after a partial failure.
func (r *Reconciler) ReconcileStudents(ctx context.Context, p core.Period, studentIDs []string) (ReconcileReport, error) {
	if err := p.Validate(); err != nil {
		return ReconcileReport{}, err
	}
	var (
		students []core.Student
		missing  []StudentFailure
		seen     = make(map[string]bool, len(studentIDs))
	)
	for _, id := range studentIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		s, err := r.ledger.store.GetStudent(ctx, id)
		if err != nil {
			missing = append(missing, StudentFailure{StudentID: id, Reason: err.Error()})
			continue
		}
		students = append(students, s)
	}
	return r.run(ctx, p, students, missing)
}

func (r *Reconciler) run(ctx context.Context, p core.Period, students []core.Student, failures []StudentFailure) (ReconcileReport, error) {
	started := time.Now()
	report := ReconcileReport{
		RunID:       uuid.NewString(),
		Period:      p,
		Failures:    failures,
		Transitions: make(map[core.Transition]int),
	}

	slog.InfoContext(ctx, "Starting reconciliation",
		"run_id", report.RunID,
		"period", p.String(),
		"students", len(students),
		"concurrency", r.config.Concurrency)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(r.config.Concurrency)
	for _, s := range students {
		g.Go(func() error {
			outcome, trs, archived, err := r.reconcileStudent(ctx, report.RunID, p, s)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.ErrorContext(ctx, "Failed to reconcile student",
					"run_id", report.RunID,
					"student_id", s.ID,
					"error", err)
				report.Failures = append(report.Failures, StudentFailure{StudentID: s.ID, Reason: err.Error()})
				return nil
			}
			switch outcome {
			case outcomeAlreadyReconciled:
				report.AlreadyReconciled = append(report.AlreadyReconciled, s.ID)
			case outcomeNotEnrolled:
				report.NotEnrolled = append(report.NotEnrolled, s.ID)
			default:
				report.Reconciled++
				report.Archived += archived
				report.CaughtUp += len(trs) - 1
				for _, tr := range trs {
					report.Transitions[tr]++
				}
			}
			// Failures are collected in the report; never cancel the other students.
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.AlreadyReconciled)
	sort.Strings(report.NotEnrolled)
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].StudentID < report.Failures[j].StudentID
	})

	result := metrics.ResultSuccess
	if len(report.Failures) > 0 {
		result = metrics.ResultPartial
	}
	metrics.ObserveReconciliation(result, time.Since(started))

	slog.InfoContext(ctx, "Reconciliation complete",
		"run_id", report.RunID,
		"period", p.String(),
		"reconciled", report.Reconciled,
		"already_reconciled", len(report.AlreadyReconciled),
		"not_enrolled", len(report.NotEnrolled),
		"failed", len(report.Failures),
		"archived_payments", report.Archived,
		"caught_up_periods", report.CaughtUp)

	if r.ledger.events != nil {
		if err := r.ledger.events.PublishReconciliationCompleted(ctx, report.RunID, p, report.Reconciled, len(report.Failures)); err != nil {
			slog.ErrorContext(ctx, "Failed to publish reconciliation event", "run_id", report.RunID, "error", err)
		}
	}

	if len(report.Failures) > 0 {
		return report, &PartialReconciliationError{Period: p, StudentIDs: report.FailedIDs()}
	}
	return report, nil
}

// reconcileStudent rolls one balance over and archives the student's payments
// in the closed window, both in one transaction. Cycles the balance missed
// before p are rolled over first, oldest first, and their payments archived
// with p's.
func (r *Reconciler) reconcileStudent(ctx context.Context, runID string, p core.Period, s core.Student) (reconcileOutcome, []core.Transition, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, 0, err
	}
	// Enrolled after the window closed: the opening balance already holds
	// the first fee of the current cycle.
	if !s.CreatedAt.IsZero() && !s.CreatedAt.Before(p.End) {
		return outcomeNotEnrolled, nil, 0, nil
	}

	unlock := r.ledger.locks.Lock(s.ID)
	defer unlock()

	var (
		outcome  reconcileOutcome
		trs      []core.Transition
		archived int
		saved    core.Balance
	)
	err := r.ledger.store.WithStudentTx(ctx, s.ID, func(tx StudentTx) error {
		cur := tx.Balance()
		pending, err := cur.PendingPeriods(p, tx.Student().CreatedAt, r.config.BillingDay)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			outcome = outcomeAlreadyReconciled
			return nil
		}

		// Payments dated before the first cycle are still live on a balance
		// that was never rolled over; they close with it.
		window := core.Period{Start: pending[0].Start, End: p.End}
		if cur.ReconciledUntil.IsEmpty() {
			window.Start = time.Time{}
		}

		next := cur
		trs = make([]core.Transition, 0, len(pending))
		for _, cycle := range pending {
			var tr core.Transition
			if next, tr, err = next.Rollover(tx.Student().Fee, cycle, r.config.Policy, r.ledger.now()); err != nil {
				return fmt.Errorf("rollover %s: %w", cycle, err)
			}
			trs = append(trs, tr)
		}

		if saved, err = tx.SaveBalance(next); err != nil {
			return fmt.Errorf("save balance: %w", err)
		}
		if archived, err = tx.ArchivePayments(window, runID); err != nil {
			return fmt.Errorf("archive payments: %w", err)
		}
		outcome = outcomeReconciled
		return nil
	})
	if err != nil {
		return 0, nil, 0, err
	}
	if outcome != outcomeReconciled {
		return outcome, nil, 0, nil
	}

	for _, tr := range trs {
		metrics.ObserveTransition(string(tr))
	}
	if len(trs) > 1 {
		slog.InfoContext(ctx, "Caught up missed billing cycles",
			"run_id", runID,
			"student_id", s.ID,
			"cycles", len(trs))
	}
	slog.DebugContext(ctx, "Reconciled student",
		"run_id", runID,
		"student_id", s.ID,
		"transitions", trs,
		"balance_cents", saved.Current.Cents,
		"archived_payments", archived)
	r.ledger.publishBalance(ctx, saved)
	return outcomeReconciled, trs, archived, nil
}
