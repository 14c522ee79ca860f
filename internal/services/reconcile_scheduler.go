package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"feeledger/internal/core"
)

// SchedulerConfig holds configuration for the reconcile scheduler
type SchedulerConfig struct {
	// CheckInterval is how often to check whether a billing period closed (default: 1h)
	CheckInterval time.Duration

	// BillingDay is the day of month a new cycle starts (default: 1)
	BillingDay int
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		CheckInterval: time.Hour,
		BillingDay:    1,
	}
}

type periodReconciler interface {
	ReconcileAll(ctx context.Context, p core.Period) (ReconcileReport, error)
}

// ReconcileScheduler is the recurring trigger: on every check it reconciles
// each billing period that closed since the last completed one, oldest first,
// until one run covers every student. Students already rolled over for a
// period are skipped, so restarts and retries after a partial failure never
// apply a fee twice.
type ReconcileScheduler struct {
	reconciler periodReconciler
	config     SchedulerConfig
	now        func() time.Time

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	done    core.Period // last period a run completed for, zero before the first
	lastErr error
}

func NewReconcileScheduler(reconciler periodReconciler, config SchedulerConfig) *ReconcileScheduler {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultSchedulerConfig().CheckInterval
	}
	return &ReconcileScheduler{
		reconciler: reconciler,
		config:     config,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the check loop. Returns an error if already running.
func (s *ReconcileScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("reconcile scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	slog.InfoContext(ctx, "Reconcile scheduler started",
		"check_interval", s.config.CheckInterval,
		"billing_day", s.config.BillingDay)
	return nil
}

// Stop signals the loop and waits for an in-flight run to finish.
func (s *ReconcileScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.doneCh:
		slog.InfoContext(ctx, "Reconcile scheduler stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Reconcile scheduler stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

// IsRunning returns whether the check loop is active
func (s *ReconcileScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *ReconcileScheduler) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	// Check immediately on startup
	s.check(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *ReconcileScheduler) check(ctx context.Context) {
	if _, err := s.Tick(ctx); err != nil {
		slog.ErrorContext(ctx, "Scheduled reconciliation failed", "error", err)
	}
}

// Tick reconciles every closed period after the last completed one, in order,
// and stops at the first failure so a later period never runs ahead of an
// earlier one. On the first tick only the latest closed period is requested:
// the reconciler catches each student up from their own last rollover. It
// reports whether a run was attempted.
func (s *ReconcileScheduler) Tick(ctx context.Context) (bool, error) {
	latest := core.ClosedPeriod(s.now(), s.config.BillingDay)

	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	var periods []core.Period
	switch {
	case done.Start.IsZero():
		periods = []core.Period{latest}
	case !done.Start.Before(latest.Start):
		return false, nil
	default:
		for p := done.Next(s.config.BillingDay); !p.Start.After(latest.Start); p = p.Next(s.config.BillingDay) {
			periods = append(periods, p)
		}
	}
	if len(periods) > 1 {
		slog.InfoContext(ctx, "Catching up missed billing periods",
			"from", periods[0].String(),
			"to", latest.String(),
			"periods", len(periods))
	}

	for _, p := range periods {
		if err := s.reconcile(ctx, p); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (s *ReconcileScheduler) reconcile(ctx context.Context, p core.Period) error {
	report, err := s.reconciler.ReconcileAll(ctx, p)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if err != nil {
		var partial *PartialReconciliationError
		if errors.As(err, &partial) {
			slog.WarnContext(ctx, "Reconciliation incomplete, retrying on next check",
				"period", p.String(),
				"failed_students", partial.StudentIDs)
		}
		return err
	}
	s.done = p
	slog.InfoContext(ctx, "Billing period closed",
		"period", p.String(),
		"run_id", report.RunID,
		"reconciled", report.Reconciled)
	return nil
}

// LastError returns the error of the most recent run, nil if it succeeded.
func (s *ReconcileScheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
