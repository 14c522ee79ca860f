package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"feeledger/internal/core"
	"feeledger/internal/services"
)

func newReconcileCmd(a *app) *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Roll every balance into the next billing cycle",
		Long: `Reconcile a closed billing period: add each student's fee to the balance
and archive the payments dated inside the period.

Students already reconciled for the period are skipped, so running the
command twice is safe. When some students fail the command exits non-zero
and prints the ids to pass to "feectl retry".`,
		Example: `  # The period that closed most recently
  feectl reconcile

  # A specific period
  feectl reconcile --period 2025-02`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.period(period)
			if err != nil {
				return err
			}
			report, err := a.svc.Reconciler.ReconcileAll(cmd.Context(), p)
			return a.printReconcile(cmd.OutOrStdout(), report, err)
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "Billing period YYYY-MM (default: the last closed period)")
	return cmd
}

func newRetryCmd(a *app) *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "retry <code|id>...",
		Short: "Reconcile only the given students, typically the failures of a previous run",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.period(period)
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(args))
			for _, ref := range args {
				// Unresolvable refs go through unchanged and come back as failures.
				if s, err := a.resolveStudent(cmd.Context(), ref); err == nil {
					ids = append(ids, s.ID)
				} else {
					ids = append(ids, ref)
				}
			}
			report, err := a.svc.Reconciler.ReconcileStudents(cmd.Context(), p, ids)
			return a.printReconcile(cmd.OutOrStdout(), report, err)
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "Billing period YYYY-MM (default: the last closed period)")
	return cmd
}

func (a *app) period(s string) (core.Period, error) {
	if s = strings.TrimSpace(s); s == "" {
		return core.ClosedPeriod(time.Now().UTC(), a.billingDay()), nil
	}
	return core.ParseMonthPeriod(s, a.billingDay())
}

func (a *app) printReconcile(w io.Writer, report services.ReconcileReport, runErr error) error {
	var partial *services.PartialReconciliationError
	if runErr != nil && !errors.As(runErr, &partial) {
		return runErr
	}

	if a.jsonOut {
		if err := a.printJSON(w, struct {
			services.ReconcileReport
			PeriodStart string `json:"period_start"`
			PeriodEnd   string `json:"period_end"`
		}{report, report.Period.Start.Format(core.DateLayout), report.Period.End.Format(core.DateLayout)}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w, "Period %s (run %s)\n", report.Period, report.RunID)
		fmt.Fprintf(w, "  reconciled:          %d\n", report.Reconciled)
		fmt.Fprintf(w, "  payments archived:   %d\n", report.Archived)
		fmt.Fprintf(w, "  already reconciled:  %d\n", len(report.AlreadyReconciled))
		fmt.Fprintf(w, "  not yet enrolled:    %d\n", len(report.NotEnrolled))
		if report.CaughtUp > 0 {
			fmt.Fprintf(w, "  missed cycles:       %d\n", report.CaughtUp)
		}
		transitions := make([]string, 0, len(report.Transitions))
		for tr, n := range report.Transitions {
			transitions = append(transitions, fmt.Sprintf("%s=%d", tr, n))
		}
		sort.Strings(transitions)
		if len(transitions) > 0 {
			fmt.Fprintf(w, "  transitions:         %s\n", strings.Join(transitions, " "))
		}
		for _, f := range report.Failures {
			fmt.Fprintf(w, "  FAILED %s: %s\n", f.StudentID, f.Reason)
		}
	}

	if partial != nil {
		return fmt.Errorf("%d students failed, retry with: feectl retry --period %s %s",
			len(report.Failures), report.Period.Start.Format("2006-01"), strings.Join(report.FailedIDs(), " "))
	}
	return nil
}
