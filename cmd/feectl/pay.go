package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"feeledger/internal/core"
	"feeledger/internal/services"
)

func newPayCmd(a *app) *cobra.Command {
	var date, method, ref, remark string
	cmd := &cobra.Command{
		Use:   "pay <code|id> <amount>",
		Short: "Record a payment against a student's balance",
		Long: `Record a payment. With --ref the payment is applied at most once:
a reference already on the ledger is reported as skipped.`,
		Example: `  feectl pay STU001 1500 --method upi --ref 412345678901
  feectl pay STU002 500 --date 2025-02-03 --method cash`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.resolveStudent(ctx, args[0])
			if err != nil {
				return err
			}
			amount, err := core.ParseAmount(args[1])
			if err != nil {
				return err
			}
			var d core.Date
			if date != "" {
				if d, err = core.ParseDate(date); err != nil {
					return fmt.Errorf("invalid --date %q: %w", date, err)
				}
			}
			m, err := core.ParsePaymentMethod(method)
			if err != nil {
				return err
			}

			in := services.PaymentInput{
				StudentID:      s.ID,
				Amount:         amount,
				Date:           d,
				Method:         m,
				TransactionRef: ref,
				Remark:         remark,
			}
			var (
				b       core.Balance
				skipped bool
			)
			if ref != "" {
				b, skipped, err = a.svc.Ledger.ApplyPaymentIdempotent(ctx, in)
			} else {
				b, err = a.svc.Ledger.ApplyPayment(ctx, in)
			}
			if err != nil {
				return err
			}

			view := b.View()
			if a.jsonOut {
				return a.printJSON(cmd.OutOrStdout(), map[string]any{
					"student_id":            s.ID,
					"skipped":               skipped,
					"current_balance_cents": b.Current.Cents,
					"status":                view.Status,
				})
			}
			if skipped {
				fmt.Fprintf(cmd.OutOrStdout(), "Reference %s already recorded, nothing applied\n", ref)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): balance %s, %s\n", s.Name, s.Code, b.Current, view.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Payment date YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&method, "method", "manual", "manual, cash, online/upi or import")
	cmd.Flags().StringVar(&ref, "ref", "", "External transaction reference; makes the payment idempotent")
	cmd.Flags().StringVar(&remark, "remark", "", "Free-form remark")
	return cmd
}
