package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"feeledger/internal/report"
)

func newStatusCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "status [code|id]",
		Short: "Show fee status counts, every student, or one student",
		Example: `  feectl status
  feectl status --all
  feectl status STU001`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			if len(args) == 1 {
				s, err := a.resolveStudent(ctx, args[0])
				if err != nil {
					return err
				}
				row, err := a.svc.Projection.StudentStatus(ctx, s.ID)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return a.printJSON(w, row)
				}
				fmt.Fprintf(w, "%s (%s): %s %s, balance %s, last payment %s\n",
					row.Name, row.Code, row.Status, row.Amount, row.Balance, orDash(row.LastPaymentDate.String()))
				return nil
			}

			if all {
				rows, err := a.svc.Projection.Snapshot(ctx)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return a.printJSON(w, rows)
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CODE\tNAME\tFEE\tBALANCE\tSTATUS\tAMOUNT\tLAST PAYMENT")
				for _, r := range rows {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						r.Code, r.Name, r.Fee, r.Balance, r.Status, r.Amount, orDash(r.LastPaymentDate.String()))
				}
				return tw.Flush()
			}

			counts, err := a.svc.Projection.ListStatusCounts(ctx)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(w, counts)
			}
			fmt.Fprintf(w, "paid: %d  pending: %d  excess: %d  total: %d\n",
				counts.Paid, counts.Pending, counts.Excess, counts.Total)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "List every student instead of the counts")
	return cmd
}

func newRemindersCmd(a *app) *cobra.Command {
	var messages bool
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "List students with an amount due",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reminders, err := a.svc.Projection.PendingReminders(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if a.jsonOut {
				return a.printJSON(w, reminders)
			}
			if messages {
				for _, r := range reminders {
					text, err := report.ReminderText(r)
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "--- %s %s %s\n%s\n", r.Code, r.Phone, r.Email, text)
				}
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tNAME\tDUE\tLAST PAYMENT\tPHONE\tEMAIL")
			for _, r := range reminders {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.Code, r.Name, r.AmountDue, orDash(r.LastPaymentDate.String()), r.Phone, r.Email)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&messages, "messages", false, "Print the reminder text for each student")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

