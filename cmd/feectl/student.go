package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"feeledger/internal/core"
	"feeledger/internal/services"
)

type studentFlags struct {
	code, name, fee           string
	class, email, phone, note string
	paid                      bool
}

func newStudentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "student",
		Short: "Register, list and remove students",
	}
	cmd.AddCommand(newStudentAddCmd(a), newStudentListCmd(a), newStudentFeeCmd(a), newStudentRemoveCmd(a))
	return cmd
}

func newStudentAddCmd(a *app) *cobra.Command {
	var f studentFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a student with an opening balance equal to the fee",
		Example: `  feectl student add --code STU001 --name "Asha Rao" --fee 1500
  feectl student add --code STU002 --name "Ravi" --fee 1200 --paid`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fee, err := core.ParseFee(f.fee)
			if err != nil {
				return err
			}
			s, b, err := a.svc.Ledger.RegisterStudent(cmd.Context(), services.StudentInput{
				Code:      f.code,
				Name:      f.name,
				Fee:       fee,
				ClassName: f.class,
				Email:     f.email,
				Phone:     f.phone,
				Notes:     f.note,
				MarkPaid:  f.paid,
			})
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(cmd.OutOrStdout(), services.StatusRow(s, b))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s) id=%s balance=%s\n", s.Name, s.Code, s.ID, b.Current)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.code, "code", "", "Student code, e.g. STU001")
	cmd.Flags().StringVar(&f.name, "name", "", "Display name")
	cmd.Flags().StringVar(&f.fee, "fee", "", "Recurring fee per billing period")
	cmd.Flags().StringVar(&f.class, "class", "", "Class or batch name")
	cmd.Flags().StringVar(&f.email, "email", "", "Contact email")
	cmd.Flags().StringVar(&f.phone, "phone", "", "Contact phone")
	cmd.Flags().StringVar(&f.note, "notes", "", "Free-form notes")
	cmd.Flags().BoolVar(&f.paid, "paid", false, "Start settled: the first fee counts as paid")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("fee")
	return cmd
}

func newStudentListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List students with their fee",
		RunE: func(cmd *cobra.Command, _ []string) error {
			students, err := a.svc.Ledger.ListStudents(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(cmd.OutOrStdout(), students)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tNAME\tCLASS\tFEE\tID")
			for _, s := range students {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Code, s.Name, s.ClassName, s.Fee, s.ID)
			}
			return tw.Flush()
		},
	}
}

func newStudentFeeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fee <code|id> <amount>",
		Short: "Change a student's fee from the next billing period",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.resolveStudent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fee, err := core.ParseFee(args[1])
			if err != nil {
				return err
			}
			updated, err := a.svc.Ledger.UpdateFee(cmd.Context(), s.ID, fee)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fee for %s is now %s\n", updated.Code, updated.Fee)
			return nil
		},
	}
}

func newStudentRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <code|id>",
		Aliases: []string{"remove"},
		Short:   "Remove a student together with its balance and payments",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.resolveStudent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := a.svc.Ledger.RemoveStudent(cmd.Context(), s.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (%s)\n", s.Name, s.Code)
			return nil
		},
	}
}
