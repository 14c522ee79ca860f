package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"feeledger/internal/report"
)

func newReportCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "report <xlsx|pdf>",
		Short: "Export the fee status of every student",
		Example: `  feectl report xlsx -o status.xlsx
  feectl report pdf -o status.pdf`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{report.FormatXLSX, report.FormatPDF},
		RunE: func(cmd *cobra.Command, args []string) error {
			format := strings.ToLower(args[0])
			render := report.StatusXLSX
			switch format {
			case report.FormatXLSX:
			case report.FormatPDF:
				render = report.StatusPDF
			default:
				return fmt.Errorf("unknown report format %q, expected xlsx or pdf", args[0])
			}

			rows, err := a.svc.Projection.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			data, err := render(rows, time.Now())
			if err != nil {
				return err
			}
			if out == "" {
				out = "fee-status." + format
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d students)\n", out, len(rows))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output file (default: fee-status.<format>)")
	return cmd
}
