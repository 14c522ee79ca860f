package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"feeledger/internal/core"
	gsheet "feeledger/internal/sheets/google"
)

func newImportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Apply a bank statement of payments",
		Long: `Import payments from a statement. Rows are matched to students by a
student code in Remarks, then by code or name in the student column.
Rows whose transaction reference is already on the ledger are skipped,
so a statement can be imported again safely.`,
	}
	cmd.AddCommand(newImportXLSXCmd(a), newImportSheetCmd(a))
	return cmd
}

func newImportXLSXCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "xlsx <file>",
		Short:   "Import the first sheet of an .xlsx workbook",
		Example: `  feectl import xlsx ~/Downloads/february.xlsx`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open statement: %w", err)
			}
			defer f.Close()

			batch, err := a.svc.Importer.ImportXLSX(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			return a.printBatch(cmd.OutOrStdout(), batch)
		},
	}
}

func newImportSheetCmd(a *app) *cobra.Command {
	var tab string
	cmd := &cobra.Command{
		Use:   "sheet",
		Short: "Import the statement tab of the configured Google Sheet",
		Long: `Import the statement tab of GOOGLE_SPREADSHEET_ID using the service account
in GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tab == "" {
				tab = a.cfg.GoogleStatementSheetName
			}
			client, err := gsheet.New(cmd.Context(), gsheet.Settings{
				SpreadsheetID:   a.cfg.GoogleSpreadsheetID,
				StatusSheet:     a.cfg.GoogleSheetName,
				StatementSheet:  tab,
				CredentialsJSON: a.cfg.GoogleServiceAccountJSON,
				CredentialsFile: a.cfg.GoogleServiceAccountFile,
			})
			if err != nil {
				return err
			}
			batch, err := a.svc.Importer.ImportSheet(cmd.Context(), "sheet:"+tab, client)
			if err != nil {
				return err
			}
			return a.printBatch(cmd.OutOrStdout(), batch)
		},
	}
	cmd.Flags().StringVar(&tab, "tab", "", "Statement tab name (default: GOOGLE_STATEMENT_SHEET_NAME)")
	return cmd
}

func (a *app) printBatch(w io.Writer, batch core.ImportBatch) error {
	if a.jsonOut {
		return a.printJSON(w, batch)
	}
	fmt.Fprintf(w, "Imported %s: %d rows, %d applied, %d skipped, %d failed\n",
		batch.Source, batch.Total, batch.Processed, batch.Skipped, batch.Failed)
	for _, e := range batch.Errors {
		fmt.Fprintf(w, "  row %d (%s): %s\n", e.Row, e.StudentRef, e.Message)
	}
	return nil
}
