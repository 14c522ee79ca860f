package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"feeledger/internal/backend"
	"feeledger/internal/cli"
	"feeledger/internal/config"
	"feeledger/internal/core"
	"feeledger/internal/log"
)

var version = "1.0.0"

// stderr receives logs; tests swap it out.
var stderr io.Writer = os.Stderr

// app carries what every subcommand needs. It is opened lazily so --help
// never touches the database.
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	res     *backend.BackendResult
	svc     cli.Services
	jsonOut bool
}

func (a *app) open(ctx context.Context) error {
	if a.svc.Ledger != nil {
		return nil
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	// Diagnostics go to stderr so stdout stays parseable.
	a.logger = log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: log.ComponentCLI,
		Output:    stderr,
	})
	log.SetDefault(a.logger)

	if cfg.DataBackend == backend.MemoryBackend.String() {
		a.logger.Warn("DATA_BACKEND=memory: changes are lost when feectl exits")
	}
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(a.logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	a.res = res
	a.svc = cli.NewServices(res, cfg)
	return nil
}

func (a *app) close() {
	if a.res == nil || a.res.Cleanup == nil {
		return
	}
	if err := a.res.Cleanup(); err != nil && a.logger != nil {
		a.logger.Warn("Backend cleanup failed", "error", err)
	}
	a.res = nil
}

func (a *app) billingDay() int {
	if a.cfg == nil {
		return 1
	}
	return a.cfg.BillingDay
}

// resolveStudent accepts either a student code or an id.
func (a *app) resolveStudent(ctx context.Context, ref string) (core.Student, error) {
	s, err := a.svc.Ledger.FindStudentByCode(ctx, ref)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, core.ErrUnknownStudent) {
		return core.Student{}, err
	}
	s, _, err = a.svc.Ledger.GetStudent(ctx, strings.TrimSpace(ref))
	return s, err
}

func (a *app) printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "feectl",
		Short: "Operator CLI for the tutor fee ledger",
		Long: `feectl manages students, payments and billing cycles of the fee ledger.

It reads the same environment as the API server (DATA_BACKEND, SQLITE_DB_PATH,
BILLING_DAY, ...) and a .env file in the working directory when present.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
	}
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "Print machine-readable JSON")

	root.AddCommand(
		newStudentCmd(a),
		newPayCmd(a),
		newReconcileCmd(a),
		newRetryCmd(a),
		newImportCmd(a),
		newStatusCmd(a),
		newRemindersCmd(a),
		newReportCmd(a),
	)
	return root
}
