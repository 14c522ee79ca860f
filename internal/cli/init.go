// Package cli holds the startup steps shared by cmd/feeledger,
// cmd/reconcile-worker, cmd/ledger-sync-worker and cmd/feectl.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"feeledger/internal/backend"
	"feeledger/internal/config"
	"feeledger/internal/core"
	"feeledger/internal/intake"
	"feeledger/internal/log"
	"feeledger/internal/services"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// SetupLogger installs the process logger described by cfg.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	return log.Setup(cfg.LogLevel, cfg.LogFormat, component)
}

// OpenBackend opens the configured ledger store or exits the process.
func OpenBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	return res
}

// Services are the use cases built over one backend.
type Services struct {
	Ledger     *services.Ledger
	Projection *services.Projection
	Reconciler *services.Reconciler
	Importer   *intake.Importer
}

// NewServices wires the ledger, its readers and the reconciler over res.
func NewServices(res *backend.BackendResult, cfg *config.Config) Services {
	ledger := services.NewLedger(res.Store, res.Events)
	return Services{
		Ledger:     ledger,
		Projection: services.NewProjection(res.Store),
		Reconciler: services.NewReconciler(ledger, services.ReconcilerConfig{
			Concurrency: cfg.ReconcileConcurrency,
			Policy:      core.RolloverPolicy{RecordAbsorbedFee: cfg.AbsorbedFeeCountsAsPaid},
			BillingDay:  cfg.BillingDay,
		}),
		Importer: intake.NewImporter(ledger),
	}
}

// ShutdownContext returns a context cancelled on SIGINT or SIGTERM.
func ShutdownContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
