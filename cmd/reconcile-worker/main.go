package main

import (
	"context"
	"os"
	"time"

	"feeledger/internal/backend"
	"feeledger/internal/cli"
	"feeledger/internal/log"
	"feeledger/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentReconcile)

	logger.Info("Starting reconcile-worker")
	if cfg.DataBackend != backend.SQLiteBackend.String() {
		logger.Warn("reconcile-worker shares no state with the API on the memory backend",
			"backend", cfg.DataBackend)
	}

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	res := cli.OpenBackend(ctx, logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	svc := cli.NewServices(res, cfg)
	scheduler := services.NewReconcileScheduler(svc.Reconciler, services.SchedulerConfig{
		CheckInterval: cfg.ReconcileCheckInterval,
		BillingDay:    cfg.BillingDay,
	})

	logger.Info("Reconcile scheduler configured",
		"interval", cfg.ReconcileCheckInterval,
		"billing_day", cfg.BillingDay,
		"concurrency", cfg.ReconcileConcurrency,
		"events_enabled", res.Events != nil)

	if err := scheduler.Start(ctx); err != nil {
		logger.Error("Failed to start reconcile scheduler", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down reconcile-worker...")
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn("Reconcile scheduler did not stop cleanly", "error", err)
		return
	}
	logger.Info("Reconcile-worker shutdown complete")
}
