package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"feeledger/internal/cache"
	"feeledger/internal/cli"
	apphttp "feeledger/internal/http"
	"feeledger/internal/log"
	"feeledger/internal/metrics"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	res := cli.OpenBackend(ctx, logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	svc := cli.NewServices(res, cfg)
	metrics.Init(cache.NewStatusCounts(svc.Projection, 10*time.Second))

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledger:     svc.Ledger,
		Projection: svc.Projection,
		Reconciler: svc.Reconciler,
		Importer:   svc.Importer,
		BillingDay: cfg.BillingDay,
		Ready:      res.Ready,
		Logger:     logger.WithComponent(log.ComponentHTTP),
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 60 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("Starting feeledger server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"billing_day", cfg.BillingDay,
		"events_enabled", res.Events != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		cancel()
		os.Exit(1)
	}

	logger.Info("Server stopped gracefully")
}
