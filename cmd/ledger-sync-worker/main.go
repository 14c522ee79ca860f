package main

import (
	"context"
	"errors"
	"os"

	"feeledger/internal/amqp"
	"feeledger/internal/cli"
	"feeledger/internal/log"
	"feeledger/internal/services"
	gsheet "feeledger/internal/sheets/google"
	"feeledger/internal/storage"
	"feeledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	logger.Info("Starting ledger-sync-worker")

	// The mirror reads the same database the API writes, so only sqlite works here.
	if cfg.DataBackend != "sqlite" {
		logger.Error("ledger-sync-worker requires DATA_BACKEND=sqlite", "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if err := cfg.ValidateSheetsMirror(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	sheetsClient, err := gsheet.New(ctx, gsheet.Settings{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		StatusSheet:     cfg.GoogleSheetName,
		StatementSheet:  cfg.GoogleStatementSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewStatusSyncWorker(services.NewProjection(repo), sheetsClient)

	// Events published while the worker was down are lost, so start from a full rewrite.
	logger.Info("Performing startup full sync...")
	if err := syncWorker.FullSync(ctx); err != nil {
		logger.Error("Startup full sync failed", "error", err)
	}

	err = amqpClient.ConsumeLedgerEvents(ctx, syncWorker)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Ledger-sync-worker shutdown complete")
}
