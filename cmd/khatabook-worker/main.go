package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"khatabook/internal/amqp"
	"khatabook/internal/cli"
	"khatabook/internal/log"
	gsheet "khatabook/internal/sheets/google"
	"khatabook/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting khatabook-worker", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadWorkerConfig(logger)

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()
	ctx = log.WithLogger(ctx, logger.WithComponent(log.ComponentWorker))

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	sheets, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, gsheet.Credentials{
		JSON: cfg.GoogleServiceAccountJSON,
		File: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	if err := sheets.EnsureHeader(ctx); err != nil {
		logger.Error("Failed to prepare mirror sheet", log.FieldError, err, "sheet", cfg.GoogleSheetName)
		os.Exit(1)
	}
	logger.Info("Google Sheets mirror ready", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)

	mirror := worker.NewMirrorWorker(repo, sheets)
	dial := func() (*amqp.Client, error) {
		return amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqp.ConsumeWithReconnect(gctx, dial, mirror.HandleBatchSaved)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully", log.FieldOperation, log.OpShutdown)
}
