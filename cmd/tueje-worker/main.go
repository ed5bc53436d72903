package main

import (
	"context"
	"os"
	"time"

	"tueje/internal/amqp"
	"tueje/internal/cli"
	"tueje/internal/config"
	"tueje/internal/events"
	"tueje/internal/identity"
	applog "tueje/internal/log"
	"tueje/internal/sheets/google"
	"tueje/internal/store"
	"tueje/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadConfig(applog.ComponentWorker, (*config.Config).ValidateWorker)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Worker error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	be, err := cli.InitBackend(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", "error", err)
		}
	}()

	writer, err := google.New(ctx, google.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return err
	}

	// The worker never writes records, so no user is resolved and nothing is published.
	st := store.New(be.Store, identity.Fixed(""), events.Discard{})
	mirror := worker.NewLedgerMirror(st, writer, worker.Config{
		TabPrefix: cfg.SheetsTabPrefix,
		Debounce:  cfg.SyncDebounce,
	})

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := mirror.Start(ctx); err != nil {
		return err
	}
	logger.Info("Starting tueje export worker",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue,
		"spreadsheet", cfg.GoogleSpreadsheetID)

	consumeErr := client.Consume(ctx, mirror.HandleMessage)

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := mirror.Stop(stopCtx); err != nil {
		logger.Warn("Ledger mirror stop failed", "error", err, "pending", mirror.Pending())
	}

	if ctx.Err() != nil {
		return nil
	}
	return consumeErr
}
