package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"studylog/internal/amqp"
	"studylog/internal/config"
	applog "studylog/internal/log"
	"studylog/internal/sheets"
	gsheet "studylog/internal/sheets/google"
	mem "studylog/internal/sheets/memory"
	"studylog/internal/storage"
	"studylog/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{Component: applog.ComponentWorker})
	applog.SetDefault(logger)

	logger.Info("starting studylog-worker", applog.FieldOperation, applog.OpStartup)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration load failed", applog.FieldError, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("the worker needs a broker - set AMQP_URL")
		os.Exit(1)
	}

	repo, err := storage.New(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("failed to open storage", applog.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Without a spreadsheet the worker still drains the queue, mirroring
	// into memory. Useful for local runs against a real broker.
	var appender sheets.HourAppender
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		if err != nil {
			logger.Error("failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		appender = client
		logger.Info("Google Sheets backup enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	} else {
		appender = mem.New()
		logger.Info("Google Sheets disabled - mirroring to memory (set GOOGLE_SPREADSHEET_ID)")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("failed to connect AMQP", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backup := worker.NewBackupWorker(repo, appender)

	done := make(chan error, 1)
	go func() {
		done <- amqpClient.ConsumeChanges(ctx, func(msg *amqp.ChangeMessage) error {
			handleCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			return backup.HandleChange(handleCtx, msg)
		})
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received", applog.FieldOperation, applog.OpShutdown)
	case err := <-done:
		if err != nil && err != context.Canceled {
			logger.Error("message consumption failed", applog.FieldError, err)
			os.Exit(1)
		}
	}

	logger.Info("worker stopped gracefully")
}
