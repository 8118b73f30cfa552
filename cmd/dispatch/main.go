package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/eternisai/devotional-push/internal/app"
	"github.com/eternisai/devotional-push/internal/config"
	"github.com/eternisai/devotional-push/internal/logger"
)

// dispatch runs one scheduled batch and exits. Point an external cron at it.
// It exits non-zero only when the batch could not run at all; individual
// delivery failures are in the printed report.
func main() {
	printReport := flag.Bool("report", false, "Print the full dispatch report as JSON to stdout")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("failed to initialize", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	report, err := a.Service.RunScheduled(ctx)
	if err != nil {
		appLogger.Error("dispatch failed", slog.String("error", err.Error()))
		a.Close()
		os.Exit(1)
	}

	if *printReport {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			appLogger.Error("failed to write report", slog.String("error", err.Error()))
		}
	}
}
