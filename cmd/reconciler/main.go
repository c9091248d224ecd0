package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/carewallet/carewallet/internal/audit"
	"github.com/carewallet/carewallet/internal/config"
	"github.com/carewallet/carewallet/internal/infra"
	"github.com/carewallet/carewallet/internal/ledger"
	"github.com/carewallet/carewallet/internal/logging"
	"github.com/carewallet/carewallet/internal/reconcile"
)

func main() {
	once := flag.Bool("once", false, "run a single reconciliation pass and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, "reconciler")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}()

	rec := reconcile.New(ledger.NewPostgresLedger(db), audit.NewPostgresRecorder(db), cache, logger)

	if *once {
		report, err := rec.Run(ctx)
		if err != nil {
			logger.Error("reconcile pass failed", "error", err)
			os.Exit(1)
		}
		logger.Info("reconcile finished",
			"wallets", report.Wallets,
			"mismatches", report.Mismatches,
			"duration", report.Duration,
		)
		return
	}

	logger.Info("reconciler started", "interval", cfg.ReconcileInterval)
	rec.RunEvery(ctx, cfg.ReconcileInterval)
	logger.Info("reconciler exited cleanly")
}
