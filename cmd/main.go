package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"cloudpay/internal/bootstrap"
	"cloudpay/internal/config"
	cronpkg "cloudpay/internal/cron"
	"cloudpay/internal/handler"
	"cloudpay/internal/middleware"
	"cloudpay/internal/obs"
	"cloudpay/internal/payment"
	"cloudpay/internal/repository"
	"cloudpay/internal/router"
)

func main() {
	// --- Logger ---
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if hasArg("--bootstrap-db") {
		if err := runDBBootstrap(logger); err != nil {
			logger.Fatal("Database bootstrap failed", zap.Error(err))
		}
		logger.Info("Database bootstrap completed")
		return
	}

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if cfg.Server.Env == "development" {
		logger, _ = zap.NewDevelopment()
	}

	// --- Metrics ---
	metrics := obs.NewMetrics("cloudpay", prometheus.DefaultRegisterer)

	// --- Payment API client ---
	client := payment.New(cfg.CloudPayments.Payment(),
		payment.WithLogger(logger.Named("payment")),
		payment.WithObserver(metrics.Observer()),
	)

	if hasArg("--ping") {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.CloudPayments.Timeout)
		defer cancel()
		if err := client.Test(ctx); err != nil {
			logger.Fatal("Payment API ping failed", zap.Error(err))
		}
		logger.Info("Payment API ping succeeded")
		return
	}

	// --- Database ---
	db, err := config.NewDatabase(&cfg.Database, cfg.Server.Env, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := bootstrap.Migrate(db); err != nil {
		logger.Fatal("Failed to bootstrap database schema", zap.Error(err))
	}
	ledger := repository.NewTransactionRepository(db)

	// --- Notification Deduper (Redis with in-memory fallback) ---
	deduper, dedupeErr := middleware.NewDeduper(
		cfg.Redis.Addr,
		cfg.Redis.Pass,
		cfg.Redis.DB,
		cfg.Redis.DedupTTL,
	)
	if dedupeErr != nil {
		logger.Warn("Redis unavailable for notification dedup, using in-memory fallback", zap.Error(dedupeErr))
	}

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true

	// --- Routes ---
	router.Setup(e, router.Deps{
		Callbacks: handler.NewPaymentCallbackHandler(ledger, client, metrics, logger),
		Deduper:   deduper,
		Allowlist: cfg.CloudPayments.WebhookAllowlist,
		Gatherer:  prometheus.DefaultGatherer,
		Logger:    logger,

		TrustedProxies: cfg.Server.TrustedProxies,
	})

	// --- Cron Scheduler ---
	scheduler := cronpkg.New(cfg.Reconcile, ledger, client, metrics, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting cloudpay server", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Stop cron
	ctx := scheduler.Stop()
	<-ctx.Done()

	// Stop HTTP server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func hasArg(name string) bool {
	for _, arg := range os.Args[1:] {
		if arg == name {
			return true
		}
	}
	return false
}

func runDBBootstrap(logger *zap.Logger) error {
	dbCfg, err := config.LoadDatabaseOnly()
	if err != nil {
		return err
	}
	db, err := config.NewDatabase(dbCfg, "production", logger)
	if err != nil {
		return err
	}
	if err := bootstrap.Migrate(db); err != nil {
		return err
	}
	logger.Info("Schema migration completed")
	return nil
}
