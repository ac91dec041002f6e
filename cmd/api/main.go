package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/harveywang/codedesk-backend/api/routes"
	"github.com/harveywang/codedesk-backend/internal/accounts"
	"github.com/harveywang/codedesk-backend/internal/recovery"
	"github.com/harveywang/codedesk-backend/internal/redeemer"
	"github.com/harveywang/codedesk-backend/internal/settings"
	"github.com/harveywang/codedesk-backend/pkg/config"
	"github.com/harveywang/codedesk-backend/pkg/db"
	"github.com/harveywang/codedesk-backend/pkg/logger"
	"github.com/harveywang/codedesk-backend/pkg/metrics"
	"github.com/harveywang/codedesk-backend/pkg/migrate"
	"github.com/harveywang/codedesk-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	recoveryMetrics := metrics.NewRecoveryMetrics(registry)

	settingsSvc, err := settings.NewService(settings.NewRepository(dbClient.DB()), cfg.Settings.CacheTTL, cfg.Recovery.WindowDays)
	if err != nil {
		logg.Error(context.Background(), "failed to create settings service", err)
		os.Exit(1)
	}

	redeemerClient, err := redeemer.NewClient(cfg.Redeemer.BaseURL, cfg.Redeemer.Token, redeemer.WithTimeout(cfg.Redeemer.Timeout))
	if err != nil {
		logg.Error(context.Background(), "failed to create redeemer client", err)
		os.Exit(1)
	}

	recoveryRepo := recovery.NewRepository(dbClient.DB())
	ledger := recovery.NewLedger(dbClient.DB())
	resolver := recovery.NewResolver(recoveryRepo, ledger)
	selector := recovery.NewSelector(
		recoveryRepo,
		recovery.NewPlanDeadlineResolver(recoveryRepo, cfg.Recovery.PlanDuration()),
		cfg.Recovery.SeatCapacity,
	)

	recoverySvc, err := recovery.NewService(
		resolver,
		selector,
		ledger,
		recoveryRepo,
		redeemerClient,
		settingsSvc,
		recoveryMetrics,
		logg,
		cfg.Recovery,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create recovery service", err)
		os.Exit(1)
	}

	accountsSvc, err := accounts.NewService(accounts.NewRepository(dbClient.DB()), resolver, settingsSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create accounts service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, registry, recoverySvc, accountsSvc),
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-stopCtx.Done():
		logg.Info(ctx, "shutdown signal received, draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
