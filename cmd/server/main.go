package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"ridecontract/internal/app"
	"ridecontract/internal/config"
	"ridecontract/internal/handler"
	"ridecontract/internal/logging"
	"ridecontract/internal/middleware"
	internalRedis "ridecontract/internal/redis"
	"ridecontract/internal/repository/postgres"
	"ridecontract/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()

	logger := logging.Setup(cfg.Log)
	logging.Install(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", slog.Any("error", err))
		} else {
			logger.Info("New Relic enabled", slog.String("app", cfg.NewRelic.AppName))
		}
	}

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		fatal(logger, "failed to connect to database", err)
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL", slog.String("database", cfg.Database.DBName))

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		fatal(logger, "failed to connect to redis", err)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis", slog.String("addr", cfg.Redis.Addr))

	// Wire dependencies.
	server := wireServer(db, redisClient, nrApp, logger, cfg)

	// Start server in goroutine.
	go func() {
		logger.Info("starting server", slog.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "server error", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		fatal(logger, "server forced to shutdown", err)
	}

	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	logger.Info("server exited")
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(db *sql.DB, redisClient *redis.Client, nrApp *newrelic.Application, logger *slog.Logger, cfg *config.Config) *http.Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, cfg.Database.DBName),
	)

	// Initialize Redis stores.
	lockStore := internalRedis.NewLockStore(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient)
	publisher := internalRedis.NewEventPublisher(redisClient)

	// Initialize repositories.
	store := postgres.NewStore(db)

	// Initialize services.
	notificationService := service.NewNotificationService(logger, publisher)
	contractService := service.NewContractService(service.ContractServiceDeps{
		Store:         store,
		Transactor:    store,
		Locker:        lockStore,
		Cache:         cacheStore,
		Notifications: notificationService,
		Metrics:       service.NewMetrics(registry),
		Logger:        logger,
		Policy: service.Policy{
			MaxEscrowMultiplier: cfg.Contract.MaxEscrowMultiplier,
			WriteOnceRatings:    cfg.Contract.WriteOnceRatings,
			MaxDisputeAttempts:  cfg.Contract.MaxDisputeAttempts,
			LockTTL:             cfg.Contract.LockTTL,
		},
	})

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		RideHandler:    handler.NewRideHandler(contractService),
		RatingHandler:  handler.NewRatingHandler(contractService),
		AccountHandler: handler.NewAccountHandler(contractService),
		Authenticator:  middleware.NewCallerAuthenticator(cfg.Auth),
		ResponseStore:  middleware.NewRedisResponseStore(redisClient),
		Gatherer:       registry,
		NewRelicApp:    nrApp,
	})

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.Any("error", err))
	os.Exit(1)
}
