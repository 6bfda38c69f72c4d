package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"smartbank/internal/api"
	"smartbank/internal/audit"
	"smartbank/internal/config"
	"smartbank/internal/fraud"
	"smartbank/internal/ledger"
	"smartbank/internal/repository"
	"smartbank/internal/repository/memory"
	"smartbank/internal/repository/postgres"
	"smartbank/internal/service"
	"smartbank/pkg/crypto"
	"smartbank/pkg/metrics"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	appName = "smartbank"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Application failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("Starting application",
		slog.String("name", appName),
		slog.String("addr", cfg.Addr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := setupStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	metricsCollector := metrics.NewMetricsCollector(logger)
	signer := crypto.NewSigner(cfg.AuditSecret, logger)
	trail := audit.NewTrail(store.Audit, signer, time.Now, logger)

	scorer := fraud.NewAnomalyScorer(store.Accounts, store.Transactions, cfg.Fraud, logger)
	if err := scorer.Train(ctx); err != nil {
		logger.Warn("Anomaly model not trained at startup, will retry on first transfer",
			slog.String("error", err.Error()))
	}
	pipeline := fraud.NewPipeline(fraud.NewRuleEngine(cfg.Fraud), scorer, cfg.Fraud.WithdrawalRatio, metricsCollector, logger)

	notificationService := setupNotificationService(cfg.Notification, metricsCollector, logger)

	transferLedger := ledger.NewTransferLedger(store, pipeline, trail, cfg.Ledger,
		ledger.WithMetrics(metricsCollector),
		ledger.WithAlerter(notificationService),
		ledger.WithLogger(logger),
	)

	apiHandler := api.NewAPIHandler(transferLedger, api.NewTokenService(cfg.JWTSecret, appName), logger)
	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      apiHandler.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	metricsServer := metricsCollector.NewServer(cfg.MetricsAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("addr", httpServer.Addr))
		return serve(httpServer)
	})
	g.Go(func() error {
		logger.Info("Starting metrics server", slog.String("addr", metricsServer.Addr))
		return serve(metricsServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")
		return shutdown(logger, httpServer, metricsServer, metricsCollector, notificationService)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Application shutdown complete")
	return nil
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: lvl,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

// setupStore picks Postgres when a database URI is configured. Otherwise it
// uses the in-memory store, which needs a seed file to hold any accounts.
func setupStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		return setupMemoryStore(ctx, cfg.SeedFile, logger)
	}
	if cfg.SeedFile != "" {
		logger.Warn("LEDGER_SEED_FILE ignored with a database configured",
			slog.String("seed_file", cfg.SeedFile))
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return repository.Store{}, nil, fmt.Errorf("couldn't open database: %w", err)
	}

	return postgres.NewStore(db, logger), func() { closeDB(db, logger) }, nil
}

func setupMemoryStore(ctx context.Context, seedFile string, logger *slog.Logger) (repository.Store, func(), error) {
	if seedFile == "" {
		return repository.Store{}, nil, errors.New("DATABASE_URI or LEDGER_SEED_FILE must be set")
	}

	seed, err := config.LoadSeed(seedFile)
	if err != nil {
		return repository.Store{}, nil, err
	}

	store := memory.NewStore()
	if err := seedAccounts(ctx, store.Accounts, seed, logger); err != nil {
		return repository.Store{}, nil, err
	}

	logger.Warn("DATABASE_URI not set, using in-memory store",
		slog.Int("seeded_accounts", len(seed.Accounts)))
	return store, func() {}, nil
}

func closeDB(db *sql.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Error("Database close failed", slog.String("error", err.Error()))
	}
}

func setupNotificationService(cfg config.Notification, drops service.DropRecorder, logger *slog.Logger) *service.NotificationService {
	return service.NewNotificationService(
		service.LogEmailService{Logger: logger},
		service.LogSlackService{Logger: logger},
		cfg,
		drops,
		logger,
	)
}

func serve(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server on %s failed: %w", server.Addr, err)
	}
	return nil
}

func shutdown(
	logger *slog.Logger,
	httpServer *http.Server,
	metricsServer *http.Server,
	metricsCollector *metrics.MetricsCollector,
	notificationService *service.NotificationService,
) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := metricsCollector.Shutdown(ctx, metricsServer); err != nil {
		logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := notificationService.Shutdown(ctx); err != nil {
		logger.Error("Notification service shutdown failed", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
