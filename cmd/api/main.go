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

	_ "github.com/lib/pq" // Keep for postgres driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/audit-trail/internal/adapter/api"
	"github.com/V4T54L/audit-trail/internal/adapter/api/handler"
	"github.com/V4T54L/audit-trail/internal/adapter/metrics"
	"github.com/V4T54L/audit-trail/internal/adapter/pii"
	"github.com/V4T54L/audit-trail/internal/adapter/queue"
	"github.com/V4T54L/audit-trail/internal/adapter/repository/postgres"
	"github.com/V4T54L/audit-trail/internal/adapter/repository/wal"
	"github.com/V4T54L/audit-trail/internal/adapter/search"
	"github.com/V4T54L/audit-trail/internal/domain"
	"github.com/V4T54L/audit-trail/internal/pkg/config"
	"github.com/V4T54L/audit-trail/internal/pkg/logger"
	"github.com/V4T54L/audit-trail/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	m := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Database ---
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to open postgres connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	// --- Queue ---
	gateway, closeQueue, err := queue.Open(ctx, cfg, "api", logger)
	if err != nil {
		logger.Error("failed to open task queue", "error", err)
		os.Exit(1)
	}
	defer closeQueue()

	// --- WAL spill for enqueue failures (optional) ---
	var walRepo domain.WALRepository
	if cfg.WAL.Path != "" {
		w, err := wal.NewWALRepository(cfg.WAL.Path, cfg.WAL.SegmentSize, cfg.WAL.MaxDiskSize, logger)
		if err != nil {
			logger.Error("failed to initialize WAL repository", "error", err)
			os.Exit(1)
		}
		defer w.Close()
		walRepo = w
	}

	// --- Search ---
	sink, err := search.NewSink(cfg.Search, logger)
	if err != nil {
		logger.Error("failed to create search sink", "error", err)
		os.Exit(1)
	}

	// --- Repositories and Use Cases ---
	store := postgres.NewAuditLogRepository(db, logger)
	tenants := postgres.NewTenantRepository(db, logger, cfg.API.TenantCacheTTL, m)
	redactor := pii.NewRedactor(pii.ParseFields(cfg.PIIRedactionFields), logger)
	stream := handler.NewLogStreamBroker(logger)

	createUC := usecase.NewCreateLogUseCase(store, gateway, walRepo, redactor, stream, m, logger)
	queryUC := usecase.NewQueryLogsUseCase(store)
	searchUC := usecase.NewSearchLogsUseCase(sink, cfg.Search.Index, m, logger)
	adminUC := usecase.NewAdminQueueUseCase(gateway, store, gateway, cfg.Archive.Bucket != "", logger)
	tenantsUC := usecase.NewManageTenantsUseCase(tenants, logger)

	// Replays the WAL into the queue; without a WAL it just waits for shutdown.
	reconciler := usecase.NewReconcileUseCase(walRepo, gateway, cfg.WAL.ReconcileInterval, m, logger)
	go func() {
		if err := reconciler.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("reconciler stopped", "error", err)
		}
	}()

	// --- Admin and Metrics Server ---
	adminServer := &http.Server{
		Addr:    cfg.API.AdminAddr,
		Handler: api.NewAdminRouter(handler.NewAdminHandler(adminUC, logger), handler.NewTenantHandler(tenantsUC, logger), promhttp.Handler(), logger),
	}
	go func() {
		logger.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin & metrics server failed", "error", err)
		}
	}()

	// --- API Server ---
	logHandler := handler.NewLogHandler(createUC, queryUC, searchUC, logger, cfg.API.MaxBodyBytes)
	apiServer := &http.Server{
		Addr:              cfg.API.ServerAddr,
		Handler:           api.NewRouter(cfg.API, logger, m, tenants, logHandler, stream),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("starting api server", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server failed", "error", err)
			stop() // Trigger shutdown on server error
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down servers...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown failed", "error", err)
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown failed", "error", err)
	}

	logger.Info("servers shut down gracefully")
}
