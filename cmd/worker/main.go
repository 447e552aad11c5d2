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
	"syscall"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // Keep for postgres driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/V4T54L/audit-trail/internal/adapter/awsconf"
	"github.com/V4T54L/audit-trail/internal/adapter/metrics"
	"github.com/V4T54L/audit-trail/internal/adapter/queue"
	"github.com/V4T54L/audit-trail/internal/adapter/repository/postgres"
	"github.com/V4T54L/audit-trail/internal/adapter/search"
	"github.com/V4T54L/audit-trail/internal/adapter/storage/s3"
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

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("worker failed", "error", err)
		os.Exit(1)
	}
	log.Info("worker shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	m := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)

	// Create a unique consumer name for this instance
	hostname, err := os.Hostname()
	if err != nil {
		log.Warn("could not get hostname for consumer name, using default", "error", err)
		hostname = "worker"
	}
	consumerName := hostname + "-" + uuid.NewString()[:8]

	gateway, closeQueue, err := queue.Open(ctx, cfg, consumerName, log)
	if err != nil {
		return err
	}
	defer closeQueue()

	sink, err := search.NewSink(cfg.Search, log)
	if err != nil {
		return err
	}
	indexUC := usecase.NewIndexLogUseCase(sink, cfg.Search.Index, log)
	if err := indexUC.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("failed to ensure search index: %w", err)
	}

	handlers := map[domain.TaskType]usecase.TaskHandler{
		domain.TaskIndexLog: indexUC.Handle,
	}

	// ARCHIVE_LOG is only served when a bucket is configured.
	if cfg.Archive.Bucket != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("failed to open postgres connection: %w", err)
		}
		defer db.Close()

		awsCfg, err := awsconf.Load(ctx, cfg.AWS)
		if err != nil {
			return err
		}
		blobs := s3.NewArchiveStore(s3.NewAPI(awsCfg, awsconf.Endpoint(cfg.AWS), cfg.Archive.UsePathStyle), cfg.Archive.Bucket, log)
		archiveUC := usecase.NewArchiveLogsUseCase(postgres.NewAuditLogRepository(db, log), blobs, cfg.Archive.Prefix, cfg.Archive.PageSize, log)
		handlers[domain.TaskArchiveLog] = archiveUC.Handle
	}

	worker := usecase.NewProcessTasksUseCase(gateway, handlers, usecase.WorkerConfig{
		MaxMessages:       cfg.Worker.MaxMessages,
		WaitTime:          cfg.Worker.WaitTime,
		VisibilityTimeout: cfg.Worker.VisibilityTimeout,
		HandlerTimeout:    cfg.Worker.HandlerTimeout,
		MaxRetries:        cfg.Worker.MaxRetries,
		RetryDelay:        cfg.Worker.RetryDelay,
		ErrorBackoff:      cfg.Worker.ErrorBackoff,
		MaxErrorBackoff:   cfg.Worker.MaxErrorBackoff,
	}, m, log)

	metricsServer := &http.Server{Addr: cfg.Worker.MetricsAddr, Handler: promhttp.Handler()}
	go func() {
		log.Info("starting metrics server", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	// The supervisor restarts the loop if it panics or fails; on shutdown
	// it waits up to ShutdownTimeout for in-flight handlers to drain.
	sup := suture.New("audit-worker", suture.Spec{
		EventHook: (&sutureslog.Handler{Logger: log}).MustHook(),
		Timeout:   cfg.ShutdownTimeout,
	})
	sup.Add(worker)

	log.Info("consumer worker started", "consumer", consumerName, "handlers", len(handlers))
	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
