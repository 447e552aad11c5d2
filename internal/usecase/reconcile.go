package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/V4T54L/audit-trail/internal/adapter/metrics"
	"github.com/V4T54L/audit-trail/internal/domain"
)

// ReconcileUseCase replays envelopes that the producer spilled to the WAL
// back onto the task queue.
type ReconcileUseCase struct {
	wal      domain.WALRepository
	queue    domain.TaskPublisher
	interval time.Duration
	metrics  *metrics.PipelineMetrics
	logger   *slog.Logger
}

// NewReconcileUseCase creates a new ReconcileUseCase.
func NewReconcileUseCase(wal domain.WALRepository, queue domain.TaskPublisher, interval time.Duration, m *metrics.PipelineMetrics, logger *slog.Logger) *ReconcileUseCase {
	return &ReconcileUseCase{
		wal:      wal,
		queue:    queue,
		interval: interval,
		metrics:  m,
		logger:   logger.With("component", "reconciler"),
	}
}

func (uc *ReconcileUseCase) String() string {
	return "wal-reconciler"
}

// Serve replays the WAL on every tick until ctx is cancelled.
func (uc *ReconcileUseCase) Serve(ctx context.Context) error {
	if uc.wal == nil {
		uc.logger.Info("WAL is not configured, skipping reconciler")
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(uc.interval)
	defer ticker.Stop()

	uc.logger.Info("starting WAL reconciler", "interval", uc.interval)
	for {
		select {
		case <-ctx.Done():
			uc.logger.Info("stopping WAL reconciler")
			return ctx.Err()
		case <-ticker.C:
			if err := uc.ReplayWAL(ctx); err != nil {
				uc.logger.Error("failed to replay WAL", "error", err)
			}
		}
	}
}

// ReplayWAL enqueues every spilled envelope and truncates the replayed
// segments once all of them were accepted. A partial failure keeps the WAL,
// so the next run re-sends some envelopes; indexing is idempotent per id.
func (uc *ReconcileUseCase) ReplayWAL(ctx context.Context) error {
	replayed := 0
	replayHandler := func(env domain.Envelope) error {
		if _, err := uc.queue.Enqueue(ctx, env, domain.SendOptions{}); err != nil {
			return err
		}
		replayed++
		return nil
	}

	if err := uc.wal.Replay(ctx, replayHandler); err != nil {
		return fmt.Errorf("WAL replay failed after %d envelopes: %w", replayed, err)
	}
	if err := uc.wal.Truncate(ctx); err != nil {
		return fmt.Errorf("failed to truncate WAL after successful replay: %w", err)
	}

	uc.metrics.WALActive.Set(0)
	if replayed > 0 {
		uc.metrics.EnqueueTotal.WithLabelValues("replayed").Add(float64(replayed))
		uc.logger.Info("WAL replay completed", "envelopes", replayed)
	}
	return nil
}
