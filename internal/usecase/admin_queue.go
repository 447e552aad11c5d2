package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/V4T54L/audit-trail/internal/domain"
)

const reindexPageSize = 500

// AdminQueueUseCase backs the admin endpoints: queue depth, manual reindex
// and archive requests.
type AdminQueueUseCase struct {
	inspector      domain.QueueInspector
	store          domain.AuditLogStore
	queue          domain.TaskPublisher
	archiveEnabled bool
	logger         *slog.Logger
}

// NewAdminQueueUseCase creates a new AdminQueueUseCase.
func NewAdminQueueUseCase(inspector domain.QueueInspector, store domain.AuditLogStore, queue domain.TaskPublisher, archiveEnabled bool, logger *slog.Logger) *AdminQueueUseCase {
	return &AdminQueueUseCase{
		inspector:      inspector,
		store:          store,
		queue:          queue,
		archiveEnabled: archiveEnabled,
		logger:         logger.With("component", "admin"),
	}
}

func (uc *AdminQueueUseCase) QueueStats(ctx context.Context) ([]domain.QueueStats, error) {
	return uc.inspector.Stats(ctx)
}

// Reindex enqueues an INDEX_LOG task for every record of the tenant within
// the optional range. It returns how many tasks were enqueued before any error.
func (uc *AdminQueueUseCase) Reindex(ctx context.Context, tenantID int64, start, end *time.Time) (int, error) {
	if tenantID <= 0 {
		return 0, domain.ErrTenantRequired
	}

	enqueued := 0
	for offset := 0; ; offset += reindexPageSize {
		page, err := uc.store.List(ctx, domain.LogFilter{
			TenantID: tenantID,
			Start:    start,
			End:      end,
			Limit:    reindexPageSize,
			Offset:   offset,
		})
		if err != nil {
			return enqueued, fmt.Errorf("failed to list audit logs for reindex: %w", err)
		}
		for i := range page {
			if _, err := uc.queue.Enqueue(ctx, domain.NewIndexLogEnvelope(&page[i]), domain.SendOptions{}); err != nil {
				return enqueued, fmt.Errorf("failed to enqueue reindex task for %d: %w", page[i].ID, err)
			}
			enqueued++
		}
		if len(page) < reindexPageSize {
			break
		}
	}

	uc.logger.Info("reindex requested", "tenant_id", tenantID, "enqueued", enqueued)
	return enqueued, nil
}

// RequestArchive enqueues an ARCHIVE_LOG task.
func (uc *AdminQueueUseCase) RequestArchive(ctx context.Context, p domain.ArchiveLogPayload) (string, error) {
	if !uc.archiveEnabled {
		return "", fmt.Errorf("%w: archiving is not configured", domain.ErrInvalidRequest)
	}
	if p.TenantID <= 0 {
		return "", domain.ErrTenantRequired
	}
	if !p.End.After(p.Start) {
		return "", fmt.Errorf("%w: end must be after start", domain.ErrInvalidRequest)
	}

	id, err := uc.queue.Enqueue(ctx, domain.NewArchiveLogEnvelope(p), domain.SendOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue archive task: %w", err)
	}
	uc.logger.Info("archive requested", "tenant_id", p.TenantID, "start", p.Start, "end", p.End, "message_id", id)
	return id, nil
}
