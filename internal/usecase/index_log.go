package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/V4T54L/audit-trail/internal/domain"
)

// IndexLogUseCase handles INDEX_LOG tasks by upserting the record projection
// into the search index under its own id, so redelivery overwrites.
type IndexLogUseCase struct {
	sink   domain.IndexSink
	index  string
	logger *slog.Logger
}

// NewIndexLogUseCase creates a new IndexLogUseCase.
func NewIndexLogUseCase(sink domain.IndexSink, index string, logger *slog.Logger) *IndexLogUseCase {
	return &IndexLogUseCase{
		sink:   sink,
		index:  index,
		logger: logger.With("component", "index_log"),
	}
}

// EnsureIndex creates the audit index if it does not exist yet.
func (uc *IndexLogUseCase) EnsureIndex(ctx context.Context) error {
	return uc.sink.EnsureIndex(ctx, uc.index, domain.AuditLogIndexMapping())
}

// Handle is the TaskHandler for INDEX_LOG.
func (uc *IndexLogUseCase) Handle(ctx context.Context, env domain.Envelope) error {
	payload, err := domain.DecodeIndexLogPayload(env.Payload)
	if err != nil {
		return err
	}

	doc := ToIndexedDocument(payload)
	if err := uc.sink.Upsert(ctx, uc.index, doc.ID, doc); err != nil {
		return fmt.Errorf("failed to index audit log %d: %w", payload.ID, err)
	}

	uc.logger.Debug("indexed audit log", "id", payload.ID, "tenant_id", payload.TenantID)
	return nil
}

// ToIndexedDocument projects the indexable subset of a record.
func ToIndexedDocument(p domain.IndexLogPayload) domain.IndexedDocument {
	doc := domain.IndexedDocument{
		ID:           strconv.FormatInt(p.ID, 10),
		TenantID:     strconv.FormatInt(p.TenantID, 10),
		Message:      p.Message,
		CreatedAt:    p.CreatedAt.UTC(),
		UserID:       p.UserID,
		Action:       string(p.Action),
		ResourceType: p.ResourceType,
		Severity:     string(p.Severity),
	}
	if len(p.LogMetadata) > 0 {
		if raw, err := json.Marshal(p.LogMetadata); err == nil {
			doc.LogMetadata = string(raw)
		}
	}
	return doc
}
