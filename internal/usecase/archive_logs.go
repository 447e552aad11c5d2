package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/V4T54L/audit-trail/internal/domain"
)

const (
	archiveContentType = "application/zstd"
	archiveKeyTime     = "20060102T150405Z"
	defaultArchivePage = 1000
)

// ArchiveLogsUseCase handles ARCHIVE_LOG tasks: it copies one tenant's
// records in a time range to object storage as zstd-compressed NDJSON.
// The object key is derived from the payload, so redelivery overwrites.
type ArchiveLogsUseCase struct {
	store    domain.AuditLogStore
	blobs    domain.BlobStore
	prefix   string
	pageSize int
	logger   *slog.Logger
}

// NewArchiveLogsUseCase creates a new ArchiveLogsUseCase.
func NewArchiveLogsUseCase(store domain.AuditLogStore, blobs domain.BlobStore, prefix string, pageSize int, logger *slog.Logger) *ArchiveLogsUseCase {
	if pageSize <= 0 {
		pageSize = defaultArchivePage
	}
	return &ArchiveLogsUseCase{
		store:    store,
		blobs:    blobs,
		prefix:   prefix,
		pageSize: pageSize,
		logger:   logger.With("component", "archive_logs"),
	}
}

// ArchiveKey returns the object key for a tenant range.
func (uc *ArchiveLogsUseCase) ArchiveKey(p domain.ArchiveLogPayload) string {
	return fmt.Sprintf("%s/tenant=%d/%s_%s.ndjson.zst",
		uc.prefix, p.TenantID, p.Start.UTC().Format(archiveKeyTime), p.End.UTC().Format(archiveKeyTime))
}

// Handle is the TaskHandler for ARCHIVE_LOG.
func (uc *ArchiveLogsUseCase) Handle(ctx context.Context, env domain.Envelope) error {
	payload, err := domain.DecodeArchiveLogPayload(env.Payload)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	lineEncoder := json.NewEncoder(enc)

	start, end := payload.Start, payload.End
	total := 0
	for offset := 0; ; offset += uc.pageSize {
		page, err := uc.store.List(ctx, domain.LogFilter{
			TenantID: payload.TenantID,
			Start:    &start,
			End:      &end,
			Limit:    uc.pageSize,
			Offset:   offset,
		})
		if err != nil {
			enc.Close()
			return fmt.Errorf("failed to list audit logs for archive: %w", err)
		}
		for i := range page {
			if err := lineEncoder.Encode(&page[i]); err != nil {
				enc.Close()
				return fmt.Errorf("failed to encode audit log %d: %w", page[i].ID, err)
			}
		}
		total += len(page)
		if len(page) < uc.pageSize {
			break
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finish zstd stream: %w", err)
	}

	key := uc.ArchiveKey(payload)
	if err := uc.blobs.Put(ctx, key, buf.Bytes(), archiveContentType); err != nil {
		return fmt.Errorf("failed to upload archive %s: %w", key, err)
	}

	uc.logger.Info("archived audit logs", "tenant_id", payload.TenantID, "records", total, "key", key,
		"range", payload.End.Sub(payload.Start).Round(time.Second).String())
	return nil
}
