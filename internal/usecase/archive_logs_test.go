package usecase

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/V4T54L/audit-trail/internal/domain"
	"github.com/V4T54L/audit-trail/internal/domain/mocks"
)

func TestArchiveLogsUseCase_Handle(t *testing.T) {
	store := seededStore(t, 3, 25)
	blobs := &mocks.MockBlobStore{}
	uc := NewArchiveLogsUseCase(store, blobs, "audit-logs", 10, discardLogger())

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	payload := domain.ArchiveLogPayload{TenantID: 3, Start: start, End: start.Add(24 * time.Hour)}
	env := domain.NewArchiveLogEnvelope(payload)

	if err := uc.Handle(context.Background(), env); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	key := "audit-logs/tenant=3/20240101T000000Z_20240102T000000Z.ndjson.zst"
	if uc.ArchiveKey(payload) != key {
		t.Fatalf("unexpected key %q", uc.ArchiveKey(payload))
	}
	body, ok := blobs.Objects[key]
	if !ok {
		t.Fatalf("expected object %q, got keys %v", key, blobs.Objects)
	}

	dec, err := zstd.NewReader(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to open zstd stream: %v", err)
	}
	defer dec.Close()

	lines := 0
	scanner := bufio.NewScanner(dec)
	for scanner.Scan() {
		var rec domain.AuditLog
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line %d is not a record: %v", lines, err)
		}
		if rec.TenantID != 3 {
			t.Errorf("unexpected tenant %d in archive", rec.TenantID)
		}
		lines++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if lines != 25 {
		t.Errorf("expected 25 archived records, got %d", lines)
	}
}

func TestArchiveLogsUseCase_Errors(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	env := domain.NewArchiveLogEnvelope(domain.ArchiveLogPayload{TenantID: 3, Start: start, End: start.Add(time.Hour)})

	t.Run("upload failure is retryable", func(t *testing.T) {
		uc := NewArchiveLogsUseCase(seededStore(t, 3, 1), &mocks.MockBlobStore{PutErr: errors.New("503 slow down")}, "p", 10, discardLogger())
		err := uc.Handle(context.Background(), env)
		if err == nil || domain.IsPermanent(err) {
			t.Fatalf("expected a retryable error, got %v", err)
		}
	})

	t.Run("invalid payload is permanent", func(t *testing.T) {
		uc := NewArchiveLogsUseCase(&mocks.MockAuditLogStore{}, &mocks.MockBlobStore{}, "p", 10, discardLogger())
		err := uc.Handle(context.Background(), domain.NewEnvelope(domain.TaskArchiveLog, map[string]any{"tenant_id": 3}))
		if !domain.IsPermanent(err) {
			t.Fatalf("expected a permanent error, got %v", err)
		}
	})
}
