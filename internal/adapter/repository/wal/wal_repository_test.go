package wal

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/V4T54L/audit-trail/internal/domain"
)

func setupTestWAL(t *testing.T, maxSegmentSize, maxTotalSize int64) *WALRepository {
	t.Helper()
	dir := t.TempDir()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	wal, err := NewWALRepository(dir, maxSegmentSize, maxTotalSize, logger)
	if err != nil {
		t.Fatalf("failed to create WALRepository: %v", err)
	}
	t.Cleanup(func() { wal.Close() })

	return wal
}

func testEnvelope(id int64, message string) domain.Envelope {
	return domain.NewIndexLogEnvelope(&domain.AuditLog{
		ID: id, TenantID: 1, UserID: "u", Action: domain.ActionView,
		ResourceType: "doc", Message: message, Severity: domain.SeverityInfo,
	})
}

func collect(t *testing.T, wal *WALRepository) []domain.Envelope {
	t.Helper()
	var replayed []domain.Envelope
	if err := wal.Replay(context.Background(), func(env domain.Envelope) error {
		replayed = append(replayed, env)
		return nil
	}); err != nil {
		t.Fatalf("failed to replay envelopes: %v", err)
	}
	return replayed
}

func TestWAL_WriteAndReplay(t *testing.T) {
	wal := setupTestWAL(t, 1024, 10*1024)

	envs := []domain.Envelope{testEnvelope(1, "event 1"), testEnvelope(2, "event 2"), testEnvelope(3, "event 3")}
	for _, env := range envs {
		if err := wal.Write(context.Background(), env); err != nil {
			t.Fatalf("failed to write envelope: %v", err)
		}
	}
	wal.Close()

	// Re-open the WAL to simulate a restart
	reopened, err := NewWALRepository(wal.dir, 1024, 10*1024, wal.logger)
	if err != nil {
		t.Fatalf("failed to re-open WAL: %v", err)
	}
	defer reopened.Close()

	replayed := collect(t, reopened)
	if len(replayed) != len(envs) {
		t.Fatalf("expected %d replayed envelopes, got %d", len(envs), len(replayed))
	}
	for i, env := range envs {
		p, err := domain.DecodeIndexLogPayload(replayed[i].Payload)
		if err != nil {
			t.Fatalf("replayed envelope %d has invalid payload: %v", i, err)
		}
		if replayed[i].TaskType != env.TaskType || p.Message != env.Payload["message"] {
			t.Errorf("replayed envelope mismatch at index %d: got %+v", i, replayed[i])
		}
	}
}

func TestWAL_SegmentRotation(t *testing.T) {
	// Set a very small segment size to force rotation
	wal := setupTestWAL(t, 100, 64*1024)

	for i := 0; i < 3; i++ {
		if err := wal.Write(context.Background(), testEnvelope(int64(i), "a message long enough to cause rotation")); err != nil {
			t.Fatalf("failed to write envelope: %v", err)
		}
	}

	segments, err := wal.getSortedSegments()
	if err != nil {
		t.Fatalf("failed to get segments: %v", err)
	}
	if len(segments) < 2 {
		t.Errorf("expected at least 2 segments, got %d", len(segments))
	}
	if got := collect(t, wal); len(got) != 3 {
		t.Errorf("expected 3 envelopes across segments, got %d", len(got))
	}
}

func TestWAL_Truncate(t *testing.T) {
	wal := setupTestWAL(t, 4096, 64*1024)

	if err := wal.Write(context.Background(), testEnvelope(1, "some data")); err != nil {
		t.Fatalf("failed to write envelope: %v", err)
	}

	if err := wal.Truncate(context.Background()); err != nil {
		t.Fatalf("failed to truncate WAL: %v", err)
	}

	segments, _ := wal.getSortedSegments()
	if len(segments) != 1 { // Truncate opens a new empty segment
		t.Fatalf("expected 1 segment after truncate, got %d", len(segments))
	}
	info, _ := os.Stat(segments[0])
	if info.Size() != 0 {
		t.Errorf("expected new segment to be empty, size is %d", info.Size())
	}
}

func TestWAL_TruncateKeepsWritesAfterReplay(t *testing.T) {
	wal := setupTestWAL(t, 4096, 64*1024)
	ctx := context.Background()

	if err := wal.Write(ctx, testEnvelope(1, "before replay")); err != nil {
		t.Fatalf("failed to write envelope: %v", err)
	}
	if got := collect(t, wal); len(got) != 1 {
		t.Fatalf("expected 1 replayed envelope, got %d", len(got))
	}

	if err := wal.Write(ctx, testEnvelope(2, "during replay")); err != nil {
		t.Fatalf("failed to write envelope: %v", err)
	}
	if err := wal.Truncate(ctx); err != nil {
		t.Fatalf("failed to truncate WAL: %v", err)
	}

	remaining := collect(t, wal)
	if len(remaining) != 1 || remaining[0].Payload["message"] != "during replay" {
		t.Errorf("expected only the late write to survive truncation, got %+v", remaining)
	}
}

func TestWAL_TruncateAfterEmptyReplayKeepsNewWrites(t *testing.T) {
	wal := setupTestWAL(t, 1024, 10*1024)

	// Leave the directory without any segment before replaying.
	segments, err := filepath.Glob(filepath.Join(wal.dir, segmentPrefix+"*"))
	if err != nil {
		t.Fatalf("failed to list segments: %v", err)
	}
	for _, path := range segments {
		if err := os.Remove(path); err != nil {
			t.Fatalf("failed to remove segment: %v", err)
		}
	}

	if replayed := collect(t, wal); len(replayed) != 0 {
		t.Fatalf("expected nothing to replay, got %d envelopes", len(replayed))
	}
	if err := wal.Write(context.Background(), testEnvelope(7, "spilled during replay")); err != nil {
		t.Fatalf("failed to write envelope: %v", err)
	}
	if err := wal.Truncate(context.Background()); err != nil {
		t.Fatalf("failed to truncate WAL: %v", err)
	}

	replayed := collect(t, wal)
	if len(replayed) != 1 || replayed[0].Payload["message"] != "spilled during replay" {
		t.Fatalf("expected the envelope written after the empty replay to survive, got %+v", replayed)
	}
}

func TestWAL_MaxTotalSize(t *testing.T) {
	wal := setupTestWAL(t, 100, 300) // Max total size is very small

	var err error
	for i := 0; i < 5; i++ { // Write until we expect an error
		err = wal.Write(context.Background(), testEnvelope(int64(i), "some data that will fill up the WAL"))
		if err != nil {
			break
		}
	}

	if err == nil {
		t.Fatal("expected an error when writing beyond max total size, but got nil")
	}
}
