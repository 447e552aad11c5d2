package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/V4T54L/audit-trail/internal/domain"
	"github.com/V4T54L/audit-trail/internal/domain/mocks"
)

func TestIndexLogUseCase_Handle(t *testing.T) {
	t.Run("projects and upserts by id", func(t *testing.T) {
		sink := &mocks.MockIndexSink{}
		uc := NewIndexLogUseCase(sink, testIndex, discardLogger())

		rec := sampleRecord()
		rec.LogMetadata = map[string]any{"browser": "firefox"}
		if err := uc.Handle(context.Background(), domain.NewIndexLogEnvelope(rec)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		doc := sink.Docs[testIndex]["42"]
		if doc.LogMetadata != `{"browser":"firefox"}` {
			t.Errorf("expected metadata as JSON text, got %q", doc.LogMetadata)
		}
		if doc.Severity != "info" || doc.ResourceType != "session" || doc.UserID != "user-1" {
			t.Errorf("unexpected document %+v", doc)
		}
		if !doc.CreatedAt.Equal(rec.CreatedAt) {
			t.Errorf("expected created_at %s, got %s", rec.CreatedAt, doc.CreatedAt)
		}
	})

	t.Run("sink error is retryable", func(t *testing.T) {
		sinkErr := errors.New("mapper_parsing_exception")
		uc := NewIndexLogUseCase(&mocks.MockIndexSink{UpsertErr: sinkErr}, testIndex, discardLogger())

		err := uc.Handle(context.Background(), domain.NewIndexLogEnvelope(sampleRecord()))
		if !errors.Is(err, sinkErr) || domain.IsPermanent(err) {
			t.Fatalf("expected wrapped retryable error, got %v", err)
		}
	})

	t.Run("ensure index uses audit mapping", func(t *testing.T) {
		sink := &mocks.MockIndexSink{}
		uc := NewIndexLogUseCase(sink, testIndex, discardLogger())
		if err := uc.EnsureIndex(context.Background()); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(sink.Ensured) != 1 || sink.Ensured[0] != testIndex {
			t.Errorf("expected %q to be ensured, got %v", testIndex, sink.Ensured)
		}
	})
}
