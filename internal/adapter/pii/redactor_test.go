package pii

import (
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/V4T54L/audit-trail/internal/domain"
)

func TestRedactor(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	redactor := NewRedactor([]string{"email", " SSN "}, logger)

	tests := []struct {
		name          string
		metadata      map[string]any
		afterState    map[string]any
		wantMetadata  map[string]any
		wantAfter     map[string]any
		expectedCount int
	}{
		{
			name:          "Redact single field",
			metadata:      map[string]any{"email": "test@example.com", "user_id": 123},
			wantMetadata:  map[string]any{"email": RedactedPlaceholder, "user_id": 123},
			expectedCount: 1,
		},
		{
			name:          "Redact case-insensitive keys",
			metadata:      map[string]any{"Email": "test@example.com", "ssn": "000-00-0000"},
			wantMetadata:  map[string]any{"Email": RedactedPlaceholder, "ssn": RedactedPlaceholder},
			expectedCount: 2,
		},
		{
			name:          "Redact nested objects and arrays",
			metadata:      map[string]any{"contacts": []any{map[string]any{"email": "a@b.c"}}},
			afterState:    map[string]any{"profile": map[string]any{"ssn": "1"}},
			wantMetadata:  map[string]any{"contacts": []any{map[string]any{"email": RedactedPlaceholder}}},
			wantAfter:     map[string]any{"profile": map[string]any{"ssn": RedactedPlaceholder}},
			expectedCount: 2,
		},
		{
			name:          "No fields to redact",
			metadata:      map[string]any{"user_id": 123, "action": "login"},
			wantMetadata:  map[string]any{"user_id": 123, "action": "login"},
			expectedCount: 0,
		},
		{
			name:          "Empty record",
			expectedCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &domain.AuditLog{LogMetadata: tt.metadata, AfterState: tt.afterState}

			count := redactor.Redact(log)

			if count != tt.expectedCount {
				t.Errorf("Redact() count = %d, want %d", count, tt.expectedCount)
			}
			if !reflect.DeepEqual(log.LogMetadata, tt.wantMetadata) {
				t.Errorf("metadata got = %v, want %v", log.LogMetadata, tt.wantMetadata)
			}
			if !reflect.DeepEqual(log.AfterState, tt.wantAfter) {
				t.Errorf("after_state got = %v, want %v", log.AfterState, tt.wantAfter)
			}
		})
	}
}

func TestParseFields(t *testing.T) {
	if got := ParseFields(""); got != nil {
		t.Errorf("expected nil for empty list, got %v", got)
	}
	if got := ParseFields("password,token"); len(got) != 2 {
		t.Errorf("expected 2 fields, got %v", got)
	}
}
