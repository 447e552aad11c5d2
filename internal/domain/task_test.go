package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestEnvelope_WireFormat(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	env := Envelope{
		TaskType:  TaskIndexLog,
		Payload:   map[string]any{"id": 42},
		CreatedAt: created,
		Retries:   2,
	}

	data, err := env.Marshal()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for _, key := range []string{"task_type", "payload", "created_at", "retries"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("expected key %q in wire format", key)
		}
	}
	if raw["task_type"] != "INDEX_LOG" {
		t.Errorf("unexpected task_type %v", raw["task_type"])
	}
	if raw["created_at"] != "2024-05-01T12:00:00Z" {
		t.Errorf("unexpected created_at %v", raw["created_at"])
	}
}

func TestParseEnvelope(t *testing.T) {
	t.Run("keeps large ids exact", func(t *testing.T) {
		body := []byte(`{"task_type":"INDEX_LOG","payload":{"id":9007199254740993},"created_at":"2024-05-01T12:00:00Z","retries":1}`)
		env, err := ParseEnvelope(body)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if env.Retries != 1 {
			t.Errorf("expected retries 1, got %d", env.Retries)
		}
		if n, ok := env.Payload["id"].(json.Number); !ok || n.String() != "9007199254740993" {
			t.Errorf("expected exact json.Number id, got %#v", env.Payload["id"])
		}
	})

	t.Run("unknown task type still parses", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{"task_type":"PURGE","payload":{},"created_at":"2024-05-01T12:00:00Z","retries":0}`))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if env.TaskType != "PURGE" {
			t.Errorf("unexpected task type %q", env.TaskType)
		}
	})

	malformed := map[string]string{
		"not json":         `not-json`,
		"missing type":     `{"payload":{},"retries":0}`,
		"missing payload":  `{"task_type":"INDEX_LOG","retries":0}`,
		"negative retries": `{"task_type":"INDEX_LOG","payload":{},"retries":-1}`,
	}
	for name, body := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEnvelope([]byte(body))
			if !errors.Is(err, ErrMalformedEnvelope) {
				t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
			}
		})
	}

	t.Run("typed but invalid keeps the task type", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{"task_type":"FOO","retries":0}`))
		if !errors.Is(err, ErrMalformedEnvelope) {
			t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
		}
		if env.TaskType != "FOO" {
			t.Errorf("expected task type FOO, got %q", env.TaskType)
		}
	})
}

func TestEnvelope_WithRetriesPreservesCreatedAt(t *testing.T) {
	env := NewEnvelope(TaskIndexLog, map[string]any{"id": 1})
	next := env.WithRetries(3)

	if next.Retries != 3 || env.Retries != 0 {
		t.Fatalf("expected copy with retries 3 and original 0, got %d and %d", next.Retries, env.Retries)
	}
	if !next.CreatedAt.Equal(env.CreatedAt) {
		t.Error("created_at must not change across retries")
	}
}

func TestIndexLogEnvelope_RoundTrip(t *testing.T) {
	record := &AuditLog{
		ID:           42,
		TenantID:     7,
		CreatedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		UserID:       "u-1",
		Action:       ActionCreate,
		ResourceType: "session",
		Message:      "user login",
		Severity:     SeverityInfo,
		LogMetadata:  map[string]any{"ip": "10.0.0.1"},
	}

	data, err := NewIndexLogEnvelope(record).Marshal()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	env, err := ParseEnvelope(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	p, err := DecodeIndexLogPayload(env.Payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if p.ID != 42 || p.TenantID != 7 {
		t.Errorf("unexpected identity %d/%d", p.ID, p.TenantID)
	}
	if !p.CreatedAt.Equal(record.CreatedAt) {
		t.Errorf("unexpected created_at %s", p.CreatedAt)
	}
	if p.LogMetadata["ip"] != "10.0.0.1" {
		t.Errorf("unexpected metadata %v", p.LogMetadata)
	}
}

func TestDecodeIndexLogPayload_Permanent(t *testing.T) {
	valid := func() map[string]any {
		return map[string]any{
			"id": json.Number("1"), "tenant_id": json.Number("2"), "message": "m",
			"created_at": "2024-05-01T12:00:00Z", "user_id": "u", "action": "view",
			"resource_type": "doc", "severity": "info",
		}
	}

	tests := []struct {
		name   string
		mutate func(p map[string]any)
	}{
		{name: "missing id", mutate: func(p map[string]any) { delete(p, "id") }},
		{name: "null message", mutate: func(p map[string]any) { p["message"] = nil }},
		{name: "id not a number", mutate: func(p map[string]any) { p["id"] = "abc" }},
		{name: "bad action", mutate: func(p map[string]any) { p["action"] = "explode" }},
		{name: "bad severity", mutate: func(p map[string]any) { p["severity"] = "loud" }},
	}

	if _, err := DecodeIndexLogPayload(valid()); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			_, err := DecodeIndexLogPayload(p)
			if !IsPermanent(err) {
				t.Fatalf("expected permanent error, got %v", err)
			}
		})
	}
}

func TestDecodeArchiveLogPayload(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	data, _ := NewArchiveLogEnvelope(ArchiveLogPayload{TenantID: 3, Start: start, End: end}).Marshal()
	env, err := ParseEnvelope(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	p, err := DecodeArchiveLogPayload(env.Payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if p.TenantID != 3 || !p.Start.Equal(start) || !p.End.Equal(end) {
		t.Errorf("unexpected payload %+v", p)
	}

	_, err = DecodeArchiveLogPayload(map[string]any{"tenant_id": 3, "start": end.Format(time.RFC3339), "end": start.Format(time.RFC3339)})
	if !IsPermanent(err) {
		t.Errorf("expected permanent error for inverted range, got %v", err)
	}
}
