package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TaskType tags the unit of work carried by an Envelope.
type TaskType string

const (
	TaskIndexLog   TaskType = "INDEX_LOG"
	TaskArchiveLog TaskType = "ARCHIVE_LOG"
)

// String returns the wire value of the task type.
func (t TaskType) String() string {
	return string(t)
}

// Envelope is the serializable unit of work placed on the task queue.
type Envelope struct {
	TaskType  TaskType       `json:"task_type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
	Retries   int            `json:"retries"`
}

// NewEnvelope creates a fresh envelope with zero retries.
func NewEnvelope(taskType TaskType, payload map[string]any) Envelope {
	return Envelope{
		TaskType:  taskType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
		Retries:   0,
	}
}

// WithRetries returns a copy of the envelope carrying the given retry count.
// CreatedAt and the payload are preserved.
func (e Envelope) WithRetries(retries int) Envelope {
	e.Retries = retries
	return e
}

// Marshal encodes the envelope in its JSON wire format.
func (e Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return data, nil
}

// ParseEnvelope decodes a queue message body. Numbers inside the payload are
// kept as json.Number so that 64-bit identifiers survive the round trip.
//
// When the body decodes and names a task type but is otherwise invalid, the
// partially decoded envelope is returned together with the error, so callers
// can still tell which task it was meant for.
func ParseEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.TaskType == "" {
		return Envelope{}, fmt.Errorf("%w: missing task_type", ErrMalformedEnvelope)
	}
	if env.Payload == nil {
		return env, fmt.Errorf("%w: missing payload", ErrMalformedEnvelope)
	}
	if env.Retries < 0 {
		return env, fmt.Errorf("%w: negative retries %d", ErrMalformedEnvelope, env.Retries)
	}
	return env, nil
}

// IndexLogPayload is the typed view of an INDEX_LOG payload.
type IndexLogPayload struct {
	ID           int64          `json:"id"`
	TenantID     int64          `json:"tenant_id"`
	Message      string         `json:"message"`
	CreatedAt    time.Time      `json:"created_at"`
	UserID       string         `json:"user_id"`
	Action       Action         `json:"action"`
	ResourceType string         `json:"resource_type"`
	Severity     Severity       `json:"severity"`
	LogMetadata  map[string]any `json:"log_metadata,omitempty"`
}

var indexLogRequiredFields = []string{
	"id", "tenant_id", "message", "created_at", "user_id", "action", "resource_type", "severity",
}

// NewIndexLogEnvelope projects a committed record into an INDEX_LOG envelope.
func NewIndexLogEnvelope(log *AuditLog) Envelope {
	payload := map[string]any{
		"id":            log.ID,
		"tenant_id":     log.TenantID,
		"message":       log.Message,
		"created_at":    log.CreatedAt.UTC().Format(time.RFC3339Nano),
		"user_id":       log.UserID,
		"action":        string(log.Action),
		"resource_type": log.ResourceType,
		"severity":      string(log.Severity),
		"log_metadata":  log.LogMetadata,
	}
	return NewEnvelope(TaskIndexLog, payload)
}

// DecodeIndexLogPayload validates and converts a raw payload. Missing or
// mistyped fields yield a PermanentError since redelivery cannot fix them.
func DecodeIndexLogPayload(payload map[string]any) (IndexLogPayload, error) {
	for _, field := range indexLogRequiredFields {
		if v, ok := payload[field]; !ok || v == nil {
			return IndexLogPayload{}, NewPermanentError(fmt.Sprintf("INDEX_LOG payload missing %q", field), nil)
		}
	}

	var p IndexLogPayload
	if err := remarshal(payload, &p); err != nil {
		return IndexLogPayload{}, NewPermanentError("INDEX_LOG payload has invalid field types", err)
	}
	if !p.Action.Valid() {
		return IndexLogPayload{}, NewPermanentError(fmt.Sprintf("INDEX_LOG payload has invalid action %q", p.Action), nil)
	}
	if !p.Severity.Valid() {
		return IndexLogPayload{}, NewPermanentError(fmt.Sprintf("INDEX_LOG payload has invalid severity %q", p.Severity), nil)
	}
	return p, nil
}

// ArchiveLogPayload selects the tenant time range copied to object storage.
type ArchiveLogPayload struct {
	TenantID int64     `json:"tenant_id"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// NewArchiveLogEnvelope builds an ARCHIVE_LOG envelope.
func NewArchiveLogEnvelope(p ArchiveLogPayload) Envelope {
	return NewEnvelope(TaskArchiveLog, map[string]any{
		"tenant_id": p.TenantID,
		"start":     p.Start.UTC().Format(time.RFC3339Nano),
		"end":       p.End.UTC().Format(time.RFC3339Nano),
	})
}

// DecodeArchiveLogPayload validates an ARCHIVE_LOG payload.
func DecodeArchiveLogPayload(payload map[string]any) (ArchiveLogPayload, error) {
	var p ArchiveLogPayload
	if err := remarshal(payload, &p); err != nil {
		return ArchiveLogPayload{}, NewPermanentError("ARCHIVE_LOG payload has invalid field types", err)
	}
	if p.TenantID <= 0 {
		return ArchiveLogPayload{}, NewPermanentError("ARCHIVE_LOG payload missing tenant_id", nil)
	}
	if p.Start.IsZero() || p.End.IsZero() || !p.End.After(p.Start) {
		return ArchiveLogPayload{}, NewPermanentError("ARCHIVE_LOG payload needs start before end", nil)
	}
	return p, nil
}

func remarshal(in map[string]any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
