package pii

import (
	"log/slog"
	"strings"

	"github.com/V4T54L/audit-trail/internal/domain"
)

const RedactedPlaceholder = "[REDACTED]"

// Redactor replaces configured keys inside the free-form JSON sections of an
// audit record before it is persisted.
type Redactor struct {
	fieldsToRedact map[string]struct{} // lower-cased keys
	logger         *slog.Logger
}

// NewRedactor creates a new Redactor instance with a given set of fields to redact.
// Matching is case-insensitive.
func NewRedactor(fields []string, logger *slog.Logger) *Redactor {
	fieldSet := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		field = strings.ToLower(strings.TrimSpace(field))
		if field != "" {
			fieldSet[field] = struct{}{}
		}
	}
	return &Redactor{
		fieldsToRedact: fieldSet,
		logger:         logger,
	}
}

// ParseFields splits a comma-separated field list.
func ParseFields(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	return strings.Split(csv, ",")
}

// Redact modifies log_metadata, before_state and after_state in place,
// descending into nested objects and arrays. It returns the number of
// values replaced.
func (r *Redactor) Redact(log *domain.AuditLog) int {
	if len(r.fieldsToRedact) == 0 {
		return 0
	}

	count := r.redactMap(log.LogMetadata)
	count += r.redactMap(log.BeforeState)
	count += r.redactMap(log.AfterState)

	if count > 0 {
		r.logger.Debug("redacted PII fields", "count", count, "tenant_id", log.TenantID)
	}
	return count
}

func (r *Redactor) redactMap(m map[string]any) int {
	count := 0
	for key, value := range m {
		if _, ok := r.fieldsToRedact[strings.ToLower(key)]; ok {
			m[key] = RedactedPlaceholder
			count++
			continue
		}
		count += r.redactValue(value)
	}
	return count
}

func (r *Redactor) redactValue(value any) int {
	switch v := value.(type) {
	case map[string]any:
		return r.redactMap(v)
	case []any:
		count := 0
		for _, item := range v {
			count += r.redactValue(item)
		}
		return count
	}
	return 0
}
