package domain

import "time"

// IndexedDocument is the search-engine projection of an AuditLog, keyed by ID.
type IndexedDocument struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Message      string    `json:"message"`
	LogMetadata  string    `json:"log_metadata,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UserID       string    `json:"user_id"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	Severity     string    `json:"severity"`
}

// SearchQuery is a tenant-scoped search request. Text is matched against the
// message and metadata; the remaining fields are exact or range filters.
type SearchQuery struct {
	TenantID     int64
	Text         string
	UserID       string
	Action       Action
	ResourceType string
	Severity     Severity
	Start        *time.Time
	End          *time.Time
	Page         int
	Limit        int
}

// SearchHit is a single ranked result.
type SearchHit struct {
	Score    float64         `json:"score"`
	Document IndexedDocument `json:"document"`
}

// SearchResult distinguishes "no matches" (Total == 0, nil error) from a
// failed search, which is reported as ErrSearchUnavailable instead.
type SearchResult struct {
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
	Hits  []SearchHit `json:"hits"`
}

// AuditLogIndexMapping is the index schema used by ensure-index.
func AuditLogIndexMapping() map[string]any {
	keyword := map[string]any{"type": "keyword"}
	return map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"id":            keyword,
				"tenant_id":     keyword,
				"message":       map[string]any{"type": "text"},
				"log_metadata":  map[string]any{"type": "text"},
				"created_at":    map[string]any{"type": "date"},
				"user_id":       keyword,
				"action":        keyword,
				"resource_type": keyword,
				"severity":      keyword,
			},
		},
	}
}
