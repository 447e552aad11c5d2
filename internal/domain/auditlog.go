package domain

import "time"

// Action is the kind of operation an audit record describes.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionView   Action = "view"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionView:
		return true
	}
	return false
}

// Severity classifies an audit record.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// AuditLog is the durable, append-only audit record. Its identity is the
// composite (ID, TenantID, CreatedAt) because the store partitions by tenant
// and time.
type AuditLog struct {
	ID           int64          `json:"id"`
	TenantID     int64          `json:"tenant_id"`
	CreatedAt    time.Time      `json:"created_at"`
	UserID       string         `json:"user_id"`
	Action       Action         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Message      string         `json:"message"`
	Severity     Severity       `json:"severity"`
	BeforeState  map[string]any `json:"before_state,omitempty"`
	AfterState   map[string]any `json:"after_state,omitempty"`
	LogMetadata  map[string]any `json:"log_metadata,omitempty"`
	SessionData  map[string]any `json:"session_data,omitempty"`
}

// LogFilter narrows a store listing. TenantID is mandatory.
type LogFilter struct {
	TenantID     int64
	UserID       string
	Action       Action
	ResourceType string
	ResourceID   string
	Severity     Severity
	Start        *time.Time
	End          *time.Time
	Limit        int
	Offset       int
}

// Role is the caller's role inside a tenant.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleUser    Role = "user"
	RoleAuditor Role = "auditor"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleAuditor:
		return true
	}
	return false
}

// Identity is the authenticated caller, resolved upstream and passed in headers.
type Identity struct {
	TenantID int64
	UserID   string
	UserName string
	Role     Role
}
