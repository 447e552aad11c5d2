package domain

import "time"

// Tenant owns a partition of the audit trail. Every record, query and task
// carries a tenant id.
type Tenant struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
