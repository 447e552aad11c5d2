package domain

import (
	"context"
	"time"
)

// AuditLogStore is the durable source of truth for audit records.
type AuditLogStore interface {
	// Insert persists the record in a single transaction and fills in the
	// generated ID and CreatedAt.
	Insert(ctx context.Context, log *AuditLog) error
	Get(ctx context.Context, tenantID, id int64) (*AuditLog, error)
	List(ctx context.Context, filter LogFilter) ([]AuditLog, error)
}

// TenantRepository answers whether a tenant id is known and manages the
// tenant catalogue.
type TenantRepository interface {
	Exists(ctx context.Context, tenantID int64) (bool, error)
	List(ctx context.Context) ([]Tenant, error)
	// Create fills in the generated ID and timestamps.
	Create(ctx context.Context, tenant *Tenant) error
}

// TaskPublisher submits envelopes to the main task queue.
type TaskPublisher interface {
	Enqueue(ctx context.Context, env Envelope, opts SendOptions) (string, error)
}

// TaskQueue is everything the worker loop needs from the queue gateway.
type TaskQueue interface {
	TaskPublisher
	ReceiveBatch(ctx context.Context, opts ReceiveOptions) ([]Message, error)
	Delete(ctx context.Context, msg Message) error
	// Retry re-sends env to the main queue and then deletes msg.
	Retry(ctx context.Context, msg Message, env Envelope, delay time.Duration) error
	// Redrive publishes env to the dead-letter target and then deletes msg.
	Redrive(ctx context.Context, msg Message, env Envelope) error
	DeadLetterConfigured() bool
}

// QueueInspector reports queue depth for the admin API.
type QueueInspector interface {
	Stats(ctx context.Context) ([]QueueStats, error)
}

// IndexSink is the search engine. Every call failure wraps ErrSearchUnavailable.
type IndexSink interface {
	EnsureIndex(ctx context.Context, index string, mapping map[string]any) error
	Upsert(ctx context.Context, index, docID string, doc IndexedDocument) error
	Query(ctx context.Context, index string, q SearchQuery) (SearchResult, error)
}

// BlobStore writes archive objects.
type BlobStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// WALRepository spills envelopes that could not be enqueued.
type WALRepository interface {
	Write(ctx context.Context, env Envelope) error
	Replay(ctx context.Context, handler func(Envelope) error) error
	Truncate(ctx context.Context) error
	Close() error
}
