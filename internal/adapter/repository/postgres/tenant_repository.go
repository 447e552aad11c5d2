package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/V4T54L/audit-trail/internal/adapter/metrics"
	"github.com/V4T54L/audit-trail/internal/domain"
)

type cacheEntry struct {
	exists    bool
	expiresAt time.Time
}

// TenantRepository implements domain.TenantRepository using PostgreSQL as the
// source of truth and an in-memory, time-based cache.
type TenantRepository struct {
	db       *sql.DB
	logger   *slog.Logger
	cache    map[int64]cacheEntry
	mu       sync.RWMutex
	cacheTTL time.Duration
	metrics  *metrics.PipelineMetrics
}

// NewTenantRepository creates a new instance of the PostgreSQL tenant repository.
func NewTenantRepository(db *sql.DB, logger *slog.Logger, cacheTTL time.Duration, m *metrics.PipelineMetrics) *TenantRepository {
	return &TenantRepository{
		db:       db,
		logger:   logger,
		cache:    make(map[int64]cacheEntry),
		cacheTTL: cacheTTL,
		metrics:  m,
	}
}

// Exists checks whether a tenant exists. It first checks a local cache and
// falls back to the database if the entry is missing or expired.
func (r *TenantRepository) Exists(ctx context.Context, tenantID int64) (bool, error) {
	r.mu.RLock()
	entry, found := r.cache[tenantID]
	r.mu.RUnlock()

	if found && time.Now().Before(entry.expiresAt) {
		if r.metrics != nil {
			r.metrics.TenantCacheHits.Inc()
		}
		return entry.exists, nil
	}

	if r.metrics != nil {
		r.metrics.TenantCacheMisses.Inc()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have populated it while we waited for the lock.
	entry, found = r.cache[tenantID]
	if found && time.Now().Before(entry.expiresAt) {
		return entry.exists, nil
	}

	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM tenants WHERE id = $1)`, tenantID).Scan(&exists)
	if err != nil {
		r.logger.Error("failed to look up tenant in database", "error", err, "tenant_id", tenantID)
		// Don't cache errors, let the next request retry from the DB
		return false, err
	}

	r.cache[tenantID] = cacheEntry{
		exists:    exists,
		expiresAt: time.Now().Add(r.cacheTTL),
	}
	return exists, nil
}

// List returns every tenant, oldest first.
func (r *TenantRepository) List(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, description, created_at, updated_at FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	tenants := []domain.Tenant{}
	for rows.Next() {
		var (
			t           domain.Tenant
			description sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Name, &description, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		if description.Valid {
			t.Description = &description.String
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tenants: %w", err)
	}
	return tenants, nil
}

// Create inserts a tenant and marks it as existing in the cache, replacing
// any negative entry left by an earlier lookup of the same id.
func (r *TenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO tenants (name, description) VALUES ($1, $2) RETURNING id, created_at, updated_at`,
		tenant.Name, tenant.Description,
	).Scan(&tenant.ID, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	r.mu.Lock()
	r.cache[tenant.ID] = cacheEntry{exists: true, expiresAt: time.Now().Add(r.cacheTTL)}
	r.mu.Unlock()

	r.logger.Info("tenant created", "tenant_id", tenant.ID, "name", tenant.Name)
	return nil
}
