package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/audit-trail/internal/adapter/metrics"
	"github.com/V4T54L/audit-trail/internal/domain"
)

func TestTenantRepository_ExistsCaches(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := metrics.NewPipelineMetrics(prometheus.NewRegistry())
	repo := NewTenantRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Minute, m)
	query := regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM tenants WHERE id = $1)")

	mock.ExpectQuery(query).WithArgs(int64(7)).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	for i := 0; i < 3; i++ {
		exists, err := repo.Exists(context.Background(), 7)
		require.NoError(t, err)
		assert.True(t, exists)
	}
	assert.Equal(t, float64(2), testutil.ToFloat64(m.TenantCacheHits))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TenantCacheMisses))

	// Errors are not cached.
	mock.ExpectQuery(query).WithArgs(int64(8)).WillReturnError(errors.New("connection reset"))
	mock.ExpectQuery(query).WithArgs(int64(8)).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err = repo.Exists(context.Background(), 8)
	require.Error(t, err)
	exists, err := repo.Exists(context.Background(), 8)
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantRepository_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewTenantRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Minute, nil)
	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, description, created_at, updated_at FROM tenants ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at", "updated_at"}).
			AddRow(int64(1), "Acme", "first customer", created, created).
			AddRow(int64(2), "Globex", nil, created, created))

	tenants, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, "Acme", tenants[0].Name)
	require.NotNil(t, tenants[0].Description)
	assert.Equal(t, "first customer", *tenants[0].Description)
	assert.Nil(t, tenants[1].Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantRepository_ListEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewTenantRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Minute, nil)
	mock.ExpectQuery("FROM tenants").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at", "updated_at"}))

	tenants, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, tenants)
	assert.Empty(t, tenants)
}

func TestTenantRepository_CreateReplacesNegativeCacheEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewTenantRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour, nil)
	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM tenants WHERE id = $1)")).
		WithArgs(int64(3)).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO tenants (name, description) VALUES ($1, $2) RETURNING id, created_at, updated_at")).
		WithArgs("Initech", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(3), created, created))

	exists, err := repo.Exists(context.Background(), 3)
	require.NoError(t, err)
	require.False(t, exists)

	tenant := &domain.Tenant{Name: "Initech"}
	require.NoError(t, repo.Create(context.Background(), tenant))
	assert.Equal(t, int64(3), tenant.ID)
	assert.Equal(t, created, tenant.CreatedAt)

	// Served from the cache: no further query is expected.
	exists, err = repo.Exists(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantRepository_CreateError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewTenantRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Minute, nil)
	mock.ExpectQuery("INSERT INTO tenants").WillReturnError(errors.New("connection reset"))

	err = repo.Create(context.Background(), &domain.Tenant{Name: "Initech"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create tenant")
}
