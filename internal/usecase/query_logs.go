package usecase

import (
	"context"

	"github.com/V4T54L/audit-trail/internal/domain"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// QueryLogsUseCase reads records straight from the durable store.
type QueryLogsUseCase struct {
	store domain.AuditLogStore
}

func NewQueryLogsUseCase(store domain.AuditLogStore) *QueryLogsUseCase {
	return &QueryLogsUseCase{store: store}
}

func (uc *QueryLogsUseCase) GetLog(ctx context.Context, tenantID, id int64) (*domain.AuditLog, error) {
	if tenantID <= 0 {
		return nil, domain.ErrTenantRequired
	}
	return uc.store.Get(ctx, tenantID, id)
}

// ListLogs applies the page/limit defaults used by the API.
func (uc *QueryLogsUseCase) ListLogs(ctx context.Context, filter domain.LogFilter, page int) ([]domain.AuditLog, error) {
	if filter.TenantID <= 0 {
		return nil, domain.ErrTenantRequired
	}
	if filter.Limit < 1 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if page < 1 {
		page = 1
	}
	filter.Offset = (page - 1) * filter.Limit
	return uc.store.List(ctx, filter)
}
