package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/V4T54L/audit-trail/internal/domain"
)

// CreateTenantRequest is the admin payload for a new tenant.
type CreateTenantRequest struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1024"`
}

// ManageTenantsUseCase lists and provisions tenants.
type ManageTenantsUseCase struct {
	tenants  domain.TenantRepository
	validate *validator.Validate
	logger   *slog.Logger
}

// NewManageTenantsUseCase creates a new ManageTenantsUseCase.
func NewManageTenantsUseCase(tenants domain.TenantRepository, logger *slog.Logger) *ManageTenantsUseCase {
	return &ManageTenantsUseCase{
		tenants:  tenants,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("component", "tenants"),
	}
}

func (uc *ManageTenantsUseCase) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	return uc.tenants.List(ctx)
}

// CreateTenant validates req and stores the tenant. Surrounding whitespace of
// the name is dropped before validation.
func (uc *ManageTenantsUseCase) CreateTenant(ctx context.Context, req CreateTenantRequest) (*domain.Tenant, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := uc.validate.StructCtx(ctx, req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidRequest, verrs.Error())
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	tenant := &domain.Tenant{Name: req.Name, Description: req.Description}
	if err := uc.tenants.Create(ctx, tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}
