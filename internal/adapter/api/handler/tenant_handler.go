package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/V4T54L/audit-trail/internal/domain"
	"github.com/V4T54L/audit-trail/internal/usecase"
)

// TenantAdmin is the use case behind TenantHandler.
type TenantAdmin interface {
	ListTenants(ctx context.Context) ([]domain.Tenant, error)
	CreateTenant(ctx context.Context, req usecase.CreateTenantRequest) (*domain.Tenant, error)
}

// TenantHandler serves /admin/tenants.
type TenantHandler struct {
	uc     TenantAdmin
	logger *slog.Logger
}

func NewTenantHandler(uc TenantAdmin, logger *slog.Logger) *TenantHandler {
	return &TenantHandler{uc: uc, logger: logger.With("component", "tenant_handler")}
}

// List handles GET /admin/tenants.
func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.uc.ListTenants(r.Context())
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, tenants)
}

// Create handles POST /admin/tenants.
// Body: {"name": "Acme", "description": "..."}; description is optional.
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req usecase.CreateTenantRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondWithError(w, h.logger, fmt.Errorf("%w: invalid request body", domain.ErrInvalidRequest))
		return
	}

	tenant, err := h.uc.CreateTenant(r.Context(), req)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusCreated, tenant)
}
