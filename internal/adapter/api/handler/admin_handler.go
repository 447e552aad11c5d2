package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/V4T54L/audit-trail/internal/domain"
)

// QueueAdmin is the admin use case behind AdminHandler.
type QueueAdmin interface {
	QueueStats(ctx context.Context) ([]domain.QueueStats, error)
	Reindex(ctx context.Context, tenantID int64, start, end *time.Time) (int, error)
	RequestArchive(ctx context.Context, p domain.ArchiveLogPayload) (string, error)
}

// AdminHandler handles HTTP requests for pipeline administration.
type AdminHandler struct {
	uc     QueueAdmin
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(uc QueueAdmin, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{uc: uc, logger: logger.With("component", "admin_handler")}
}

// HealthCheck is a simple health check endpoint.
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// GetQueueStats handles GET /admin/queues/stats.
func (h *AdminHandler) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.uc.QueueStats(r.Context())
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, stats)
}

// Reindex handles POST /admin/reindex.
// Body: {"tenant_id": 7, "start": "...", "end": "..."}; start and end are optional.
func (h *AdminHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TenantID int64      `json:"tenant_id"`
		Start    *time.Time `json:"start"`
		End      *time.Time `json:"end"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, h.logger, fmt.Errorf("%w: invalid request body", domain.ErrInvalidRequest))
		return
	}
	if payload.TenantID <= 0 {
		respondWithError(w, h.logger, fmt.Errorf("%w: tenant_id is required", domain.ErrInvalidRequest))
		return
	}

	enqueued, err := h.uc.Reindex(r.Context(), payload.TenantID, payload.Start, payload.End)
	if err != nil {
		h.logger.Error("reindex stopped early", "error", err, "tenant_id", payload.TenantID, "enqueued", enqueued)
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusAccepted, map[string]int{"enqueued": enqueued})
}

// Archive handles POST /admin/archive.
// Body: {"tenant_id": 7, "start": "...", "end": "..."}.
func (h *AdminHandler) Archive(w http.ResponseWriter, r *http.Request) {
	var payload domain.ArchiveLogPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, h.logger, fmt.Errorf("%w: invalid request body", domain.ErrInvalidRequest))
		return
	}
	if payload.TenantID <= 0 {
		respondWithError(w, h.logger, fmt.Errorf("%w: tenant_id is required", domain.ErrInvalidRequest))
		return
	}

	id, err := h.uc.RequestArchive(r.Context(), payload)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusAccepted, map[string]string{"message_id": id})
}
