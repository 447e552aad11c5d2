package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/V4T54L/audit-trail/internal/adapter/api/handler"
)

// NewAdminRouter creates the router for the internal admin & metrics server.
// It carries no authentication and must not be exposed publicly.
func NewAdminRouter(adminHandler *handler.AdminHandler, tenantHandler *handler.TenantHandler, metricsHandler http.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", adminHandler.HealthCheck)
	r.Handle("/metrics", metricsHandler)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/queues/stats", adminHandler.GetQueueStats)
		r.Post("/reindex", adminHandler.Reindex)
		r.Post("/archive", adminHandler.Archive)
		r.Get("/tenants", tenantHandler.List)
		r.Post("/tenants", tenantHandler.Create)
	})

	logger.Debug("admin routes registered")
	return r
}
