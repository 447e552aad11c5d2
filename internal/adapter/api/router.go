package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/V4T54L/audit-trail/internal/adapter/api/handler"
	"github.com/V4T54L/audit-trail/internal/adapter/api/middleware"
	"github.com/V4T54L/audit-trail/internal/adapter/metrics"
	"github.com/V4T54L/audit-trail/internal/domain"
	"github.com/V4T54L/audit-trail/internal/pkg/config"
)

// NewRouter creates and configures the main HTTP router for the audit API.
func NewRouter(
	cfg config.APIConfig,
	logger *slog.Logger,
	m *metrics.PipelineMetrics,
	tenants domain.TenantRepository,
	logHandler *handler.LogHandler,
	stream *handler.LogStreamBroker,
) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger, m))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/v1/logs", func(r chi.Router) {
		r.Use(middleware.Auth(tenants, logger))
		r.Use(middleware.TenantRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, logger))

		r.With(middleware.RequireRole(domain.RoleUser, domain.RoleAdmin)).Post("/", logHandler.Create)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAuditor, domain.RoleAdmin))
			r.Get("/", logHandler.List)
			r.Get("/search", logHandler.Search)
			r.Get("/stream", stream.ServeHTTP)
			r.Get("/{id}", logHandler.Get)
		})
	})

	return r
}
