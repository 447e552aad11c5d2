package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"

	"github.com/V4T54L/audit-trail/internal/adapter/api/handler"
	"github.com/V4T54L/audit-trail/internal/adapter/api/middleware"
	"github.com/V4T54L/audit-trail/internal/adapter/metrics"
	"github.com/V4T54L/audit-trail/internal/domain/mocks"
	"github.com/V4T54L/audit-trail/internal/pkg/config"
	"github.com/V4T54L/audit-trail/internal/usecase"
)

const validLog = `{"action":"create","resource_type":"user","resource_id":"u-9","ip_address":"10.0.0.1","user_agent":"curl/8","message":"Created user"}`

func newTestRouter(t *testing.T) (http.Handler, *mocks.MockAuditLogStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewPipelineMetrics(prometheus.NewRegistry())
	store := &mocks.MockAuditLogStore{}
	queue := &mocks.MockTaskQueue{}

	logHandler := handler.NewLogHandler(
		usecase.NewCreateLogUseCase(store, queue, nil, nil, nil, m, logger),
		usecase.NewQueryLogsUseCase(store),
		usecase.NewSearchLogsUseCase(&mocks.MockIndexSink{}, "audit_logs", m, logger),
		logger,
		1<<20,
	)
	tenants := &mocks.MockTenantRepository{Known: map[int64]bool{7: true}}

	return NewRouter(config.APIConfig{RateLimitRPS: 100, RateLimitBurst: 100}, logger, m, tenants,
		logHandler, handler.NewLogStreamBroker(logger)), store
}

func request(method, target, role, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(middleware.TenantIDHeader, "7")
	req.Header.Set(middleware.UserIDHeader, "u-1")
	req.Header.Set(middleware.RoleHeader, role)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func TestRouter_RoleAccess(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name   string
		req    *http.Request
		status int
	}{
		{"user creates", request(http.MethodPost, "/v1/logs", "user", validLog), http.StatusCreated},
		{"admin creates", request(http.MethodPost, "/v1/logs", "admin", validLog), http.StatusCreated},
		{"auditor cannot create", request(http.MethodPost, "/v1/logs", "auditor", validLog), http.StatusForbidden},
		{"auditor lists", request(http.MethodGet, "/v1/logs", "auditor", ""), http.StatusOK},
		{"user cannot list", request(http.MethodGet, "/v1/logs", "user", ""), http.StatusForbidden},
		{"auditor searches", request(http.MethodGet, "/v1/logs/search?q=x", "auditor", ""), http.StatusOK},
		{"missing record", request(http.MethodGet, "/v1/logs/999", "admin", ""), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, tt.req)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
		})
	}
}

func TestRouter_RequiresIdentity(t *testing.T) {
	router, store := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/logs", strings.NewReader(validLog)))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, store.Records)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAdminRouter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	metrics.NewPipelineMetrics(reg)
	inspector := &mocks.MockQueueInspector{}
	uc := usecase.NewAdminQueueUseCase(inspector, &mocks.MockAuditLogStore{}, &mocks.MockTaskQueue{}, false, logger)

	tenantHandler := handler.NewTenantHandler(usecase.NewManageTenantsUseCase(&mocks.MockTenantRepository{}, logger), logger)
	router := NewAdminRouter(handler.NewAdminHandler(uc, logger), tenantHandler, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), logger)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/tenants", strings.NewReader(`{"name":"Acme"}`)))
	assert.Equal(t, http.StatusCreated, rr.Code)

	for _, path := range []string{"/health", "/metrics", "/admin/queues/stats", "/admin/tenants"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}
}
