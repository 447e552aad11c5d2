package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/V4T54L/audit-trail/internal/adapter/api/middleware"
	"github.com/V4T54L/audit-trail/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// asCaller injects a fixed identity, standing in for middleware.Auth.
func asCaller(id domain.Identity, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(middleware.WithIdentity(r.Context(), id)))
	})
}

var tenant7Auditor = domain.Identity{TenantID: 7, UserID: "u-1", UserName: "Alice", Role: domain.RoleAuditor}
