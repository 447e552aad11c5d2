package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/V4T54L/audit-trail/internal/domain"
)

const (
	TenantIDHeader = "X-Tenant-Id"
	UserIDHeader   = "X-User-Id"
	UserNameHeader = "X-User-Name"
	RoleHeader     = "X-User-Role"
)

type identityKey struct{}

// WithIdentity stores the caller identity on ctx.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity placed on ctx by Auth.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(domain.Identity)
	return id, ok
}

// Auth is a middleware factory that resolves the caller from the identity
// headers set by the upstream gateway and rejects unknown tenants.
func Auth(tenants domain.TenantRepository, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseIdentity(r)
			if !ok {
				logger.Warn("identity headers missing or invalid", "remote_addr", r.RemoteAddr)
				http.Error(w, "Unauthorized: identity headers required", http.StatusUnauthorized)
				return
			}

			exists, err := tenants.Exists(r.Context(), id.TenantID)
			if err != nil {
				logger.Error("failed to validate tenant", "error", err, "tenant_id", id.TenantID)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if !exists {
				logger.Warn("unknown tenant", "tenant_id", id.TenantID, "remote_addr", r.RemoteAddr)
				http.Error(w, "Unauthorized: unknown tenant", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole rejects callers whose role is not in roles. It must run after Auth.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok || !slices.Contains(roles, id.Role) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func parseIdentity(r *http.Request) (domain.Identity, bool) {
	tenantID, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(TenantIDHeader)), 10, 64)
	if err != nil || tenantID <= 0 {
		return domain.Identity{}, false
	}
	id := domain.Identity{
		TenantID: tenantID,
		UserID:   strings.TrimSpace(r.Header.Get(UserIDHeader)),
		UserName: strings.TrimSpace(r.Header.Get(UserNameHeader)),
		Role:     domain.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(RoleHeader)))),
	}
	if id.UserID == "" || !id.Role.Valid() {
		return domain.Identity{}, false
	}
	return id, true
}
