package middleware

import (
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// TenantRateLimit applies a token bucket per tenant. It must run after Auth;
// requests without an identity pass through.
func TenantRateLimit(rps float64, burst int, logger *slog.Logger) func(http.Handler) http.Handler {
	var (
		mu       sync.Mutex
		limiters = make(map[int64]*rate.Limiter)
	)
	limiterFor := func(tenantID int64) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[tenantID]
		if !ok {
			l = rate.NewLimiter(rate.Limit(rps), burst)
			limiters[tenantID] = l
		}
		return l
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if ok && rps > 0 && !limiterFor(id.TenantID).Allow() {
				logger.Warn("rate limit exceeded", "tenant_id", id.TenantID)
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
