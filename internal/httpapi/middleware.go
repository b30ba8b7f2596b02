package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/bronn-dev/dentalbridge/internal/auth"
	"github.com/bronn-dev/dentalbridge/internal/observability/metrics"
	"github.com/bronn-dev/dentalbridge/internal/ratelimit"
	"github.com/bronn-dev/dentalbridge/internal/tenancy"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

type ctxKey string

const claimsKey ctxKey = "dentalbridge.claims"

// ClaimsFromContext returns the verified claims set by RequireAuth.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// RequireAuth verifies the bearer token and stores its claims in context.
// Staff tokens also stamp the tenant id for downstream repositories.
func RequireAuth(issuer *auth.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			claims, err := issuer.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			if claims.TenantID != "" {
				ctx = tenancy.WithTenantID(ctx, claims.TenantID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireKind rejects principals whose token kind is not in the allowlist.
// Admin tokens pass every staff check.
func RequireKind(kinds ...string) func(http.Handler) http.Handler {
	allowed := map[string]bool{}
	for _, k := range kinds {
		allowed[k] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !allowed[claims.Kind] && !(claims.Kind == auth.KindAdmin && allowed[auth.KindStaff]) {
				writeError(w, http.StatusForbidden, "insufficient privileges")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger emits structured logs and request metrics for every call.
func RequestLogger(logger *logging.Logger, m *metrics.RequestMetrics) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			m.RequestStarted()
			next.ServeHTTP(ww, r)
			m.RequestDone()

			elapsed := time.Since(start)
			m.ObserveRequest(routePattern(r), r.Method, statusLabel(ww.Status()), elapsed.Seconds())
			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"request_id", reqID,
				"remote_ip", r.RemoteAddr,
				"duration_ms", elapsed.Milliseconds(),
			)
		})
	}
}

// routePattern prefers the chi route template over the raw path so metric
// cardinality stays bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func statusLabel(status int) string {
	if status == 0 {
		status = http.StatusOK
	}
	return strconv.Itoa(status)
}

// ChatLimits bundles the intake quotas applied to the triage surface.
type ChatLimits struct {
	PerUser   ratelimit.Limit
	PerTenant ratelimit.Limit
}

// ChatRateLimit enforces the per-user and per-tenant chat quotas. With no
// Redis limiter configured it degrades to the in-process per-IP bucket so a
// missing cache never opens the surface to abuse entirely.
func ChatRateLimit(limiter *ratelimit.Limiter, limits ChatLimits, fallback *TokenBucket) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := clientIP(r)
			if limiter != nil {
				if !limiter.Allow(r.Context(), limits.PerUser, subject) {
					writeError(w, http.StatusTooManyRequests, "chat rate limit exceeded, try again later")
					return
				}
				if tenant := tenantSubject(r); tenant != "" {
					if !limiter.Allow(r.Context(), limits.PerTenant, tenant) {
						writeError(w, http.StatusTooManyRequests, "clinic chat quota exhausted for today")
						return
					}
				}
			} else if fallback != nil && !fallback.Allow(subject) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BookingRateLimit caps booking attempts per caller.
func BookingRateLimit(limiter *ratelimit.Limiter, limit ratelimit.Limit, fallback *TokenBucket) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := clientIP(r)
			if claims, ok := ClaimsFromContext(r.Context()); ok && claims.Subject != "" {
				subject = claims.Subject
			}
			if limiter != nil {
				if !limiter.Allow(r.Context(), limit, subject) {
					writeError(w, http.StatusTooManyRequests, "booking rate limit exceeded")
					return
				}
			} else if fallback != nil && !fallback.Allow(subject) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

func tenantSubject(r *http.Request) string {
	if tenant, ok := tenancy.TenantIDFromContext(r.Context()); ok {
		return tenant
	}
	return r.Header.Get("X-Tenant-Id")
}
