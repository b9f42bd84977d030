package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"covault/internal/platform/metrics"
	"covault/pkg/requestcontext"
)

// Throttle is the subset of the abuse guard the middleware needs.
type Throttle interface {
	Allow(ctx context.Context, identity string) (bool, time.Duration, error)
}

// Guard rejects requests from identities the abuse guard has locked out.
// It runs after RequireAuth so the identity is the authenticated principal.
func Guard(throttle Throttle, m *metrics.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity := requestcontext.Principal(ctx).String()
			if identity == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, retryAfter, err := throttle.Allow(ctx, identity)
			if err != nil || allowed {
				next.ServeHTTP(w, r)
				return
			}

			if m != nil {
				m.ThrottledTotal.Inc()
			}
			logger.WarnContext(ctx, "request throttled",
				"identity", identity,
				"retry_after", retryAfter.String(),
				"request_id", GetRequestID(ctx),
			)
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"throttled","error_description":"Too many failed attempts"}`))
		})
	}
}
