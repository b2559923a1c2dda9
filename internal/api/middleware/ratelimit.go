package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/hszk-dev/mediagate/internal/access"
	"github.com/hszk-dev/mediagate/internal/api/handler"
	"github.com/hszk-dev/mediagate/internal/infrastructure/metrics"
)

// RateLimitConfig holds configuration for the rate limiting middleware.
type RateLimitConfig struct {
	// Limiter counts requests per identity.
	Limiter access.Limiter
	// KeyFunc extracts the client identity. Defaults to httprate.KeyByIP.
	KeyFunc func(r *http.Request) (string, error)
	// Now replaces time.Now in tests.
	Now func() time.Time
}

// RateLimit rejects clients that exhausted their fixed-window quota with
// 429 {"detail": "Rate limit exceeded"}. Limiter failures let the request
// through.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = httprate.KeyByIP
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := keyFunc(r)
			if err != nil || identity == "" {
				identity = r.RemoteAddr
			}

			d, err := cfg.Limiter.Allow(r.Context(), identity)
			if err != nil {
				metrics.RateLimitDecisionsTotal.WithLabelValues(metrics.RateLimitError).Inc()
				slog.WarnContext(r.Context(), "rate limiter unavailable, allowing request",
					"request_id", GetRequestID(r.Context()),
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(d.Remaining, 0)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				metrics.RateLimitDecisionsTotal.WithLabelValues(metrics.RateLimitRejected).Inc()
				retry := int(math.Ceil(d.RetryAfter(now()).Seconds()))
				h.Set("Retry-After", strconv.Itoa(max(retry, 1)))
				handler.RateLimited(w)
				return
			}

			metrics.RateLimitDecisionsTotal.WithLabelValues(metrics.RateLimitAllowed).Inc()
			next.ServeHTTP(w, r)
		})
	}
}
