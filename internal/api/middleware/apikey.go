package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/hszk-dev/mediagate/internal/access"
	"github.com/hszk-dev/mediagate/internal/api/handler"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
	"github.com/hszk-dev/mediagate/internal/infrastructure/metrics"
)

// APIKeyHeader is the header alternative to the api_key parameter.
const APIKeyHeader = "X-API-Key"

// APIKey rejects requests without a valid key. The key is read from the
// api_key query or form parameter, then from the X-API-Key header.
func APIKey(auth access.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := auth.Authenticate(r.Context(), extractAPIKey(r))
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}

			switch {
			case errors.Is(err, repository.ErrMissingAPIKey):
				metrics.AuthFailuresTotal.WithLabelValues("missing").Inc()
			case errors.Is(err, repository.ErrInvalidAPIKey):
				metrics.AuthFailuresTotal.WithLabelValues("invalid").Inc()
			}
			status, message := handler.StatusFor(err)
			handler.Error(w, status, message)
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.FormValue("api_key")); key != "" {
		return key
	}
	return strings.TrimSpace(r.Header.Get(APIKeyHeader))
}
