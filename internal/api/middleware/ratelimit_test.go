package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hszk-dev/mediagate/internal/access"
)

type failingLimiter struct{}

func (failingLimiter) Allow(ctx context.Context, identity string) (access.Decision, error) {
	return access.Decision{}, errors.New("redis: connection refused")
}

func TestRateLimit_RejectsAfterQuota(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 10, 0, time.UTC)
	clock := func() time.Time { return now }
	limiter := access.NewMemoryLimiter(2, time.Minute, access.WithLimiterClock(clock))

	h := RateLimit(RateLimitConfig{Limiter: limiter, Now: clock})(okHandler())

	send := func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/search", nil)
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := send("10.0.0.1:5000"); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, rec.Code)
		}
	}

	rec := send("10.0.0.1:5001")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if body := rec.Body.String(); body != "{\"detail\":\"Rate limit exceeded\"}\n" {
		t.Errorf("body = %q", body)
	}
	if got := rec.Header().Get("Retry-After"); got != "50" {
		t.Errorf("Retry-After = %q, want 50", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Errorf("X-RateLimit-Limit = %q", got)
	}

	if rec := send("10.0.0.2:5000"); rec.Code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", rec.Code)
	}

	now = now.Add(time.Minute)
	if rec := send("10.0.0.1:5000"); rec.Code != http.StatusOK {
		t.Errorf("status after window = %d, want 200", rec.Code)
	}
}

func TestRateLimit_FailsOpen(t *testing.T) {
	h := RateLimit(RateLimitConfig{Limiter: failingLimiter{}})(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/search", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRateLimit_CustomKey(t *testing.T) {
	limiter := access.NewMemoryLimiter(1, time.Minute)
	h := RateLimit(RateLimitConfig{
		Limiter: limiter,
		KeyFunc: func(r *http.Request) (string, error) { return r.Header.Get(APIKeyHeader), nil },
	})(okHandler())

	for _, key := range []string{"a", "b"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/search", nil)
		req.Header.Set(APIKeyHeader, key)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("key %s status = %d", key, rec.Code)
		}
	}
}
