package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicRoutesAreRateLimited(t *testing.T) {
	s := newTestServer(t, WithRateLimit(0.001, 2))
	s.createTenant(t, "acme")
	body := map[string]string{"email": "nobody@example.com"}

	for i := 0; i < 2; i++ {
		rec := s.do(t, call{method: http.MethodPost, path: "/v1/tenants/acme/password-reset", body: body})
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	rec := s.do(t, call{method: http.MethodPost, path: "/v1/tenants/acme/password-reset", body: body})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// another client address has its own bucket
	rec = s.do(t, call{
		method:     http.MethodPost,
		path:       "/v1/tenants/acme/password-reset",
		body:       body,
		remoteAddr: "203.0.113.9:4000",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	// authenticated routes are not throttled
	rec = s.do(t, call{method: http.MethodGet, path: "/admin/v1/tenants", header: map[string]string{"X-Admin-Key": s.adminKey}})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestForwardedHeadersDoNotResetTheLimit(t *testing.T) {
	s := newTestServer(t, WithRateLimit(0.001, 2))
	s.createTenant(t, "acme")
	body := map[string]string{"email": "alice@example.com", "password": "password-123"}

	throttled := 0
	for i := 0; i < 10; i++ {
		rec := s.do(t, call{
			method: http.MethodPost,
			path:   "/v1/tenants/acme/login",
			body:   body,
			header: map[string]string{
				"X-Forwarded-For": fmt.Sprintf("198.51.100.%d", i+1),
				"X-Real-IP":       fmt.Sprintf("198.51.100.%d", i+1),
			},
		})
		if rec.Code == http.StatusTooManyRequests {
			throttled++
		}
	}
	assert.Equal(t, 8, throttled)
}

func TestTrustedProxyHonoursForwardedFor(t *testing.T) {
	s := newTestServer(t, WithRateLimit(0.001, 1), WithTrustedProxy())
	s.createTenant(t, "acme")
	body := map[string]string{"email": "nobody@example.com"}
	forwardedFor := func(ip string) call {
		return call{
			method: http.MethodPost,
			path:   "/v1/tenants/acme/password-reset",
			body:   body,
			header: map[string]string{"X-Forwarded-For": ip},
		}
	}

	require.Equal(t, http.StatusAccepted, s.do(t, forwardedFor("203.0.113.1")).Code)
	require.Equal(t, http.StatusTooManyRequests, s.do(t, forwardedFor("203.0.113.1")).Code)
	require.Equal(t, http.StatusAccepted, s.do(t, forwardedFor("203.0.113.2")).Code)
}

func TestIPLimiterSweepsIdleEntries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newIPLimiter(1, 1)
	l.now = func() time.Time { return now }

	require.True(t, l.allow("198.51.100.1"))
	require.False(t, l.allow("198.51.100.1"))

	now = now.Add(limiterIdleTTL + time.Minute)
	for i := 2; i < limiterSweepEvery; i++ {
		l.allow("198.51.100.2")
	}
	_, kept := l.entries["198.51.100.1"]
	assert.False(t, kept)
	assert.True(t, l.allow("198.51.100.1"))
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	m := metrics.New()
	s := newTestServer(t, WithMetrics("/metrics", m.Handler(), m))

	s.do(t, call{method: http.MethodGet, path: "/healthz"})
	s.do(t, call{method: http.MethodGet, path: "/v1/me"})

	rec := s.do(t, call{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `desiauth_http_requests_total{method="GET",route="/healthz",status="200"} 1`), body)
	assert.True(t, strings.Contains(body, `route="/v1/me",status="401"`), body)
}
