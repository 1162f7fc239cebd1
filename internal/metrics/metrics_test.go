package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, m *Metrics, name, label, value string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestAuthCounters(t *testing.T) {
	m := New()
	m.AuthFailed("tenant_inactive")
	m.AuthFailed("tenant_inactive")
	m.AuthFailed("missing_header")
	m.AuthSucceeded("session")

	require.Equal(t, 2.0, counterValue(t, m, "desiauth_auth_failures_total", "reason", "tenant_inactive"))
	require.Equal(t, 1.0, counterValue(t, m, "desiauth_auth_failures_total", "reason", "missing_header"))
	require.Equal(t, 1.0, counterValue(t, m, "desiauth_auth_successes_total", "auth_type", "session"))
}

func TestNoticeOutcomes(t *testing.T) {
	m := New()
	m.NoticeOutcome("delivered")
	m.NoticeOutcome("failed")
	m.NoticeOutcome("failed")

	require.Equal(t, 1.0, counterValue(t, m, "desiauth_notice_deliveries_total", "outcome", "delivered"))
	require.Equal(t, 2.0, counterValue(t, m, "desiauth_notice_deliveries_total", "outcome", "failed"))
	require.Equal(t, 0.0, counterValue(t, m, "desiauth_notice_deliveries_total", "outcome", "dead"))
}

func TestHandlerExposesRequests(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodGet, "/v1/me", http.StatusOK, 3*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, `desiauth_http_requests_total{method="GET",route="/v1/me",status="200"} 1`), body)
	require.True(t, strings.Contains(body, `route="unmatched"`), body)
}
