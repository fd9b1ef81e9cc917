package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsMiddlewareRecordsRoutePattern(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	router := chi.NewRouter()
	router.Use(MetricsMiddleware(metrics))
	router.Post("/proxy/hcp/{form}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/proxy/hcp/customer", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	count := testutil.ToFloat64(metrics.httpRequests.WithLabelValues(http.MethodPost, "/proxy/hcp/{form}", "4xx"))
	require.Equal(t, float64(1), count)
}

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	metrics.RecordSubmission("customer", "success")
	metrics.RecordSubmission("samples", "product_not_found")
	metrics.ObserveAdminCall("customerCreate", "ok", 120*time.Millisecond)
	metrics.RecordVerification(context.Background(), "app_proxy", false, "signature_mismatch", time.Millisecond)

	srv := httptest.NewServer(metrics.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	require.True(t, strings.Contains(text, `hcp_api_submissions_total{form="samples",outcome="product_not_found"} 1`), text)
	require.True(t, strings.Contains(text, `hcp_api_auth_verifications_total{mechanism="app_proxy",reason="signature_mismatch",result="failure"} 1`), text)
	require.True(t, strings.Contains(text, "hcp_api_admin_api_call_duration_seconds_count"), text)
}

func TestNilMetricsAreSafe(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.RecordSubmission("customer", "success")
	metrics.ObserveAdminCall("customers", "ok", time.Second)
	metrics.RecordVerification(context.Background(), "session_token", true, "ok", 0)

	handler := MetricsMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMaskEmail(t *testing.T) {
	t.Parallel()

	require.Equal(t, "j***@clinic.example", MaskEmail(" jane@clinic.example "))
	require.Equal(t, "", MaskEmail("not-an-email"))
	require.Equal(t, "", MaskEmail("@clinic.example"))
}
