package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hcp-portal/api/internal/platform/auth"
	"github.com/hcp-portal/api/internal/platform/requestctx"
)

func TestParseCloudTraceContext(t *testing.T) {
	t.Parallel()

	sc, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	require.True(t, ok)
	require.Equal(t, "105445aa7843bc8bf206b12000100000", sc.TraceID().String())
	require.Equal(t, "0000000000000001", sc.SpanID().String())
	require.True(t, sc.IsSampled())
	require.Equal(t, "105445aa7843bc8bf206b12000100000/1;o=1", formatCloudTraceHeader(sc))

	for _, header := range []string{"", "abc", "105445aa7843bc8bf206b12000100000/zz", "105445aa7843bc8bf206b12000100000/0"} {
		_, ok := parseCloudTraceContext(header)
		require.False(t, ok, header)
	}
}

func TestTraceMiddlewareStoresTraceInfo(t *testing.T) {
	t.Parallel()

	var info requestctx.TraceInfo
	handler := TraceMiddleware("hcp-project")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, "105445aa7843bc8bf206b12000100000", info.TraceID)
	require.Equal(t, "projects/hcp-project/traces/105445aa7843bc8bf206b12000100000", info.Resource())
}

func TestRequestLoggerLogsCompletion(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	router := chi.NewRouter()
	router.Use(RequestLogger(zap.New(core)))
	router.Post("/proxy/hcp/{form}", func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithShop(r.Context(), "clinic.myshopify.com")
		requestctx.Logger(ctx).Info("inside")
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/proxy/hcp/customer", nil))

	require.Equal(t, 1, logs.FilterMessage("inside").Len())
	completed := logs.FilterMessage("request completed").All()
	require.Len(t, completed, 1)
	require.Equal(t, zapcore.WarnLevel, completed[0].Level)
	fields := completed[0].ContextMap()
	require.Equal(t, "/proxy/hcp/{form}", fields["route"])
	require.EqualValues(t, http.StatusUnprocessableEntity, fields["status"])
	require.Equal(t, "clinic.myshopify.com", fields["shop"])
}

func TestRecoveryMiddlewareWritesEnvelope(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/hcp/customer", nil))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.True(t, strings.Contains(rr.Body.String(), `"internal_server_error"`))
	require.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestEventLoggerMasksEmailAndLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	event := NewEventLogger(zap.New(core), "hcp_customer_service")

	event(context.Background(), "hcp.customer.exists", map[string]any{
		"customerId": "gid://shopify/Customer/7",
		"email":      "jane@clinic.example",
	})
	event(context.Background(), "hcp.submission.publish.failed", map[string]any{
		"error": errors.New("topic closed"),
	})

	entries := logs.All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	require.Equal(t, "j***@clinic.example", fields["email"])
	require.Equal(t, "hcp.customer.exists", fields["event"])
	require.Equal(t, "hcp_customer_service", fields["component"])
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, "topic closed", entries[1].ContextMap()["error"])
}
