// Package auth verifies requests that reach the API through the storefront app proxy
// or the embedded admin, and records the authenticated shop on the request context.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/hcp-portal/api/internal/platform/requestctx"
)

// Logger captures the minimal logging contract used by the auth package.
type Logger interface {
	Printf(format string, args ...any)
}

// MetricsRecorder records verification outcomes for observability.
type MetricsRecorder interface {
	RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration)
}

// MetricsRecorderFunc adapts a function to MetricsRecorder.
type MetricsRecorderFunc func(context.Context, string, bool, string, time.Duration)

// RecordVerification implements MetricsRecorder.
func (f MetricsRecorderFunc) RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration) {
	if f != nil {
		f(ctx, kind, success, reason, duration)
	}
}

type shopContextKey struct{}

// WithShop records the verified shop domain on ctx and tags the request log entry with it.
func WithShop(ctx context.Context, shop string) context.Context {
	shop = strings.TrimSpace(shop)
	if shop == "" {
		return ctx
	}
	requestctx.Tag(ctx, "shop", shop)
	return context.WithValue(ctx, shopContextKey{}, shop)
}

// ShopFromContext returns the shop stored by one of the verification middlewares.
func ShopFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	shop, ok := ctx.Value(shopContextKey{}).(string)
	return shop, ok && shop != ""
}

type verification struct {
	kind    string
	metrics MetricsRecorder
	now     func() time.Time
	start   time.Time
}

func (v verification) record(ctx context.Context, success bool, reason string) {
	if v.metrics == nil {
		return
	}
	v.metrics.RecordVerification(ctx, v.kind, success, reason, v.now().Sub(v.start))
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
		"status":  status,
	})
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
