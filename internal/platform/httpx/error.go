// Package httpx writes the JSON bodies shared by every handler.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hcp-portal/api/internal/platform/requestctx"
)

// Error is the JSON error envelope: error, message, status, request_id and trace_id, plus any
// extension members attached with With.
type Error struct {
	Code    string
	Message string
	Status  int
	extra   map[string]any
}

// NewError builds an envelope. A zero status becomes 500.
func NewError(status int, code, message string) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{Code: clip(code, 80), Message: clip(message, 512), Status: status}
}

// With returns a copy of e carrying an additional top-level member. Reserved envelope keys
// cannot be overridden.
func (e Error) With(key string, value any) Error {
	switch key {
	case "", "error", "message", "status", "request_id", "trace_id":
		return e
	}
	extra := make(map[string]any, len(e.extra)+1)
	for k, v := range e.extra {
		extra[k] = v
	}
	extra[key] = value
	e.extra = extra
	return e
}

// Body renders the envelope for ctx.
func (e Error) Body(ctx context.Context) map[string]any {
	body := make(map[string]any, len(e.extra)+5)
	for k, v := range e.extra {
		body[k] = v
	}
	body["error"] = e.Code
	body["message"] = e.Message
	body["status"] = e.Status
	if id := clip(middleware.GetReqID(ctx), 80); id != "" {
		body["request_id"] = id
	}
	if id := clip(requestctx.TraceID(ctx), 64); id != "" {
		body["trace_id"] = id
	}
	return body
}

// WriteError writes e with its status code.
func WriteError(ctx context.Context, w http.ResponseWriter, e Error) {
	WriteJSON(w, e.Status, e.Body(ctx))
}

// WriteJSON encodes v as the response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func clip(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
