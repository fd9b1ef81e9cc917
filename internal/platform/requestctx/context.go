// Package requestctx carries the request-scoped logger and trace metadata.
package requestctx

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type loggerKey struct{}

type traceKey struct{}

var nop = zap.NewNop()

// TraceInfo is the Cloud Trace view of the active span.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// Resource formats the Cloud Logging trace resource name, or "" without a project.
func (t TraceInfo) Resource() string {
	if t.ProjectID == "" || t.TraceID == "" {
		return ""
	}
	return "projects/" + t.ProjectID + "/traces/" + t.TraceID
}

// WithLogger stores logger on ctx. A nil logger stores the no-op logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = nop
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the stored logger or the no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
			return logger
		}
	}
	return nop
}

// HasLogger reports whether a request logger was stored on ctx.
func HasLogger(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	logger, ok := ctx.Value(loggerKey{}).(*zap.Logger)
	return ok && logger != nop
}

// WithTrace stores info on ctx.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return context.WithValue(ctx, traceKey{}, info)
}

// Trace returns the stored trace metadata.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey{}).(TraceInfo)
	return info, ok
}

// TraceID returns the stored trace id or "".
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

type tagsKey struct{}

type tags struct {
	mu     sync.Mutex
	values map[string]string
}

// WithTags installs a mutable tag set that handlers deeper in the chain can add to.
func WithTags(ctx context.Context) context.Context {
	return context.WithValue(ctx, tagsKey{}, &tags{values: map[string]string{}})
}

// Tag records key on the tag set installed by WithTags. Without one it does nothing.
func Tag(ctx context.Context, key, value string) {
	if ctx == nil {
		return
	}
	t, ok := ctx.Value(tagsKey{}).(*tags)
	if !ok {
		return
	}
	t.mu.Lock()
	t.values[key] = value
	t.mu.Unlock()
}

// Tags returns a copy of the recorded tags.
func Tags(ctx context.Context) map[string]string {
	if ctx == nil {
		return nil
	}
	t, ok := ctx.Value(tagsKey{}).(*tags)
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.values))
	for k, v := range t.values {
		out[k] = v
	}
	return out
}
