package observability

import (
	"context"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hcp-portal/api/internal/platform/requestctx"
)

const (
	defaultLogLevel    = "info"
	defaultServiceName = "hcp-api"
)

type loggerOptions struct {
	level   string
	service string
	output  []string
}

// LoggerOption customises NewLogger.
type LoggerOption func(*loggerOptions)

// WithLogLevel overrides LOG_LEVEL.
func WithLogLevel(level string) LoggerOption {
	return func(o *loggerOptions) {
		o.level = level
	}
}

// WithServiceName sets the serviceContext.service field read by Cloud Error Reporting.
func WithServiceName(name string) LoggerOption {
	return func(o *loggerOptions) {
		if strings.TrimSpace(name) != "" {
			o.service = strings.TrimSpace(name)
		}
	}
}

// WithOutputPaths replaces stdout as the log sink.
func WithOutputPaths(paths ...string) LoggerOption {
	return func(o *loggerOptions) {
		if len(paths) > 0 {
			o.output = paths
		}
	}
}

// NewLogger builds the JSON logger. Keys follow Cloud Logging's structured payload
// (severity, timestamp, message). An unknown level falls back to info.
func NewLogger(opts ...LoggerOption) (*zap.Logger, error) {
	o := loggerOptions{level: os.Getenv("LOG_LEVEL"), service: defaultServiceName, output: []string{"stdout"}}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(o.level)))); err != nil || strings.TrimSpace(o.level) == "" {
		_ = level.UnmarshalText([]byte(defaultLogLevel))
	}

	cfg := zap.Config{
		Level:    level,
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:    "message",
			TimeKey:       "timestamp",
			LevelKey:      "severity",
			CallerKey:     "caller",
			StacktraceKey: "stacktrace",
			EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
			EncodeCaller:  zapcore.ShortCallerEncoder,
			EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
				enc.AppendString(severity(l))
			},
		},
		OutputPaths:       o.output,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
		InitialFields: map[string]any{
			"serviceContext": map[string]string{"service": o.service},
		},
	}
	return cfg.Build()
}

// severity maps zap levels onto Cloud Logging severities.
func severity(l zapcore.Level) string {
	switch l {
	case zapcore.DebugLevel:
		return "DEBUG"
	case zapcore.InfoLevel:
		return "INFO"
	case zapcore.WarnLevel:
		return "WARNING"
	case zapcore.ErrorLevel:
		return "ERROR"
	case zapcore.DPanicLevel, zapcore.PanicLevel:
		return "CRITICAL"
	case zapcore.FatalLevel:
		return "ALERT"
	}
	return "DEFAULT"
}

// WithLogger stores logger on ctx.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// FromContext returns the request logger, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}

// HasRequestLogger reports whether RequestLogger stored a logger on ctx.
func HasRequestLogger(ctx context.Context) bool {
	return requestctx.HasLogger(ctx)
}

// EventLogger is the structured event hook accepted by services.
type EventLogger func(ctx context.Context, event string, fields map[string]any)

// NewEventLogger adapts zap to the event hook. A request logger on ctx wins over fallback so
// entries carry request and trace ids. Fields named email are masked; an error field raises
// the entry to warn.
func NewEventLogger(fallback *zap.Logger, name string) EventLogger {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := fallback
		if requestctx.HasLogger(ctx) {
			logger = requestctx.Logger(ctx)
		}
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		zFields := make([]zap.Field, 0, len(fields)+2)
		zFields = append(zFields, zap.String("component", name), zap.String("event", event))
		for _, k := range keys {
			switch v := fields[k].(type) {
			case error:
				zFields = append(zFields, zap.NamedError(k, v))
			case string:
				if strings.EqualFold(k, "email") {
					v = MaskEmail(v)
				}
				zFields = append(zFields, zap.String(k, v))
			default:
				zFields = append(zFields, zap.Any(k, v))
			}
		}
		if _, failed := fields["error"]; failed {
			logger.Warn(name+" event", zFields...)
			return
		}
		logger.Info(name+" event", zFields...)
	}
}

// PrintfAdapter feeds printf-style loggers into zap at info level.
type PrintfAdapter struct {
	logger *zap.SugaredLogger
}

// NewPrintfAdapter wraps logger. A nil logger discards output.
func NewPrintfAdapter(logger *zap.Logger) PrintfAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return PrintfAdapter{logger: logger.Sugar()}
}

// Printf implements the printf-style Logger interfaces used by the auth verifiers.
func (a PrintfAdapter) Printf(format string, args ...any) {
	a.logger.Infof(format, args...)
}
