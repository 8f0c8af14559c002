// Package logging is the reader's structured logger: a process-wide slog
// logger, request and browsing-context values carried on context.Context,
// and named events for the things operators look for.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ContextKey keys the values this package stores on a context.
type ContextKey string

const (
	RequestIDKey       ContextKey = "request_id"
	BrowsingContextKey ContextKey = "browsing_context"
)

// contextAttrs lists the context values copied onto context-aware log lines.
var contextAttrs = []ContextKey{RequestIDKey, BrowsingContextKey}

var defaultLogger *slog.Logger

func init() {
	InitLogger(LevelInfo, FormatJSON)
}

// Level is a configured log level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) toSlog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Format selects the handler: JSON lines or slog's key=value text.
type Format int

const (
	FormatJSON Format = iota
	FormatText
)

// ParseLevel maps a config string ("debug", "info", "warn", "error") to a Level.
// Unknown strings map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	}
	return LevelInfo
}

// ParseFormat maps "text" to FormatText and anything else to FormatJSON.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), "text") {
		return FormatText
	}
	return FormatJSON
}

// InitLogger installs a logger on stdout as both this package's logger and
// slog's default.
func InitLogger(level Level, format Format) {
	InitLoggerTo(os.Stdout, level, format)
}

// InitLoggerTo is InitLogger writing to w. Timestamps are RFC 3339.
func InitLoggerTo(w io.Writer, level Level, format Format) {
	opts := &slog.HandlerOptions{
		Level: level.toSlog(),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if format == FormatText {
		h = slog.NewTextHandler(w, opts)
	}
	defaultLogger = slog.New(h)
	slog.SetDefault(defaultLogger)
}

// GetLogger returns the process logger.
func GetLogger() *slog.Logger {
	return defaultLogger
}

func withValue(ctx context.Context, key ContextKey, v string) context.Context {
	return context.WithValue(ctx, key, v)
}

func value(ctx context.Context, key ContextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// WithRequestID stores a request ID on ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withValue(ctx, RequestIDKey, requestID)
}

// GetRequestID returns the request ID on ctx, or "".
func GetRequestID(ctx context.Context) string { return value(ctx, RequestIDKey) }

// WithBrowsingContext stores the client's browsing context ID on ctx.
func WithBrowsingContext(ctx context.Context, id string) context.Context {
	return withValue(ctx, BrowsingContextKey, id)
}

// GetBrowsingContext returns the browsing context ID on ctx, or "".
func GetBrowsingContext(ctx context.Context) string { return value(ctx, BrowsingContextKey) }

// LoggerFromContext returns the process logger annotated with whichever
// request and browsing context IDs ctx carries.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	logger := defaultLogger
	for _, key := range contextAttrs {
		if v := value(ctx, key); v != "" {
			logger = logger.With(string(key), v)
		}
	}
	return logger
}

func Debug(msg string, args ...any) { defaultLogger.Debug(msg, args...) }
func Info(msg string, args ...any)  { defaultLogger.Info(msg, args...) }
func Warn(msg string, args ...any)  { defaultLogger.Warn(msg, args...) }
func Error(msg string, args ...any) { defaultLogger.Error(msg, args...) }

func DebugContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Debug(msg, args...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Info(msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Warn(msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Error(msg, args...)
}

// event logs a named event: fixed fields first, caller extras after.
func event(logger *slog.Logger, level slog.Level, name string, fields []any, extra []any) {
	logger.Log(context.Background(), level, name, append(fields, extra...)...)
}

// HTTPRequestContext logs one served request.
func HTTPRequestContext(ctx context.Context, method, path, remoteAddr string, statusCode int, duration time.Duration, args ...any) {
	event(LoggerFromContext(ctx), slog.LevelInfo, "http_request", []any{
		"method", method,
		"path", path,
		"remote_addr", remoteAddr,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	}, args)
}

// PreferenceChanged logs a preference write made by a browsing context.
func PreferenceChanged(contextID, key, value string, args ...any) {
	event(defaultLogger, slog.LevelDebug, "preference_changed", []any{
		"browsing_context", contextID,
		"key", key,
		"value", value,
	}, args)
}

// StorageDegraded logs that a browsing context fell back to in-memory
// preferences.
func StorageDegraded(contextID, backend string, err error, args ...any) {
	event(defaultLogger, slog.LevelWarn, "storage_degraded", []any{
		"browsing_context", contextID,
		"backend", backend,
		"error", err.Error(),
	}, args)
}

// VersificationLoaded logs the outcome of the one-time versification load.
func VersificationLoaded(source string, books int, duration time.Duration, err error) {
	if err != nil {
		event(defaultLogger, slog.LevelWarn, "versification_load_failed", []any{
			"source", source,
			"duration_ms", duration.Milliseconds(),
			"error", err.Error(),
		}, nil)
		return
	}
	event(defaultLogger, slog.LevelInfo, "versification_loaded", []any{
		"source", source,
		"books", books,
		"duration_ms", duration.Milliseconds(),
	}, nil)
}

// WebSocketEvent logs sync socket connects and disconnects.
func WebSocketEvent(name string, clientCount int, args ...any) {
	event(defaultLogger, slog.LevelInfo, "websocket_event", []any{
		"event", name,
		"client_count", clientCount,
	}, args)
}

// ServerStartup logs a listener coming up.
func ServerStartup(serverType, protocol string, port int, args ...any) {
	event(defaultLogger, slog.LevelInfo, "server_startup", []any{
		"server_type", serverType,
		"protocol", protocol,
		"port", port,
	}, args)
}
