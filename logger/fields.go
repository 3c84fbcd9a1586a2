package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for structured logging across ghostwrite.
const (
	// Identity
	FieldRequestID = "request_id"
	FieldSessionID = "session_id"
	FieldEventID   = "event_id"
	FieldTraceID   = "trace_id"
	FieldURI       = "uri"

	// Components
	FieldComponent = "component"
	FieldProvider  = "provider"
	FieldModel     = "model"
	FieldStrategy  = "strategy"

	// Lifecycle
	FieldState     = "state"
	FieldEvent     = "event"
	FieldFrom      = "from"
	FieldTo        = "to"
	FieldAccept    = "accept_type"
	FieldTrigger   = "trigger"
	FieldOffset    = "offset"
	FieldTextChars = "text_chars"

	// Operations
	FieldOperation = "operation"
	FieldMethod    = "method"
	FieldPath      = "path"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"

	// Counts
	FieldCount = "count"
	FieldSize  = "size"

	// Network
	FieldAddress = "address"
	FieldRemote  = "remote"
)

type contextKey string

const (
	requestIDKey contextKey = "logger_request_id"
	sessionIDKey contextKey = "logger_session_id"
	componentKey contextKey = "logger_component"
)

// WithRequestID adds a completion request ID to the context for logging
func WithRequestID(ctx context.Context, requestID uint64) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithSessionID adds a document session ID to the context for logging
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context as key-value pairs
// suitable for Infow/Errorw.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if id, ok := ctx.Value(requestIDKey).(uint64); ok && id != 0 {
		fields = append(fields, FieldRequestID, id)
	}
	if sessionID, ok := ctx.Value(sessionIDKey).(string); ok && sessionID != "" {
		fields = append(fields, FieldSessionID, sessionID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// RequestIDFromContext returns the request ID stored by WithRequestID
func RequestIDFromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(requestIDKey).(uint64)
	return id, ok && id != 0
}

// SessionIDFromContext returns the session ID stored by WithSessionID
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// LoggerFromContext returns the global logger enriched with context fields
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return Logger
	}
	return Logger.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type Manager struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func NewManager() *Manager {
//	    return &Manager{
//	        logger: logger.ComponentLogger("session"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context fields
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	if parent == nil {
		parent = Logger
	}
	return parent.With(keysAndValues...)
}
