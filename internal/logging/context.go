package logging

import (
	"context"
	"log/slog"

	"easel/internal/services"
)

// Keys shared by every component so the log views can filter on them.
const (
	FieldComponent     = "component"
	FieldSessionID     = "session_id"
	FieldJobID         = "job_id"
	FieldLayerID       = "layer_id"
	FieldDocVersion    = "doc_version"
	FieldCorrelationID = "correlation_id"
	FieldEventType     = "event_type"
	// FieldErrorHint suggests a next step to the operator.
	FieldErrorHint = "error_hint"
	// FieldImpact says what the user loses because of a warning.
	FieldImpact = "impact"
)

var contextKeys = []struct {
	field  string
	lookup func(context.Context) (string, bool)
}{
	{FieldSessionID, services.SessionIDFromContext},
	{FieldJobID, services.JobIDFromContext},
	{FieldLayerID, services.LayerIDFromContext},
	{FieldCorrelationID, services.RequestIDFromContext},
}

// ContextFields returns the identifiers ctx carries as attributes.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	for _, k := range contextKeys {
		if id, ok := k.lookup(ctx); ok {
			fields = append(fields, slog.String(k.field, id))
		}
	}
	return fields
}

// WithContext tags logger with the identifiers ctx carries.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if fields := ContextFields(ctx); len(fields) > 0 {
		return logger.With(Args(fields...)...)
	}
	return logger
}
