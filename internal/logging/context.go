package logging

import (
	"context"
	"log/slog"

	"facescan/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldMediaID is the standardized structured logging key for catalog media identifiers.
	FieldMediaID = "media_id"
	// FieldScanKind is the standardized structured logging key for the worklist kind.
	FieldScanKind = "scan_kind"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint is the operator's next step for a warning or error.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.MediaIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldMediaID, id))
	}
	if kind, ok := services.ScanKindFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldScanKind, kind))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
