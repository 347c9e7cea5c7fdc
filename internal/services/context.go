package services

import "context"

type contextKey string

const (
	mediaIDKey   contextKey = "media_id"
	scanKindKey  contextKey = "scan_kind"
	requestIDKey contextKey = "request_id"
)

func with(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func lookup(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}

// WithMediaID annotates context with the catalog media identifier.
func WithMediaID(ctx context.Context, id string) context.Context { return with(ctx, mediaIDKey, id) }

// MediaIDFromContext extracts the media identifier if present.
func MediaIDFromContext(ctx context.Context) (string, bool) { return lookup(ctx, mediaIDKey) }

// WithScanKind annotates context with the worklist kind (all/single).
func WithScanKind(ctx context.Context, kind string) context.Context {
	return with(ctx, scanKindKey, kind)
}

// ScanKindFromContext returns the worklist kind if present.
func ScanKindFromContext(ctx context.Context) (string, bool) { return lookup(ctx, scanKindKey) }

// WithRequestID annotates context with the control message that caused the work.
func WithRequestID(ctx context.Context, id string) context.Context {
	return with(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) { return lookup(ctx, requestIDKey) }
