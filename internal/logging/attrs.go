package logging

import (
	"context"
	"log/slog"
	"slices"
	"time"
)

type Attr = slog.Attr

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Args converts attrs into the variadic form slog.Logger methods accept.
func Args(attrs ...Attr) []any {
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	return args
}

func NewNop() *slog.Logger {
	return slog.New(nopHandler{})
}

// NewComponentLogger tags logger with a component name. A nil logger
// yields a no-op logger.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// WarnWithContext logs a warning that always carries event_type, error_hint
// and impact so the console shows what happened and what to do next.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = withDefault(attrs, FieldEventType, eventType)
	attrs = withDefault(attrs, FieldErrorHint, "check the daemon log for details")
	attrs = withDefault(attrs, FieldImpact, "the affected item will be retried on the next scan")
	logger.Warn(msg, Args(attrs...)...)
}

func withDefault(attrs []Attr, key, value string) []Attr {
	if slices.ContainsFunc(attrs, func(a Attr) bool { return a.Key == key }) {
		return attrs
	}
	return append(attrs, String(key, value))
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (nopHandler) Handle(context.Context, slog.Record) error { return nil }

func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h nopHandler) WithGroup(string) slog.Handler { return h }
