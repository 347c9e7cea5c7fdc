package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

const consoleTimeLayout = "2006-01-02 15:04:05"

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format(consoleTimeLayout)
}

// rawValue renders v without quoting. Errors render as their message.
func rawValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return formatTimestamp(v.Time())
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

// attrString is rawValue for subject fields such as component and media id.
func attrString(v slog.Value) string {
	return rawValue(v)
}

// formatValue renders v for a key=value pair, quoting strings that would
// otherwise be ambiguous. Paths with spaces are common in media libraries.
func formatValue(v slog.Value) string {
	s := rawValue(v)
	if needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuotes(s string) bool {
	return s == "" || strings.ContainsFunc(s, func(r rune) bool {
		return r <= ' ' || r == '=' || r == '"'
	})
}
