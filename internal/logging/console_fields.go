package logging

import (
	"log/slog"
	"strings"
)

type infoField struct {
	label string
	value string
}

const infoAttrLimit = 8

// Keys listed here are printed first, in this order.
var infoHighlightKeys = []string{
	FieldEventType,
	FieldImpact,
	FieldErrorHint,
	"error",
	"path",
	"kind",
	"faces",
	"items",
	"processed",
	"remaining",
	"state",
	"elapsed",
}

// selectInfoFields returns formatted info-level fields and a count of hidden
// entries. limit=0 means no limit.
func selectInfoFields(attrs []kv, limit int) ([]infoField, int) {
	if len(attrs) == 0 {
		return nil, 0
	}
	used := make([]bool, len(attrs))
	result := make([]infoField, 0, infoAttrLimit)
	hidden := 0

	add := func(idx int) {
		used[idx] = true
		attr := attrs[idx]
		if skipInfoKey(attr.key) {
			return
		}
		if isDebugOnlyKey(attr.key) {
			hidden++
			return
		}
		if limit > 0 && len(result) >= limit {
			hidden++
			return
		}
		result = append(result, infoField{label: displayLabel(attr.key), value: formatInfoValue(attr.key, attr.value)})
	}

	for _, key := range infoHighlightKeys {
		for idx, attr := range attrs {
			if !used[idx] && attr.key == key {
				add(idx)
				break
			}
		}
	}
	for idx := range attrs {
		if !used[idx] {
			add(idx)
		}
	}
	return result, hidden
}

func formatInfoValue(key string, v slog.Value) string {
	v = v.Resolve()
	if v.Kind() == slog.KindBool {
		if v.Bool() {
			return "yes"
		}
		return "no"
	}
	value := formatValue(v)
	if key == "error" {
		const maxLen = 200
		if len(value) > maxLen {
			value = value[:maxLen] + "…"
		}
	}
	return value
}

func skipInfoKey(key string) bool {
	switch key {
	case "", FieldComponent, FieldScanKind, FieldMediaID:
		return true
	default:
		return false
	}
}

func isDebugOnlyKey(key string) bool {
	switch key {
	case FieldCorrelationID, "pid", "uid", "storage_id", "port":
		return true
	}
	return strings.HasSuffix(key, "_uuid")
}

func displayLabel(key string) string {
	switch key {
	case FieldEventType:
		return "Event"
	case FieldErrorHint:
		return "Hint"
	case "faces":
		return "Faces"
	default:
		return titleizeKey(key)
	}
}

func titleizeKey(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	for i, part := range parts {
		lower := strings.ToLower(part)
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}
