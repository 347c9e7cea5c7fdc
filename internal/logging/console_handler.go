package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// consoleHandler writes a one-line header per record followed by indented
// fields. Info and above show a curated field list; debug shows every field.
type consoleHandler struct {
	mu        *sync.Mutex
	writer    io.Writer
	level     *slog.LevelVar
	attrs     []kv
	groups    []string
	addSource bool
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{mu: new(sync.Mutex), writer: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	attrs := slices.Clone(h.attrs)
	record.Attrs(func(attr slog.Attr) bool {
		attrs = flatten(attrs, h.groups, attr)
		return true
	})
	attrs = dedupe(attrs)
	subject, rest := splitSubject(attrs)

	message := strings.TrimSpace(record.Message)
	if message == "" {
		message = "(no message)"
	}

	var buf bytes.Buffer
	buf.WriteString(formatTimestamp(ts))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(record.Level))
	if subject.component != "" {
		fmt.Fprintf(&buf, " [%s]", subject.component)
	}
	if text := subject.String(); text != "" {
		buf.WriteByte(' ')
		buf.WriteString(text)
	}
	buf.WriteString(" - ")
	buf.WriteString(message)
	if src := record.Source(); h.addSource && src != nil {
		fmt.Fprintf(&buf, " [%s:%d]", filepath.Base(src.File), src.Line)
	}
	buf.WriteByte('\n')

	if record.Level < slog.LevelInfo {
		for _, a := range attrs {
			fmt.Fprintf(&buf, "    %s: %s\n", a.key, formatValue(a.value))
		}
	} else {
		fields, hidden := selectInfoFields(rest, infoAttrLimit)
		for _, f := range fields {
			fmt.Fprintf(&buf, "    - %s: %s\n", f.label, f.value)
		}
		switch {
		case hidden == 1:
			buf.WriteString("    + 1 more field hidden\n")
		case hidden > 1:
			fmt.Fprintf(&buf, "    + %d more fields hidden\n", hidden)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write(buf.Bytes())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = slices.Clone(h.attrs)
	for _, attr := range attrs {
		clone.attrs = flatten(clone.attrs, h.groups, attr)
	}
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(slices.Clone(h.groups), name)
	return &clone
}

// logSubject is what a line is about: the emitting component plus the scan
// and media it concerns, when known.
type logSubject struct {
	component string
	scanKind  string
	mediaID   string
}

func (s logSubject) String() string {
	parts := make([]string, 0, 2)
	if kind := strings.TrimSpace(s.scanKind); kind != "" {
		parts = append(parts, strings.ToUpper(kind))
	}
	if id := strings.TrimSpace(s.mediaID); id != "" {
		parts = append(parts, "media "+id[:min(len(id), 8)])
	}
	return strings.Join(parts, " · ")
}

// splitSubject pulls the subject fields out of attrs. The component only
// appears in the header; the others are also kept for debug output.
func splitSubject(attrs []kv) (logSubject, []kv) {
	var subject logSubject
	rest := make([]kv, 0, len(attrs))
	for _, a := range attrs {
		switch a.key {
		case FieldComponent:
			subject.component = attrString(a.value)
			continue
		case FieldScanKind:
			subject.scanKind = attrString(a.value)
		case FieldMediaID:
			subject.mediaID = attrString(a.value)
		}
		rest = append(rest, a)
	}
	return subject, rest
}

type kv struct {
	key   string
	value slog.Value
}

// dedupe keeps the first position of each key with its last value.
func dedupe(attrs []kv) []kv {
	index := make(map[string]int, len(attrs))
	out := attrs[:0:0]
	for _, a := range attrs {
		if a.key == "" {
			continue
		}
		if i, ok := index[a.key]; ok {
			out[i].value = a.value
			continue
		}
		index[a.key] = len(out)
		out = append(out, a)
	}
	return out
}

// flatten appends attr to dst, expanding groups into dotted keys.
func flatten(dst []kv, prefix []string, attr slog.Attr) []kv {
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		if attr.Key != "" {
			prefix = append(slices.Clone(prefix), attr.Key)
		}
		for _, member := range value.Group() {
			dst = flatten(dst, prefix, member)
		}
		return dst
	}
	key := strings.Join(append(slices.Clone(prefix), attr.Key), ".")
	return append(dst, kv{key: strings.Trim(key, "."), value: value})
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
