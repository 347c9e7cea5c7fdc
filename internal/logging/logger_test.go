package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"facescan/internal/logging"
	"facescan/internal/services"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{
		Format:  "console",
		Level:   "info",
		Outputs: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "worker").Info("scan prepared", logging.Int("items", 2))

	content := readLog(t, logPath)
	if strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
	if !strings.Contains(content, "[worker]") {
		t.Fatalf("expected component tag, got %q", content)
	}
	if !strings.Contains(content, "Items: 2") {
		t.Fatalf("expected items field, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{
		Format:  "console",
		Level:   "debug",
		Outputs: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	if content := readLog(t, logPath); !strings.Contains(content, ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestJSONLoggerUsesStableKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "facescan.log")
	logger, err := logging.New(logging.Options{
		Format:   "json",
		Level:    "info",
		Outputs:  []string{logPath},
		Rotation: &logging.Rotation{MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("json message", logging.String("path", "/a.jpg"))

	line := strings.TrimSpace(readLog(t, logPath))
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		t.Fatalf("decode json log %q: %v", line, err)
	}
	for _, key := range []string{"ts", "level", "msg", "path"} {
		if _, ok := record[key]; !ok {
			t.Fatalf("expected key %q in %v", key, record)
		}
	}
	if record["level"] != "info" {
		t.Fatalf("expected lowercase level, got %v", record["level"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logging.WarnWithContext(logger, "ledger busy", "ledger_busy", logging.String(logging.FieldImpact, "item retried later"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record[logging.FieldEventType] != "ledger_busy" {
		t.Fatalf("expected event type, got %v", record)
	}
	if record[logging.FieldImpact] != "item retried later" {
		t.Fatalf("expected caller impact preserved, got %v", record[logging.FieldImpact])
	}
	if record[logging.FieldErrorHint] == nil {
		t.Fatalf("expected default hint, got %v", record)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithMediaID(ctx, "m-1")
	ctx = services.WithScanKind(ctx, "all")
	ctx = services.WithRequestID(ctx, "req-xyz")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WithContext(ctx, logger).Info("contextual log")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]string{
		logging.FieldMediaID:       "m-1",
		logging.FieldScanKind:      "all",
		logging.FieldCorrelationID: "req-xyz",
	}
	for key, value := range want {
		if record[key] != value {
			t.Fatalf("field %s = %v, want %q", key, record[key], value)
		}
	}
}

func TestPruneRunLogsKeepsCurrent(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "facescand-old.log")
	current := filepath.Join(dir, "facescand-current.log")
	other := filepath.Join(dir, "notes.txt")
	for _, path := range []string{old, current, other} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		past := time.Now().AddDate(0, 0, -10)
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.PruneRunLogs(logging.NewNop(), dir, "facescand-*.log", 3, current)
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, path := range []string{current, other} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}
}
