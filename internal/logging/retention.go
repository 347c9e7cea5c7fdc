package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PruneRunLogs removes per-run log files in dir matching pattern that are
// older than maxAgeDays. keep is never removed. A maxAgeDays of 0 disables
// pruning.
func PruneRunLogs(logger *slog.Logger, dir, pattern string, maxAgeDays int, keep string) int {
	if maxAgeDays <= 0 || strings.TrimSpace(dir) == "" {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	keepAbs, _ := filepath.Abs(keep)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if matched, err := filepath.Match(pattern, entry.Name()); err != nil || !matched {
			continue
		}
		fullPath := filepath.Join(dir, entry.Name())
		if abs, err := filepath.Abs(fullPath); err == nil && abs == keepAbs {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(fullPath); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", fullPath),
				Error(err),
				String(FieldErrorHint, "check file permissions and log_dir ownership"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		removed++
	}
	if removed > 0 && logger != nil {
		logger.Debug("pruned run logs", Int("removed", removed), String("dir", dir))
	}
	return removed
}
