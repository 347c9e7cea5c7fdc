package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation bounds file outputs. A nil Rotation appends to plain files.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Options describes logger construction parameters. Outputs holds file paths
// or the names "stdout" and "stderr"; it defaults to stdout.
type Options struct {
	Level       string
	Format      string
	Outputs     []string
	Development bool
	Rotation    *Rotation
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(opts.Level))
	addSource := opts.Development || levelVar.Level() <= slog.LevelDebug

	var build func(io.Writer, *slog.LevelVar, bool) slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		build = newConsoleHandler
	case "json":
		build = newJSONHandler
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	out, err := openOutputs(opts.Outputs, opts.Rotation)
	if err != nil {
		return nil, err
	}
	return slog.New(build(out, levelVar, addSource)), nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openOutputs(paths []string, rotation *Rotation) (io.Writer, error) {
	var writers []io.Writer
	var seen []string
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" || slices.Contains(seen, path) {
			continue
		}
		seen = append(seen, path)

		w, err := openOutput(path, rotation)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}

	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}

func openOutput(path string, rotation *Rotation) (io.Writer, error) {
	switch path {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if rotation != nil {
		return &lumberjack.Logger{
			Filename:   path,
			MaxSize:    rotation.MaxSizeMB,
			MaxBackups: rotation.MaxBackups,
			MaxAge:     rotation.MaxAgeDays,
		}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}
