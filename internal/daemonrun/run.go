package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"facescan/internal/autoscan"
	"facescan/internal/config"
	"facescan/internal/control"
	"facescan/internal/detect"
	"facescan/internal/ipc"
	"facescan/internal/ledger"
	"facescan/internal/logging"
	"facescan/internal/notifications"
	"facescan/internal/pipeline"
	"facescan/internal/scanworker"
	"facescan/internal/supervisor"
)

// ErrAlreadyRunning reports that another daemon holds the instance lock.
var ErrAlreadyRunning = errors.New("facescan daemon already running")

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Quiet drops the stdout/stderr outputs and logs only to the run file.
	Quiet bool
}

// Run starts the facescan daemon and blocks until the control server exits,
// either after KILL_SERVICE or on SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, cfg.LockPath())
	}
	defer func() { _ = lock.Unlock() }()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("facescand-%s.log", runID))
	logger, err := logging.New(loggerOptions(cfg, opts, logPath))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.CurrentLogPath(), logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update facescand.log link: %v\n", err)
	}
	logging.PruneRunLogs(logger, cfg.Paths.LogDir, "facescand-*.log", cfg.Logging.MaxAgeDays, logPath)

	pidPath := filepath.Join(cfg.Paths.SocketDir, "facescand.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := ledger.Open(signalCtx, cfg.CatalogPath())
	if err != nil {
		logger.Error("open catalog", logging.Error(err),
			logging.String(logging.FieldEventType, "catalog_open_failed"),
			logging.String(logging.FieldErrorHint, "check paths.catalog_db"),
		)
		return err
	}
	defer store.Close()

	detector, err := detect.New(cfg.Detect)
	if err != nil {
		return fmt.Errorf("init detector: %w", err)
	}
	logStartupSnapshot(signalCtx, logger, cfg, store, detector)

	notifier := notifications.NewService(cfg)
	step := pipeline.New(pipeline.ImageDecoder{}, detector, notifier, pipeline.Options{
		OptimizeDecode: cfg.Scan.OptimizeDecode,
		ExtractColor:   cfg.Scan.ExtractColor,
	}, logger)

	mounts := autoscan.NewMountState(cfg.Scan.RemovableMountPath)
	deps := scanworker.Dependencies{Step: step}
	if mounts != nil {
		deps.Mounts = mounts
	}
	worker := scanworker.New(cfg, deps, logger)
	sup := supervisor.New(worker.Run, cfg.HandoffTimeout(), logger)
	server := control.New(cfg, sup, logger)

	requests, _ := cfg.Endpoints().Lookup(ipc.PortRequests)
	trigger := autoscan.RequestScanAll(requests)

	monitor := autoscan.NewMountMonitor(cfg, mounts, trigger, logger)
	if err := monitor.Start(signalCtx); err != nil {
		logger.Warn("mount monitor unavailable", logging.Error(err))
	}
	defer monitor.Stop()

	watchCtx, stopWatch := context.WithCancel(signalCtx)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		watcher := autoscan.NewCatalogWatcher(cfg, trigger, pendingCounter(store), logger)
		if err := watcher.Run(watchCtx); err != nil {
			logging.WarnWithContext(logger, "catalog watcher stopped", "catalog_watch_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "catalog changes will not trigger scans"),
				logging.String(logging.FieldErrorHint, "check inotify limits and the catalog directory"),
			)
		}
	}()
	defer func() {
		stopWatch()
		<-watchDone
	}()

	logger.Info("facescan daemon started",
		logging.String("requests_socket", requests),
		logging.String("log_path", logPath),
	)
	if err := server.Run(signalCtx); err != nil {
		logger.Error("control server failed", logging.Error(err),
			logging.String(logging.FieldEventType, "server_failed"),
			logging.String(logging.FieldErrorHint, "check socket paths and permissions"),
		)
		return err
	}
	logger.Info("facescan daemon shutting down")
	return nil
}

func loggerOptions(cfg *config.Config, opts Options, logPath string) logging.Options {
	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	outputs := []string{"stdout", logPath}
	if opts.Quiet {
		outputs = []string{logPath}
	}
	return logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		Outputs:     outputs,
		Development: opts.Development,
		Rotation: &logging.Rotation{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		},
	}
}

func pendingCounter(store *ledger.Ledger) autoscan.PendingCounter {
	return func(ctx context.Context) (int, error) {
		stats, err := store.Stats(ctx)
		if err != nil {
			return 0, err
		}
		return stats.Pending, nil
	}
}

func logStartupSnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config, store *ledger.Ledger, detector detect.Detector) {
	version, err := store.SchemaVersion(ctx)
	if err != nil {
		logger.Debug("schema version unavailable", logging.Error(err))
	}
	_, noDetector := detector.(detect.Nop)
	if noDetector {
		logging.WarnWithContext(logger, "no face cascade configured; scans record items without faces", "detector_disabled",
			logging.String(logging.FieldImpact, "no faces are detected"),
			logging.String(logging.FieldErrorHint, "set detect.cascade_path to a pigo facefinder cascade"),
		)
	}
	logger.Info("startup snapshot",
		logging.String(logging.FieldEventType, "startup_snapshot"),
		logging.String("catalog", cfg.CatalogPath()),
		slog.Int64("schema_version", version),
		logging.Bool("detector_enabled", !noDetector),
		logging.Bool("optimize_decode", cfg.Scan.OptimizeDecode),
		logging.Bool("extract_color", cfg.Scan.ExtractColor),
		logging.Bool("notify_enabled", cfg.Notify.Enabled),
		logging.String("removable_mount", cfg.Scan.RemovableMountPath),
		logging.Bool("watch_catalog", cfg.Scan.WatchCatalog),
	)
}

func ensureCurrentLogPointer(current, target string) error {
	if target == "" {
		return nil
	}
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
