package autoscan

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"facescan/internal/config"
	"facescan/internal/logging"
	"facescan/internal/services"
)

// PendingCounter reports how many catalog items still await a scan.
type PendingCounter func(ctx context.Context) (int, error)

// CatalogWatcher triggers SCAN_ALL after the catalog database file has been
// quiet for the debounce period. Changes that leave nothing pending do not
// trigger, so the daemon's own ledger writes settle instead of looping.
type CatalogWatcher struct {
	path     string
	debounce time.Duration
	trigger  Trigger
	pending  PendingCounter
	logger   *slog.Logger
}

// NewCatalogWatcher returns nil unless scan.watch_catalog is set.
func NewCatalogWatcher(cfg *config.Config, trigger Trigger, pending PendingCounter, logger *slog.Logger) *CatalogWatcher {
	if cfg == nil || !cfg.Scan.WatchCatalog {
		return nil
	}
	debounce := cfg.CatalogDebounce()
	if debounce <= 0 {
		debounce = time.Second
	}
	return &CatalogWatcher{
		path:     filepath.Clean(cfg.CatalogPath()),
		debounce: debounce,
		trigger:  trigger,
		pending:  pending,
		logger:   logging.NewComponentLogger(logger, "catalog-watcher"),
	}
}

// Run blocks until ctx ends.
func (w *CatalogWatcher) Run(ctx context.Context) error {
	if w == nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "autoscan", "watch", "fsnotify unavailable", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return services.Wrap(services.ErrConfiguration, "autoscan", "watch", dir, err)
	}
	w.logger.Info("catalog watcher started", logging.String("catalog", w.path))

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(w.debounce)
			pending = true
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "catalog watch error", "catalog_watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "catalog changes may not trigger scans"),
			)
		case <-debounce.C:
			if pending {
				pending = false
				w.fire(ctx)
			}
		}
	}
}

// relevant keeps writes to the database file and its WAL.
func (w *CatalogWatcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}
	name := filepath.Clean(ev.Name)
	return name == w.path || name == w.path+"-wal" || strings.HasPrefix(name, w.path+"-journal")
}

func (w *CatalogWatcher) fire(ctx context.Context) {
	if w.pending != nil {
		n, err := w.pending(ctx)
		if err != nil {
			w.logger.Debug("pending count unavailable; triggering anyway", logging.Error(err))
		} else if n == 0 {
			w.logger.Debug("catalog changed with nothing pending")
			return
		}
	}
	w.logger.Info("catalog changed; requesting scan",
		logging.String(logging.FieldEventType, "catalog_changed"),
	)
	if w.trigger == nil {
		return
	}
	if err := w.trigger(ctx, "catalog changed"); err != nil {
		logging.WarnWithContext(w.logger, "catalog-triggered scan request failed", "catalog_scan_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "new catalog items wait for the next scan-all"),
			logging.String(logging.FieldErrorHint, "check that the control server is listening"),
		)
	}
}
