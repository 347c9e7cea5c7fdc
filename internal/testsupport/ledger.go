package testsupport

import (
	"context"
	"testing"

	"facescan/internal/config"
	"facescan/internal/ledger"
)

// MustOpenLedger opens a migrated catalog for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Ledger {
	t.Helper()

	l, err := ledger.Open(context.Background(), cfg.CatalogPath())
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = l.Close()
	})
	return l
}

// AddMedia seeds a catalog row for path and returns it.
func AddMedia(t testing.TB, l *ledger.Ledger, item ledger.MediaItem) ledger.MediaItem {
	t.Helper()

	added, err := l.AddMedia(context.Background(), item)
	if err != nil {
		t.Fatalf("AddMedia %s: %v", item.Path, err)
	}
	return added
}
