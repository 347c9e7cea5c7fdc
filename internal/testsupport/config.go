package testsupport

import (
	"path/filepath"
	"testing"

	"facescan/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Socket names are kept short so paths stay under the unix socket limit.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.SocketDir = filepath.Join(base, "run")
	cfgVal.Paths.CatalogDB = filepath.Join(base, "data", "catalog.db")
	cfgVal.Sockets = config.Sockets{
		Worker:   filepath.Join(base, "run", "w.sock"),
		Server:   filepath.Join(base, "run", "s.sock"),
		Requests: filepath.Join(base, "run", "r.sock"),
		Notify:   filepath.Join(base, "run", "n.sock"),
	}
	cfgVal.Scan.HandoffTimeoutMS = 2000
	cfgVal.Scan.QuiescenceIntervalMS = 20
	cfgVal.Scan.QuiescenceMaxWaitSeconds = 5
	cfgVal.Scan.CatalogDebounceMS = 20
	cfgVal.Logging.Level = "debug"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithoutNotify disables the outbound notify endpoint.
func WithoutNotify() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sockets.Notify = ""
	}
}

// WithRemovableMount points the removable storage check at dir.
func WithRemovableMount(dir string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scan.RemovableMountPath = dir
	}
}

// WithColorExtraction enables dominant color extraction.
func WithColorExtraction() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scan.ExtractColor = true
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
