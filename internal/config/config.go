package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"facescan/internal/ipc"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	LogDir    string `toml:"log_dir"`
	SocketDir string `toml:"socket_dir"`
	CatalogDB string `toml:"catalog_db"`
}

// Sockets names the unix socket endpoints. Relative names resolve against
// paths.socket_dir.
type Sockets struct {
	Worker   string `toml:"worker"`
	Server   string `toml:"server"`
	Requests string `toml:"requests"`
	Notify   string `toml:"notify"`
}

// Scan contains worker loop timing and pipeline behaviour.
type Scan struct {
	HandoffTimeoutMS         int     `toml:"handoff_timeout_ms"`
	QuiescenceIntervalMS     int     `toml:"quiescence_interval_ms"`
	QuiescenceMaxWaitSeconds int     `toml:"quiescence_max_wait_seconds"`
	OptimizeDecode           bool    `toml:"optimize_decode"`
	ExtractColor             bool    `toml:"extract_color"`
	MaxItemsPerSecond        float64 `toml:"max_items_per_second"`
	RemovableMountPath       string  `toml:"removable_mount_path"`
	RescanOnMount            bool    `toml:"rescan_on_mount"`
	WatchCatalog             bool    `toml:"watch_catalog"`
	CatalogDebounceMS        int     `toml:"catalog_debounce_ms"`
}

// Detect contains face detector tuning.
type Detect struct {
	CascadePath  string  `toml:"cascade_path"`
	MinSize      int     `toml:"min_size"`
	MaxSize      int     `toml:"max_size"`
	ShiftFactor  float64 `toml:"shift_factor"`
	ScaleFactor  float64 `toml:"scale_factor"`
	IoUThreshold float64 `toml:"iou_threshold"`
	MinQuality   float64 `toml:"min_quality"`
}

// Notify contains the face-detected datagram settings.
type Notify struct {
	Enabled     bool   `toml:"enabled"`
	FaceUDPAddr string `toml:"face_udp_addr"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Config encapsulates all configuration values for facescan.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and socket directories plus the catalog database
//   - Sockets: control-plane endpoint names
//   - Scan: rendezvous and quiescence timing, decode policy, auto-scan triggers
//   - Detect: face detector cascade and tuning
//   - Notify: face-detected UDP notices
//   - Logging: log format, level, and rotation
type Config struct {
	Paths   Paths   `toml:"paths"`
	Sockets Sockets `toml:"sockets"`
	Scan    Scan    `toml:"scan"`
	Detect  Detect  `toml:"detect"`
	Notify  Notify  `toml:"notify"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/facescan/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("facescan.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.SocketDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Endpoints returns the validated socket mapping used by the control plane.
func (c *Config) Endpoints() ipc.Endpoints {
	return ipc.Endpoints{
		ipc.PortWorker:   c.Sockets.Worker,
		ipc.PortServer:   c.Sockets.Server,
		ipc.PortRequests: c.Sockets.Requests,
		ipc.PortNotify:   c.Sockets.Notify,
	}
}

// CatalogPath returns the absolute path of the catalog/ledger database.
func (c *Config) CatalogPath() string {
	return c.Paths.CatalogDB
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.SocketDir, "facescand.lock")
}

// CurrentLogPath is the pointer to the running daemon's log file.
func (c *Config) CurrentLogPath() string {
	return filepath.Join(c.Paths.LogDir, "facescand.log")
}

// HandoffTimeout is the bound on the worker readiness rendezvous.
func (c *Config) HandoffTimeout() time.Duration {
	return time.Duration(c.Scan.HandoffTimeoutMS) * time.Millisecond
}

// QuiescenceInterval is the period of the terminate-time drain check.
func (c *Config) QuiescenceInterval() time.Duration {
	return time.Duration(c.Scan.QuiescenceIntervalMS) * time.Millisecond
}

// QuiescenceMaxWait bounds how long termination waits for the worker to drain.
func (c *Config) QuiescenceMaxWait() time.Duration {
	return time.Duration(c.Scan.QuiescenceMaxWaitSeconds) * time.Second
}

// CatalogDebounce is the quiet period before a catalog change triggers a scan.
func (c *Config) CatalogDebounce() time.Duration {
	return time.Duration(c.Scan.CatalogDebounceMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
