package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// maxUnixSocketPath is the sun_path limit on Linux minus the NUL terminator.
const maxUnixSocketPath = 107

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSockets(); err != nil {
		return err
	}
	if err := c.validateScan(); err != nil {
		return err
	}
	if err := c.validateDetect(); err != nil {
		return err
	}
	if err := c.validateNotify(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateSockets() error {
	if err := c.Endpoints().Validate(); err != nil {
		return fmt.Errorf("sockets: %w", err)
	}
	for name, path := range map[string]string{
		"sockets.worker":   c.Sockets.Worker,
		"sockets.server":   c.Sockets.Server,
		"sockets.requests": c.Sockets.Requests,
		"sockets.notify":   c.Sockets.Notify,
	} {
		if len(path) > maxUnixSocketPath {
			return fmt.Errorf("%s: path %q exceeds %d bytes", name, path, maxUnixSocketPath)
		}
	}
	return nil
}

func (c *Config) validateScan() error {
	if err := ensurePositiveMap(map[string]int{
		"scan.handoff_timeout_ms":          c.Scan.HandoffTimeoutMS,
		"scan.quiescence_interval_ms":      c.Scan.QuiescenceIntervalMS,
		"scan.quiescence_max_wait_seconds": c.Scan.QuiescenceMaxWaitSeconds,
		"scan.catalog_debounce_ms":         c.Scan.CatalogDebounceMS,
	}); err != nil {
		return err
	}
	if c.Scan.MaxItemsPerSecond < 0 {
		return errors.New("scan.max_items_per_second must not be negative")
	}
	if c.QuiescenceMaxWait() < c.QuiescenceInterval() {
		return errors.New("scan.quiescence_max_wait_seconds must be at least one quiescence interval")
	}
	if c.Scan.RescanOnMount && strings.TrimSpace(c.Scan.RemovableMountPath) == "" {
		return errors.New("scan.removable_mount_path must be set when scan.rescan_on_mount is true")
	}
	return nil
}

func (c *Config) validateDetect() error {
	if c.Detect.MinSize > c.Detect.MaxSize {
		return errors.New("detect.min_size must not exceed detect.max_size")
	}
	if c.Detect.ScaleFactor <= 1 {
		return errors.New("detect.scale_factor must be greater than 1")
	}
	if c.Detect.IoUThreshold > 1 {
		return errors.New("detect.iou_threshold must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateNotify() error {
	if !c.Notify.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Notify.FaceUDPAddr); err != nil {
		return fmt.Errorf("notify.face_udp_addr: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
