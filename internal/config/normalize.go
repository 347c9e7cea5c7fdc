package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeSockets(); err != nil {
		return err
	}
	if err := c.normalizeScan(); err != nil {
		return err
	}
	c.normalizeDetect()
	c.normalizeNotify()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketDir) == "" {
		c.Paths.SocketDir = defaultSocketDir
	}
	if c.Paths.SocketDir, err = expandPath(c.Paths.SocketDir); err != nil {
		return fmt.Errorf("paths.socket_dir: %w", err)
	}
	if c.Paths.CatalogDB, err = resolveUnder(c.Paths.DataDir, c.Paths.CatalogDB, defaultCatalogDB); err != nil {
		return fmt.Errorf("paths.catalog_db: %w", err)
	}
	return nil
}

func (c *Config) normalizeSockets() error {
	var err error
	if c.Sockets.Worker, err = resolveUnder(c.Paths.SocketDir, c.Sockets.Worker, defaultWorkerSocket); err != nil {
		return fmt.Errorf("sockets.worker: %w", err)
	}
	if c.Sockets.Server, err = resolveUnder(c.Paths.SocketDir, c.Sockets.Server, defaultServerSocket); err != nil {
		return fmt.Errorf("sockets.server: %w", err)
	}
	if c.Sockets.Requests, err = resolveUnder(c.Paths.SocketDir, c.Sockets.Requests, defaultRequestsSocket); err != nil {
		return fmt.Errorf("sockets.requests: %w", err)
	}
	// notify is optional; "-" disables the outbound relay.
	switch strings.TrimSpace(c.Sockets.Notify) {
	case "-":
		c.Sockets.Notify = ""
	case "":
		c.Sockets.Notify = filepath.Join(c.Paths.SocketDir, defaultNotifySocket)
	default:
		if c.Sockets.Notify, err = resolveUnder(c.Paths.SocketDir, c.Sockets.Notify, defaultNotifySocket); err != nil {
			return fmt.Errorf("sockets.notify: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeScan() error {
	if c.Scan.HandoffTimeoutMS <= 0 {
		c.Scan.HandoffTimeoutMS = defaultHandoffTimeoutMS
	}
	if c.Scan.QuiescenceIntervalMS <= 0 {
		c.Scan.QuiescenceIntervalMS = defaultQuiescenceIntervalMS
	}
	if c.Scan.QuiescenceMaxWaitSeconds <= 0 {
		c.Scan.QuiescenceMaxWaitSeconds = defaultQuiescenceMaxWaitSecs
	}
	if c.Scan.CatalogDebounceMS <= 0 {
		c.Scan.CatalogDebounceMS = defaultCatalogDebounceMS
	}
	if trimmed := strings.TrimSpace(c.Scan.RemovableMountPath); trimmed != "" {
		expanded, err := expandPath(trimmed)
		if err != nil {
			return fmt.Errorf("scan.removable_mount_path: %w", err)
		}
		c.Scan.RemovableMountPath = expanded
	}
	return nil
}

func (c *Config) normalizeDetect() {
	if trimmed := strings.TrimSpace(c.Detect.CascadePath); trimmed != "" {
		if expanded, err := expandPath(trimmed); err == nil {
			c.Detect.CascadePath = expanded
		}
	}
	if c.Detect.MinSize <= 0 {
		c.Detect.MinSize = defaultDetectMinSize
	}
	if c.Detect.MaxSize <= 0 {
		c.Detect.MaxSize = defaultDetectMaxSize
	}
	if c.Detect.ShiftFactor <= 0 {
		c.Detect.ShiftFactor = defaultDetectShiftFactor
	}
	if c.Detect.ScaleFactor <= 0 {
		c.Detect.ScaleFactor = defaultDetectScaleFactor
	}
	if c.Detect.IoUThreshold <= 0 {
		c.Detect.IoUThreshold = defaultDetectIoUThreshold
	}
}

func (c *Config) normalizeNotify() {
	c.Notify.FaceUDPAddr = strings.TrimSpace(c.Notify.FaceUDPAddr)
	if c.Notify.FaceUDPAddr == "" {
		c.Notify.FaceUDPAddr = defaultFaceUDPAddr
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
	if c.Logging.MaxAgeDays < 0 {
		c.Logging.MaxAgeDays = 0
	}
}

// resolveUnder expands value, treating bare names as relative to base.
func resolveUnder(base, value, fallback string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = fallback
	}
	if strings.HasPrefix(value, "~") || filepath.IsAbs(value) {
		return expandPath(value)
	}
	return expandPath(filepath.Join(base, value))
}
