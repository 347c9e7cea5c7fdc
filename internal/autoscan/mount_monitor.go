package autoscan

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"facescan/internal/config"
	"facescan/internal/logging"
)

const (
	defaultSettle    = 2 * time.Second
	settleAttempts   = 5
	netlinkSubsystem = "block"
)

// MountMonitor listens for udev block device events and re-checks the
// removable mount point after each burst. When the storage appears and
// rescan_on_mount is set, it triggers SCAN_ALL.
type MountMonitor struct {
	state   *MountState
	trigger Trigger
	rescan  bool
	settle  time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewMountMonitor returns nil when no removable mount path is configured.
func NewMountMonitor(cfg *config.Config, state *MountState, trigger Trigger, logger *slog.Logger) *MountMonitor {
	if cfg == nil || state == nil {
		return nil
	}
	return &MountMonitor{
		state:   state,
		trigger: trigger,
		rescan:  cfg.Scan.RescanOnMount,
		settle:  defaultSettle,
		logger:  logging.NewComponentLogger(logger, "mount-monitor"),
	}
}

// Start connects to the udev netlink socket and begins monitoring. A connect
// failure is logged and tolerated.
func (m *MountMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	mounted, _ := m.state.Refresh()

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; removable storage changes will not trigger scans",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "removable media is only scanned by explicit scan-all"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, conn, quit)

	m.logger.Info("mount monitor started",
		logging.String(logging.FieldEventType, "mount_monitor_started"),
		logging.String("mount_path", m.state.Path()),
		logging.Bool("mounted", mounted),
	)
	return nil
}

// Stop shuts down the monitor.
func (m *MountMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("mount monitor stopped",
		logging.String(logging.FieldEventType, "mount_monitor_stopped"),
	)
}

// Running reports whether the monitor is active.
func (m *MountMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *MountMonitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildMatcher())

	settle := time.NewTimer(m.settle)
	if !settle.Stop() {
		<-settle.C
	}
	defer settle.Stop()
	attempts := 0

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.logger.Debug("block device event",
				logging.String("action", string(uevent.Action)),
				logging.String("kobj", uevent.KObj),
			)
			attempts = settleAttempts
			settle.Reset(m.settle)
		case <-settle.C:
			if m.check(ctx) || attempts <= 1 {
				attempts = 0
				continue
			}
			attempts--
			settle.Reset(m.settle)
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "mount changes may be missed"),
			)
		}
	}
}

// buildMatcher matches block device additions and removals.
func buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": netlinkSubsystem,
		},
	})
	return rules
}

// check refreshes the mount state and reports whether it changed.
func (m *MountMonitor) check(ctx context.Context) bool {
	mounted, changed := m.state.Refresh()
	if !changed {
		return false
	}

	m.logger.Info("removable storage state changed",
		logging.String(logging.FieldEventType, "removable_mount_changed"),
		logging.String("mount_path", m.state.Path()),
		logging.Bool("mounted", mounted),
	)
	if !mounted || !m.rescan || m.trigger == nil {
		return true
	}
	if err := m.trigger(ctx, "removable storage mounted"); err != nil {
		logging.WarnWithContext(m.logger, "mount-triggered scan request failed", "mount_scan_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "removable media waits for the next scan-all"),
			logging.String(logging.FieldErrorHint, "check that the control server is listening"),
		)
	}
	return true
}
