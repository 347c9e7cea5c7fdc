package autoscan

import (
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// MountState tracks whether the removable storage root is a mounted
// filesystem. A nil MountState reports not mounted.
type MountState struct {
	path string

	mu    sync.Mutex
	last  bool
	known bool
}

// NewMountState returns a tracker for path, or nil when path is empty.
func NewMountState(path string) *MountState {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return &MountState{path: filepath.Clean(path)}
}

// Path returns the tracked mount root.
func (m *MountState) Path() string {
	if m == nil {
		return ""
	}
	return m.path
}

// Mounted checks the mount point now.
func (m *MountState) Mounted() bool {
	if m == nil {
		return false
	}
	return isMountPoint(m.path)
}

// Refresh checks the mount point and reports whether the result differs from
// the previous Refresh. The first call always reports a change.
func (m *MountState) Refresh() (mounted, changed bool) {
	if m == nil {
		return false, false
	}
	mounted = isMountPoint(m.path)
	m.mu.Lock()
	defer m.mu.Unlock()
	changed = !m.known || mounted != m.last
	m.last = mounted
	m.known = true
	return mounted, changed
}

// isMountPoint reports whether path sits on a different device than its
// parent, or is the filesystem root.
func isMountPoint(path string) bool {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return false
	}
	parentPath := filepath.Dir(path)
	if parentPath == path {
		return true
	}
	var parent unix.Stat_t
	if err := unix.Stat(parentPath, &parent); err != nil {
		return false
	}
	return st.Dev != parent.Dev || st.Ino == parent.Ino
}
