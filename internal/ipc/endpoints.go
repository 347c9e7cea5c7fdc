package ipc

import (
	"errors"
	"fmt"
	"strings"
)

// Port names a control-plane endpoint.
type Port int

const (
	// PortWorker is the scan worker's inbound socket.
	PortWorker Port = iota
	// PortServer receives worker reports on the server side.
	PortServer
	// PortRequests receives commands from external requesters.
	PortRequests
	// PortNotify is the optional outbound requester notice address.
	PortNotify
)

func (p Port) String() string {
	switch p {
	case PortWorker:
		return "worker"
	case PortServer:
		return "server"
	case PortRequests:
		return "requests"
	case PortNotify:
		return "notify"
	default:
		return fmt.Sprintf("port(%d)", int(p))
	}
}

// Required reports whether the daemon cannot start without p.
func (p Port) Required() bool {
	return p != PortNotify
}

// Endpoints maps ports to unix socket paths.
type Endpoints map[Port]string

// Lookup returns the socket path for p when one is configured.
func (e Endpoints) Lookup(p Port) (string, bool) {
	path := strings.TrimSpace(e[p])
	return path, path != ""
}

// Validate checks that every required port is set and no two ports share a path.
func (e Endpoints) Validate() error {
	var errs []error
	seen := make(map[string]Port, len(e))
	for _, port := range []Port{PortWorker, PortServer, PortRequests, PortNotify} {
		path, ok := e.Lookup(port)
		if !ok {
			if port.Required() {
				errs = append(errs, fmt.Errorf("%s endpoint is not configured", port))
			}
			continue
		}
		if other, dup := seen[path]; dup {
			errs = append(errs, fmt.Errorf("%s and %s endpoints share %q", other, port, path))
			continue
		}
		seen[path] = port
	}
	return errors.Join(errs...)
}
