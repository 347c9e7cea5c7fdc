package ipc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"facescan/internal/logging"
)

const (
	bindAttempts   = 20
	bindRetryDelay = 250 * time.Millisecond
	socketMode     = 0o660
	dialTimeout    = 2 * time.Second
	readTimeout    = 5 * time.Second
)

// Listen binds a unix socket at path. A stale socket file is removed first
// and the bind is retried while another process releases the address.
func Listen(ctx context.Context, path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create socket directory: %w", ErrTransport, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: remove stale socket: %w", ErrTransport, err)
	}

	var lc net.ListenConfig
	var lastErr error
	for attempt := 1; attempt <= bindAttempts; attempt++ {
		listener, err := lc.Listen(ctx, "unix", path)
		if err == nil {
			if err := os.Chmod(path, socketMode); err != nil {
				_ = listener.Close()
				return nil, fmt.Errorf("%w: chmod socket: %w", ErrTransport, err)
			}
			return listener, nil
		}
		lastErr = err
		if attempt == bindAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: bind %s: %w", ErrTransport, path, ctx.Err())
		case <-time.After(bindRetryDelay):
		}
	}
	return nil, fmt.Errorf("%w: bind %s after %d attempts: %w", ErrTransport, path, bindAttempts, lastErr)
}

// Dial connects to the unix socket at path.
func Dial(ctx context.Context, path string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, path, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	return conn, nil
}

// Send dials path, writes one frame, and closes the connection.
func Send(ctx context.Context, path string, m Message) error {
	if _, err := Encode(m); err != nil {
		return err
	}
	conn, err := Dial(ctx, path)
	if err != nil {
		return err
	}
	defer conn.Close()
	return WriteMessage(conn, m)
}

// Request writes one frame to path and waits for the single reply frame.
func Request(ctx context.Context, path string, m Message) (Message, error) {
	conn, err := Dial(ctx, path)
	if err != nil {
		return Message{}, err
	}
	defer conn.Close()
	if err := WriteMessage(conn, m); err != nil {
		return Message{}, err
	}
	return ReadMessage(conn)
}

// Inbound is a received frame together with the connection it arrived on.
// The receiver owns Conn and must close it once dispatch finishes.
type Inbound struct {
	Port Port
	Msg  Message
	Conn net.Conn
}

// Close releases the underlying connection.
func (in Inbound) Close() {
	if in.Conn != nil {
		_ = in.Conn.Close()
	}
}

// Reply writes m back on the inbound connection.
func (in Inbound) Reply(m Message) error {
	if in.Conn == nil {
		return fmt.Errorf("%w: no connection to reply on", ErrTransport)
	}
	return WriteMessage(in.Conn, m)
}

// Serve accepts connections on listener until ctx is canceled, reads exactly
// one frame from each, and hands it to out. Frames that fail to decode are
// logged and dropped. Serve closes listener before returning.
func Serve(ctx context.Context, listener net.Listener, port Port, out chan<- Inbound, logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String("port", port.String()))

	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()
	defer listener.Close()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logging.WarnWithContext(logger, "accept failed", "ipc_accept_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "control frames may be lost"),
				logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
			)
			continue
		}
		go readOne(ctx, conn, port, out, logger)
	}
}

func readOne(ctx context.Context, conn net.Conn, port Port, out chan<- Inbound, logger *slog.Logger) {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	msg, err := ReadMessage(conn)
	if err != nil {
		_ = conn.Close()
		logging.WarnWithContext(logger, "dropping control frame", "ipc_frame_rejected",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the sender's command was ignored"),
			logging.String(logging.FieldErrorHint, "ensure the peer speaks the facescan frame format"),
		)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	select {
	case out <- Inbound{Port: port, Msg: msg, Conn: conn}:
	case <-ctx.Done():
		_ = conn.Close()
	}
}
