package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"facescan/internal/services"
)

// ErrDuplicate reports a write that collided with an existing row.
var ErrDuplicate = errors.New("ledger: duplicate entry")

// Ledger wraps a SQLite connection to the catalog database.
type Ledger struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	sqliteConstraintCode    = 19
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open connects to the catalog at path, creating it when missing, and applies
// pending migrations.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure ledger directory: %w", err)
		}
	}
	l, err := Connect(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := migrate(ctx, l.db); err != nil {
		_ = l.Close()
		return nil, err
	}
	return l, nil
}

// Connect opens a connection to an existing, migrated catalog.
func Connect(ctx context.Context, path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, services.Wrap(services.ErrDBOperation, "ledger", "open", path, err)
	}
	// SQLite serialises writers anyway; one connection keeps pragmas in effect.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, classify("open", fmt.Sprintf("apply %q", pragma), execErr)
		}
	}
	return &Ledger{db: db, path: path}, nil
}

// Path returns the database file location.
func (l *Ledger) Path() string {
	return l.path
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Ping checks that the connection is usable.
func (l *Ledger) Ping(ctx context.Context) error {
	if err := l.db.PingContext(ctx); err != nil {
		return classify("ping", "", err)
	}
	return nil
}

func sqliteCode(err error) (int, bool) {
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		return coder.Code() & 0xff, true
	}
	return 0, false
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqliteCode(err); ok && code == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func isConstraint(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqliteCode(err); ok && code == sqliteConstraintCode {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// classify tags err for callers: busy databases and canceled contexts are
// transient, everything else is a database failure.
func classify(operation, message string, err error) error {
	switch {
	case err == nil:
		return nil
	case isSQLiteBusy(err):
		return services.Wrap(services.ErrTransient, "ledger", operation, "database busy", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTransient, "ledger", operation, "interrupted", err)
	default:
		return services.Wrap(services.ErrDBOperation, "ledger", operation, message, err)
	}
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (l *Ledger) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = l.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}
