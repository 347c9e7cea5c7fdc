// Package logging assembles structured slog loggers and formatting helpers used
// across facescan.
//
// It owns the console and JSON handlers, rotation of file outputs, and the
// context helpers that tag log lines with media ids, scan kinds, and
// correlation ids. A no-op logger is provided for tests and wiring code that
// cannot fail.
package logging
