// Package services defines shared utilities consumed by the scan worker, the
// pipeline step, and the control-plane server.
//
// Key responsibilities:
//   - Context helpers that stamp media identifiers, scan kinds, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so pipeline failures can be
//     classified as transient (retry on a later scan) or permanent (mark the
//     item scanned and move on).
//
// Use these helpers when wiring new scan logic so error handling and
// observability stay uniform across the daemon.
package services
