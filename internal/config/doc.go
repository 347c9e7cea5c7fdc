// Package config loads, normalizes, and validates facescan configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes the socket
// endpoint mapping, scan timing, detector tuning, and logging knobs so the
// daemon and CLI discover every setting in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, resolved socket addresses, and clear validation errors.
package config
