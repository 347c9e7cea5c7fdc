// Package logs reads the daemon's current log file for the CLI.
//
// Last returns the trailing lines of a file with bounded memory. Follow then
// streams complete lines appended after an offset, driven by fsnotify events,
// and reopens the file when the daemon relinks the current-log pointer on
// restart.
package logs
