// Package control implements the control-plane server: the public-facing
// dispatch loop that accepts requester commands, starts the scan worker on
// first use, forwards commands to it, relays completions to the notify
// endpoint, and exits once the worker has quiesced after KILL_SERVICE.
//
// Frames from both server endpoints funnel into one channel and are handled
// sequentially by Run; accept goroutines only read frames.
package control
