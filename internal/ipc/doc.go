// Package ipc implements the fixed-size control frame shared by the facescan
// server, the scan worker, and external requesters.
//
// Every frame is FrameSize bytes: a little-endian header (kind, pid, uid,
// payload size) followed by a zero-padded payload of MaxPayload bytes. Decode
// fails closed on unknown kinds and oversized payloads so a corrupt peer can
// never smuggle an unrecognised command into a dispatch loop.
//
// The package also owns the unix socket endpoints: Listen prepares a socket
// file with stale cleanup and bind retries, Send delivers a single frame, and
// Serve feeds accepted frames into a loop's inbound channel.
package ipc
