// Package notifications announces newly detected faces to local consumers.
//
// When notify.enabled is set, every scanned item that produced at least one
// face triggers a single UDP datagram to notify.face_udp_addr: a 4-byte
// little-endian type (always 0) followed by the media id, NUL-padded to 64
// bytes. Delivery is best effort; a missing listener never fails a scan.
package notifications
