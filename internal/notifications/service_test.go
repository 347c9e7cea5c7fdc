package notifications_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"strings"
	"testing"
	"time"

	"facescan/internal/config"
	"facescan/internal/notifications"
)

func TestNewServiceReturnsNoopWhenDisabled(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyFacesDetected(context.Background(), "m1", 3); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestEncodeFaceNotice(t *testing.T) {
	notice := notifications.EncodeFaceNotice("abc")
	if len(notice) != notifications.NoticeSize || notifications.NoticeSize != 68 {
		t.Fatalf("unexpected notice size %d", len(notice))
	}
	if binary.LittleEndian.Uint32(notice[:4]) != 0 {
		t.Fatalf("expected type 0, got %v", notice[:4])
	}
	if string(bytes.TrimRight(notice[4:], "\x00")) != "abc" {
		t.Fatalf("unexpected media id bytes %q", notice[4:])
	}

	long := notifications.EncodeFaceNotice(strings.Repeat("x", 100))
	if long[len(long)-1] != 0 {
		t.Fatal("expected truncated id to stay NUL terminated")
	}
}

func TestUDPServiceSendsNotice(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp unavailable: %v", err)
	}
	defer pc.Close()

	cfg := config.Default()
	cfg.Notify.Enabled = true
	cfg.Notify.FaceUDPAddr = pc.LocalAddr().String()
	svc := notifications.NewService(&cfg)

	if err := svc.NotifyFacesDetected(context.Background(), "media-42", 0); err != nil {
		t.Fatalf("zero faces should be skipped silently: %v", err)
	}
	if err := svc.NotifyFacesDetected(context.Background(), "media-42", 2); err != nil {
		t.Fatalf("NotifyFacesDetected: %v", err)
	}

	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 128)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read datagram: %v", err)
	}
	if n != notifications.NoticeSize {
		t.Fatalf("expected %d bytes, got %d", notifications.NoticeSize, n)
	}
	if got := string(bytes.TrimRight(buf[4:n], "\x00")); got != "media-42" {
		t.Fatalf("unexpected media id %q", got)
	}
}
