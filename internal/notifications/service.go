package notifications

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"time"

	"facescan/internal/config"
	"facescan/internal/services"
)

const (
	noticeTypeFace = 0
	mediaIDLength  = 64
	// NoticeSize is the on-wire size of a face notice.
	NoticeSize  = 4 + mediaIDLength
	sendTimeout = time.Second
)

// Service defines the notification surface exposed to the scan pipeline.
type Service interface {
	NotifyFacesDetected(ctx context.Context, mediaID string, faces int) error
}

// NewService builds a UDP notifier when notify.enabled is set.
// Otherwise a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil || !cfg.Notify.Enabled {
		return noopService{}
	}
	addr := strings.TrimSpace(cfg.Notify.FaceUDPAddr)
	if addr == "" {
		return noopService{}
	}
	return &udpService{addr: addr}
}

// EncodeFaceNotice renders the datagram for mediaID. Ids longer than 63 bytes
// are truncated so the record stays NUL terminated.
func EncodeFaceNotice(mediaID string) []byte {
	buf := make([]byte, NoticeSize)
	binary.LittleEndian.PutUint32(buf[0:4], noticeTypeFace)
	id := mediaID
	if len(id) > mediaIDLength-1 {
		id = id[:mediaIDLength-1]
	}
	copy(buf[4:], id)
	return buf
}

type udpService struct {
	addr string
}

func (u *udpService) NotifyFacesDetected(ctx context.Context, mediaID string, faces int) error {
	if faces <= 0 || strings.TrimSpace(mediaID) == "" {
		return nil
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", u.addr)
	if err != nil {
		return services.Wrap(services.ErrTransient, "notify", "dial", u.addr, err)
	}
	defer conn.Close()
	_ = conn.SetWriteDeadline(time.Now().Add(sendTimeout))

	if _, err := conn.Write(EncodeFaceNotice(mediaID)); err != nil {
		return services.Wrap(services.ErrTransient, "notify", "send", fmt.Sprintf("media %s", mediaID), err)
	}
	return nil
}

type noopService struct{}

func (noopService) NotifyFacesDetected(context.Context, string, int) error { return nil }
