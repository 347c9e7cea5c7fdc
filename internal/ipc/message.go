package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Kind identifies a control message. Values are part of the wire format.
type Kind int32

const (
	KindScanSingle       Kind = 0
	KindScanAll          Kind = 1
	KindCancel           Kind = 2
	KindCancelAll        Kind = 3
	KindKillService      Kind = 4
	KindScanReady        Kind = 5
	KindScanCompleted    Kind = 6
	KindScanTerminated   Kind = 7
	KindServiceReady     Kind = 20
	KindServiceCompleted Kind = 21
)

var kindNames = map[Kind]string{
	KindScanSingle:       "SCAN_SINGLE",
	KindScanAll:          "SCAN_ALL",
	KindCancel:           "CANCEL",
	KindCancelAll:        "CANCEL_ALL",
	KindKillService:      "KILL_SERVICE",
	KindScanReady:        "SCAN_READY",
	KindScanCompleted:    "SCAN_COMPLETED",
	KindScanTerminated:   "SCAN_TERMINATED",
	KindServiceReady:     "SERVICE_READY",
	KindServiceCompleted: "SERVICE_COMPLETED",
}

// Valid reports whether k is a recognised message kind.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KIND(%d)", int32(k))
}

const (
	// MaxPayload is the fixed payload area of a frame. Payloads must be
	// strictly shorter so a terminating NUL always fits.
	MaxPayload = 4096
	headerSize = 16
	// FrameSize is the exact on-wire length of every frame.
	FrameSize = headerSize + MaxPayload
)

var (
	// ErrMalformed indicates a frame that failed validation.
	ErrMalformed = errors.New("malformed control frame")
	// ErrTransport indicates a socket-level failure while moving a frame.
	ErrTransport = errors.New("control transport failure")
)

// Message is a decoded control frame.
type Message struct {
	Kind    Kind
	PID     int32
	UID     uint32
	Payload []byte
}

// NewMessage builds a message stamped with the current process id.
func NewMessage(kind Kind, uid uint32, payload string) Message {
	return Message{
		Kind:    kind,
		PID:     int32(os.Getpid()),
		UID:     uid,
		Payload: []byte(payload),
	}
}

// PayloadString returns the payload as text.
func (m Message) PayloadString() string {
	return string(m.Payload)
}

// Reframe copies m under a new kind, keeping pid, uid, and payload.
func (m Message) Reframe(kind Kind) Message {
	payload := make([]byte, len(m.Payload))
	copy(payload, m.Payload)
	return Message{Kind: kind, PID: m.PID, UID: m.UID, Payload: payload}
}

// WithPayload returns a copy of m carrying payload.
func (m Message) WithPayload(payload []byte) Message {
	out := m.Reframe(m.Kind)
	out.Payload = append([]byte(nil), payload...)
	return out
}

// RequestID is the correlation id attached to logs about this frame.
func (m Message) RequestID() string {
	return fmt.Sprintf("%s-%d-%d", m.Kind, m.PID, m.UID)
}

func (m Message) validate() error {
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %d", ErrMalformed, int32(m.Kind))
	}
	if len(m.Payload) >= MaxPayload {
		return fmt.Errorf("%w: payload size %d exceeds %d", ErrMalformed, len(m.Payload), MaxPayload-1)
	}
	return nil
}

// Encode renders m into a FrameSize byte frame.
func Encode(m Message) ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	frame := make([]byte, FrameSize)
	binary.LittleEndian.PutUint32(frame[0:4], uint32(m.Kind))
	binary.LittleEndian.PutUint32(frame[4:8], uint32(m.PID))
	binary.LittleEndian.PutUint32(frame[8:12], m.UID)
	binary.LittleEndian.PutUint32(frame[12:16], uint32(len(m.Payload)))
	copy(frame[headerSize:], m.Payload)
	return frame, nil
}

// Decode parses a frame produced by Encode.
func Decode(frame []byte) (Message, error) {
	if len(frame) != FrameSize {
		return Message{}, fmt.Errorf("%w: frame length %d, want %d", ErrMalformed, len(frame), FrameSize)
	}
	kind := Kind(int32(binary.LittleEndian.Uint32(frame[0:4])))
	if !kind.Valid() {
		return Message{}, fmt.Errorf("%w: unknown kind %d", ErrMalformed, int32(kind))
	}
	size := binary.LittleEndian.Uint32(frame[12:16])
	if size >= MaxPayload {
		return Message{}, fmt.Errorf("%w: payload size %d exceeds %d", ErrMalformed, size, MaxPayload-1)
	}
	payload := make([]byte, size)
	copy(payload, frame[headerSize:headerSize+int(size)])
	return Message{
		Kind:    kind,
		PID:     int32(binary.LittleEndian.Uint32(frame[4:8])),
		UID:     binary.LittleEndian.Uint32(frame[8:12]),
		Payload: payload,
	}, nil
}

// ReadMessage reads exactly one frame from r.
func ReadMessage(r io.Reader) (Message, error) {
	frame := make([]byte, FrameSize)
	if _, err := io.ReadFull(r, frame); err != nil {
		return Message{}, fmt.Errorf("%w: read frame: %w", ErrTransport, err)
	}
	return Decode(frame)
}

// WriteMessage writes m as one frame to w.
func WriteMessage(w io.Writer, m Message) error {
	frame, err := Encode(m)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("%w: write frame: %w", ErrTransport, err)
	}
	return nil
}
