package control

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

// Frames on the control connection are an 8-byte header followed by the
// payload:
//
//	bytes 0-3  opcode, uint32 little-endian
//	bytes 4-7  payload length, uint32 little-endian
//	bytes 8-   payload, JSON for OpRequest and OpResponse

// Opcode identifies the kind of a control frame.
type Opcode uint32

const (
	// OpRequest carries a JSON [Request] from client to daemon.
	OpRequest Opcode = 1
	// OpResponse carries a JSON [Response] from daemon to client.
	OpResponse Opcode = 2
	// OpClose tells the peer the sender is done with the connection.
	OpClose Opcode = 3
)

func (op Opcode) String() string {
	switch op {
	case OpRequest:
		return "request"
	case OpResponse:
		return "response"
	case OpClose:
		return "close"
	}
	return fmt.Sprintf("opcode(%d)", uint32(op))
}

const headerLen = 8

// MaxPayloadSize bounds a frame payload in both directions.
const MaxPayloadSize = 1 << 20

// ErrPayloadTooLarge is returned for payloads over [MaxPayloadSize], before
// anything is written or the payload is read.
var ErrPayloadTooLarge = errors.New("payload too large")

// WriteFrame writes one frame to w. Header and payload go out in a single
// vectored write where w supports it.
func WriteFrame(w io.Writer, op Opcode, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	hdr := make([]byte, 0, headerLen)
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(op))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(len(payload)))

	bufs := net.Buffers{hdr}
	if len(payload) > 0 {
		bufs = append(bufs, payload)
	}
	if _, err := bufs.WriteTo(w); err != nil {
		return fmt.Errorf("write %s frame: %w", op, err)
	}
	return nil
}

// ReadFrame reads one frame from r. It returns io.EOF unwrapped when r ends
// cleanly between frames, so callers can tell a hang-up from a cut frame.
func ReadFrame(r io.Reader) (Opcode, []byte, error) {
	var hdr [headerLen]byte
	switch _, err := io.ReadFull(r, hdr[:]); {
	case err == io.EOF:
		return 0, nil, io.EOF
	case err != nil:
		return 0, nil, fmt.Errorf("read frame header: %w", err)
	}

	op := Opcode(binary.LittleEndian.Uint32(hdr[:4]))
	n := binary.LittleEndian.Uint32(hdr[4:])
	if n > MaxPayloadSize {
		return 0, nil, fmt.Errorf("%w: %s frame announces %d bytes", ErrPayloadTooLarge, op, n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("read %s payload: %w", op, err)
	}
	return op, payload, nil
}
