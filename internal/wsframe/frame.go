// Package wsframe implements the byte level WebSocket frame codec.
// See https://tools.ietf.org/html/rfc6455#section-5.2
package wsframe

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Opcode represents a WebSocket Opcode.
type Opcode int

// Opcode constants.
const (
	OpContinuation Opcode = iota
	OpText
	OpBinary
	// 3 - 7 are reserved for further non-control frames.
	_
	_
	_
	_
	_
	OpClose
	OpPing
	OpPong
	// 11-15 are reserved for further control frames.
)

// Control reports whether the opcode is a control opcode.
func (o Opcode) Control() bool {
	switch o {
	case OpClose, OpPing, OpPong:
		return true
	}
	return false
}

// Data reports whether the opcode begins a data message.
func (o Opcode) Data() bool {
	switch o {
	case OpText, OpBinary:
		return true
	}
	return false
}

// Known reports whether the opcode is defined by the RFC.
func (o Opcode) Known() bool {
	switch o {
	case OpContinuation, OpText, OpBinary, OpClose, OpPing, OpPong:
		return true
	}
	return false
}

func (o Opcode) String() string {
	switch o {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	}
	return fmt.Sprintf("opcode(%#x)", int(o))
}

// First byte contains fin, rsv1, rsv2, rsv3 and the opcode.
// Second byte contains the mask flag and the 7 bit payload length.
// Next 8 bytes are the maximum extended payload length.
// Last 4 bytes are the mask key.
// https://tools.ietf.org/html/rfc6455#section-5.2
const MaxHeaderSize = 1 + 1 + 8 + 4

// MaxControlPayload is the maximum payload length of a control frame.
// See https://tools.ietf.org/html/rfc6455#section-5.5
const MaxControlPayload = 125

// Header represents a WebSocket frame header.
// See https://tools.ietf.org/html/rfc6455#section-5.2
type Header struct {
	Fin    bool
	RSV1   bool
	RSV2   bool
	RSV3   bool
	Opcode Opcode

	PayloadLength int64

	Masked  bool
	MaskKey [4]byte
}

// Append appends the wire encoding of h to b.
func (h Header) Append(b []byte) []byte {
	var b0 byte
	if h.Fin {
		b0 |= 1 << 7
	}
	if h.RSV1 {
		b0 |= 1 << 6
	}
	if h.RSV2 {
		b0 |= 1 << 5
	}
	if h.RSV3 {
		b0 |= 1 << 4
	}
	b0 |= byte(h.Opcode)

	var b1 byte
	if h.Masked {
		b1 = 1 << 7
	}

	switch {
	case h.PayloadLength < 0:
		panic(fmt.Sprintf("wsframe: negative payload length: %v", h.PayloadLength))
	case h.PayloadLength <= MaxControlPayload:
		b = append(b, b0, b1|byte(h.PayloadLength))
	case h.PayloadLength <= math.MaxUint16:
		b = append(b, b0, b1|126, 0, 0)
		binary.BigEndian.PutUint16(b[len(b)-2:], uint16(h.PayloadLength))
	default:
		b = append(b, b0, b1|127, 0, 0, 0, 0, 0, 0, 0, 0)
		binary.BigEndian.PutUint64(b[len(b)-8:], uint64(h.PayloadLength))
	}

	if h.Masked {
		b = append(b, h.MaskKey[:]...)
	}

	return b
}

// ParseHeader decodes a frame header from the front of b.
// It returns the header and the number of bytes consumed.
// If b does not yet hold a complete header, it returns n == 0
// with a nil error so the caller can retry with more bytes.
func ParseHeader(b []byte) (Header, int, error) {
	if len(b) < 2 {
		return Header{}, 0, nil
	}

	var h Header
	h.Fin = b[0]&(1<<7) != 0
	h.RSV1 = b[0]&(1<<6) != 0
	h.RSV2 = b[0]&(1<<5) != 0
	h.RSV3 = b[0]&(1<<4) != 0
	h.Opcode = Opcode(b[0] & 0xf)
	h.Masked = b[1]&(1<<7) != 0

	n := 2
	length7 := b[1] &^ (1 << 7)
	switch {
	case length7 < 126:
		h.PayloadLength = int64(length7)
	case length7 == 126:
		if len(b) < n+2 {
			return Header{}, 0, nil
		}
		h.PayloadLength = int64(binary.BigEndian.Uint16(b[n:]))
		n += 2
	default:
		if len(b) < n+8 {
			return Header{}, 0, nil
		}
		h.PayloadLength = int64(binary.BigEndian.Uint64(b[n:]))
		n += 8
		if h.PayloadLength < 0 {
			return Header{}, 0, fmt.Errorf("header has negative payload length: %v", h.PayloadLength)
		}
	}

	if h.Masked {
		if len(b) < n+4 {
			return Header{}, 0, nil
		}
		copy(h.MaskKey[:], b[n:])
		n += 4
	}

	return h, n, nil
}

// AppendClosePayload appends the body of a close frame to b:
// the big endian status code followed by the reason.
func AppendClosePayload(b []byte, code uint16, reason string) []byte {
	b = append(b, 0, 0)
	binary.BigEndian.PutUint16(b[len(b)-2:], code)
	return append(b, reason...)
}

// ParseClosePayload splits a close frame body into status code and reason.
func ParseClosePayload(p []byte) (uint16, string, error) {
	if len(p) < 2 {
		return 0, "", fmt.Errorf("close payload %q too small, cannot even contain the 2 byte status code", p)
	}
	return binary.BigEndian.Uint16(p), string(p[2:]), nil
}
