package starscream

import (
	"fmt"
	"unicode/utf8"

	"github.com/dsato80/starscream/internal/wsframe"
)

// decoderSink receives the events produced by the frame decoder. All
// methods are invoked on the reader goroutine. A non nil error stops
// decoding and tears the connection down.
type decoderSink interface {
	// message is called with a completed text or binary message.
	// The payload is owned by the sink.
	message(op wsframe.Opcode, payload []byte) error
	// ping is called with the payload of a received ping; the sink must
	// answer with a pong carrying the identical payload.
	ping(payload []byte) error
	// pong is called with the payload of a received pong.
	pong(payload []byte)
	// closeFrame is called with a validated close frame. The sink echoes
	// the close and returns an error to end decoding.
	closeFrame(ce CloseError) error
}

// messageAccumulator holds a data message while its frames arrive.
type messageAccumulator struct {
	opcode    wsframe.Opcode
	buf       []byte
	remaining int64
	frames    int
	fin       bool
}

// frameDecoder reassembles messages out of an arbitrarily chunked byte
// stream. It is owned by the reader goroutine; no locking.
//
// Incomplete frame headers, and control frames whose payload has not
// fully arrived, are stashed in carry until more bytes arrive. Data frame
// payload bytes are never stashed: once a data frame header is parsed
// the payload streams into the accumulator at the top of the stack.
type frameDecoder struct {
	sink           decoderSink
	maxMessageSize int64

	carry []byte
	stack []*messageAccumulator
}

func (d *frameDecoder) top() *messageAccumulator {
	if len(d.stack) == 0 {
		return nil
	}
	return d.stack[len(d.stack)-1]
}

// push feeds transport bytes to the decoder. Frames are processed one at
// a time until the input is exhausted or an incomplete header or control
// frame remains, which is carried over to the next call.
func (d *frameDecoder) push(p []byte) error {
	if len(d.carry) > 0 {
		p = append(d.carry, p...)
		d.carry = nil
	}

	for len(p) > 0 {
		n, err := d.step(p)
		if err != nil {
			return err
		}
		if n == 0 {
			d.carry = append([]byte(nil), p...)
			return nil
		}
		p = p[n:]
	}
	return nil
}

// step consumes at most one frame (or one slice of an in-flight frame's
// payload) from the front of p and returns the number of bytes used.
// n == 0 means p does not yet hold enough bytes.
func (d *frameDecoder) step(p []byte) (int, error) {
	// Payload owed to the frame currently in flight comes first.
	if top := d.top(); top != nil && top.remaining > 0 {
		n := int64(len(p))
		if n > top.remaining {
			n = top.remaining
		}
		top.buf = append(top.buf, p[:n]...)
		top.remaining -= n
		if top.remaining == 0 && top.fin {
			return int(n), d.dispatch()
		}
		return int(n), nil
	}

	h, n, err := wsframe.ParseHeader(p)
	if err != nil {
		return 0, protocolError{StatusProtocolError, err.Error()}
	}
	if n == 0 {
		return 0, nil
	}

	if h.RSV1 || h.RSV2 || h.RSV3 {
		return 0, protocolError{StatusProtocolError, fmt.Sprintf("received header with rsv bits set: %v:%v:%v", h.RSV1, h.RSV2, h.RSV3)}
	}
	if h.Masked {
		return 0, protocolError{StatusProtocolError, "received masked frame from server"}
	}
	if !h.Opcode.Known() {
		return 0, protocolError{StatusProtocolError, fmt.Sprintf("received unknown opcode %v", int(h.Opcode))}
	}

	if h.Opcode.Control() {
		return d.stepControl(h, n, p)
	}

	switch h.Opcode {
	case wsframe.OpContinuation:
		top := d.top()
		if top == nil {
			return 0, protocolError{StatusProtocolError, "received continuation frame without text or binary frame"}
		}
		top.fin = h.Fin
		top.remaining = h.PayloadLength
		top.frames++
	default: // text or binary
		if d.top() != nil {
			return 0, protocolError{StatusProtocolError, "received new data frame without finishing the previous message"}
		}
		d.stack = append(d.stack, &messageAccumulator{
			opcode:    h.Opcode,
			fin:       h.Fin,
			remaining: h.PayloadLength,
			frames:    1,
		})
	}

	top := d.top()
	if d.maxMessageSize > 0 && int64(len(top.buf))+top.remaining > d.maxMessageSize {
		return 0, protocolError{StatusMessageTooBig, fmt.Sprintf("message exceeds limit of %v bytes", d.maxMessageSize)}
	}

	if top.remaining == 0 && top.fin {
		return n, d.dispatch()
	}
	return n, nil
}

// stepControl handles a close, ping or pong frame whose header starts at
// p[0] and occupies hn bytes. Control frames never touch the stack.
// See https://tools.ietf.org/html/rfc6455#section-5.5
func (d *frameDecoder) stepControl(h wsframe.Header, hn int, p []byte) (int, error) {
	if !h.Fin {
		return 0, protocolError{StatusProtocolError, "received fragmented control frame"}
	}
	if h.PayloadLength > wsframe.MaxControlPayload {
		return 0, protocolError{StatusProtocolError, fmt.Sprintf("control frame too large at %v bytes", h.PayloadLength)}
	}

	total := hn + int(h.PayloadLength)
	if len(p) < total {
		return 0, nil
	}
	payload := append([]byte(nil), p[hn:total]...)

	switch h.Opcode {
	case wsframe.OpPing:
		return total, d.sink.ping(payload)
	case wsframe.OpPong:
		d.sink.pong(payload)
		return total, nil
	}

	ce, err := d.parseClose(payload)
	if err != nil {
		return 0, err
	}
	return total, d.sink.closeFrame(ce)
}

// parseClose validates a close frame body. An absent status code maps to
// StatusNoStatusRcvd; a code outside the valid wire ranges or a reason
// that is not UTF-8 is a protocol error.
// See https://tools.ietf.org/html/rfc6455#section-7.4.1
func (d *frameDecoder) parseClose(payload []byte) (CloseError, error) {
	if len(payload) == 0 {
		return CloseError{Code: StatusNoStatusRcvd}, nil
	}

	code, reason, err := wsframe.ParseClosePayload(payload)
	if err != nil {
		return CloseError{}, protocolError{StatusProtocolError, err.Error()}
	}
	if !validWireCloseCode(StatusCode(code)) {
		return CloseError{}, protocolError{StatusProtocolError, fmt.Sprintf("received invalid close code %v", code)}
	}
	if !utf8.ValidString(reason) {
		return CloseError{}, protocolError{StatusProtocolError, "close reason is not valid UTF-8"}
	}

	return CloseError{Code: StatusCode(code), Reason: reason}, nil
}

// dispatch pops the completed message off the stack and hands it to the
// sink. Text payloads must be valid UTF-8.
// See https://tools.ietf.org/html/rfc6455#section-8.1
func (d *frameDecoder) dispatch() error {
	top := d.stack[len(d.stack)-1]
	d.stack = d.stack[:len(d.stack)-1]

	if top.opcode == wsframe.OpText && !utf8.Valid(top.buf) {
		return protocolError{StatusInvalidFramePayloadData, "text message is not valid UTF-8"}
	}
	return d.sink.message(top.opcode, top.buf)
}
