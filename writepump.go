package starscream

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/dsato80/starscream/internal/wsframe"
)

// encodeFrame builds a single unfragmented frame carrying payload,
// masked with a fresh random key.
// See https://tools.ietf.org/html/rfc6455#section-5.3
func encodeFrame(op wsframe.Opcode, payload []byte) ([]byte, error) {
	h := wsframe.Header{
		Fin:           true,
		Opcode:        op,
		Masked:        true,
		PayloadLength: int64(len(payload)),
	}
	_, err := io.ReadFull(rand.Reader, h.MaskKey[:])
	if err != nil {
		return nil, fmt.Errorf("failed to generate masking key: %w", err)
	}

	b := h.Append(make([]byte, 0, wsframe.MaxHeaderSize+len(payload)))
	start := len(b)
	b = append(b, payload...)
	wsframe.Mask(h.MaskKey, 0, b[start:])

	return b, nil
}

// writeLoop is the single worker that serializes all frame writes to the
// transport. It exits when told to stop (after draining queued frames)
// or when a write fails.
func (ws *WebSocket) writeLoop(w io.Writer) {
	defer close(ws.writerDone)

	for {
		select {
		case f := <-ws.writes:
			if !ws.writeAll(w, f) {
				return
			}
		case <-ws.writerStop:
			// Drain what was queued before the stop, then exit.
			for {
				select {
				case f := <-ws.writes:
					if !ws.writeAll(w, f) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// writeAll writes f until the transport has accepted every byte.
// A write error tears the connection down and abandons the queue.
func (ws *WebSocket) writeAll(w io.Writer, f []byte) bool {
	for len(f) > 0 {
		n, err := w.Write(f)
		if err != nil {
			ws.teardown(&Error{
				Code:   ErrCodeOutputStreamWrite,
				Reason: "failed to write frame to transport",
				Err:    err,
			})
			return false
		}
		f = f[n:]
	}
	return true
}

// queueFrame encodes and queues a frame regardless of state. Used for
// frames the protocol itself owes the peer (pong, close echo).
func (ws *WebSocket) queueFrame(op wsframe.Opcode, payload []byte) error {
	f, err := encodeFrame(op, payload)
	if err != nil {
		return err
	}
	select {
	case ws.writes <- f:
	case <-ws.writerDone:
	}
	return nil
}

// enqueue admits a user write. Writes issued while the connection is not
// open are silently dropped.
func (ws *WebSocket) enqueue(op wsframe.Opcode, payload []byte) {
	if ws.state.Load() != stateOpen {
		return
	}
	ws.queueFrame(op, payload)
}
