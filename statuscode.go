package starscream

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/dsato80/starscream/internal/wsframe"
)

// StatusCode represents a WebSocket close status code.
// See https://tools.ietf.org/html/rfc6455#section-7.4
type StatusCode int

// These codes were retrieved from:
// https://www.iana.org/assignments/websocket/websocket.xhtml#close-code-number
const (
	StatusNormalClosure StatusCode = 1000 + iota
	StatusGoingAway
	StatusProtocolError
	StatusUnsupportedData

	// 1004 is reserved.
	_

	// StatusNoStatusRcvd cannot be sent over the wire. It is the code
	// reported when a close frame carries no status code at all.
	StatusNoStatusRcvd

	// 1006 is reserved for abnormal closure and cannot appear on the wire.
	_

	StatusInvalidFramePayloadData
	StatusPolicyViolation
	StatusMessageTooBig
	StatusMandatoryExtension
	StatusInternalError
)

// CloseError represents a WebSocket close frame received from the peer.
// It is handed to OnDisconnect when the peer initiates the closing
// handshake. Use errors.As or the CloseStatus helper to inspect it.
type CloseError struct {
	Code   StatusCode
	Reason string
}

func (ce CloseError) Error() string {
	return fmt.Sprintf("WebSocket closed with status = %v and reason = %q", ce.Code, ce.Reason)
}

// CloseStatus is a convenience wrapper around errors.As to grab
// the status code from a CloseError. If the passed error is nil
// or not a CloseError, the returned StatusCode will be -1.
func CloseStatus(err error) StatusCode {
	var ce CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return -1
}

// validWireCloseCode reports whether code may legitimately appear in a
// received close frame: [1000,1003], [1007,1011] and the registered
// application range [3000,4999]. Everything else, including the reserved
// codes 1004-1006 and 1012-1015, is a protocol error.
// See https://tools.ietf.org/html/rfc6455#section-7.4.1
func validWireCloseCode(code StatusCode) bool {
	switch {
	case code >= StatusNormalClosure && code <= StatusUnsupportedData:
		return true
	case code >= StatusInvalidFramePayloadData && code <= StatusInternalError:
		return true
	case code >= 3000 && code <= 4999:
		return true
	}
	return false
}

func (ce CloseError) bytes() ([]byte, error) {
	if len(ce.Reason) > wsframe.MaxControlPayload-2 {
		return nil, fmt.Errorf("reason string max is %v but got %q with length %v", wsframe.MaxControlPayload-2, ce.Reason, len(ce.Reason))
	}
	if bits.Len(uint(ce.Code)) > 16 {
		return nil, errors.New("status code is larger than 2 bytes")
	}
	if !validWireCloseCode(ce.Code) {
		return nil, fmt.Errorf("status code %v cannot be set", ce.Code)
	}

	return wsframe.AppendClosePayload(nil, uint16(ce.Code), ce.Reason), nil
}
