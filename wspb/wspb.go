// Package wspb provides helpers for protobuf messages.
package wspb

import (
	"fmt"

	"google.golang.org/protobuf/proto"

	"github.com/dsato80/starscream"
)

// Write marshals m and queues it as a binary message. Like every write,
// it is dropped unless the connection is open.
func Write(ws *starscream.WebSocket, m proto.Message) error {
	b, err := proto.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal protobuf: %w", err)
	}
	ws.WriteData(b)
	return nil
}

// Handle sets the connection's OnData callback to one that unmarshals
// each binary message into a fresh clone of the prototype m. Messages
// that fail to unmarshal are handed to onErr, which may be nil.
func Handle[T proto.Message](ws *starscream.WebSocket, m T, fn func(v T), onErr func(err error)) {
	ws.OnData = func(data []byte) {
		v := proto.Clone(m).(T)
		err := proto.Unmarshal(data, v)
		if err != nil {
			if onErr != nil {
				onErr(fmt.Errorf("failed to unmarshal protobuf: %w", err))
			}
			return
		}
		fn(v)
	}
}
