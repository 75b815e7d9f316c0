// Package wsjson provides helpers for JSON messages.
package wsjson

import (
	"encoding/json"
	"fmt"

	"github.com/dsato80/starscream"
)

// Write marshals v to JSON and queues it as a text message. Like every
// write, it is dropped unless the connection is open.
func Write(ws *starscream.WebSocket, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	ws.WriteText(string(b))
	return nil
}

// Handle sets the connection's OnText callback to one that unmarshals
// each text message into a fresh T. Messages that fail to unmarshal are
// handed to onErr, which may be nil.
func Handle[T any](ws *starscream.WebSocket, fn func(v T), onErr func(err error)) {
	ws.OnText = func(text string) {
		var v T
		err := json.Unmarshal([]byte(text), &v)
		if err != nil {
			if onErr != nil {
				onErr(fmt.Errorf("failed to unmarshal JSON: %w", err))
			}
			return
		}
		fn(v)
	}
}
