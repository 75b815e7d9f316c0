package wsjson_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsato80/starscream"
	"github.com/dsato80/starscream/wsjson"
)

type chatMessage struct {
	From string `json:"from"`
	Body string `json:"body"`
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	upgrader := gorilla.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			mt, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			if c.WriteMessage(mt, msg) != nil {
				return
			}
		}
	}))
	t.Cleanup(s.Close)

	ws, err := starscream.New(s.URL)
	require.NoError(t, err)

	received := make(chan chatMessage, 1)
	decodeErrs := make(chan error, 1)
	wsjson.Handle(ws, func(m chatMessage) {
		received <- m
	}, func(err error) {
		decodeErrs <- err
	})

	disconnected := make(chan error, 1)
	ws.OnDisconnect = func(err error) {
		disconnected <- err
	}
	ws.OnConnect = func() {
		err := wsjson.Write(ws, chatMessage{From: "me", Body: "hi"})
		if err != nil {
			decodeErrs <- err
		}
	}

	require.NoError(t, ws.Connect(context.Background()))

	select {
	case m := <-received:
		assert.Equal(t, chatMessage{From: "me", Body: "hi"}, m)
	case err := <-decodeErrs:
		t.Fatal(err)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for echoed JSON")
	}

	ws.Disconnect()
	select {
	case <-disconnected:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for disconnect")
	}
}

func TestWriteMarshalError(t *testing.T) {
	t.Parallel()

	ws, err := starscream.New("ws://example.com")
	require.NoError(t, err)

	err = wsjson.Write(ws, make(chan int))
	require.Error(t, err)
}

func TestHandleDecodeError(t *testing.T) {
	t.Parallel()

	ws, err := starscream.New("ws://example.com")
	require.NoError(t, err)

	decodeErrs := make(chan error, 1)
	wsjson.Handle(ws, func(m chatMessage) {
		t.Error("callback fired for malformed JSON")
	}, func(err error) {
		decodeErrs <- err
	})

	ws.OnText("{not json")
	require.Error(t, <-decodeErrs)
}
