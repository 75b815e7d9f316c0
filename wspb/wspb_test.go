package wspb_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dsato80/starscream"
	"github.com/dsato80/starscream/wspb"
)

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

	received := make(chan *wrapperspb.StringValue, 1)
	wspb.Handle(ws, &wrapperspb.StringValue{}, func(v *wrapperspb.StringValue) {
		received <- v
	}, nil)

	disconnected := make(chan error, 1)
	ws.OnDisconnect = func(err error) {
		disconnected <- err
	}
	ws.OnConnect = func() {
		wspb.Write(ws, wrapperspb.String("hi"))
	}

	require.NoError(t, ws.Connect(context.Background()))

	select {
	case v := <-received:
		assert.Equal(t, "hi", v.GetValue())
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for echoed protobuf")
	}

	ws.Disconnect()
	select {
	case <-disconnected:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for disconnect")
	}
}

func TestHandleDecodeError(t *testing.T) {
	t.Parallel()

	ws, err := starscream.New("ws://example.com")
	require.NoError(t, err)

	decodeErrs := make(chan error, 1)
	wspb.Handle(ws, &wrapperspb.StringValue{}, func(v *wrapperspb.StringValue) {
		t.Error("callback fired for malformed protobuf")
	}, func(err error) {
		decodeErrs <- err
	})

	// Field 1 declared as varint with no bytes following.
	ws.OnData([]byte{0x08})
	require.Error(t, <-decodeErrs)
}
