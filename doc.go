// Package starscream implements a client side WebSocket endpoint.
//
// https://tools.ietf.org/html/rfc6455
//
// The package performs the opening handshake over HTTP/1.1, reassembles
// fragmented messages out of an arbitrarily chunked transport stream,
// answers control frames, masks every outbound frame with a fresh random
// key and secures the transport with TLS, optionally with certificate
// pinning and a restricted cipher suite list.
//
// Events are delivered through callbacks (or a Delegate) dispatched on a
// configurable Executor:
//
//	ws, err := starscream.New("wss://echo.example.com")
//	if err != nil {
//		// ...
//	}
//	ws.OnConnect = func() {
//		ws.WriteText("hello")
//	}
//	ws.OnText = func(text string) {
//		log.Println(text)
//	}
//	ws.OnDisconnect = func(err error) {
//		log.Println("closed:", err)
//	}
//	ws.Connect(ctx)
//
// Use the wsjson and wspb subpackages to send and receive typed
// messages.
package starscream // import "github.com/dsato80/starscream"
