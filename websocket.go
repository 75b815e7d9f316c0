package starscream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dsato80/starscream/internal/wsframe"
	"github.com/dsato80/starscream/internal/xsync"
)

// Connection states.
const (
	stateCreated int32 = iota
	stateConnecting
	stateOpen
	stateClosing
	stateClosed
)

// Delegate receives connection events. When both a Delegate and the
// per event callback fields are set, the connection fires both.
type Delegate interface {
	OnConnect(ws *WebSocket)
	OnDisconnect(ws *WebSocket, err error)
	OnText(ws *WebSocket, text string)
	OnData(ws *WebSocket, data []byte)
	OnPong(ws *WebSocket, data []byte)
}

// WebSocket is a client side WebSocket connection.
//
// Configure the exported fields before calling Connect; they must not be
// mutated afterwards. Events are delivered through the callback fields
// and the optional Delegate, dispatched on the configured Executor in
// the order the final frame of each message was parsed. OnConnect
// strictly precedes any message callback and OnDisconnect is always the
// last event, fired exactly once.
type WebSocket struct {
	// Options tunes the connection. Filled with defaults by New.
	Options Options

	// RequestHeader holds extra headers for the upgrade request.
	RequestHeader http.Header
	// Origin, when non empty, is sent as the Origin header.
	Origin string
	// Protocols are the subprotocol tokens offered to the server.
	Protocols []string
	// VoIPEnabled sets a 30 second TCP keep-alive period for long lived
	// background connections. Without it the net.Dialer default
	// keep-alive applies.
	VoIPEnabled bool

	// SelfSignedSSL disables chain validation and hostname matching.
	SelfSignedSSL bool
	// TrustValidator, when set, replaces platform certificate
	// validation. See the TrustValidator docs.
	TrustValidator TrustValidator
	// EnabledCipherSuites restricts the cipher suites offered for TLS 1.2.
	// TLS 1.3 can still be negotiated, and its cipher suites are not
	// restricted by this list.
	EnabledCipherSuites []uint16

	// Callbacks. OnDisconnect receives nil after a locally initiated
	// close, a CloseError when the peer closed or violated the
	// protocol, and a transport, handshake or certificate error
	// otherwise.
	OnConnect    func()
	OnDisconnect func(err error)
	OnText       func(text string)
	OnData       func(data []byte)
	OnPong       func(data []byte)
	Delegate     Delegate

	url       *url.URL
	sessionID string
	tracer    trace.Tracer

	state       atomic.Int32
	localClose  atomic.Bool
	pumpStarted atomic.Bool

	mu         sync.Mutex // guards conn, forceTimer, protocol
	conn       net.Conn
	forceTimer *time.Timer
	protocol   string

	writes     chan []byte
	writerStop chan struct{}
	writerDone chan struct{}
	stopOnce   sync.Once
	closedOnce sync.Once

	cbMu     sync.Mutex // serializes executor submission
	cbClosed bool
}

// New returns a WebSocket for the given url. The scheme must be one of
// ws, wss, http or https. The connection is not opened until Connect.
func New(rawURL string, protocols ...string) (*WebSocket, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse websocket url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return nil, fmt.Errorf("unknown scheme in url: %q", u.Scheme)
	}

	return &WebSocket{
		Options:       defaultOptions(),
		RequestHeader: http.Header{},
		Protocols:     protocols,
		url:           u,
	}, nil
}

// CurrentURL returns a copy of the url the connection targets.
func (ws *WebSocket) CurrentURL() url.URL {
	return *ws.url
}

// IsConnected reports whether the connection is open.
func (ws *WebSocket) IsConnected() bool {
	return ws.state.Load() == stateOpen
}

// Protocol returns the subprotocol echoed by the server, if any.
func (ws *WebSocket) Protocol() string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.protocol
}

// Connect opens the transport, performs the opening handshake and starts
// the reader. It returns immediately; the outcome is delivered through
// OnConnect or OnDisconnect. ctx bounds the lifetime of the whole
// connection: cancelling it force closes the transport.
//
// Connect may be called at most once.
func (ws *WebSocket) Connect(ctx context.Context) error {
	err := validate.Struct(&ws.Options)
	if err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	if !ws.state.CompareAndSwap(stateCreated, stateConnecting) {
		return errors.New("connect may only be called once")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ws.sessionID = uuid.NewString()
	tp := ws.Options.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	ws.tracer = tp.Tracer(tracerName, trace.WithInstrumentationVersion(tracerVersion))

	ws.writes = make(chan []byte, ws.Options.WriteQueueDepth)
	ws.writerStop = make(chan struct{})
	ws.writerDone = make(chan struct{})

	stop := context.AfterFunc(ctx, func() {
		ws.forceClose()
	})
	xsync.Go(func() error {
		defer stop()
		ws.run(ctx)
		return nil
	})

	return nil
}

// WriteText queues a text frame. Dropped unless the connection is open.
func (ws *WebSocket) WriteText(text string) {
	ws.enqueue(wsframe.OpText, []byte(text))
}

// WriteData queues a binary frame. Dropped unless the connection is open.
func (ws *WebSocket) WriteData(data []byte) {
	ws.enqueue(wsframe.OpBinary, data)
}

// WritePing queues a ping frame carrying data. Dropped unless the
// connection is open.
func (ws *WebSocket) WritePing(data []byte) {
	ws.enqueue(wsframe.OpPing, data)
}

// Disconnect starts the closing handshake. With no argument it sends a
// close frame and waits for the server to drop the transport. With a
// positive timeout it additionally force closes the transport once the
// timeout elapses. With a zero or negative timeout it force closes
// immediately without sending a close frame.
func (ws *WebSocket) Disconnect(timeout ...time.Duration) {
	if len(timeout) > 0 && timeout[0] <= 0 {
		ws.forceClose()
		return
	}

	if !ws.state.CompareAndSwap(stateOpen, stateClosing) {
		if ws.state.Load() == stateConnecting {
			ws.forceClose()
		}
		return
	}
	ws.localClose.Store(true)

	p, _ := CloseError{Code: StatusNormalClosure}.bytes()
	ws.queueFrame(wsframe.OpClose, p)

	if len(timeout) > 0 {
		ws.mu.Lock()
		ws.forceTimer = time.AfterFunc(timeout[0], ws.forceClose)
		ws.mu.Unlock()
	}
}

// forceClose drops the transport without a closing handshake. The reader
// observes the closed transport and performs the teardown.
func (ws *WebSocket) forceClose() {
	if ws.state.Load() == stateClosed {
		return
	}
	ws.localClose.Store(true)

	ws.mu.Lock()
	conn := ws.conn
	ws.mu.Unlock()

	if conn != nil {
		conn.Close()
		return
	}
	// The transport is not up yet; run notices the state change after
	// the dial completes.
	ws.teardown(nil)
}

// run is the reader: it owns the transport, the handshake scanner, the
// frame decoder and all state transitions driven by inbound bytes.
func (ws *WebSocket) run(ctx context.Context) {
	ctx, span := ws.tracer.Start(ctx, spanConnect,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrURL, ws.url.String()),
			attribute.String(attrSessionID, ws.sessionID),
		))
	spanEnded := false
	endSpan := func(err error) {
		if spanEnded {
			return
		}
		spanEnded = true
		if err != nil {
			recordError(span, err)
		} else {
			span.SetStatus(codes.Ok, codes.Ok.String())
		}
		span.End()
	}

	dialCtx := ctx
	cancel := func() {}
	if ws.Options.HandshakeTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, ws.Options.HandshakeTimeout)
	}
	defer cancel()

	conn, err := ws.openTransport(dialCtx)
	if err != nil {
		endSpan(err)
		ws.teardown(err)
		return
	}

	ws.mu.Lock()
	ws.conn = conn
	ws.mu.Unlock()

	if ws.state.Load() == stateClosed {
		// Force closed while dialing.
		conn.Close()
		endSpan(nil)
		return
	}

	if ws.Options.HandshakeTimeout > 0 {
		conn.SetDeadline(time.Now().Add(ws.Options.HandshakeTimeout))
	}

	key, err := secWebSocketKey()
	if err != nil {
		endSpan(err)
		ws.teardown(err)
		return
	}
	_, err = conn.Write(buildUpgradeRequest(ws.url, key, ws.Origin, ws.Protocols, ws.RequestHeader))
	if err != nil {
		err = fmt.Errorf("failed to write handshake request: %w", err)
		endSpan(err)
		ws.teardown(err)
		return
	}

	scanner := &handshakeScanner{key: key}
	decoder := &frameDecoder{sink: ws, maxMessageSize: ws.Options.MaxMessageSize}

	buf := make([]byte, ws.Options.ReadBufferSize)
	open := false
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			var leftover []byte
			if !open {
				var resp *http.Response
				resp, leftover, err = scanner.scan(buf[:n])
				if err != nil {
					endSpan(err)
					ws.teardown(err)
					return
				}
				if resp == nil {
					continue
				}

				open = true
				conn.SetDeadline(time.Time{})
				ws.mu.Lock()
				ws.protocol = resp.Header.Get("Sec-WebSocket-Protocol")
				ws.mu.Unlock()

				ws.pumpStarted.Store(true)
				xsync.Go(func() error {
					ws.writeLoop(conn)
					return nil
				})

				if !ws.state.CompareAndSwap(stateConnecting, stateOpen) {
					// Force closed during the handshake.
					ws.drainWrites()
					conn.Close()
					endSpan(nil)
					return
				}
				span.AddEvent(eventOpen)
				endSpan(nil)
				ws.dispatchConnect()
			} else {
				leftover = buf[:n]
			}

			if len(leftover) > 0 {
				derr := decoder.push(leftover)
				if derr != nil {
					ws.handleDecodeError(derr)
					return
				}
			}
		}
		if err != nil {
			if !open {
				endSpan(err)
			}
			ws.handleReadError(err)
			return
		}
	}
}

// handleDecodeError ends the connection after the decoder reported
// either a received close frame or a protocol violation.
func (ws *WebSocket) handleDecodeError(err error) {
	var (
		ce CloseError
		pe protocolError
	)
	switch {
	case errors.As(err, &ce):
		// Close frame received; the echo is already queued.
		ws.drainWrites()
		if ws.localClose.Load() && ce.Code == StatusNormalClosure {
			ws.teardown(nil)
			return
		}
		ws.teardown(ce)
	case errors.As(err, &pe):
		// Protocol violation: send a close carrying the status code,
		// then tear down.
		p, perr := CloseError{Code: pe.code}.bytes()
		if perr == nil {
			ws.queueFrame(wsframe.OpClose, p)
		}
		ws.drainWrites()
		ws.teardown(CloseError{Code: pe.code, Reason: pe.reason})
	default:
		ws.teardown(err)
	}
}

// handleReadError ends the connection after the transport errored or
// reached EOF.
func (ws *WebSocket) handleReadError(err error) {
	switch {
	case ws.state.Load() == stateClosed:
		// Already torn down.
	case ws.state.Load() == stateClosing || ws.localClose.Load():
		ws.drainWrites()
		ws.teardown(nil)
	default:
		ws.teardown(fmt.Errorf("transport read failed: %w", err))
	}
}

// drainWrites stops the write pump after it has flushed every queued
// frame. No-op before the pump starts.
func (ws *WebSocket) drainWrites() {
	if !ws.pumpStarted.Load() {
		return
	}
	ws.stopOnce.Do(func() {
		close(ws.writerStop)
	})
	<-ws.writerDone
}

// teardown transitions to the terminal closed state, releases the
// transport and fires the disconnect notification exactly once.
func (ws *WebSocket) teardown(err error) {
	ws.closedOnce.Do(func() {
		ws.state.Store(stateClosed)

		ws.mu.Lock()
		if ws.forceTimer != nil {
			ws.forceTimer.Stop()
		}
		conn := ws.conn
		ws.mu.Unlock()

		if ws.pumpStarted.Load() {
			ws.stopOnce.Do(func() {
				close(ws.writerStop)
			})
		}
		if conn != nil {
			conn.Close()
		}

		ws.dispatchDisconnect(err)

		if ws.tracer == nil {
			// Force closed before Connect ever ran.
			return
		}
		_, span := ws.tracer.Start(context.Background(), spanDisconnect,
			trace.WithAttributes(attribute.String(attrSessionID, ws.sessionID)))
		attrs := []attribute.KeyValue{}
		var ce CloseError
		if errors.As(err, &ce) {
			attrs = append(attrs,
				attribute.Int(attrCloseCode, int(ce.Code)),
				attribute.String(attrCloseReason, ce.Reason),
			)
		}
		span.AddEvent(eventClosed, trace.WithAttributes(attrs...))
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	})
}

// decoderSink implementation. All of these run on the reader goroutine.

func (ws *WebSocket) message(op wsframe.Opcode, payload []byte) error {
	if op == wsframe.OpText {
		text := string(payload)
		ws.dispatch(func(d Delegate, cb callbacks) {
			if cb.onText != nil {
				cb.onText(text)
			}
			if d != nil {
				d.OnText(ws, text)
			}
		})
		return nil
	}

	ws.dispatch(func(d Delegate, cb callbacks) {
		if cb.onData != nil {
			cb.onData(payload)
		}
		if d != nil {
			d.OnData(ws, payload)
		}
	})
	return nil
}

func (ws *WebSocket) ping(payload []byte) error {
	// A ping is answered with a pong carrying the identical payload,
	// ahead of any frame enqueued later.
	return ws.queueFrame(wsframe.OpPong, payload)
}

func (ws *WebSocket) pong(payload []byte) {
	ws.dispatch(func(d Delegate, cb callbacks) {
		if cb.onPong != nil {
			cb.onPong(payload)
		}
		if d != nil {
			d.OnPong(ws, payload)
		}
	})
}

func (ws *WebSocket) closeFrame(ce CloseError) error {
	if !ws.localClose.Load() {
		// Echo the close so the peer can finish its handshake.
		var p []byte
		if ce.Code != StatusNoStatusRcvd {
			p, _ = ce.bytes()
		}
		ws.queueFrame(wsframe.OpClose, p)
	}
	return ce
}

// callbacks is a snapshot of the per event callback fields.
type callbacks struct {
	onText func(string)
	onData func([]byte)
	onPong func([]byte)
}

// dispatch submits an event to the executor unless the disconnect
// notification has already been submitted.
func (ws *WebSocket) dispatch(fn func(d Delegate, cb callbacks)) {
	d := ws.Delegate
	cb := callbacks{onText: ws.OnText, onData: ws.OnData, onPong: ws.OnPong}

	ws.cbMu.Lock()
	defer ws.cbMu.Unlock()
	if ws.cbClosed {
		return
	}
	ws.Options.Executor.Execute(func() {
		fn(d, cb)
	})
}

func (ws *WebSocket) dispatchConnect() {
	d := ws.Delegate
	onConnect := ws.OnConnect

	ws.cbMu.Lock()
	defer ws.cbMu.Unlock()
	if ws.cbClosed {
		return
	}
	ws.Options.Executor.Execute(func() {
		if onConnect != nil {
			onConnect()
		}
		if d != nil {
			d.OnConnect(ws)
		}
	})
}

func (ws *WebSocket) dispatchDisconnect(err error) {
	d := ws.Delegate
	onDisconnect := ws.OnDisconnect

	ws.cbMu.Lock()
	defer ws.cbMu.Unlock()
	if ws.cbClosed {
		return
	}
	ws.cbClosed = true
	ws.Options.Executor.Execute(func() {
		if onDisconnect != nil {
			onDisconnect(err)
		}
		if d != nil {
			d.OnDisconnect(ws, err)
		}
	})
}
