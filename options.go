package starscream

import (
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/trace"
)

// Options tunes a connection. The zero value is not usable; New fills in
// the defaults below. Fields may be changed freely before Connect and are
// validated when Connect is called.
type Options struct {
	// HandshakeTimeout bounds transport dial, TLS negotiation and the
	// HTTP upgrade exchange. 0 disables the timeout.
	HandshakeTimeout time.Duration `validate:"min=0"`

	// WriteQueueDepth is the capacity of the outbound frame queue
	// drained by the write pump.
	WriteQueueDepth int `validate:"min=1"`

	// ReadBufferSize is the size of the buffer handed to transport
	// reads.
	ReadBufferSize int `validate:"min=128"`

	// MaxMessageSize caps a reassembled incoming message. Exceeding it
	// closes the connection with StatusMessageTooBig. 0 disables the
	// limit.
	MaxMessageSize int64 `validate:"min=0"`

	// Executor runs user callbacks. Defaults to a serial FIFO queue.
	Executor Executor `validate:"required"`

	// TracerProvider supplies the tracer instrumenting the connection.
	// Defaults to the global OpenTelemetry provider.
	TracerProvider trace.TracerProvider
}

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteQueueDepth  = 64
	defaultReadBufferSize   = 4096
	defaultMaxMessageSize   = 32 << 20
)

func defaultOptions() Options {
	return Options{
		HandshakeTimeout: defaultHandshakeTimeout,
		WriteQueueDepth:  defaultWriteQueueDepth,
		ReadBufferSize:   defaultReadBufferSize,
		MaxMessageSize:   defaultMaxMessageSize,
		Executor:         &serialExecutor{},
	}
}

var validate = validator.New()
