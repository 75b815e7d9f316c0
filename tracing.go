package starscream

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Constants used for tracing purposes.
const (
	// Name and version reported by the library tracer.
	tracerName    = "github.com/dsato80/starscream"
	tracerVersion = "1.0.0"

	// Namespace used by spans, events and attributes.
	traceNamespace = "websocket"

	// Span covering connect: transport dial, TLS and the upgrade.
	spanConnect = traceNamespace + ".connect"
	// Span covering the teardown of a connection.
	spanDisconnect = traceNamespace + ".disconnect"

	// Event recorded when the connection reaches the open state.
	eventOpen = traceNamespace + ".open"
	// Event recorded when the connection is closed.
	eventClosed = traceNamespace + ".connection_closed"

	// Attribute carrying the target URL.
	attrURL = traceNamespace + ".url"
	// Attribute carrying the per connection session id.
	attrSessionID = traceNamespace + ".session_id"
	// Attribute carrying the close code on teardown.
	attrCloseCode = traceNamespace + ".close_code"
	// Attribute carrying the close reason on teardown.
	attrCloseReason = traceNamespace + ".close_reason"
)

// recordError records err in span, marks the span failed and returns err.
func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, codes.Error.String())
	return err
}
