package starscream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dsato80/starscream/internal/errd"
)

// openTransport dials the TCP connection and, for the wss and https
// schemes, negotiates TLS before any application byte is exchanged. The
// trust decision hook runs as part of the TLS handshake.
func (ws *WebSocket) openTransport(ctx context.Context) (_ net.Conn, err error) {
	defer errd.Wrap(&err, "failed to open transport to %v", ws.url.Host)

	d := &net.Dialer{}
	if ws.VoIPEnabled {
		// Long lived background connections rely on TCP keep-alives to
		// detect a dead peer.
		d.KeepAlive = 30 * time.Second
	}

	conn, err := d.DialContext(ctx, "tcp", hostPort(ws.url))
	if err != nil {
		return nil, err
	}

	switch ws.url.Scheme {
	case "wss", "https":
	default:
		return conn, nil
	}

	tc := tls.Client(conn, ws.tlsConfig())
	err = tc.HandshakeContext(ctx)
	if err != nil {
		conn.Close()
		var xerr *Error
		if errors.As(err, &xerr) && xerr.Code == ErrCodeCertificateInvalid {
			return nil, xerr
		}
		return nil, fmt.Errorf("TLS handshake failed: %w", err)
	}

	return tc, nil
}

// tlsConfig builds the client TLS configuration from the security
// settings. A configured TrustValidator replaces platform validation;
// SelfSignedSSL disables chain validation and hostname matching
// entirely.
func (ws *WebSocket) tlsConfig() *tls.Config {
	hostname := ws.url.Hostname()

	cfg := &tls.Config{
		ServerName:   hostname,
		MinVersion:   tls.VersionTLS12,
		CipherSuites: ws.EnabledCipherSuites,
	}

	switch {
	case ws.TrustValidator != nil:
		cfg.InsecureSkipVerify = true
		validator := ws.TrustValidator
		cfg.VerifyConnection = func(state tls.ConnectionState) error {
			if !validator.IsValid(state, hostname) {
				return &Error{
					Code:   ErrCodeCertificateInvalid,
					Reason: fmt.Sprintf("peer certificate for %v rejected by trust validator", hostname),
				}
			}
			return nil
		}
	case ws.SelfSignedSSL:
		cfg.InsecureSkipVerify = true
	}

	return cfg
}
