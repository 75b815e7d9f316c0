package starscream

import (
	"bytes"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
)

// TrustValidator makes the trust decision for a TLS peer. It is consulted
// once per connection, before any application byte is exchanged. When a
// validator is configured it replaces the platform chain validation; the
// validator sees the full connection state and the hostname the client
// expected.
type TrustValidator interface {
	IsValid(state tls.ConnectionState, hostname string) bool
}

// TrustValidatorFunc adapts a function to the TrustValidator interface.
type TrustValidatorFunc func(state tls.ConnectionState, hostname string) bool

// IsValid implements TrustValidator.
func (f TrustValidatorFunc) IsValid(state tls.ConnectionState, hostname string) bool {
	return f(state, hostname)
}

// Pinner is a TrustValidator that accepts a peer iff one of its presented
// certificates matches a pinned certificate or a pinned public key.
type Pinner struct {
	certs [][]byte
	spkis [][]byte
}

// PinCertificates pins the exact DER encoding of the given certificates.
func PinCertificates(certs ...*x509.Certificate) *Pinner {
	p := &Pinner{}
	for _, c := range certs {
		p.certs = append(p.certs, c.Raw)
	}
	return p
}

// PinPublicKeys pins the SHA-256 digest of the SubjectPublicKeyInfo of
// the given certificates. Pinning keys instead of certificates survives
// certificate renewal.
func PinPublicKeys(certs ...*x509.Certificate) *Pinner {
	p := &Pinner{}
	for _, c := range certs {
		sum := sha256.Sum256(c.RawSubjectPublicKeyInfo)
		p.spkis = append(p.spkis, sum[:])
	}
	return p
}

// IsValid implements TrustValidator.
func (p *Pinner) IsValid(state tls.ConnectionState, hostname string) bool {
	for _, cert := range state.PeerCertificates {
		if p.matches(cert) {
			return true
		}
	}
	return false
}

func (p *Pinner) matches(cert *x509.Certificate) bool {
	for _, der := range p.certs {
		if bytes.Equal(der, cert.Raw) {
			return true
		}
	}
	sum := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	for _, spki := range p.spkis {
		if bytes.Equal(spki, sum[:]) {
			return true
		}
	}
	return false
}
