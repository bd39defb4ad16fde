package protocol

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSVersion names a minimum negotiable TLS protocol version for transports
// that terminate TLS themselves (TCP, Streamable HTTP client).
type TLSVersion uint16

const (
	TLSVersion12 TLSVersion = tls.VersionTLS12
	TLSVersion13 TLSVersion = tls.VersionTLS13
)

// TLSConfig describes the TLS posture a transport should take, supplementing
// the distilled spec with the knobs the original implementation exposed for
// client and server TLS.
type TLSConfig struct {
	MinVersion         TLSVersion
	InsecureSkipVerify bool
	ServerName         string
	CertFile           string
	KeyFile            string
	CAFile             string

	// AllowedCiphers restricts negotiation to this cipher suite list, named
	// by the IANA/crypto/tls constant names (e.g. "TLS_AES_128_GCM_SHA256").
	// Only takes effect when MinVersion negotiates TLS 1.2 or below: Go's
	// crypto/tls does not let callers configure TLS 1.3 cipher suites, which
	// are fixed by the standard library. Under the package default
	// (MinVersion13), this field is accepted but has no effect.
	AllowedCiphers []string
}

// ModernTLSConfig returns the recommended default: TLS 1.3 only, full
// verification.
func ModernTLSConfig() TLSConfig {
	return TLSConfig{MinVersion: TLSVersion13}
}

// InsecureTLSConfig returns a configuration that skips certificate
// verification entirely. Intended for local development and test fixtures
// only; callers embedding this in production paths should gate it behind an
// explicit opt-in flag.
func InsecureTLSConfig() TLSConfig {
	return TLSConfig{MinVersion: TLSVersion12, InsecureSkipVerify: true}
}

// IsInsecure reports whether this configuration disables certificate
// verification.
func (c TLSConfig) IsInsecure() bool {
	return c.InsecureSkipVerify
}

// StdTLSConfig renders this TLSConfig into a *tls.Config suitable for
// crypto/tls and net/http, loading CertFile/KeyFile into Certificates and
// CAFile into RootCAs when set.
func (c TLSConfig) StdTLSConfig() (*tls.Config, error) {
	min := c.MinVersion
	if min == 0 {
		min = TLSVersion13
	}
	std := &tls.Config{
		MinVersion:         uint16(min),
		InsecureSkipVerify: c.InsecureSkipVerify,
		ServerName:         c.ServerName,
		CipherSuites:       resolveCipherSuites(c.AllowedCiphers),
	}

	if c.CertFile != "" || c.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("protocol: load tls key pair: %w", err)
		}
		std.Certificates = []tls.Certificate{cert}
	}

	if c.CAFile != "" {
		pemBytes, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("protocol: read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemBytes) {
			return nil, fmt.Errorf("protocol: ca file %s contains no certificates", c.CAFile)
		}
		std.RootCAs = pool
	}

	return std, nil
}

// resolveCipherSuites maps AllowedCiphers' IANA names to crypto/tls suite
// IDs, dropping any name crypto/tls doesn't recognize. Returns nil (meaning
// "use the standard library's default suite list") when names is empty;
// nil here is also what a TLS 1.3-only config needs, since tls.Config's
// CipherSuites field is ignored once TLS 1.3 is negotiated.
func resolveCipherSuites(names []string) []uint16 {
	if len(names) == 0 {
		return nil
	}
	byName := make(map[string]uint16)
	for _, s := range tls.CipherSuites() {
		byName[s.Name] = s.ID
	}
	for _, s := range tls.InsecureCipherSuites() {
		byName[s.Name] = s.ID
	}
	var ids []uint16
	for _, name := range names {
		if id, ok := byName[name]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}
