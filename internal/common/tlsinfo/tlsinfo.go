// Package tlsinfo describes negotiated TLS sessions of the mail notifiers
// and turns weak settings into log warnings.
package tlsinfo

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"
)

// expiryWarning is how close to expiry a server certificate starts producing warnings.
const expiryWarning = 30 * 24 * time.Hour

// Session holds the details of an established TLS connection.
type Session struct {
	Version        string // e.g. "TLS 1.3"
	CipherSuite    string
	CipherStrength string // "strong", "weak" or "deprecated"
	ServerName     string

	// Leaf certificate, zero when the server sent none
	Subject      string
	Issuer       string
	NotAfter     time.Time
	IsSelfSigned bool
}

// Inspect extracts the session details from a connection state.
func Inspect(state tls.ConnectionState) Session {
	s := Session{
		Version:        VersionString(state.Version),
		CipherSuite:    tls.CipherSuiteName(state.CipherSuite),
		CipherStrength: CipherStrength(state.CipherSuite),
		ServerName:     state.ServerName,
	}
	if len(state.PeerCertificates) > 0 {
		leaf := state.PeerCertificates[0]
		s.Subject = leaf.Subject.String()
		s.Issuer = leaf.Issuer.String()
		s.NotAfter = leaf.NotAfter
		s.IsSelfSigned = leaf.Subject.String() == leaf.Issuer.String()
	}
	return s
}

// VersionString converts a TLS version constant to a human-readable string.
func VersionString(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("Unknown (0x%04X)", version)
	}
}

// MinVersion converts "1.2" or "1.3" to a tls constant. Anything else,
// including older versions, yields TLS 1.2.
func MinVersion(version string) uint16 {
	if strings.TrimSpace(version) == "1.3" {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}

// CipherStrength categorizes a cipher suite by security strength.
// Returns "strong", "weak", or "deprecated".
func CipherStrength(cipherSuite uint16) string {
	name := strings.ToLower(tls.CipherSuiteName(cipherSuite))

	for _, marker := range []string{"rc4", "des", "export", "null", "anon"} {
		if strings.Contains(name, marker) {
			return "deprecated"
		}
	}
	if strings.Contains(name, "cbc") && !strings.Contains(name, "sha256") && !strings.Contains(name, "sha384") {
		return "weak"
	}
	for _, marker := range []string{"gcm", "chacha20", "poly1305", "ccm"} {
		if strings.Contains(name, marker) {
			return "strong"
		}
	}
	return "weak"
}

// Warnings lists the problems worth logging for s, evaluated at now.
func Warnings(s Session, skipVerify bool, now time.Time) []string {
	var warnings []string

	switch s.CipherStrength {
	case "deprecated":
		warnings = append(warnings, fmt.Sprintf("Deprecated cipher suite: %s", s.CipherSuite))
	case "weak":
		warnings = append(warnings, fmt.Sprintf("Weak cipher suite: %s", s.CipherSuite))
	}

	if !s.NotAfter.IsZero() {
		if now.After(s.NotAfter) {
			warnings = append(warnings, fmt.Sprintf("Certificate expired on %s", s.NotAfter.Format("2006-01-02")))
		} else if s.NotAfter.Sub(now) < expiryWarning {
			days := int(s.NotAfter.Sub(now).Hours() / 24)
			warnings = append(warnings, fmt.Sprintf("Certificate expires soon (%d days remaining on %s)", days, s.NotAfter.Format("2006-01-02")))
		}
	}
	if s.IsSelfSigned {
		warnings = append(warnings, "Self-signed certificate (not trusted by default)")
	}
	if skipVerify {
		warnings = append(warnings, "Certificate verification disabled (-skipverify flag) - connection is not secure")
	}
	return warnings
}
