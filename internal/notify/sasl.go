package notify

import (
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/emersion/go-sasl"
)

// selectAuthMechanism picks the mechanism to use. An explicit request must be
// offered by the server; "auto" (or empty) takes the first of PLAIN, LOGIN.
func selectAuthMechanism(requested string, available []string) string {
	if requested != "" && !strings.EqualFold(requested, "auto") {
		for _, avail := range available {
			if strings.EqualFold(requested, avail) {
				return strings.ToUpper(requested)
			}
		}
		return ""
	}

	for _, preferred := range []string{sasl.Plain, sasl.Login} {
		for _, avail := range available {
			if strings.EqualFold(preferred, avail) {
				return preferred
			}
		}
	}
	return ""
}

func newSASLClient(mechanism, username, password string) (sasl.Client, error) {
	switch mechanism {
	case sasl.Plain:
		return sasl.NewPlainClient("", username, password), nil
	case sasl.Login:
		return sasl.NewLoginClient(username, password), nil
	default:
		return nil, fmt.Errorf("unsupported authentication mechanism: %q", mechanism)
	}
}

// smtpAuth lets net/smtp drive a go-sasl client. Like smtp.PlainAuth it
// refuses to send credentials over a plaintext connection, except to localhost.
type smtpAuth struct {
	client sasl.Client
}

func (a *smtpAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if !server.TLS && !isLocalhost(server.Name) {
		return "", nil, errors.New("unencrypted connection")
	}
	return a.client.Start()
}

func (a *smtpAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	return a.client.Next(fromServer)
}

func isLocalhost(name string) bool {
	if name == "localhost" {
		return true
	}
	ip := net.ParseIP(name)
	return ip != nil && ip.IsLoopback()
}
