package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"pbirefresh/internal/common/logger"
	"pbirefresh/internal/common/retry"
	"pbirefresh/internal/common/security"
	"pbirefresh/internal/common/tlsinfo"
)

// SMTPConfig configures SMTP delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string

	From string
	To   []string
	Cc   []string

	ImplicitTLS bool // SMTPS, usually port 465
	RequireTLS  bool // fail when STARTTLS is not offered
	SkipVerify  bool
	TLSVersion  string // minimum: 1.2 or 1.3
	AuthMethod  string // auto, PLAIN or LOGIN

	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// SMTPNotifier mails the report through an SMTP relay.
type SMTPNotifier struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

// NewSMTPNotifier checks cfg and returns a notifier.
func NewSMTPNotifier(cfg SMTPConfig, log *slog.Logger) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp: host is required")
	}
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, errors.New("smtp: sender and at least one recipient are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
		if cfg.ImplicitTLS {
			cfg.Port = 465
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	return &SMTPNotifier{cfg: cfg, logger: log}, nil
}

func (n *SMTPNotifier) Notify(ctx context.Context, r Report) error {
	var msg bytes.Buffer
	env := Envelope{From: n.cfg.From, To: n.cfg.To, Cc: n.cfg.Cc}
	if err := Compose(&msg, env, r, n.logger); err != nil {
		return err
	}

	err := retry.RetryWithBackoff(ctx, n.cfg.Retries, n.cfg.RetryDelay, n.logger, func() error {
		return n.send(ctx, msg.Bytes())
	})
	if err != nil {
		return fmt.Errorf("smtp delivery to %s:%d: %w", n.cfg.Host, n.cfg.Port, err)
	}
	n.logger.Info("Report sent by SMTP", "server", n.cfg.Host, "to", security.MaskEmails(n.cfg.To))
	return nil
}

func (n *SMTPNotifier) send(ctx context.Context, msg []byte) error {
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	tlsConfig := &tls.Config{
		ServerName:         n.cfg.Host,
		InsecureSkipVerify: n.cfg.SkipVerify,
		MinVersion:         tlsinfo.MinVersion(n.cfg.TLSVersion),
	}

	dialer := &net.Dialer{Timeout: n.cfg.Timeout}
	var (
		conn net.Conn
		err  error
	)
	if n.cfg.ImplicitTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	deadline := time.Now().Add(n.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to read banner: %w", err)
	}
	defer c.Close()

	if err := c.Hello("pbirefresh.local"); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	if !n.cfg.ImplicitTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			n.logger.Debug("Upgrading SMTP connection with STARTTLS")
			if err := c.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("STARTTLS failed: %w", err)
			}
		} else if n.cfg.RequireTLS {
			return errors.New("server does not offer STARTTLS")
		}
	}
	if state, ok := c.TLSConnectionState(); ok {
		logTLSSession(n.logger, state, n.cfg.SkipVerify)
	}

	if n.cfg.Username != "" && n.cfg.Password != "" {
		_, params := c.Extension("AUTH")
		mechanism := selectAuthMechanism(n.cfg.AuthMethod, strings.Fields(params))
		if mechanism == "" {
			return fmt.Errorf("no compatible authentication mechanism found (server offers %q)", params)
		}
		client, err := newSASLClient(mechanism, n.cfg.Username, n.cfg.Password)
		if err != nil {
			return err
		}
		n.logger.Debug("Authenticating", "mechanism", mechanism, "username", security.MaskUsername(n.cfg.Username))
		if err := c.Auth(&smtpAuth{client: client}); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err := c.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	for _, rcpt := range append(append([]string{}, n.cfg.To...), n.cfg.Cc...) {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO failed for %s: %w", security.MaskEmail(rcpt), err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close DATA: %w", err)
	}
	return c.Quit()
}

// logTLSSession records the negotiated session and warns about weak settings.
func logTLSSession(log *slog.Logger, state tls.ConnectionState, skipVerify bool) {
	info := tlsinfo.Inspect(state)
	log.Debug("TLS session established",
		"version", info.Version,
		"cipher", info.CipherSuite,
		"strength", info.CipherStrength,
		"subject", info.Subject,
		"issuer", info.Issuer)
	for _, w := range tlsinfo.Warnings(info, skipVerify, time.Now()) {
		log.Warn(w, "server", info.ServerName)
	}
}
