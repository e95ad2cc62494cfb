package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"pbirefresh/internal/common/logger"
	"pbirefresh/internal/common/retry"
	"pbirefresh/internal/common/tlsinfo"
)

// DefaultArchiveFolder receives archived reports when no folder is configured.
const DefaultArchiveFolder = "INBOX"

// IMAPConfig configures archiving of the report into a mailbox folder.
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Folder   string

	// From and To only fill the archived message headers.
	From string
	To   []string

	ImplicitTLS bool // IMAPS, usually port 993
	StartTLS    bool
	SkipVerify  bool
	TLSVersion  string
	AuthMethod  string // auto, PLAIN or LOGIN

	Retries    int
	RetryDelay time.Duration
}

// IMAPNotifier stores the report in a mailbox with IMAP APPEND, flagged as seen.
type IMAPNotifier struct {
	cfg    IMAPConfig
	logger *slog.Logger
}

// NewIMAPNotifier checks cfg and returns a notifier.
func NewIMAPNotifier(cfg IMAPConfig, log *slog.Logger) (*IMAPNotifier, error) {
	if cfg.Host == "" {
		return nil, errors.New("imap: host is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("imap: username and password are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 143
		if cfg.ImplicitTLS {
			cfg.Port = 993
		}
	}
	if cfg.Folder == "" {
		cfg.Folder = DefaultArchiveFolder
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if len(cfg.To) == 0 {
		cfg.To = []string{cfg.From}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &IMAPNotifier{cfg: cfg, logger: log}, nil
}

func (n *IMAPNotifier) Notify(ctx context.Context, r Report) error {
	var msg bytes.Buffer
	if err := Compose(&msg, Envelope{From: n.cfg.From, To: n.cfg.To}, r, n.logger); err != nil {
		return err
	}

	err := retry.RetryWithBackoff(ctx, n.cfg.Retries, n.cfg.RetryDelay, n.logger, func() error {
		return n.appendMessage(ctx, msg.Bytes())
	})
	if err != nil {
		return fmt.Errorf("imap archive to %s: %w", n.cfg.Folder, err)
	}
	n.logger.Info("Report archived by IMAP", "server", n.cfg.Host, "folder", n.cfg.Folder)
	return nil
}

func (n *IMAPNotifier) appendMessage(ctx context.Context, msg []byte) error {
	client, err := n.dial()
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer client.Close()

	// imapclient has no context support; closing the connection unblocks it
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	if err := n.authenticate(client); err != nil {
		return err
	}

	cmd := client.Append(n.cfg.Folder, int64(len(msg)), &imap.AppendOptions{
		Flags: []imap.Flag{imap.FlagSeen},
		Time:  time.Now(),
	})
	if _, err := cmd.Write(msg); err != nil {
		cmd.Close()
		return fmt.Errorf("APPEND write failed: %w", err)
	}
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("APPEND failed: %w", err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("APPEND failed: %w", err)
	}

	if err := client.Logout().Wait(); err != nil {
		n.logger.Debug("IMAP logout failed", "error", err)
	}
	return nil
}

func (n *IMAPNotifier) dial() (*imapclient.Client, error) {
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	options := &imapclient.Options{
		TLSConfig: &tls.Config{
			ServerName:         n.cfg.Host,
			InsecureSkipVerify: n.cfg.SkipVerify,
			MinVersion:         tlsinfo.MinVersion(n.cfg.TLSVersion),
		},
	}

	switch {
	case n.cfg.ImplicitTLS:
		return imapclient.DialTLS(addr, options)
	case n.cfg.StartTLS:
		return imapclient.DialStartTLS(addr, options)
	default:
		return imapclient.DialInsecure(addr, options)
	}
}

func (n *IMAPNotifier) authenticate(client *imapclient.Client) error {
	mechanism := selectAuthMechanism(n.cfg.AuthMethod, authMechanisms(client.Caps()))
	switch mechanism {
	case "", "LOGIN":
		// LOGIN the IMAP command, not the SASL mechanism
		if err := client.Login(n.cfg.Username, n.cfg.Password).Wait(); err != nil {
			return fmt.Errorf("LOGIN failed: %w", err)
		}
		return nil
	default:
		saslClient, err := newSASLClient(mechanism, n.cfg.Username, n.cfg.Password)
		if err != nil {
			return err
		}
		if err := client.Authenticate(saslClient); err != nil {
			return fmt.Errorf("%s authentication failed: %w", mechanism, err)
		}
		return nil
	}
}

// authMechanisms lists the AUTH=<mechanism> capabilities.
func authMechanisms(caps imap.CapSet) []string {
	var mechs []string
	for c := range caps {
		if mech, ok := strings.CutPrefix(string(c), "AUTH="); ok {
			mechs = append(mechs, mech)
		}
	}
	return mechs
}
