package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"

	"pbirefresh/internal/auth"
	"pbirefresh/internal/common/logger"
	"pbirefresh/internal/common/ratelimit"
	"pbirefresh/internal/common/security"
	"pbirefresh/internal/notify"
	"pbirefresh/internal/powerbi"
	"pbirefresh/internal/refresh"
)

// app holds what one run needs besides the configuration.
type app struct {
	config *Config
	stdin  *bufio.Reader
	stdout io.Writer
	stderr io.Writer

	// interactive is true when stdin is a terminal; prompts are skipped otherwise.
	interactive bool

	// transport and notifier replace the real network stack in tests.
	transport policy.Transporter
	notifier  notify.Notifier
}

func newApp(config *Config, stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		config:      config,
		stdin:       bufio.NewReader(stdin),
		stdout:      stdout,
		stderr:      stderr,
		interactive: isTerminal(stdin),
	}
}

// isTerminal reports whether r is a character device such as a console.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// execute performs one run. Errors returned are fatal to the run: bad
// input, authentication or workspace resolution. Dataset failures end up in
// the report instead.
func (a *app) execute(ctx context.Context) error {
	cfg := a.config

	runLog, err := logger.SetupRunLogger(cfg.LogDir, cfg.VerboseMode, cfg.LogLevel)
	var log *slog.Logger
	if err != nil {
		log = logger.SetupLogger(cfg.VerboseMode, cfg.LogLevel)
		logger.LogWarn(log, "Could not create run log file, continuing without it", "error", err)
	} else {
		log = runLog.Logger
		defer runLog.Close()
	}

	if err := a.promptMissing(); err != nil {
		return err
	}
	logConfiguration(log, cfg)

	// Authenticate once up front so sign-in problems surface before any dataset is touched
	cred, err := auth.NewCredential(auth.Config{
		TenantID:    cfg.TenantID,
		ClientID:    cfg.ClientID,
		Secret:      cfg.Secret,
		PfxPath:     cfg.PfxPath,
		PfxPass:     cfg.PfxPass,
		AccessToken: cfg.AccessToken,
		Prompt:      a.stderr,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", refresh.ErrAuthFailure, err)
	}
	tok, err := auth.AcquireToken(ctx, cred, powerbi.Scope)
	if err != nil {
		logger.LogError(log, "Failed to obtain access token", "error", err)
		return fmt.Errorf("%w: %w", refresh.ErrAuthFailure, err)
	}
	if cfg.VerboseMode {
		auth.PrintTokenInfo(a.stdout, tok)
	}
	username := ""
	if claims, err := auth.ParseClaims(tok.Token); err == nil {
		username = claims.Username()
	}

	client, err := a.newPowerBIClient(cred, log)
	if err != nil {
		return err
	}

	confirm, err := refresh.ParseConfirmMode(cfg.ConfirmMode, a.stdin, a.stderr)
	if err != nil {
		return err
	}
	resolver := refresh.NewResolver(client, confirm, log)

	ws, err := resolver.ResolveWorkspace(ctx, cfg.Workspace)
	if err != nil {
		logger.LogError(log, "Workspace resolution failed", "workspace", cfg.Workspace, "error", err)
		return err
	}

	targets, err := resolver.Targets(ctx, ws, cfg.Dataset, cfg.Datasets)
	switch {
	case errors.Is(err, refresh.ErrCancelled):
		logger.LogInfo(log, "Operation cancelled by user", "dataset", cfg.Dataset)
		return nil
	case errors.Is(err, refresh.ErrNotFound):
		// Recorded as a failed dataset so the report still lists it
		logger.LogError(log, "Dataset not found and no similar name", "dataset", cfg.Dataset)
		targets = []powerbi.Dataset{{Name: cfg.Dataset}}
	case err != nil:
		return fmt.Errorf("could not list datasets of workspace %q: %w", ws.Name, err)
	}

	sheet, err := logger.NewCSVLogger(cfg.SheetDir, "pbirefresh", "refresh")
	if err != nil {
		logger.LogWarn(log, "Could not initialize CSV sheet, continuing without it", "error", err)
	} else {
		defer sheet.Close()
	}
	var sink refresh.RecordSink
	if sheet != nil {
		if s, err := refresh.NewSheetSink(sheet); err != nil {
			logger.LogWarn(log, "Could not write CSV sheet header", "error", err)
		} else {
			sink = s
		}
	}

	sess := refresh.NewSession(ws, log, sink)
	pollCfg := refresh.PollConfig{Interval: cfg.PollInterval, Timeout: cfg.PollTimeout}
	orch := refresh.NewOrchestrator(client, pollCfg)
	logger.LogInfo(sess.Logger, "Starting run", "workspace", ws.Name, "datasets", len(targets), "polling", pollCfg.String())

	result := orch.Run(ctx, sess, targets)

	var attachments []string
	if sheet != nil {
		if err := sheet.Flush(); err != nil {
			logger.LogWarn(log, "Could not flush CSV sheet", "error", err)
		}
		attachments = append(attachments, sheet.Path())
	}
	if runLog != nil {
		attachments = append(attachments, runLog.Path)
	}

	a.sendReport(cred, username, sess.Logger, notify.Report{
		Subject:     cfg.Subject,
		Result:      result,
		Attachments: attachments,
	})

	logger.LogInfo(sess.Logger, "Run finished", "summary", notify.Summary(result), "all_succeeded", result.AllSucceeded())
	return nil
}

// logConfiguration writes the effective settings at debug level with
// credentials masked.
func logConfiguration(log *slog.Logger, cfg *Config) {
	logger.LogDebug(log, "Configuration",
		"workspace", cfg.Workspace,
		"dataset", cfg.Dataset,
		"allow_list", strings.Join(cfg.Datasets, ","),
		"tenant_id", security.MaskGUID(cfg.TenantID),
		"client_id", security.MaskGUID(cfg.ClientID),
		"secret", security.MaskSecret(cfg.Secret),
		"access_token", security.MaskAccessToken(cfg.AccessToken),
		"poll_interval", cfg.PollInterval,
		"poll_timeout", cfg.PollTimeout,
		"confirm", cfg.ConfirmMode,
		"rate_limit_rps", cfg.RateLimit,
		"notify", cfg.Notify.String())
}

// promptMissing asks for the workspace and dataset when they were not
// configured. Without a terminal the workspace is required and an empty
// dataset selects all of them.
func (a *app) promptMissing() error {
	cfg := a.config
	if cfg.Workspace == "" {
		if !a.interactive {
			return errors.New("workspace is required (argument, -workspace, PBIREFRESHWORKSPACE or workspace_name in the config file)")
		}
		answer, err := a.prompt("Enter the workspace name: ")
		if err != nil {
			return err
		}
		if answer == "" {
			return errors.New("workspace is required")
		}
		cfg.Workspace = answer
	}
	if cfg.Dataset == "" && a.interactive {
		answer, err := a.prompt("Enter the dataset name (or press Enter for all): ")
		if err != nil {
			return err
		}
		cfg.Dataset = answer
	}
	return nil
}

func (a *app) prompt(question string) (string, error) {
	fmt.Fprint(a.stderr, question)
	line, err := a.stdin.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// newPowerBIClient builds the REST client. Pipeline retries are disabled: a
// refresh request is never sent twice, and a failed status query ends the poll.
func (a *app) newPowerBIClient(cred azcore.TokenCredential, log *slog.Logger) (*powerbi.Client, error) {
	cfg := a.config
	limiter := ratelimit.New(cfg.RateLimit)
	opts := &powerbi.ClientOptions{
		Endpoint:     cfg.Endpoint,
		Limiter:      limiter,
		NotifyOption: cfg.NotifyOption,
	}
	opts.Retry.MaxRetries = -1
	if a.transport != nil {
		opts.Transport = a.transport
	}
	client, err := powerbi.NewClient(cred, opts)
	if err != nil {
		return nil, err
	}
	logger.LogDebug(log, "Power BI client ready", "endpoint", client.Endpoint(), "pacing", limiter.String())
	return client, nil
}

// sendReport delivers the report with a fresh, bounded context so that an
// interrupted run still reports. Failures are logged only.
func (a *app) sendReport(cred azcore.TokenCredential, username string, log *slog.Logger, report notify.Report) {
	notifier := a.notifier
	if notifier == nil {
		var err error
		notifier, err = buildNotifier(a.config, cred, username, log)
		if err != nil {
			logger.LogError(log, "Could not set up notification", "error", err)
			return
		}
		if notifier == nil {
			logger.LogDebug(log, "No notifier configured, report not sent")
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.config.NotifyTimeout)
	defer cancel()
	if err := notifier.Notify(ctx, report); err != nil {
		logger.LogError(log, "Failed to send report", "error", err)
		return
	}
	logger.LogInfo(log, "Report sent", "notifiers", a.config.Notify.String(), "to", strings.Join(security.MaskEmails(a.config.To), ","))
}

// buildNotifier combines the notifiers listed in -notify. It returns nil
// when only none was selected.
func buildNotifier(cfg *Config, cred azcore.TokenCredential, username string, log *slog.Logger) (notify.Notifier, error) {
	var notifiers notify.Multi
	for _, name := range cfg.Notify {
		switch strings.ToLower(name) {
		case NotifyNone:
		case NotifyGraph:
			if cfg.AccessToken != "" {
				logger.LogWarn(log, "A static access token is scoped to Power BI; Graph delivery will likely be rejected")
			}
			from := cfg.Mailbox
			if from == "" {
				from = username
			}
			client, err := notify.NewGraphClient(cred)
			if err != nil {
				return nil, err
			}
			n, err := notify.NewGraphNotifier(client, notify.GraphConfig{
				From:       from,
				To:         cfg.To,
				Cc:         cfg.Cc,
				Retries:    cfg.MaxRetries,
				RetryDelay: cfg.RetryDelay,
			}, log)
			if err != nil {
				return nil, err
			}
			notifiers = append(notifiers, n)
		case NotifySMTP:
			n, err := notify.NewSMTPNotifier(notify.SMTPConfig{
				Host:        cfg.SMTPHost,
				Port:        cfg.SMTPPort,
				Username:    cfg.SMTPUsername,
				Password:    cfg.SMTPPassword,
				From:        cfg.From,
				To:          cfg.To,
				Cc:          cfg.Cc,
				ImplicitTLS: cfg.SMTPS,
				RequireTLS:  cfg.StartTLS,
				SkipVerify:  cfg.SkipVerify,
				TLSVersion:  cfg.TLSVersion,
				AuthMethod:  cfg.AuthMethod,
				Retries:     cfg.MaxRetries,
				RetryDelay:  cfg.RetryDelay,
			}, log)
			if err != nil {
				return nil, err
			}
			notifiers = append(notifiers, n)
		case NotifyIMAP:
			n, err := notify.NewIMAPNotifier(notify.IMAPConfig{
				Host:        cfg.IMAPHost,
				Port:        cfg.IMAPPort,
				Username:    cfg.IMAPUsername,
				Password:    cfg.IMAPPassword,
				Folder:      cfg.IMAPFolder,
				From:        cfg.From,
				To:          cfg.To,
				ImplicitTLS: cfg.IMAPS,
				StartTLS:    cfg.IMAPStartTLS,
				SkipVerify:  cfg.SkipVerify,
				TLSVersion:  cfg.TLSVersion,
				AuthMethod:  cfg.AuthMethod,
				Retries:     cfg.MaxRetries,
				RetryDelay:  cfg.RetryDelay,
			}, log)
			if err != nil {
				return nil, err
			}
			notifiers = append(notifiers, n)
		default:
			return nil, fmt.Errorf("unknown notifier %q", name)
		}
	}
	if len(notifiers) == 0 {
		return nil, nil
	}
	return notifiers, nil
}
