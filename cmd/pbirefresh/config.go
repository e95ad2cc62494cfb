package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pbirefresh/internal/common/validation"
	"pbirefresh/internal/powerbi"
	"pbirefresh/internal/refresh"
)

// envPrefix is prepended to the upper-cased flag name to form its environment variable.
const envPrefix = "PBIREFRESH"

// Notifier names accepted by -notify.
const (
	NotifyGraph = "graph"
	NotifySMTP  = "smtp"
	NotifyIMAP  = "imap"
	NotifyNone  = "none"
)

// Config holds all pbirefresh configuration.
// Precedence: defaults, then the config file, then environment variables, then flags.
type Config struct {
	ShowVersion bool
	ConfigFile  string
	EnvFile     string

	// What to refresh
	Workspace string
	Dataset   string
	Datasets  stringSlice // Allow-list; empty means every dataset in the workspace

	// Authentication
	TenantID    string
	ClientID    string
	Secret      string
	PfxPath     string
	PfxPass     string
	AccessToken string

	// Power BI
	Endpoint     string
	NotifyOption string // Service-side mail: MailOnFailure, MailOnCompletion, NoNotification
	PollInterval time.Duration
	PollTimeout  time.Duration
	ConfirmMode  string
	RateLimit    float64

	// Network configuration
	ProxyURL   string
	MaxRetries int
	RetryDelay time.Duration

	// Notification
	Notify        stringSlice
	Subject       string
	From          string
	To            stringSlice
	Cc            stringSlice
	Mailbox       string // Graph sender; defaults to the signed-in user
	NotifyTimeout time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPS        bool
	StartTLS     bool // Require STARTTLS
	SkipVerify   bool
	TLSVersion   string
	AuthMethod   string

	IMAPHost     string
	IMAPPort     int
	IMAPUsername string
	IMAPPassword string
	IMAPFolder   string
	IMAPS        bool
	IMAPStartTLS bool

	// Runtime configuration
	LogDir      string
	SheetDir    string
	VerboseMode bool
	LogLevel    string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		ConfigFile:    "config.json",
		EnvFile:       ".env",
		PollInterval:  refresh.DefaultPollInterval,
		ConfirmMode:   "prompt",
		MaxRetries:    3,
		RetryDelay:    2000 * time.Millisecond,
		Notify:        stringSlice{NotifyNone},
		TLSVersion:    "1.2",
		AuthMethod:    "auto",
		NotifyTimeout: 2 * time.Minute,
		LogDir:        "logs",
		LogLevel:      "INFO",
	}
}

// fileConfig is the layout of config.json. The file is read with a YAML
// decoder, so YAML works as well.
type fileConfig struct {
	WorkspaceName string        `yaml:"workspace_name"`
	Datasets      stringSlice   `yaml:"datasets"`
	Notify        stringSlice   `yaml:"notify"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	PollTimeout   time.Duration `yaml:"poll_timeout"`
	Mail          struct {
		Subject string       `yaml:"subject"`
		From    string       `yaml:"from"`
		To      stringSlice  `yaml:"to"`
		Cc      stringSlice  `yaml:"cc"`
		Mailbox string       `yaml:"mailbox"`
		SMTP    serverConfig `yaml:"smtp"`
		IMAP    serverConfig `yaml:"imap"`
	} `yaml:"mail"`
}

type serverConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	Folder      string `yaml:"folder"`
	ImplicitTLS bool   `yaml:"implicit_tls"`
}

// parseAndConfigureFlags parses args, the .env file, the config file and the
// environment into a Config. getenv is os.Getenv outside tests.
func parseAndConfigureFlags(args []string, getenv func(string) string, output io.Writer) (*Config, error) {
	config := NewConfig()

	fs := flag.NewFlagSet("pbirefresh", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, "Power BI Dataset Refresh Tool\n\n")
		fmt.Fprintf(out, "Usage: pbirefresh [options] [workspace] [dataset name ...]\n\n")
		fmt.Fprintf(out, "Without a dataset name every dataset is refreshed (the datasets list of the\n")
		fmt.Fprintf(out, "config file, or the whole workspace). When the workspace comes from -workspace,\n")
		fmt.Fprintf(out, "its env var or the config file, all positional arguments form the dataset name.\n\n")
		fmt.Fprintf(out, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(out, "\nEnvironment Variables:\n")
		fmt.Fprintf(out, "  All flags can be set via environment variables with %s prefix\n", envPrefix)
		fmt.Fprintf(out, "  Example: PBIREFRESHTENANTID, PBIREFRESHWORKSPACE, PBIREFRESHSMTPHOST\n\n")
		fmt.Fprintf(out, "Examples:\n")
		fmt.Fprintf(out, "  pbirefresh Finance \"Sales Report\"\n")
		fmt.Fprintf(out, "  pbirefresh -workspace Finance -confirm accept sales repot\n")
		fmt.Fprintf(out, "  pbirefresh -tenantid ... -clientid ... -secret ... -notify graph -mailbox bot@example.com -to ops@example.com Finance\n")
	}

	fs.BoolVar(&config.ShowVersion, "version", false, "Show version information")
	fs.StringVar(&config.ConfigFile, "config", config.ConfigFile, "Config file (JSON or YAML) with workspace_name, datasets, notify, mail (env: PBIREFRESHCONFIG)")
	fs.StringVar(&config.EnvFile, "envfile", config.EnvFile, "Environment file loaded before env vars are applied (env: PBIREFRESHENVFILE)")
	fs.StringVar(&config.Workspace, "workspace", "", "Workspace name (env: PBIREFRESHWORKSPACE)")
	fs.Var(&config.Datasets, "datasets", "Comma-separated dataset allow-list (env: PBIREFRESHDATASETS)")

	fs.StringVar(&config.TenantID, "tenantid", "", "Azure tenant ID (env: PBIREFRESHTENANTID)")
	fs.StringVar(&config.ClientID, "clientid", "", "Application (client) ID (env: PBIREFRESHCLIENTID)")
	fs.StringVar(&config.Secret, "secret", "", "Client secret (env: PBIREFRESHSECRET)")
	fs.StringVar(&config.PfxPath, "pfx", "", "Path to .pfx certificate file (env: PBIREFRESHPFX)")
	fs.StringVar(&config.PfxPass, "pfxpass", "", "Password for .pfx file (env: PBIREFRESHPFXPASS)")
	fs.StringVar(&config.AccessToken, "accesstoken", "", "Pre-acquired Power BI bearer token (env: PBIREFRESHACCESSTOKEN)")

	fs.StringVar(&config.Endpoint, "endpoint", "", "Power BI REST root (default "+powerbi.DefaultEndpoint+") (env: PBIREFRESHENDPOINT)")
	fs.StringVar(&config.NotifyOption, "notifyoption", "", "Service-side refresh mail: MailOnFailure, MailOnCompletion, NoNotification (env: PBIREFRESHNOTIFYOPTION)")
	fs.DurationVar(&config.PollInterval, "interval", config.PollInterval, "Pause between refresh status queries (env: PBIREFRESHINTERVAL)")
	fs.DurationVar(&config.PollTimeout, "timeout", 0, "Maximum wait per dataset, 0 = unbounded (env: PBIREFRESHTIMEOUT)")
	fs.StringVar(&config.ConfirmMode, "confirm", config.ConfirmMode, "Fuzzy suggestion handling: prompt, accept, reject (env: PBIREFRESHCONFIRM)")
	fs.Float64Var(&config.RateLimit, "ratelimit", 0, "Maximum Power BI requests per second (0 = unlimited) (env: PBIREFRESHRATELIMIT)")

	fs.StringVar(&config.ProxyURL, "proxy", "", "HTTP/HTTPS proxy URL (env: PBIREFRESHPROXY)")
	fs.IntVar(&config.MaxRetries, "maxretries", config.MaxRetries, "Maximum retry attempts for transient failures (env: PBIREFRESHMAXRETRIES)")
	fs.DurationVar(&config.RetryDelay, "retrydelay", config.RetryDelay, "Base retry delay (env: PBIREFRESHRETRYDELAY)")

	fs.Var(&config.Notify, "notify", "Comma-separated notifiers: graph, smtp, imap, none (env: PBIREFRESHNOTIFY)")
	fs.StringVar(&config.Subject, "subject", "", "Report subject (env: PBIREFRESHSUBJECT)")
	fs.StringVar(&config.From, "from", "", "Sender address for smtp and imap (env: PBIREFRESHFROM)")
	fs.Var(&config.To, "to", "Comma-separated report recipients (env: PBIREFRESHTO)")
	fs.Var(&config.Cc, "cc", "Comma-separated CC recipients (env: PBIREFRESHCC)")
	fs.StringVar(&config.Mailbox, "mailbox", "", "Graph sender mailbox, default the signed-in user (env: PBIREFRESHMAILBOX)")
	fs.DurationVar(&config.NotifyTimeout, "notifytimeout", config.NotifyTimeout, "Time allowed for sending the report (env: PBIREFRESHNOTIFYTIMEOUT)")

	fs.StringVar(&config.SMTPHost, "smtphost", "", "SMTP server hostname (env: PBIREFRESHSMTPHOST)")
	fs.IntVar(&config.SMTPPort, "smtpport", 0, "SMTP server port, default 587 or 465 with -smtps (env: PBIREFRESHSMTPPORT)")
	fs.StringVar(&config.SMTPUsername, "smtpusername", "", "SMTP username (env: PBIREFRESHSMTPUSERNAME)")
	fs.StringVar(&config.SMTPPassword, "smtppassword", "", "SMTP password (env: PBIREFRESHSMTPPASSWORD)")
	fs.BoolVar(&config.SMTPS, "smtps", false, "Use SMTPS (implicit TLS) (env: PBIREFRESHSMTPS)")
	fs.BoolVar(&config.StartTLS, "starttls", false, "Require STARTTLS (env: PBIREFRESHSTARTTLS)")
	fs.BoolVar(&config.SkipVerify, "skipverify", false, "Skip TLS certificate verification (insecure) (env: PBIREFRESHSKIPVERIFY)")
	fs.StringVar(&config.TLSVersion, "tlsversion", config.TLSVersion, "Minimum TLS version: 1.2, 1.3 (env: PBIREFRESHTLSVERSION)")
	fs.StringVar(&config.AuthMethod, "authmethod", config.AuthMethod, "SASL mechanism for smtp and imap: PLAIN, LOGIN, auto (env: PBIREFRESHAUTHMETHOD)")

	fs.StringVar(&config.IMAPHost, "imaphost", "", "IMAP server for archiving the report (env: PBIREFRESHIMAPHOST)")
	fs.IntVar(&config.IMAPPort, "imapport", 0, "IMAP server port, default 143 or 993 with -imaps (env: PBIREFRESHIMAPPORT)")
	fs.StringVar(&config.IMAPUsername, "imapusername", "", "IMAP username (env: PBIREFRESHIMAPUSERNAME)")
	fs.StringVar(&config.IMAPPassword, "imappassword", "", "IMAP password (env: PBIREFRESHIMAPPASSWORD)")
	fs.StringVar(&config.IMAPFolder, "imapfolder", "", "IMAP folder receiving the report (env: PBIREFRESHIMAPFOLDER)")
	fs.BoolVar(&config.IMAPS, "imaps", false, "Use IMAPS (implicit TLS) (env: PBIREFRESHIMAPS)")
	fs.BoolVar(&config.IMAPStartTLS, "imapstarttls", false, "Use STARTTLS for IMAP (env: PBIREFRESHIMAPSTARTTLS)")

	fs.StringVar(&config.LogDir, "logdir", config.LogDir, "Directory for run log files (env: PBIREFRESHLOGDIR)")
	fs.StringVar(&config.SheetDir, "sheetdir", "", "Directory for the results CSV, default the system temp directory (env: PBIREFRESHSHEETDIR)")
	fs.BoolVar(&config.VerboseMode, "verbose", false, "Enable verbose output")
	fs.StringVar(&config.LogLevel, "loglevel", config.LogLevel, "Logging level: DEBUG, INFO, WARN, ERROR (env: PBIREFRESHLOGLEVEL)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Track which flags were explicitly set via command line
	provided := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		provided[f.Name] = true
	})

	// The env file and config file locations may themselves come from the environment
	if !provided["envfile"] {
		if v := getenv(envVarName("envfile")); v != "" {
			config.EnvFile = v
		}
	}
	env, err := loadEnvFile(config.EnvFile, provided["envfile"], getenv)
	if err != nil {
		return nil, err
	}
	if !provided["config"] {
		if v := env(envVarName("config")); v != "" {
			config.ConfigFile = v
		}
	}

	file, err := loadConfigFile(config.ConfigFile, provided["config"])
	if err != nil {
		return nil, err
	}
	if file != nil {
		applyFileConfig(config, file, provided)
	}

	if err := applyEnvVars(fs, provided, env); err != nil {
		return nil, err
	}

	applyPositionalArgs(config, fs.Args())
	return config, nil
}

// envVarName maps a flag name to its environment variable, e.g. smtphost -> PBIREFRESHSMTPHOST.
func envVarName(flagName string) string {
	return envPrefix + strings.ToUpper(flagName)
}

// loadEnvFile reads KEY=VALUE pairs from path with godotenv. Values already in
// the process environment win over the file. A missing default file is ignored.
func loadEnvFile(path string, explicit bool, getenv func(string) string) (func(string) string, error) {
	if path == "" {
		return getenv, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return getenv, nil
		}
		return nil, fmt.Errorf("could not read env file %s: %w", path, err)
	}
	return func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return values[key]
	}, nil
}

// loadConfigFile parses path. A missing default file returns nil, nil.
func loadConfigFile(path string, explicit bool) (*fileConfig, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil, nil
		}
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	return &file, nil
}

// applyFileConfig copies config file values into fields not set on the command line.
func applyFileConfig(config *Config, file *fileConfig, provided map[string]bool) {
	setString := func(name string, dst *string, v string) {
		if !provided[name] && v != "" {
			*dst = v
		}
	}
	setSlice := func(name string, dst *stringSlice, v stringSlice) {
		if !provided[name] && len(v) > 0 {
			*dst = v
		}
	}
	setInt := func(name string, dst *int, v int) {
		if !provided[name] && v != 0 {
			*dst = v
		}
	}
	setBool := func(name string, dst *bool, v bool) {
		if !provided[name] && v {
			*dst = v
		}
	}
	setDuration := func(name string, dst *time.Duration, v time.Duration) {
		if !provided[name] && v != 0 {
			*dst = v
		}
	}

	setString("workspace", &config.Workspace, file.WorkspaceName)
	setSlice("datasets", &config.Datasets, file.Datasets)
	setSlice("notify", &config.Notify, file.Notify)
	setDuration("interval", &config.PollInterval, file.PollInterval)
	setDuration("timeout", &config.PollTimeout, file.PollTimeout)

	mail := file.Mail
	setString("subject", &config.Subject, mail.Subject)
	setString("from", &config.From, mail.From)
	setSlice("to", &config.To, mail.To)
	setSlice("cc", &config.Cc, mail.Cc)
	setString("mailbox", &config.Mailbox, mail.Mailbox)

	setString("smtphost", &config.SMTPHost, mail.SMTP.Host)
	setInt("smtpport", &config.SMTPPort, mail.SMTP.Port)
	setString("smtpusername", &config.SMTPUsername, mail.SMTP.Username)
	setString("smtppassword", &config.SMTPPassword, mail.SMTP.Password)
	setBool("smtps", &config.SMTPS, mail.SMTP.ImplicitTLS)

	setString("imaphost", &config.IMAPHost, mail.IMAP.Host)
	setInt("imapport", &config.IMAPPort, mail.IMAP.Port)
	setString("imapusername", &config.IMAPUsername, mail.IMAP.Username)
	setString("imappassword", &config.IMAPPassword, mail.IMAP.Password)
	setString("imapfolder", &config.IMAPFolder, mail.IMAP.Folder)
	setBool("imaps", &config.IMAPS, mail.IMAP.ImplicitTLS)
}

// applyEnvVars applies environment variable values to flags that weren't
// explicitly set via command line. Values are parsed by the flag itself, so a
// malformed number or duration is reported the same way as on the command line.
func applyEnvVars(fs *flag.FlagSet, provided map[string]bool, getenv func(string) string) error {
	var errs []error
	fs.VisitAll(func(f *flag.Flag) {
		if provided[f.Name] || f.Name == "version" || f.Name == "config" || f.Name == "envfile" {
			return
		}
		name := envVarName(f.Name)
		value := getenv(name)
		if value == "" {
			return
		}
		if err := f.Value.Set(value); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", name, err))
		}
	})
	return errors.Join(errs...)
}

// applyPositionalArgs takes the workspace from the first argument unless a
// flag, env var or the config file already named it; the remaining arguments
// form the dataset name.
func applyPositionalArgs(config *Config, args []string) {
	if len(args) == 0 {
		return
	}
	if config.Workspace == "" {
		config.Workspace = args[0]
		args = args[1:]
	}
	config.Dataset = strings.TrimSpace(strings.Join(args, " "))
}

// validateConfiguration validates the configuration.
func validateConfiguration(config *Config) error {
	if config.ClientID != "" {
		if err := validation.ValidateGUID(config.ClientID, "Client ID"); err != nil {
			return err
		}
	}
	if config.TenantID != "" && !isTenantAlias(config.TenantID) {
		if err := validation.ValidateGUID(config.TenantID, "Tenant ID"); err != nil {
			return err
		}
	}
	if config.PfxPath != "" {
		if err := validation.ValidateFilePath(config.PfxPath, "PFX file"); err != nil {
			return err
		}
	}
	if (config.Secret != "" || config.PfxPath != "") && config.TenantID == "" {
		return fmt.Errorf("-tenantid is required for client secret and certificate authentication")
	}
	if (config.Secret != "" || config.PfxPath != "") && config.ClientID == "" {
		return fmt.Errorf("-clientid is required for client secret and certificate authentication")
	}

	if _, err := refresh.ParseConfirmMode(config.ConfirmMode, nil, nil); err != nil {
		return err
	}
	switch config.NotifyOption {
	case "", "MailOnFailure", "MailOnCompletion", "NoNotification":
	default:
		return fmt.Errorf("invalid notify option: %s (use: MailOnFailure, MailOnCompletion, NoNotification)", config.NotifyOption)
	}
	if config.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", config.PollInterval)
	}
	if config.PollTimeout < 0 {
		return fmt.Errorf("poll timeout cannot be negative, got %s", config.PollTimeout)
	}
	if config.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	if config.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if err := validation.ValidateProxyURL(config.ProxyURL); err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}

	return validateNotify(config)
}

// validateNotify checks the settings each selected notifier needs.
func validateNotify(config *Config) error {
	for _, name := range config.Notify {
		switch strings.ToLower(name) {
		case NotifyNone:
		case NotifyGraph:
			if len(config.To) == 0 {
				return fmt.Errorf("graph notifier requires -to")
			}
			if config.Mailbox != "" {
				if err := validation.ValidateEmail(config.Mailbox); err != nil {
					return fmt.Errorf("invalid mailbox: %w", err)
				}
			}
		case NotifySMTP:
			if config.SMTPHost == "" {
				return fmt.Errorf("smtp notifier requires -smtphost")
			}
			if err := validation.ValidateHostname(config.SMTPHost); err != nil {
				return fmt.Errorf("invalid smtp host: %w", err)
			}
			if config.SMTPPort != 0 {
				if err := validation.ValidatePort(config.SMTPPort); err != nil {
					return fmt.Errorf("invalid smtp port: %w", err)
				}
			}
			if config.SMTPS && config.StartTLS {
				return fmt.Errorf("cannot use both -smtps and -starttls flags simultaneously")
			}
			if config.From == "" {
				return fmt.Errorf("smtp notifier requires -from")
			}
			if len(config.To) == 0 {
				return fmt.Errorf("smtp notifier requires -to")
			}
		case NotifyIMAP:
			if config.IMAPHost == "" {
				return fmt.Errorf("imap notifier requires -imaphost")
			}
			if err := validation.ValidateHostname(config.IMAPHost); err != nil {
				return fmt.Errorf("invalid imap host: %w", err)
			}
			if config.IMAPPort != 0 {
				if err := validation.ValidatePort(config.IMAPPort); err != nil {
					return fmt.Errorf("invalid imap port: %w", err)
				}
			}
			if config.IMAPS && config.IMAPStartTLS {
				return fmt.Errorf("cannot use both -imaps and -imapstarttls flags simultaneously")
			}
			if config.IMAPUsername == "" || config.IMAPPassword == "" {
				return fmt.Errorf("imap notifier requires -imapusername and -imappassword")
			}
		default:
			return fmt.Errorf("invalid notifier: %s (use: graph, smtp, imap, none)", name)
		}
	}

	if config.From != "" {
		if err := validation.ValidateSMTPAddress(config.From); err != nil {
			return fmt.Errorf("invalid sender email: %w", err)
		}
		// MAIL FROM adds its own brackets
		config.From = strings.Trim(strings.TrimSpace(config.From), "<>")
	}
	if err := validation.ValidateEmails(config.To, "To recipients"); err != nil {
		return err
	}
	return validation.ValidateEmails(config.Cc, "CC recipients")
}

// isTenantAlias reports whether id is one of the Entra ID tenant aliases.
func isTenantAlias(id string) bool {
	switch strings.ToLower(id) {
	case "common", "organizations", "consumers":
		return true
	}
	return false
}

// stringSlice implements flag.Value for comma-separated string lists:
//
//	-to "user1@example.com,user2@example.com"
//
// Values are split on commas and trimmed; empty items are dropped. In the
// config file it accepts either a list or a single comma-separated string.
type stringSlice []string

func (s *stringSlice) String() string {
	if s == nil {
		return ""
	}
	return strings.Join(*s, ",")
}

func (s *stringSlice) Set(value string) error {
	if value == "" {
		*s = nil
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	*s = result
	return nil
}

// UnmarshalYAML accepts a sequence of strings or a comma-separated scalar.
func (s *stringSlice) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return s.Set(node.Value)
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		result := make([]string, 0, len(items))
		for _, item := range items {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		*s = result
		return nil
	default:
		return fmt.Errorf("line %d: expected a list or a comma-separated string", node.Line)
	}
}
