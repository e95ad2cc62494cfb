package main

import (
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"pbirefresh/internal/refresh"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestNewConfig(t *testing.T) {
	config := NewConfig()

	if config.ConfigFile != "config.json" {
		t.Errorf("ConfigFile = %q, want config.json", config.ConfigFile)
	}
	if config.PollInterval != refresh.DefaultPollInterval {
		t.Errorf("PollInterval = %v, want %v", config.PollInterval, refresh.DefaultPollInterval)
	}
	if config.PollTimeout != 0 {
		t.Errorf("PollTimeout = %v, want 0 (unbounded)", config.PollTimeout)
	}
	if config.ConfirmMode != "prompt" {
		t.Errorf("ConfirmMode = %q, want prompt", config.ConfirmMode)
	}
	if !reflect.DeepEqual([]string(config.Notify), []string{NotifyNone}) {
		t.Errorf("Notify = %v, want [none]", config.Notify)
	}
	if config.LogDir != "logs" {
		t.Errorf("LogDir = %q, want logs", config.LogDir)
	}
}

func TestParseAndConfigureFlags_Layering(t *testing.T) {
	configPath := writeFile(t, "config.json", `{
  "workspace_name": "Finance",
  "datasets": ["Sales Report", "Inventory"],
  "notify": "smtp",
  "poll_interval": "5s",
  "mail": {
    "subject": "From file",
    "from": "bot@example.com",
    "to": "ops@example.com, lead@example.com",
    "smtp": {"host": "file.example.com", "port": 2525}
  }
}`)
	envPath := writeFile(t, ".env", "PBIREFRESHCLIENTID=11111111-1111-1111-1111-111111111111\nPBIREFRESHTENANTID=from-env-file\n")

	env := envMap(map[string]string{
		"PBIREFRESHSMTPHOST": "env.example.com",
		"PBIREFRESHSUBJECT":  "From env",
		"PBIREFRESHTENANTID": "22222222-2222-2222-2222-222222222222",
		"PBIREFRESHTIMEOUT":  "30m",
	})

	config, err := parseAndConfigureFlags([]string{
		"-config", configPath,
		"-envfile", envPath,
		"-subject", "From flag",
		"sales", "repot",
	}, env, io.Discard)
	if err != nil {
		t.Fatalf("parseAndConfigureFlags() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"workspace from file", config.Workspace, "Finance"},
		{"positional args form the dataset", config.Dataset, "sales repot"},
		{"datasets from file", []string(config.Datasets), []string{"Sales Report", "Inventory"}},
		{"notify from file", []string(config.Notify), []string{"smtp"}},
		{"scalar recipients split", []string(config.To), []string{"ops@example.com", "lead@example.com"}},
		{"file interval", config.PollInterval, 5 * time.Second},
		{"env timeout", config.PollTimeout, 30 * time.Minute},
		{"env overrides file", config.SMTPHost, "env.example.com"},
		{"file when no env", config.SMTPPort, 2525},
		{"flag overrides env", config.Subject, "From flag"},
		{"env file fills gaps", config.ClientID, "11111111-1111-1111-1111-111111111111"},
		{"process env wins over env file", config.TenantID, "22222222-2222-2222-2222-222222222222"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !reflect.DeepEqual(tt.got, tt.want) {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestParseAndConfigureFlags_PositionalWorkspace(t *testing.T) {
	tests := []struct {
		name          string
		args          []string
		env           map[string]string
		wantWorkspace string
		wantDataset   string
	}{
		{
			name:          "workspace only",
			args:          []string{"Finance"},
			wantWorkspace: "Finance",
		},
		{
			name:          "workspace and multi-word dataset",
			args:          []string{"Finance", "Sales", "Report"},
			wantWorkspace: "Finance",
			wantDataset:   "Sales Report",
		},
		{
			name:          "workspace flag takes every argument as dataset",
			args:          []string{"-workspace", "Ops", "Sales", "Report"},
			wantWorkspace: "Ops",
			wantDataset:   "Sales Report",
		},
		{
			name:          "workspace from env",
			args:          []string{"Inventory"},
			env:           map[string]string{"PBIREFRESHWORKSPACE": "Ops"},
			wantWorkspace: "Ops",
			wantDataset:   "Inventory",
		},
		{
			name: "nothing given",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"-config", "", "-envfile", ""}, tt.args...)
			config, err := parseAndConfigureFlags(args, envMap(tt.env), io.Discard)
			if err != nil {
				t.Fatalf("parseAndConfigureFlags() error = %v", err)
			}
			if config.Workspace != tt.wantWorkspace {
				t.Errorf("Workspace = %q, want %q", config.Workspace, tt.wantWorkspace)
			}
			if config.Dataset != tt.wantDataset {
				t.Errorf("Dataset = %q, want %q", config.Dataset, tt.wantDataset)
			}
		})
	}
}

func TestParseAndConfigureFlags_Errors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.json")
	broken := writeFile(t, "broken.yaml", "datasets: {a: [\n")

	tests := []struct {
		name    string
		args    []string
		env     map[string]string
		wantErr string
		is      error
	}{
		{
			name:    "explicit config file missing",
			args:    []string{"-envfile", "", "-config", missing},
			wantErr: "could not read config file",
		},
		{
			name:    "config file does not parse",
			args:    []string{"-envfile", "", "-config", broken},
			wantErr: "could not parse config file",
		},
		{
			name:    "explicit env file missing",
			args:    []string{"-config", "", "-envfile", missing},
			wantErr: "could not read env file",
		},
		{
			name:    "malformed env duration",
			args:    []string{"-config", "", "-envfile", ""},
			env:     map[string]string{"PBIREFRESHINTERVAL": "soon"},
			wantErr: "PBIREFRESHINTERVAL",
		},
		{
			name: "help",
			args: []string{"-help"},
			is:   flag.ErrHelp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseAndConfigureFlags(tt.args, envMap(tt.env), io.Discard)
			if err == nil {
				t.Fatal("parseAndConfigureFlags() expected error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("error = %v, want %v", err, tt.is)
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFiles_MissingDefaultIgnored(t *testing.T) {
	dir := t.TempDir()

	file, err := loadConfigFile(filepath.Join(dir, "config.json"), false)
	if err != nil || file != nil {
		t.Errorf("loadConfigFile(missing, default) = %v, %v; want nil, nil", file, err)
	}

	env, err := loadEnvFile(filepath.Join(dir, ".env"), false, envMap(map[string]string{"A": "1"}))
	if err != nil {
		t.Fatalf("loadEnvFile(missing, default) error = %v", err)
	}
	if env("A") != "1" {
		t.Errorf("env(A) = %q, want 1", env("A"))
	}
}

func TestValidateConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults",
			modify: func(c *Config) {},
		},
		{
			name: "client secret with GUIDs",
			modify: func(c *Config) {
				c.TenantID = "22222222-2222-2222-2222-222222222222"
				c.ClientID = "11111111-1111-1111-1111-111111111111"
				c.Secret = "s3cret"
			},
		},
		{
			name:    "invalid client ID",
			modify:  func(c *Config) { c.ClientID = "not-a-guid" },
			wantErr: "Client ID",
		},
		{
			name:   "tenant alias accepted",
			modify: func(c *Config) { c.TenantID = "organizations" },
		},
		{
			name:    "secret without tenant",
			modify:  func(c *Config) { c.Secret = "s3cret"; c.ClientID = "11111111-1111-1111-1111-111111111111" },
			wantErr: "-tenantid is required",
		},
		{
			name:    "invalid confirm mode",
			modify:  func(c *Config) { c.ConfirmMode = "maybe" },
			wantErr: "invalid confirm mode",
		},
		{
			name:    "invalid notify option",
			modify:  func(c *Config) { c.NotifyOption = "Always" },
			wantErr: "invalid notify option",
		},
		{
			name:    "zero poll interval",
			modify:  func(c *Config) { c.PollInterval = 0 },
			wantErr: "poll interval must be positive",
		},
		{
			name:    "negative poll timeout",
			modify:  func(c *Config) { c.PollTimeout = -time.Second },
			wantErr: "poll timeout cannot be negative",
		},
		{
			name:    "bad proxy",
			modify:  func(c *Config) { c.ProxyURL = "ftp://proxy.example.com" },
			wantErr: "invalid proxy URL",
		},
		{
			name:    "unknown notifier",
			modify:  func(c *Config) { c.Notify = stringSlice{"pager"} },
			wantErr: "invalid notifier",
		},
		{
			name:    "graph without recipients",
			modify:  func(c *Config) { c.Notify = stringSlice{NotifyGraph} },
			wantErr: "graph notifier requires -to",
		},
		{
			name: "smtp complete",
			modify: func(c *Config) {
				c.Notify = stringSlice{NotifySMTP}
				c.SMTPHost = "smtp.example.com"
				c.From = "bot@example.com"
				c.To = stringSlice{"ops@example.com"}
			},
		},
		{
			name: "smtp without host",
			modify: func(c *Config) {
				c.Notify = stringSlice{NotifySMTP}
				c.From = "bot@example.com"
				c.To = stringSlice{"ops@example.com"}
			},
			wantErr: "requires -smtphost",
		},
		{
			name: "smtps and starttls",
			modify: func(c *Config) {
				c.Notify = stringSlice{NotifySMTP}
				c.SMTPHost = "smtp.example.com"
				c.From = "bot@example.com"
				c.To = stringSlice{"ops@example.com"}
				c.SMTPS = true
				c.StartTLS = true
			},
			wantErr: "cannot use both -smtps and -starttls",
		},
		{
			name: "imap without credentials",
			modify: func(c *Config) {
				c.Notify = stringSlice{NotifyIMAP}
				c.IMAPHost = "imap.example.com"
			},
			wantErr: "requires -imapusername",
		},
		{
			name: "invalid recipient",
			modify: func(c *Config) {
				c.Notify = stringSlice{NotifyGraph}
				c.To = stringSlice{"not-an-email"}
			},
			wantErr: "To recipients",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewConfig()
			tt.modify(config)

			err := validateConfiguration(config)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("validateConfiguration() unexpected error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("validateConfiguration() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validateConfiguration() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestStringSliceSet(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty", "", nil},
		{"single", "a@example.com", []string{"a@example.com"}},
		{"with spaces", " a@example.com , b@example.com ", []string{"a@example.com", "b@example.com"}},
		{"trailing comma", "a@example.com,", []string{"a@example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s stringSlice
			if err := s.Set(tt.input); err != nil {
				t.Fatalf("Set() returned error: %v", err)
			}
			if !reflect.DeepEqual([]string(s), tt.expected) {
				t.Errorf("Set(%q) = %v, want %v", tt.input, s, tt.expected)
			}
		})
	}
}

func TestStringSliceUnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{"sequence", `v: ["Sales Report", " Inventory ", ""]`, []string{"Sales Report", "Inventory"}, false},
		{"scalar", `v: "a@example.com,b@example.com"`, []string{"a@example.com", "b@example.com"}, false},
		{"mapping", `v: {a: 1}`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var doc struct {
				V stringSlice `yaml:"v"`
			}
			err := yaml.Unmarshal([]byte(tt.input), &doc)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Unmarshal() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !reflect.DeepEqual([]string(doc.V), tt.want) {
				t.Errorf("Unmarshal() = %v, want %v", doc.V, tt.want)
			}
		})
	}
}

func TestEnvVarName(t *testing.T) {
	if got := envVarName("smtphost"); got != "PBIREFRESHSMTPHOST" {
		t.Errorf("envVarName(smtphost) = %q", got)
	}
}
