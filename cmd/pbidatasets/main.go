// Package main is pbidatasets, a companion to pbirefresh that lists the
// datasets of a Power BI workspace with their IDs.
//
// Example usage:
//
//	pbidatasets Finance
//	pbidatasets -output json -tenantid ... -clientid ... -secret ... Finance
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"

	"pbirefresh/internal/auth"
	"pbirefresh/internal/common/logger"
	"pbirefresh/internal/common/validation"
	"pbirefresh/internal/common/version"
	"pbirefresh/internal/powerbi"
	"pbirefresh/internal/refresh"
)

// envPrefix matches pbirefresh so both tools share one environment.
const envPrefix = "PBIREFRESH"

// Config holds pbidatasets configuration.
type Config struct {
	ShowVersion  bool
	Workspace    string
	TenantID     string
	ClientID     string
	Secret       string
	PfxPath      string
	PfxPass      string
	AccessToken  string
	Endpoint     string
	OutputFormat string
	VerboseMode  bool
	LogLevel     string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr, nil)
	stop()
	os.Exit(code)
}

// run lists the datasets and returns the process exit code.
// transport replaces the HTTP client in tests; nil uses the default.
func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer, transport policy.Transporter) int {
	config, err := parseAndConfigureFlags(args, getenv, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}
	if config.ShowVersion {
		fmt.Fprintf(stdout, "Power BI Dataset Lister - Version %s\n", version.Get())
		return 0
	}
	if err := validateConfiguration(config); err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}

	log := logger.SetupLogger(config.VerboseMode, config.LogLevel)
	if err := listDatasets(ctx, config, transport, stdout); err != nil {
		logger.LogError(log, "Listing datasets failed", "workspace", config.Workspace, "error", err)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func parseAndConfigureFlags(args []string, getenv func(string) string, output io.Writer) (*Config, error) {
	config := &Config{OutputFormat: "text", LogLevel: "INFO"}

	fs := flag.NewFlagSet("pbidatasets", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Power BI Dataset Lister - Part of the pbirefresh suite\n\n")
		fmt.Fprintf(fs.Output(), "Usage: pbidatasets [options] <workspace>\n\n")
		fmt.Fprintf(fs.Output(), "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(fs.Output(), "\nEnvironment Variables:\n")
		fmt.Fprintf(fs.Output(), "  Flags fall back to the pbirefresh variables: PBIREFRESHTENANTID, PBIREFRESHWORKSPACE, ...\n")
	}

	fs.BoolVar(&config.ShowVersion, "version", false, "Show version information")
	fs.StringVar(&config.Workspace, "workspace", "", "Workspace name, instead of the argument (env: PBIREFRESHWORKSPACE)")
	fs.StringVar(&config.TenantID, "tenantid", "", "Azure tenant ID (env: PBIREFRESHTENANTID)")
	fs.StringVar(&config.ClientID, "clientid", "", "Application (client) ID (env: PBIREFRESHCLIENTID)")
	fs.StringVar(&config.Secret, "secret", "", "Client secret (env: PBIREFRESHSECRET)")
	fs.StringVar(&config.PfxPath, "pfx", "", "Path to .pfx certificate file (env: PBIREFRESHPFX)")
	fs.StringVar(&config.PfxPass, "pfxpass", "", "Password for .pfx file (env: PBIREFRESHPFXPASS)")
	fs.StringVar(&config.AccessToken, "accesstoken", "", "Pre-acquired Power BI bearer token (env: PBIREFRESHACCESSTOKEN)")
	fs.StringVar(&config.Endpoint, "endpoint", "", "Power BI REST root (env: PBIREFRESHENDPOINT)")
	fs.StringVar(&config.OutputFormat, "output", config.OutputFormat, "Output format: text, json (env: PBIREFRESHOUTPUT)")
	fs.BoolVar(&config.VerboseMode, "verbose", false, "Enable verbose output")
	fs.StringVar(&config.LogLevel, "loglevel", config.LogLevel, "Logging level: DEBUG, INFO, WARN, ERROR (env: PBIREFRESHLOGLEVEL)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Apply environment variables if flags not set via command line
	provided := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		provided[f.Name] = true
	})
	var errs []error
	fs.VisitAll(func(f *flag.Flag) {
		if provided[f.Name] || f.Name == "version" {
			return
		}
		name := envPrefix + strings.ToUpper(f.Name)
		if value := getenv(name); value != "" {
			if err := f.Value.Set(value); err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", name, err))
			}
		}
	})
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if fs.NArg() > 0 {
		config.Workspace = strings.Join(fs.Args(), " ")
	}
	config.OutputFormat = strings.ToLower(config.OutputFormat)
	return config, nil
}

func validateConfiguration(config *Config) error {
	if config.ShowVersion {
		return nil
	}
	if strings.TrimSpace(config.Workspace) == "" {
		return errors.New("workspace is required (argument or -workspace)")
	}
	if config.OutputFormat != "text" && config.OutputFormat != "json" {
		return fmt.Errorf("invalid output format: %s (use: text, json)", config.OutputFormat)
	}
	if config.ClientID != "" {
		if err := validation.ValidateGUID(config.ClientID, "Client ID"); err != nil {
			return err
		}
	}
	if config.PfxPath != "" {
		if err := validation.ValidateFilePath(config.PfxPath, "PFX file"); err != nil {
			return err
		}
	}
	return nil
}

// datasetOutput is one line of the listing.
type datasetOutput struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

func listDatasets(ctx context.Context, config *Config, transport policy.Transporter, w io.Writer) error {
	cred, err := auth.NewCredential(auth.Config{
		TenantID:    config.TenantID,
		ClientID:    config.ClientID,
		Secret:      config.Secret,
		PfxPath:     config.PfxPath,
		PfxPass:     config.PfxPass,
		AccessToken: config.AccessToken,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", refresh.ErrAuthFailure, err)
	}
	if _, err := auth.AcquireToken(ctx, cred, powerbi.Scope); err != nil {
		return fmt.Errorf("%w: %w", refresh.ErrAuthFailure, err)
	}

	opts := &powerbi.ClientOptions{Endpoint: config.Endpoint}
	if transport != nil {
		opts.Transport = transport
	}
	client, err := powerbi.NewClient(cred, opts)
	if err != nil {
		return err
	}

	resolver := refresh.NewResolver(client, refresh.AutoReject, logger.Discard())
	ws, err := resolver.ResolveWorkspace(ctx, config.Workspace)
	if err != nil {
		return err
	}
	datasets, err := client.ListDatasets(ctx, ws.ID)
	if err != nil {
		return err
	}

	if config.OutputFormat == "json" {
		out := make([]datasetOutput, len(datasets))
		for i, ds := range datasets {
			out[i] = datasetOutput{Name: ds.Name, ID: ds.ID}
		}
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	}

	fmt.Fprintf(w, "Datasets in workspace '%s':\n\n", ws.Name)
	if len(datasets) == 0 {
		fmt.Fprintln(w, "No datasets found.")
		return nil
	}
	for _, ds := range datasets {
		fmt.Fprintf(w, "%s | ID: %s\n", ds.Name, ds.ID)
	}
	return nil
}
