// Package main is pbirefresh, a CLI that refreshes Power BI datasets.
// It resolves a workspace and one or all of its datasets, triggers each
// refresh, waits for it to finish and sends a report of the outcomes.
//
// Authentication methods supported:
//   - Device code: interactive sign-in, the default
//   - Client Secret: Standard App Registration secret
//   - PFX Certificate: Certificate file with private key
//   - Access token: a bearer token obtained elsewhere
//
// Every run writes a log file under -logdir and appends its outcomes to a
// CSV sheet; both are attached to the report.
//
// Example usage:
//
//	pbirefresh Finance "Sales Report"
//	pbirefresh -workspace Finance -notify smtp -smtphost smtp.example.com -from bot@example.com -to ops@example.com
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"pbirefresh/internal/common/version"
)

// Process exit codes.
const (
	exitOK      = 0
	exitFailure = 1
)

func main() {
	ctx, cancel := setupSignalHandling()
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// setupSignalHandling configures graceful shutdown on interrupt signals.
// A cancelled context ends the running poll; the remaining datasets are
// still recorded and the report is still sent.
func setupSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	// Handle interrupt signals (Ctrl+C, SIGTERM)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\n\nReceived interrupt signal. Finishing the run...")
		cancel()
	}()

	return ctx, cancel
}

// run parses the configuration and executes one refresh run.
// It returns the process exit code: 1 for configuration, authentication and
// workspace failures, 0 otherwise, including runs where datasets failed.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	config, err := parseAndConfigureFlags(args, os.Getenv, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return exitFailure
	}

	if config.ShowVersion {
		fmt.Fprintf(stdout, "Power BI Dataset Refresh Tool - Version %s\n", version.Get())
		return exitOK
	}

	if err := validateConfiguration(config); err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return exitFailure
	}

	// Go's http package uses HTTP_PROXY/HTTPS_PROXY from the environment
	if config.ProxyURL != "" {
		os.Setenv("HTTP_PROXY", config.ProxyURL)
		os.Setenv("HTTPS_PROXY", config.ProxyURL)
	}

	a := newApp(config, stdin, stdout, stderr)
	if err := a.execute(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	return exitOK
}
