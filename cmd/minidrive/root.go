package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	minidrive "github.com/MrEthical07/minidrive"
	"github.com/MrEthical07/minidrive/internal/logging"
	promexport "github.com/MrEthical07/minidrive/metrics/export/prometheus"
	"github.com/MrEthical07/minidrive/tokenstore"
)

// app carries the flags and the client shared by every subcommand.
type app struct {
	configPath  string
	baseURL     string
	tokenFile   string
	metricsAddr string
	verbose     bool

	client  *minidrive.Client
	metrics *http.Server
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "minidrive",
		Short:             "Command-line client for MiniDrive",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Path to a YAML config file")
	flags.StringVar(&a.baseURL, "base-url", "", "API base URL (overrides config and "+minidrive.EnvBaseURL+")")
	flags.StringVar(&a.tokenFile, "token-file", "", "Where the session token is kept (default $XDG_CONFIG_HOME/minidrive/token.json)")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the command runs")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Log requests to stderr")

	cmd.AddCommand(
		newLoginCommand(a),
		newSignupCommand(a),
		newLogoutCommand(a),
		newWhoamiCommand(a),
		newFilesCommand(a),
		newPublicCommand(a),
		newRequestAccessCommand(a),
		newAdminCommand(a),
	)
	return cmd
}

func (a *app) config() (minidrive.Config, error) {
	cfg, err := minidrive.LoadConfig(a.configPath)
	if err != nil {
		return minidrive.Config{}, err
	}
	if a.baseURL != "" {
		cfg.API.BaseURL = a.baseURL
	}

	// A CLI session has to outlive the process, so the memory backend is
	// replaced with a token file.
	if a.tokenFile != "" || strings.EqualFold(cfg.TokenStore.Backend, tokenstore.BackendMemory) || cfg.TokenStore.Backend == "" {
		path := a.tokenFile
		if path == "" {
			path, err = defaultTokenPath()
			if err != nil {
				return minidrive.Config{}, err
			}
		}
		cfg.TokenStore = tokenstore.Config{Backend: tokenstore.BackendFile, Path: path}
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	} else if a.configPath == "" {
		cfg.Log.Level = "warn"
	}
	cfg.Metrics.EnableLatencyHistograms = cfg.Metrics.EnableLatencyHistograms || a.metricsAddr != ""
	return cfg, cfg.Validate()
}

func defaultTokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "minidrive", "token.json"), nil
}

// setup builds the client and rehydrates the stored session before any
// subcommand runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Writer: cmd.ErrOrStderr(),
	})
	client, err := minidrive.New().WithConfig(cfg).WithLogger(logger).Build()
	if err != nil {
		return err
	}
	a.client = client

	if a.metricsAddr != "" {
		if err := a.serveMetrics(cmd); err != nil {
			return err
		}
	}

	client.Start(cmd.Context())
	return nil
}

func (a *app) serveMetrics(cmd *cobra.Command) error {
	handler, err := promexport.Handler(a.client)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", a.metricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	a.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(cmd.ErrOrStderr(), "metrics server: %v\n", err)
		}
	}()
	fmt.Fprintf(cmd.ErrOrStderr(), "serving metrics on http://%s/metrics\n", ln.Addr())
	return nil
}

// teardown runs after every command, including failed ones.
func (a *app) teardown() error {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.metrics.Shutdown(ctx)
		cancel()
	}
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

// requireSession fails fast when no session was rehydrated, instead of
// letting the API answer 401.
func (a *app) requireSession() error {
	if !a.client.Session().Authenticated() {
		return minidrive.ErrNotAuthenticated
	}
	return nil
}

// group is a parent command that only prints help.
func group(use, short string, children ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(children...)
	return cmd
}
