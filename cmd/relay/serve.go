package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/keys"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/providers/openai"
	"mercator-hq/relay/pkg/server"
	"mercator-hq/relay/pkg/telemetry/metrics"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

var serveFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay server",
	Long: `Start the relay server with the specified configuration.

The server loads the API key registry, connects to the upstream and serves
the OpenAI-compatible API until it receives SIGINT or SIGTERM.

Examples:
  # Start with default config
  relay serve

  # Start with custom config
  relay serve --config /etc/relay/config.yaml

  # Override listen address
  relay serve --listen 0.0.0.0:7860

  # Validate config without starting server
  relay serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Apply flag overrides
	if serveFlags.listenAddress != "" {
		cfg.Proxy.ListenAddress = serveFlags.listenAddress
	}
	if serveFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = serveFlags.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError(cfgFile, err.Error())
	}

	if err := setupLogging(cfg, os.Stdout); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if serveFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	fmt.Fprintf(out, "relay v%s\n", Version)
	fmt.Fprintf(out, "Loading configuration from: %s\n", cfgFile)

	ctx := cli.SetupSignalHandler()

	registry, closeStore, err := openRegistry(ctx, cfg)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	defer closeStore()
	fmt.Fprintf(out, "✓ API keys loaded (%d keys, %s store)\n", registry.Len(), registry.Store().Name())

	auth := cfg.Security.Authentication
	switch {
	case auth.Disabled:
		slog.Warn("authentication is disabled, every request is admitted")
	case registry.Len() == 0 && auth.AdminKey == "":
		slog.Warn("no api keys loaded and no admin key configured, every authenticated request will be rejected")
	}

	upstream, err := openai.NewProvider(providers.ProviderConfig{
		Name:                cfg.Upstream.Name,
		BaseURL:             cfg.Upstream.BaseURL,
		APIKey:              cfg.Upstream.APIKey,
		Timeout:             cfg.Upstream.Timeout,
		MaxRetries:          cfg.Upstream.MaxRetries,
		HealthCheckInterval: cfg.Upstream.HealthCheckInterval,
	})
	if err != nil {
		return cli.NewConfigError("upstream", err.Error())
	}
	defer upstream.Close()
	fmt.Fprintf(out, "✓ Upstream %s at %s\n", upstream.GetName(), cfg.Upstream.BaseURL)

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
	if err != nil {
		return cli.NewCommandError("serve", fmt.Errorf("failed to initialize tracing: %w", err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(flushCtx); err != nil {
			slog.Warn("failed to flush traces", "error", err)
		}
	}()

	srv, err := server.New(cfg, server.Dependencies{
		Registry: registry,
		Provider: upstream,
		Metrics:  collector,
		Tracer:   tracer,
		Build: server.BuildInfo{
			Version:   Version,
			Commit:    GitCommit,
			BuildTime: BuildDate,
		},
	})
	if err != nil {
		return cli.NewCommandError("serve", err)
	}

	fmt.Fprintf(out, "✓ Listening on %s\n", cfg.Proxy.ListenAddress)
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("serve", err)
	}

	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

// openRegistry opens the configured key store and loads it. A key file that
// does not exist yet yields an empty registry; it is created on first save.
func openRegistry(ctx context.Context, cfg *config.Config) (*keys.Registry, func(), error) {
	store, err := keys.OpenStore(ctx, &cfg.Keys)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open key store: %w", err)
	}
	closeStore := func() {
		if err := store.Close(); err != nil {
			slog.Warn("failed to close key store", "error", err)
		}
	}

	registry := keys.NewRegistry(store)
	if err := registry.Load(ctx); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			closeStore()
			return nil, nil, err
		}
		slog.Warn("api key file not found, starting with an empty registry", "path", cfg.Keys.File)
	}

	return registry, closeStore, nil
}
