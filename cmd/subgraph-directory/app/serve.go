package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/graphfoundry/subgraph-directory/internal/api"
	"github.com/graphfoundry/subgraph-directory/internal/config"
	"github.com/graphfoundry/subgraph-directory/internal/directory"
	"github.com/graphfoundry/subgraph-directory/internal/eventual"
	"github.com/graphfoundry/subgraph-directory/internal/networksubgraph"
	"github.com/graphfoundry/subgraph-directory/internal/telemetry"
	"github.com/graphfoundry/subgraph-directory/internal/tiers"
	"github.com/graphfoundry/subgraph-directory/internal/versions"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the subgraph directory server",
	Long: `Start the subgraph directory server.

The server requires a configuration file (--config) that specifies:
- The network subgraph endpoint to poll for deployment records
- Poll interval, page size, and upstream client settings
- Billing tiers served by the tier lookup endpoints
- Telemetry and HTTP server settings

See examples/ directory for sample configurations.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second // Kubernetes-friendly shutdown time
	serverRequestTimeout   = 10 * time.Second // Directory lookups should respond quickly
	serverReadTimeout      = 10 * time.Second // Enough for headers and small requests
	serverWriteTimeout     = 15 * time.Second // Must be > serverRequestTimeout to let middleware handle timeout
	serverIdleTimeout      = 60 * time.Second // Keep connections alive for reuse
)

func init() {
	serveCmd.Flags().String("address", "", "Address to listen on (overrides the config file)")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address"))
	if err != nil {
		slog.Error("Failed to bind address flag", "error", err)
		os.Exit(1)
	}
	err = viper.BindPFlag("config", serveCmd.Flags().Lookup("config"))
	if err != nil {
		slog.Error("Failed to bind config flag", "error", err)
		os.Exit(1)
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
		os.Exit(1)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	configPath := viper.GetString("config")
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.MinVersion != "" {
		if err := versions.MeetsMinimum(versions.GetVersionInfo().Version, cfg.MinVersion); err != nil {
			return fmt.Errorf("configuration %s: %w", configPath, err)
		}
	}

	address := viper.GetString("address")
	if address == "" {
		address = cfg.Server.GetAddress()
	}

	slog.Info("Starting subgraph directory server",
		"address", address,
		"endpoint", cfg.NetworkSubgraph.Endpoint,
		"poll_interval", cfg.NetworkSubgraph.GetPollInterval(),
		"tiers", len(cfg.Tiers))

	// Initialize telemetry (no-op providers when disabled)
	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown telemetry", "error", err)
		}
	}()

	pollMetrics, err := telemetry.NewPollMetrics(tel.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create poll metrics: %w", err)
	}
	directoryMetrics, err := telemetry.NewDirectoryMetrics(tel.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create directory metrics: %w", err)
	}

	// Build the upstream client
	authToken, err := cfg.NetworkSubgraph.GetAuthToken()
	if err != nil {
		return fmt.Errorf("failed to resolve upstream auth token: %w", err)
	}

	clientOpts := []networksubgraph.ClientOption{
		networksubgraph.WithTimeout(cfg.NetworkSubgraph.GetTimeout()),
		networksubgraph.WithMaxTries(uint(cfg.NetworkSubgraph.GetMaxTries())),
	}
	if authToken != "" {
		clientOpts = append(clientOpts, networksubgraph.WithAuthToken(authToken))
	}
	client := networksubgraph.NewClient(cfg.NetworkSubgraph.Endpoint, clientOpts...)

	// Wire the refresher into the snapshot sink
	sink := eventual.New[*directory.Snapshot]()
	refresher := directory.NewRefresher(client, sink,
		directory.WithPollInterval(cfg.NetworkSubgraph.GetPollInterval()),
		directory.WithPageSize(cfg.NetworkSubgraph.GetPageSize()),
		directory.WithPollMetrics(pollMetrics),
		directory.WithDirectoryMetrics(directoryMetrics),
		directory.WithTracer(tel.Tracer("github.com/graphfoundry/subgraph-directory/internal/directory")),
	)

	refreshCtx, refreshCancel := context.WithCancel(context.Background())
	defer refreshCancel()
	go func() {
		if err := refresher.Start(refreshCtx); err != nil {
			slog.Error("Directory refresher failed", "error", err)
		}
	}()

	dir := directory.NewDirectory(sink)
	tierTable := tiers.New(cfg.Tiers)

	// Assemble middleware. Metrics middleware goes first to capture all
	// requests including those rejected later in the chain.
	middlewares := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(serverRequestTimeout),
		api.LoggingMiddleware,
	}

	metricsMiddleware, err := telemetry.MetricsMiddleware(tel.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create metrics middleware: %w", err)
	}
	if metricsMiddleware != nil {
		middlewares = append([]func(http.Handler) http.Handler{metricsMiddleware}, middlewares...)
	}

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(middlewares...),
	}
	if scrape := tel.MetricsHandler(); scrape != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(scrape))
		slog.Info("Prometheus metrics exposed on /metrics")
	}

	router := api.NewServer(dir, tierTable, serverOpts...)

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		slog.Info("Server listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server")

	if err := refresher.Stop(); err != nil {
		slog.Error("Failed to stop directory refresher", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}

	slog.Info("Server shutdown complete")
	return nil
}
