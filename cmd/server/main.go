package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/audioscribe/transcript-gateway/internal/config"
	"github.com/audioscribe/transcript-gateway/internal/credstore"
	"github.com/audioscribe/transcript-gateway/internal/metrics"
	"github.com/audioscribe/transcript-gateway/internal/server"
	"github.com/audioscribe/transcript-gateway/internal/transcription"
	"github.com/audioscribe/transcript-gateway/internal/workflow"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "transcript-gateway"
	serviceVersion    = "1.0.0"

	// apiKeyEnvVar seeds the credential store on first start.
	apiKeyEnvVar = "TRANSCRIBE_API_KEY"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load optional .env file before reading the environment
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.HTTP.Address),
		slog.Int("http_port", cfg.HTTP.Port),
		slog.String("transcription_base_url", cfg.Transcription.BaseURL),
		slog.String("language_code", cfg.Transcription.LanguageCode),
		slog.Float64("poll_interval", cfg.Workflow.PollInterval),
		slog.String("credentials_path", cfg.Credentials.Path),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	// Initialize transcription API client
	client, err := transcription.NewClient(transcription.Config{
		BaseURL:      cfg.Transcription.BaseURL,
		LanguageCode: cfg.Transcription.LanguageCode,
		Timeout:      cfg.Transcription.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize credential store
	store, err := credstore.NewStore(cfg.Credentials.Path)
	if err != nil {
		logger.Error("Failed to create credential store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize workflow controller
	controller, err := workflow.NewController(client, store, logger, appMetrics, workflow.Config{
		PollInterval:   cfg.Workflow.GetPollIntervalDuration(),
		RequestTimeout: cfg.Transcription.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create workflow controller", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Workflow controller initialized",
		slog.Duration("poll_interval", cfg.Workflow.GetPollIntervalDuration()),
		slog.Bool("has_credential", controller.HasCredential()),
	)

	// Seed the credential from the environment when the store is empty
	if !controller.HasCredential() {
		if key := os.Getenv(apiKeyEnvVar); key != "" {
			if err := controller.SetCredential(key); err != nil {
				logger.Error("Failed to seed credential from environment", slog.String("error", err.Error()))
				os.Exit(1)
			}
			logger.Info("Credential seeded from environment", slog.String("env_var", apiKeyEnvVar))
		}
	}

	// Initialize HTTP API server
	httpConfig := server.HTTPServerConfig{
		Port:    cfg.HTTP.Port,
		Address: cfg.HTTP.Address,
	}
	httpServer := server.NewHTTPServer(httpConfig, logger, cfg, controller, appMetrics)
	logger.Info("HTTP API server initialized",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	// Start HTTP server
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Stop the workflow controller (tear down polling and wait for workers)
	controller.Close()

	// Log final workflow state
	snap := controller.Snapshot()
	logger.Info("Final workflow state",
		slog.String("state", string(snap.State)),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
