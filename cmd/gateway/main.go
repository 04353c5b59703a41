package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/chainraise/chainraise/internal/api"
	"github.com/chainraise/chainraise/internal/cache"
	"github.com/chainraise/chainraise/internal/chain"
	"github.com/chainraise/chainraise/internal/config"
	"github.com/chainraise/chainraise/internal/contract"
	"github.com/chainraise/chainraise/internal/notify"
	"github.com/chainraise/chainraise/internal/tracker"
	"github.com/chainraise/chainraise/internal/wallet"
)

var (
	configPath = flag.String("config", "config/config.testnet.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	// Setup logger
	logger := setupLogger()

	logger.Info().
		Str("service", "gateway").
		Str("config", *configPath).
		Msg("Starting Chainraise gateway")

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Info().
		Str("environment", string(cfg.Environment)).
		Str("network", cfg.Network.Name).
		Uint64("chain_id", cfg.Network.ChainID).
		Msg("Configuration loaded")

	// Connect the read-only chain client; campaign browsing works with no
	// wallet connected.
	client, err := chain.NewClient(&cfg.Network, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect chain client")
	}
	defer client.Close()

	gateway := contract.NewGateway(client, cfg.Contract, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := gateway.EnsureContract(startCtx); err != nil {
		startCancel()
		logger.Fatal().Err(err).Msg("Donation contract not reachable")
	}
	startCancel()

	logger.Info().
		Str("contract", gateway.Address().Hex()).
		Msg("Donation contract verified")

	// Notification sinks
	sinks := make([]notify.Sink, 0, 2)
	if cfg.Notify.Webhook.Enabled {
		sinks = append(sinks, notify.NewWebhookSink(&cfg.Notify.Webhook, logger))
		logger.Info().Str("url", cfg.Notify.Webhook.URL).Msg("Webhook notifications enabled")
	}
	if cfg.Notify.NATS.Enabled {
		natsSink, err := notify.NewNATSSink(&cfg.Notify.NATS, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect NATS sink")
		}
		sinks = append(sinks, natsSink)
		logger.Info().Str("subject", cfg.Notify.NATS.Subject).Msg("NATS notifications enabled")
	}
	notifier := notify.NewNotifier(logger, sinks...)
	defer notifier.Close()

	// Wallet session manager with configured providers
	wallets := wallet.NewManager(cfg.Wallet, &cfg.Network, client, logger)
	for _, providerCfg := range cfg.Wallet.Providers {
		provider, err := wallet.NewProvider(providerCfg, promptPassphrase(providerCfg.ID))
		if err != nil {
			logger.Fatal().Err(err).Str("provider", providerCfg.ID).Msg("Failed to build wallet provider")
		}
		wallets.RegisterProvider(provider)
	}

	logger.Info().
		Int("providers", len(cfg.Wallet.Providers)).
		Msg("Wallet providers registered")

	// Tracker, snapshot cache
	trk := tracker.NewTracker(cfg.Tracker, logger)

	snapshots := cache.NewSnapshotCache(cfg.Cache.GetTTL(), logger)
	go snapshots.StartPeriodicCleanup(ctx, time.Minute)

	// Metrics endpoint
	if cfg.Monitoring.PrometheusPort > 0 {
		go startMetricsServer(cfg.Monitoring.PrometheusPort, logger)
	}

	// Create API server
	server := api.NewServer(cfg, client, gateway, wallets, trk, snapshots, notifier, logger)

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("API server failed")
		}
	}()

	logger.Info().
		Str("address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).
		Msg("Gateway started")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info().Msg("Shutdown signal received")

	wallets.Disconnect()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
	}

	logger.Info().Msg("Gateway stopped")
}

// promptPassphrase reads a keystore passphrase from the terminal. Providers
// configured with a passphrase env var never invoke it.
func promptPassphrase(providerID string) wallet.PassphraseFunc {
	return func() (string, error) {
		fmt.Printf("Passphrase for %s: ", providerID)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read passphrase: %w", err)
		}
		return string(raw), nil
	}
}

func startMetricsServer(port int, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("address", addr).Msg("Starting metrics server")

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("Metrics server failed")
	}
}

func setupLogger() zerolog.Logger {
	// Use JSON logging in production
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	env := os.Getenv("CHAINRAISE_ENVIRONMENT")
	if env == "development" || env == "testnet" {
		// Pretty logging for development
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Caller().
			Logger()
		return logger
	}

	// Structured JSON logging for production
	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Caller().
		Logger()
}
