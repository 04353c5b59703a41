package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainraise/chainraise/internal/chain"
	"github.com/chainraise/chainraise/internal/config"
	"github.com/chainraise/chainraise/internal/contract"
	"github.com/chainraise/chainraise/internal/monitoring"
	"github.com/chainraise/chainraise/internal/notify"
	"github.com/chainraise/chainraise/internal/types"
)

var (
	configPath = flag.String("config", "config/config.testnet.yaml", "Path to configuration file")
	interval   = flag.Duration("interval", 30*time.Second, "Refresh interval")
)

func main() {
	flag.Parse()

	// Setup logger
	logger := setupLogger()

	logger.Info().
		Str("service", "watcher").
		Str("config", *configPath).
		Dur("interval", *interval).
		Msg("Starting Chainraise watcher")

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Info().
		Str("environment", string(cfg.Environment)).
		Str("network", cfg.Network.Name).
		Msg("Configuration loaded")

	client, err := chain.NewClient(&cfg.Network, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect chain client")
	}
	defer client.Close()

	gateway := contract.NewGateway(client, cfg.Contract, logger)

	sinks := make([]notify.Sink, 0, 2)
	if cfg.Notify.Webhook.Enabled {
		sinks = append(sinks, notify.NewWebhookSink(&cfg.Notify.Webhook, logger))
	}
	if cfg.Notify.NATS.Enabled {
		natsSink, err := notify.NewNATSSink(&cfg.Notify.NATS, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect NATS sink")
		}
		sinks = append(sinks, natsSink)
	}
	notifier := notify.NewNotifier(logger, sinks...)
	defer notifier.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go watch(ctx, client, gateway, notifier, *interval, logger)

	logger.Info().Msg("Watcher started")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info().Msg("Shutdown signal received")

	cancel()
	logger.Info().Msg("Watcher stopped")
}

// watch periodically re-reads the campaign list, reports chain health and
// publishes a notification for every externally observed change.
func watch(ctx context.Context, client *chain.Client, gateway *contract.Gateway, notifier *notify.Notifier, interval time.Duration, logger zerolog.Logger) {
	watchLogger := logger.With().Str("component", "watcher").Logger()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var previous []types.Campaign

	for {
		healthy := client.IsHealthy(ctx)
		monitoring.UpdateChainHealth(healthy)
		if !healthy {
			watchLogger.Warn().Msg("Chain not reachable")
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			continue
		}

		campaigns, err := gateway.ListCampaigns(ctx)
		if err != nil {
			watchLogger.Error().Err(err).Msg("Failed to list campaigns")
		} else {
			reportChanges(ctx, notifier, previous, campaigns, watchLogger)
			previous = campaigns
		}

		select {
		case <-ctx.Done():
			watchLogger.Info().Msg("Watch loop stopped")
			return
		case <-ticker.C:
		}
	}
}

// reportChanges diffs two campaign snapshots and publishes what changed.
func reportChanges(ctx context.Context, notifier *notify.Notifier, previous, current []types.Campaign, logger zerolog.Logger) {
	if previous == nil {
		logger.Info().Int("campaigns", len(current)).Msg("Initial campaign snapshot loaded")
		return
	}

	known := make(map[uint64]types.Campaign, len(previous))
	for _, c := range previous {
		known[c.ID] = c
	}

	for _, c := range current {
		old, exists := known[c.ID]
		switch {
		case !exists:
			notifier.Info(ctx, "New campaign",
				fmt.Sprintf("Campaign %d (%s) created with goal %s", c.ID, c.Name, c.Goal))
		case old.AmountRaised != c.AmountRaised:
			notifier.Info(ctx, "Campaign funded",
				fmt.Sprintf("Campaign %d (%s) raised amount changed from %s to %s", c.ID, c.Name, old.AmountRaised, c.AmountRaised))
		case old.IsActive && !c.IsActive:
			notifier.Info(ctx, "Campaign closed",
				fmt.Sprintf("Campaign %d (%s) was closed at %s raised", c.ID, c.Name, c.AmountRaised))
		}
	}
}

func setupLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	env := os.Getenv("CHAINRAISE_ENVIRONMENT")
	if env == "development" || env == "testnet" {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Caller().
			Logger()
		return logger
	}

	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Caller().
		Logger()
}
