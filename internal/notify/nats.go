package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chainraise/chainraise/internal/config"
	"github.com/chainraise/chainraise/internal/monitoring"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSSink publishes notification events to a JetStream subject so other
// services can observe transaction lifecycles without polling the gateway.
type NATSSink struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	subject string
	logger  zerolog.Logger
}

// NewNATSSink connects to NATS and ensures the notification stream exists.
func NewNATSSink(cfg *config.NATSConfig, logger zerolog.Logger) (*NATSSink, error) {
	opts := []nats.Option{
		nats.Name("chainraise"),
		nats.Timeout(10 * time.Second),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
	}
	if len(cfg.URLs) > 1 {
		opts = append(opts, nats.DontRandomize())
	}

	conn, err := nats.Connect(cfg.URLs[0], opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	sink := &NATSSink{
		conn:    conn,
		js:      js,
		subject: cfg.Subject,
		logger:  logger.With().Str("component", "nats-sink").Logger(),
	}

	if err := sink.initializeStream(cfg.StreamName); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize stream: %w", err)
	}

	sink.logger.Info().
		Str("url", cfg.URLs[0]).
		Str("subject", cfg.Subject).
		Msg("NATS notification sink initialized")

	return sink, nil
}

func (s *NATSSink) initializeStream(streamName string) error {
	if streamName == "" {
		streamName = "CHAINRAISE_EVENTS"
	}

	if _, err := s.js.StreamInfo(streamName); err == nil {
		s.logger.Debug().Str("stream", streamName).Msg("Stream already exists")
		return nil
	}

	_, err := s.js.AddStream(&nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{s.subject},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Discard:   nats.DiscardOld,
	})
	return err
}

// Name identifies the sink in logs and metrics.
func (s *NATSSink) Name() string { return "nats" }

// Deliver publishes the event to the configured subject.
func (s *NATSSink) Deliver(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := s.js.Publish(s.subject, data, nats.Context(ctx)); err != nil {
		monitoring.RecordNotification(s.Name(), "failed")
		return fmt.Errorf("failed to publish event: %w", err)
	}

	monitoring.RecordNotification(s.Name(), "delivered")
	return nil
}

// Close drains and closes the NATS connection.
func (s *NATSSink) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}
