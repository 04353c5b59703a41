// Package notify turns caught errors and transaction milestones into
// user-visible notifications. Every write operation ends in exactly one of
// three visible states: confirmed, failed with the best available reason, or
// submitted-but-unconfirmed prompting manual verification. Silent failures
// are not allowed anywhere above this package.
package notify

import (
	"context"
	"time"

	"github.com/chainraise/chainraise/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Level classifies a notification for presentation.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Event is one user-visible notification.
type Event struct {
	ID         string        `json:"id"`
	Level      Level         `json:"level"`
	Title      string        `json:"title"`
	Message    string        `json:"message,omitempty"`
	Op         types.WriteOp `json:"operation,omitempty"`
	TxHash     string        `json:"tx_hash,omitempty"`
	TrackingID string        `json:"tracking_id,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Sink delivers events to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event *Event) error
	Close() error
}

// Notifier fans events out to all configured sinks. Delivery failures are
// logged and counted, never propagated: a broken sink must not turn into a
// silent failure of the operation being reported.
type Notifier struct {
	sinks  []Sink
	logger zerolog.Logger
}

// NewNotifier creates a notifier over the given sinks.
func NewNotifier(logger zerolog.Logger, sinks ...Sink) *Notifier {
	return &Notifier{
		sinks:  sinks,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// Publish delivers an event to every sink. Safe on a nil notifier.
func (n *Notifier) Publish(ctx context.Context, event *Event) {
	if n == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	logEvent := n.logger.Info()
	if event.Level == LevelError {
		logEvent = n.logger.Error()
	}
	logEvent.
		Str("level", string(event.Level)).
		Str("title", event.Title).
		Str("message", event.Message).
		Str("tx_hash", event.TxHash).
		Msg("Notification")

	for _, sink := range n.sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			n.logger.Warn().
				Err(err).
				Str("sink", sink.Name()).
				Str("event_id", event.ID).
				Msg("Notification delivery failed")
		}
	}
}

// Info publishes an informational notification.
func (n *Notifier) Info(ctx context.Context, title, message string) {
	n.Publish(ctx, &Event{Level: LevelInfo, Title: title, Message: message})
}

// Success publishes a success notification.
func (n *Notifier) Success(ctx context.Context, title, message string) {
	n.Publish(ctx, &Event{Level: LevelSuccess, Title: title, Message: message})
}

// Error publishes an error notification.
func (n *Notifier) Error(ctx context.Context, title, message string) {
	n.Publish(ctx, &Event{Level: LevelError, Title: title, Message: message})
}

// Close closes all sinks.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	for _, sink := range n.sinks {
		if err := sink.Close(); err != nil {
			n.logger.Warn().Err(err).Str("sink", sink.Name()).Msg("Error closing notification sink")
		}
	}
}
