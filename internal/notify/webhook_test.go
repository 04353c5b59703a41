package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/chainraise/chainraise/internal/config"
	"github.com/chainraise/chainraise/internal/types"
)

func TestWebhookDeliverySignsPayload(t *testing.T) {
	const secret = "test-secret"

	var gotSignature string
	var gotLevel string
	var gotBody []byte
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Chainraise-Signature")
		gotLevel = r.Header.Get("X-Chainraise-Event")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	sink := NewWebhookSink(&config.WebhookConfig{
		Enabled: true,
		URL:     receiver.URL,
		Secret:  secret,
		Timeout: "5s",
	}, zerolog.Nop())

	event := &Event{
		ID:     "evt-1",
		Level:  LevelSuccess,
		Title:  "Donation confirmed",
		Op:     types.OpDonate,
		TxHash: "0xdead",
	}
	if err := sink.Deliver(context.Background(), event); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSignature != want {
		t.Errorf("signature = %q, want %q", gotSignature, want)
	}
	if gotLevel != "success" {
		t.Errorf("event header = %q, want success", gotLevel)
	}

	var received Event
	if err := json.Unmarshal(gotBody, &received); err != nil {
		t.Fatalf("failed to decode delivered event: %v", err)
	}
	if received.Title != "Donation confirmed" || received.TxHash != "0xdead" {
		t.Errorf("unexpected delivered event: %+v", received)
	}
}

func TestWebhookDeliveryWithoutSecret(t *testing.T) {
	var signed atomic.Bool
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signed.Store(r.Header.Get("X-Chainraise-Signature") != "")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer receiver.Close()

	sink := NewWebhookSink(&config.WebhookConfig{URL: receiver.URL, Timeout: "5s"}, zerolog.Nop())

	if err := sink.Deliver(context.Background(), &Event{ID: "evt-1", Level: LevelInfo, Title: "hi"}); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if signed.Load() {
		t.Error("unsigned delivery carried a signature header")
	}
}

func TestWebhookRetriesUntilSuccess(t *testing.T) {
	var attempts atomic.Int32
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	sink := NewWebhookSink(&config.WebhookConfig{
		URL:        receiver.URL,
		MaxRetries: 3,
		Timeout:    "5s",
	}, zerolog.Nop())

	if err := sink.Deliver(context.Background(), &Event{ID: "evt-1", Level: LevelInfo, Title: "hi"}); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestWebhookFailsAfterRetryBudget(t *testing.T) {
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer receiver.Close()

	sink := NewWebhookSink(&config.WebhookConfig{
		URL:        receiver.URL,
		MaxRetries: 1,
		Timeout:    "5s",
	}, zerolog.Nop())

	if err := sink.Deliver(context.Background(), &Event{ID: "evt-1", Level: LevelError, Title: "hi"}); err == nil {
		t.Error("delivery reported success against a failing receiver")
	}
}

// failingSink always errors, to show delivery failures never escape Publish.
type failingSink struct{ calls int }

func (f *failingSink) Name() string { return "failing" }

func (f *failingSink) Deliver(ctx context.Context, e *Event) error {
	f.calls++
	return context.DeadlineExceeded
}

func (f *failingSink) Close() error { return nil }

func TestNotifierSwallowsSinkFailures(t *testing.T) {
	sink := &failingSink{}
	n := NewNotifier(zerolog.Nop(), sink)

	n.Error(context.Background(), "Donation failed", "Campaign is not active")

	if sink.calls != 1 {
		t.Errorf("sink called %d times, want 1", sink.calls)
	}
}

func TestNotifierNilSafe(t *testing.T) {
	var n *Notifier
	n.Info(context.Background(), "hi", "there")
	n.Close()
}

func TestPublishFillsDefaults(t *testing.T) {
	recorded := &recordingSink{}
	n := NewNotifier(zerolog.Nop(), recorded)

	n.Publish(context.Background(), &Event{Level: LevelInfo, Title: "hi"})

	if recorded.last == nil {
		t.Fatal("event never delivered")
	}
	if recorded.last.ID == "" {
		t.Error("event id not assigned")
	}
	if recorded.last.Timestamp.IsZero() {
		t.Error("event timestamp not assigned")
	}
}

type recordingSink struct{ last *Event }

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Deliver(ctx context.Context, e *Event) error {
	r.last = e
	return nil
}

func (r *recordingSink) Close() error { return nil }
