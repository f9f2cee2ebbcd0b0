package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voskhod/treasurywatch/config"
	"github.com/voskhod/treasurywatch/internal/models"
)

func TestWebhookNotifierPostsEvent(t *testing.T) {
	var received Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	update := &models.PendingUpdate{
		Ticker:           "ACME",
		PreviousHoldings: 500000,
		DetectedHoldings: 550000,
		Source:           models.SourceRegulatoryFiling,
		Confidence:       0.95,
		AutoApproved:     true,
	}
	if err := n.Send(context.Background(), HoldingsUpdate(update, "BTC")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if received.Kind != EventHoldingsUpdate {
		t.Errorf("kind = %q, want %q", received.Kind, EventHoldingsUpdate)
	}
	if received.NewHoldings != 550000 || received.PreviousHoldings != 500000 {
		t.Errorf("holdings = %v -> %v", received.PreviousHoldings, received.NewHoldings)
	}
	if !received.AutoApproved {
		t.Error("auto_approved not carried")
	}
}

func TestWebhookNotifierReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Send(context.Background(), StaleData([]string{"ACME"})); err == nil {
		t.Fatal("expected error for HTTP 502")
	}
}

func TestAggregatorUpdateBecomesDiscrepancy(t *testing.T) {
	event := HoldingsUpdate(&models.PendingUpdate{Ticker: "ACME", Source: models.SourceAggregator}, "BTC")
	if event.Kind != EventDiscrepancy {
		t.Errorf("kind = %q, want %q", event.Kind, EventDiscrepancy)
	}
}

func TestNewPicksLogNotifierWithoutURL(t *testing.T) {
	if _, ok := New(&config.Config{}).(LogNotifier); !ok {
		t.Error("expected LogNotifier when webhook URL unset")
	}
	if _, ok := New(&config.Config{NotifyWebhookURL: "https://hooks.example/x"}).(*WebhookNotifier); !ok {
		t.Error("expected WebhookNotifier when URL set")
	}
}
