// Package notify delivers pipeline events to an external webhook. Delivery
// is best-effort: the orchestrator logs failures and moves on, it never
// fails a run over a notification.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/phuslu/log"

	"github.com/voskhod/treasurywatch/config"
	"github.com/voskhod/treasurywatch/internal/httpx"
	"github.com/voskhod/treasurywatch/internal/models"
)

// EventKind discriminates notification payloads.
type EventKind string

const (
	EventHoldingsUpdate EventKind = "holdings-update"
	EventStaleData      EventKind = "stale-data"
	EventDiscrepancy    EventKind = "discrepancy"
	EventRunSummary     EventKind = "run-summary"
	EventError          EventKind = "error"
)

// Event is one notification. Only the fields relevant to the kind are set.
type Event struct {
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	// holdings-update / discrepancy
	Ticker           string                `json:"ticker,omitempty"`
	Asset            string                `json:"asset,omitempty"`
	PreviousHoldings float64               `json:"previous_holdings,omitempty"`
	NewHoldings      float64               `json:"new_holdings,omitempty"`
	Source           models.SourceCategory `json:"source,omitempty"`
	SourceURL        string                `json:"source_url,omitempty"`
	Confidence       float64               `json:"confidence,omitempty"`
	AutoApproved     bool                  `json:"auto_approved,omitempty"`
	Reasoning        string                `json:"reasoning,omitempty"`

	// stale-data
	StaleTickers []string `json:"stale_tickers,omitempty"`

	// run-summary / error
	RunID    int64               `json:"run_id,omitempty"`
	RunType  string              `json:"run_type,omitempty"`
	Counters *models.RunCounters `json:"counters,omitempty"`
	Message  string              `json:"message,omitempty"`
}

// HoldingsUpdate builds the per-candidate event.
func HoldingsUpdate(u *models.PendingUpdate, asset string) Event {
	kind := EventHoldingsUpdate
	if u.Source == models.SourceAggregator {
		kind = EventDiscrepancy
	}
	return Event{
		Kind:             kind,
		Timestamp:        time.Now().UTC(),
		Ticker:           u.Ticker,
		Asset:            asset,
		PreviousHoldings: u.PreviousHoldings,
		NewHoldings:      u.DetectedHoldings,
		Source:           u.Source,
		SourceURL:        u.SourceURL,
		Confidence:       u.Confidence,
		AutoApproved:     u.AutoApproved,
		Reasoning:        u.Reasoning,
	}
}

func StaleData(tickers []string) Event {
	return Event{Kind: EventStaleData, Timestamp: time.Now().UTC(), StaleTickers: tickers}
}

func RunSummary(run *models.MonitoringRun) Event {
	counters := run.Counters
	return Event{
		Kind:      EventRunSummary,
		Timestamp: time.Now().UTC(),
		RunID:     run.ID,
		RunType:   run.RunType,
		Counters:  &counters,
	}
}

func RunError(runID int64, runType, message string) Event {
	return Event{
		Kind:      EventError,
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		RunType:   runType,
		Message:   message,
	}
}

// Notifier delivers one event.
type Notifier interface {
	Send(ctx context.Context, event Event) error
}

// New picks the webhook notifier when a URL is configured, log-only
// delivery otherwise.
func New(cfg *config.Config) Notifier {
	if cfg.NotifyWebhookURL != "" {
		return NewWebhookNotifier(cfg.NotifyWebhookURL)
	}
	return LogNotifier{}
}

// WebhookNotifier POSTs events as JSON to a configured URL.
type WebhookNotifier struct {
	client *resty.Client
	url    string
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	client := resty.New()
	client.SetTimeout(httpx.DefaultTimeout)
	return &WebhookNotifier{client: client, url: url}
}

func (w *WebhookNotifier) Send(ctx context.Context, event Event) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(event).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("notification webhook HTTP %d", resp.StatusCode())
	}
	return nil
}

// LogNotifier writes events to the structured log. Used when no webhook is
// configured so event content still lands somewhere inspectable.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, event Event) error {
	log.Info().Str("kind", string(event.Kind)).
		Str("ticker", event.Ticker).
		Int64("run_id", event.RunID).
		Str("message", event.Message).
		Msg("notification")
	return nil
}
