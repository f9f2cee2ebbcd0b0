package models

import (
	"encoding/json"
	"time"
)

// TrackedEntity is a company (or fund) whose treasury holdings are monitored.
// CurrentHoldings is mutated only by an approved pending update.
type TrackedEntity struct {
	ID                  int64        `json:"id"`
	Ticker              string       `json:"ticker"`
	Name                string       `json:"name"`
	Asset               string       `json:"asset"`
	CurrentHoldings     float64      `json:"current_holdings"`
	HoldingsLastUpdated time.Time    `json:"holdings_last_updated"`
	Sources             SourceConfig `json:"sources"`
}

// SourceConfig holds the per-source identifiers for one entity. Any field may
// be empty; a checker skips entities that don't configure its source.
type SourceConfig struct {
	FilingIndexID   string   `json:"filing_index_id,omitempty"` // e.g. SEC CIK
	HoldingsPageURL string   `json:"holdings_page_url,omitempty"`
	AnnouncementURL string   `json:"announcement_url,omitempty"`
	AggregatorSlug  string   `json:"aggregator_slug,omitempty"`
	WalletAddresses []string `json:"wallet_addresses,omitempty"`
	SocialQueries   []string `json:"social_queries,omitempty"`
}

// EncodeSourceConfig serializes a source config for storage.
func EncodeSourceConfig(sc SourceConfig) (string, error) {
	data, err := json.Marshal(sc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeSourceConfig parses a stored source config. An empty string decodes
// to the zero config.
func DecodeSourceConfig(raw string) (SourceConfig, error) {
	var sc SourceConfig
	if raw == "" {
		return sc, nil
	}
	err := json.Unmarshal([]byte(raw), &sc)
	return sc, err
}

// IsStale reports whether the entity's holdings have not been refreshed
// within the given threshold.
func (e *TrackedEntity) IsStale(threshold time.Duration, now time.Time) bool {
	if e.HoldingsLastUpdated.IsZero() {
		return true
	}
	return now.Sub(e.HoldingsLastUpdated) > threshold
}
