package models

import (
	"time"
	"unicode/utf8"
)

// SourceCategory identifies which external source a candidate came from.
// The set is closed: the approval policy must cover every category
// explicitly, so adding a category without a policy row is a compile-time
// conversation, not a silent fallback.
type SourceCategory string

const (
	SourceRegulatoryFiling SourceCategory = "regulatory_filing"
	SourceHoldingsPage     SourceCategory = "holdings_page"
	SourceAnnouncement     SourceCategory = "announcement"
	SourceSocial           SourceCategory = "social"
	SourceAggregator       SourceCategory = "aggregator"
	SourceOnChain          SourceCategory = "onchain"
)

// AllSourceCategories returns the categories in the fixed order the
// orchestrator runs them.
func AllSourceCategories() []SourceCategory {
	return []SourceCategory{
		SourceRegulatoryFiling,
		SourceHoldingsPage,
		SourceAnnouncement,
		SourceSocial,
		SourceAggregator,
		SourceOnChain,
	}
}

// TrustTier ranks how authoritative a source is.
type TrustTier string

const (
	TrustOfficial   TrustTier = "official"
	TrustVerified   TrustTier = "verified"
	TrustCommunity  TrustTier = "community"
	TrustUnverified TrustTier = "unverified"
)

// Rank returns a comparable order, higher is more trustworthy.
func (t TrustTier) Rank() int {
	switch t {
	case TrustOfficial:
		return 3
	case TrustVerified:
		return 2
	case TrustCommunity:
		return 1
	default:
		return 0
	}
}

// SourceCandidate is one detected holdings value (or raw text still awaiting
// extraction) emitted by a source checker. Candidates are ephemeral: they
// live only for the duration of a monitoring run.
type SourceCandidate struct {
	Entity           *TrackedEntity `json:"entity"`
	Category         SourceCategory `json:"category"`
	DetectedHoldings *float64       `json:"detected_holdings,omitempty"`
	RawText          string         `json:"raw_text,omitempty"`
	TrustTier        TrustTier      `json:"trust_tier"`
	SourceURL        string         `json:"source_url"`
	SourceDate       time.Time      `json:"source_date"`
	Confidence       float64        `json:"confidence"`
}

const maxRawTextBytes = 64 * 1024

// BoundRawText truncates candidate text to the size bound the pipeline
// accepts. Filing documents can run to megabytes; everything past the bound
// adds latency to extraction without adding signal.
func BoundRawText(text string) string {
	if len(text) <= maxRawTextBytes {
		return text
	}
	// Back the cut off to a rune boundary so the truncated text stays valid
	// UTF-8 for the extraction delegate.
	cut := maxRawTextBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
