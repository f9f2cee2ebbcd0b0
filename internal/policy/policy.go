// Package policy decides whether a detected holdings change is applied
// automatically or queued for human review. The decision table is total over
// the closed set of source categories: every (category, confidence, change)
// combination maps to exactly one outcome, and no category falls through to
// a permissive default.
package policy

import (
	"fmt"
	"math"

	"github.com/voskhod/treasurywatch/internal/models"
)

const (
	// EscalationStandard routes to the normal review queue.
	EscalationStandard = "standard"
	// EscalationSenior routes to senior review for large or low-trust changes.
	EscalationSenior = "senior"

	minAutoApproveConfidence = 0.75
)

// Per-tier thresholds. Official on-chain data tolerates the largest swing
// since the value is independently verifiable; scraped pages the smallest.
const (
	onChainMinConfidence = 0.80
	onChainMaxChange     = 0.50

	filingMinConfidence = 0.85
	filingMaxChange     = 0.30

	officialPageMinConfidence = 0.90
	holdingsPageMaxChange     = 0.20
	announcementMaxChange     = 0.15
	officialSeniorChange      = 0.25
)

// ChangeMagnitude returns |detected-current|/current. When current is zero,
// any positive detected value counts as a 100% change.
func ChangeMagnitude(detected, current float64) float64 {
	if current == 0 {
		if detected > 0 {
			return 1.0
		}
		return 0
	}
	return math.Abs(detected-current) / current
}

// Evaluate applies the decision table to one candidate. The candidate's
// detected value must already be resolved (extraction done) and distinct
// from the entity's current holdings.
func Evaluate(category models.SourceCategory, tier models.TrustTier, confidence, detected, current float64) models.ApprovalDecision {
	change := ChangeMagnitude(detected, current)

	// Low confidence blocks auto-approval no matter how trusted the source.
	if confidence < minAutoApproveConfidence {
		return pending(EscalationStandard,
			fmt.Sprintf("confidence %.2f below auto-approval floor %.2f", confidence, minAutoApproveConfidence))
	}

	switch category {
	case models.SourceOnChain:
		if confidence >= onChainMinConfidence && change <= onChainMaxChange {
			return approve(fmt.Sprintf("on-chain balance, confidence %.2f, change %.1f%%", confidence, change*100))
		}
		return pending(EscalationStandard,
			fmt.Sprintf("on-chain change %.1f%% exceeds %.0f%% auto-approval ceiling", change*100, onChainMaxChange*100))

	case models.SourceRegulatoryFiling:
		if confidence >= filingMinConfidence && change <= filingMaxChange {
			return approve(fmt.Sprintf("regulatory filing, confidence %.2f, change %.1f%%", confidence, change*100))
		}
		return pending(EscalationSenior,
			fmt.Sprintf("filing candidate outside auto-approval bounds (confidence %.2f, change %.1f%%)", confidence, change*100))

	case models.SourceHoldingsPage:
		if confidence >= officialPageMinConfidence && change <= holdingsPageMaxChange {
			return approve(fmt.Sprintf("official holdings page, confidence %.2f, change %.1f%%", confidence, change*100))
		}
		return pendingOfficial(change, confidence)

	case models.SourceAnnouncement:
		if confidence >= officialPageMinConfidence && change <= announcementMaxChange {
			return approve(fmt.Sprintf("official announcement, confidence %.2f, change %.1f%%", confidence, change*100))
		}
		return pendingOfficial(change, confidence)

	case models.SourceAggregator:
		// Aggregators only surface discrepancies; their numbers are never
		// applied without verification.
		return pending(EscalationStandard, "aggregator discrepancy flagged for verification")

	case models.SourceSocial:
		return pending(EscalationStandard,
			fmt.Sprintf("social source at %s trust tier; manual review required", tier))

	default:
		// The category set is closed; reaching here means a new category was
		// added without a policy row. Fail safe to manual review.
		return pending(EscalationStandard, fmt.Sprintf("no policy row for category %q", category))
	}
}

func pendingOfficial(change, confidence float64) models.ApprovalDecision {
	escalation := EscalationStandard
	if change > officialSeniorChange {
		escalation = EscalationSenior
	}
	return pending(escalation,
		fmt.Sprintf("official channel candidate outside auto-approval bounds (confidence %.2f, change %.1f%%)", confidence, change*100))
}

func approve(reason string) models.ApprovalDecision {
	return models.ApprovalDecision{Approve: true, Reason: reason}
}

func pending(escalation, reason string) models.ApprovalDecision {
	return models.ApprovalDecision{Approve: false, Reason: reason, Escalation: escalation}
}
