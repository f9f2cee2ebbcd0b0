package models

import "time"

// UpdateStatus is the disposition of a pending update.
type UpdateStatus string

const (
	UpdatePending    UpdateStatus = "pending"
	UpdateApproved   UpdateStatus = "approved"
	UpdateRejected   UpdateStatus = "rejected"
	UpdateSuperseded UpdateStatus = "superseded"
)

// PendingUpdate is a persisted candidate change to an entity's holdings,
// awaiting automatic or manual disposition.
type PendingUpdate struct {
	ID               int64          `json:"id"`
	EntityID         int64          `json:"entity_id"`
	Ticker           string         `json:"ticker"`
	DetectedHoldings float64        `json:"detected_holdings"`
	PreviousHoldings float64        `json:"previous_holdings"`
	Confidence       float64        `json:"confidence"`
	Source           SourceCategory `json:"source"`
	SourceURL        string         `json:"source_url"`
	TrustTier        TrustTier      `json:"trust_tier"`
	Status           UpdateStatus   `json:"status"`
	AutoApproved     bool           `json:"auto_approved"`
	ApprovalReason   string         `json:"approval_reason,omitempty"`
	Reasoning        string         `json:"reasoning,omitempty"`
	RunID            int64          `json:"run_id"`
	CreatedAt        time.Time      `json:"created_at"`
	ResolvedAt       *time.Time     `json:"resolved_at,omitempty"`
}

// ApprovalDecision is the outcome of evaluating the approval policy for one
// candidate. Escalation is set only for pending outcomes.
type ApprovalDecision struct {
	Approve    bool   `json:"approve"`
	Reason     string `json:"reason"`
	Escalation string `json:"escalation,omitempty"` // "standard" or "senior"
}
