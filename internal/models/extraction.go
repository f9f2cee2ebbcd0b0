package models

// ValueBasis distinguishes how an extracted holdings value was derived.
type ValueBasis string

const (
	// BasisStatedTotal means the text stated the total directly.
	BasisStatedTotal ValueBasis = "stated_total"
	// BasisComputedDelta means the text stated a purchase or sale and the
	// total was computed from the entity's current holdings.
	BasisComputedDelta ValueBasis = "computed_delta"
)

// TransactionType classifies a stated delta.
type TransactionType string

const (
	TransactionPurchase TransactionType = "purchase"
	TransactionSale     TransactionType = "sale"
)

// TransactionDetail carries the stated delta when Basis is
// BasisComputedDelta. It is nil for stated totals, so the two cases cannot
// be conflated by reading optional fields alone.
type TransactionDetail struct {
	Type   TransactionType `json:"type"`
	Amount float64         `json:"amount"`
}

// ExtractionResult is the structured output of the extraction engine for one
// piece of source text. Holdings is nil when no value could be extracted;
// downstream treats that as "no candidate".
type ExtractionResult struct {
	Holdings          *float64           `json:"holdings,omitempty"`
	SharesOutstanding *float64           `json:"shares_outstanding,omitempty"`
	SharesBasic       *float64           `json:"shares_basic,omitempty"`
	CostBasisUSD      *float64           `json:"cost_basis_usd,omitempty"`
	Confidence        float64            `json:"confidence"`
	Reasoning         string             `json:"reasoning"`
	ExtractedDate     string             `json:"extracted_date,omitempty"`
	RawNumbers        []float64          `json:"raw_numbers,omitempty"`
	ExplicitlyStated  bool               `json:"explicitly_stated"`
	Basis             ValueBasis         `json:"basis,omitempty"`
	Transaction       *TransactionDetail `json:"transaction,omitempty"`
	ValidationIssues  []string           `json:"validation_issues,omitempty"`
}

// HasHoldings reports whether a usable value was extracted.
func (r *ExtractionResult) HasHoldings() bool {
	return r != nil && r.Holdings != nil
}
