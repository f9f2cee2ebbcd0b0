package extraction

import (
	"fmt"
	"strings"

	"github.com/voskhod/treasurywatch/internal/models"
	"github.com/voskhod/treasurywatch/internal/policy"
)

// maxSaneHoldings caps a plausible extraction: no entity can hold more than
// the asset's total supply.
const maxSaneHoldings = 21_000_000

// validationDiscount is applied once to confidence when any issue is found.
const validationDiscount = 0.7

// minPlausibleConfidence flags a low-confidence extraction for review.
const minPlausibleConfidence = 0.5

// Validate runs the deterministic sanity checks over an extraction against
// the entity's current holdings and returns the issues found. Issues are
// advisory: they discount confidence and surface in reasoning, but they
// never null out a value. Only an absent or negative extraction is
// hard-rejected, and that happens downstream.
func Validate(result *models.ExtractionResult, currentHoldings float64) []string {
	if !result.HasHoldings() {
		return nil
	}

	var issues []string
	holdings := *result.Holdings

	if holdings < 0 {
		issues = append(issues, fmt.Sprintf("holdings is negative (%.8g)", holdings))
	}
	if holdings > maxSaneHoldings {
		issues = append(issues, fmt.Sprintf("holdings %.8g exceeds plausible ceiling %d", holdings, maxSaneHoldings))
	}
	if change := policy.ChangeMagnitude(holdings, currentHoldings); change > 1.0 {
		issues = append(issues, fmt.Sprintf("change of %.0f%% from current holdings is implausibly large", change*100))
	}
	if result.Confidence < minPlausibleConfidence {
		issues = append(issues, fmt.Sprintf("confidence %.2f below %.2f", result.Confidence, minPlausibleConfidence))
	}

	return issues
}

// ApplyValidation folds issues into the result: appended to reasoning and a
// single confidence discount. Called on every extraction, even clean ones.
func ApplyValidation(result *models.ExtractionResult, currentHoldings float64) {
	issues := Validate(result, currentHoldings)
	if len(issues) == 0 {
		return
	}

	result.ValidationIssues = issues
	result.Confidence *= validationDiscount
	note := "validation: " + strings.Join(issues, "; ")
	if result.Reasoning == "" {
		result.Reasoning = note
	} else {
		result.Reasoning += ". " + note
	}
}
