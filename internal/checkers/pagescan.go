package checkers

import (
	"regexp"
	"strconv"
	"strings"
)

// ScanResult is a numeric holdings value pulled out of page text, with the
// confidence of the extraction path that produced it.
type ScanResult struct {
	Value      float64
	Confidence float64
	Matched    string
}

// Known-good patterns: a number directly bound to holdings language. These
// extract with high confidence and no scoring.
var knownGoodPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)holds?\s+(?:a\s+total\s+of\s+)?(?:approximately\s+|about\s+|over\s+)?([\d,]+(?:\.\d+)?)\s*(?:btc|bitcoin)`),
	regexp.MustCompile(`(?i)(?:total\s+)?(?:btc|bitcoin)\s+holdings?\s*(?:of|:)?\s*([\d,]+(?:\.\d+)?)`),
	regexp.MustCompile(`(?i)treasury\s+(?:now\s+)?(?:holds?|contains?|totals?)\s*(?:approximately\s+)?([\d,]+(?:\.\d+)?)\s*(?:btc|bitcoin)`),
	regexp.MustCompile(`(?i)([\d,]+(?:\.\d+)?)\s*(?:btc|bitcoins?)\s+(?:held|on\s+(?:the\s+)?balance\s+sheet|in\s+treasury)`),
}

// assetKeywords gate the fallback scorer: a number only counts if one of
// these appears nearby.
var assetKeywords = []string{"bitcoin", "btc", "holdings", "treasury"}

// priceContext marks numbers that are prices or market caps, not quantities.
var priceContext = regexp.MustCompile(`(?i)(?:\$\s*[\d,]+|price|market\s+cap|valuation|per\s+(?:btc|bitcoin|coin|share)|million\s+dollars|billion)`)

var numberPattern = regexp.MustCompile(`([\d]{1,3}(?:,[\d]{3})+(?:\.\d+)?|[\d]+(?:\.\d+)?)`)

const scanWindow = 120 // bytes of context around a number for scoring

// ScanForHoldings extracts a holdings quantity from page text. It tries the
// known-good patterns first (high confidence), then falls back to scoring
// numeric candidates near asset keywords, discarding ones that look like
// prices or market caps.
func ScanForHoldings(text string) *ScanResult {
	for _, pattern := range knownGoodPatterns {
		if m := pattern.FindStringSubmatch(text); len(m) > 1 {
			if v, err := parseAmount(m[1]); err == nil && v > 0 {
				return &ScanResult{Value: v, Confidence: 0.9, Matched: m[0]}
			}
		}
	}
	return scoreCandidates(text)
}

func scoreCandidates(text string) *ScanResult {
	lower := strings.ToLower(text)

	var best *ScanResult
	for _, loc := range numberPattern.FindAllStringIndex(text, -1) {
		raw := text[loc[0]:loc[1]]
		value, err := parseAmount(raw)
		if err != nil || value <= 0 {
			continue
		}

		start := loc[0] - scanWindow
		if start < 0 {
			start = 0
		}
		end := loc[1] + scanWindow
		if end > len(text) {
			end = len(text)
		}
		window := lower[start:end]

		if priceContext.MatchString(window) {
			continue
		}
		// Quantities above the asset's supply are market caps or share
		// counts whatever the surrounding words say.
		if value > 21_000_000 {
			continue
		}

		score := 0
		for _, kw := range assetKeywords {
			if strings.Contains(window, kw) {
				score++
			}
		}
		if score == 0 {
			continue
		}

		confidence := 0.5 + 0.05*float64(score)
		if best == nil || confidence > best.Confidence {
			best = &ScanResult{Value: value, Confidence: confidence, Matched: raw}
		}
	}
	return best
}

func parseAmount(raw string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	return strconv.ParseFloat(cleaned, 64)
}

// containsHoldingsLanguage reports whether text pairs an asset keyword with
// holdings/transaction language. Used by the social checker to filter noise
// before anything is sent to extraction.
func containsHoldingsLanguage(text string) bool {
	lower := strings.ToLower(text)

	hasAsset := strings.Contains(lower, "bitcoin") || strings.Contains(lower, "btc")
	if !hasAsset {
		return false
	}

	for _, phrase := range []string{
		"holds", "holding", "acquired", "purchased", "bought",
		"sold", "treasury", "balance sheet", "accumulated", "added",
	} {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
