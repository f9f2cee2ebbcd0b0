package checkers

import (
	"testing"
)

func TestScanForHoldingsKnownGoodPattern(t *testing.T) {
	text := "As of June 30, the company holds a total of 19,287 BTC on its balance sheet."

	result := ScanForHoldings(text)
	if result == nil {
		t.Fatal("expected a scan result")
	}
	if result.Value != 19287 {
		t.Errorf("value = %v, want 19287", result.Value)
	}
	if result.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", result.Confidence)
	}
}

func TestScanForHoldingsHoldingsOfPhrasing(t *testing.T) {
	text := "Total Bitcoin Holdings: 1,080.5"

	result := ScanForHoldings(text)
	if result == nil {
		t.Fatal("expected a scan result")
	}
	if result.Value != 1080.5 {
		t.Errorf("value = %v, want 1080.5", result.Value)
	}
}

func TestScanForHoldingsFallbackScoring(t *testing.T) {
	// No known-good phrasing, but a number near asset keywords.
	text := "The treasury page lists bitcoin figures. Current: 4,200 as of last update."

	result := ScanForHoldings(text)
	if result == nil {
		t.Fatal("expected a fallback scan result")
	}
	if result.Value != 4200 {
		t.Errorf("value = %v, want 4200", result.Value)
	}
	if result.Confidence >= 0.9 {
		t.Errorf("fallback confidence = %v, want below known-good 0.9", result.Confidence)
	}
}

func TestScanForHoldingsDiscardsPriceContext(t *testing.T) {
	text := "Bitcoin price today is 64,250 dollars per BTC according to the treasury desk."

	if result := ScanForHoldings(text); result != nil {
		t.Fatalf("expected no result for price context, got %+v", result)
	}
}

func TestScanForHoldingsDiscardsImplausibleQuantity(t *testing.T) {
	text := "Our bitcoin treasury valuation reached new highs; the holdings figure 54,000,000 circulated widely."

	if result := ScanForHoldings(text); result != nil {
		t.Fatalf("expected no result above max supply, got %+v", result)
	}
}

func TestScanForHoldingsNoKeywords(t *testing.T) {
	text := "The company reported 12,500 new subscribers this quarter."

	if result := ScanForHoldings(text); result != nil {
		t.Fatalf("expected no result without asset keywords, got %+v", result)
	}
}

func TestContainsHoldingsLanguage(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"We acquired 500 BTC last week", true},
		{"bitcoin treasury strategy update", true},
		{"We acquired three subsidiaries", false},
		{"btc price chart looks great", false},
		{"Company sold some bitcoin", true},
	}
	for _, tc := range cases {
		if got := containsHoldingsLanguage(tc.text); got != tc.want {
			t.Errorf("containsHoldingsLanguage(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestParseAmountStripsCommas(t *testing.T) {
	v, err := parseAmount("1,234,567.89")
	if err != nil {
		t.Fatalf("parseAmount: %v", err)
	}
	if v != 1234567.89 {
		t.Errorf("parseAmount = %v, want 1234567.89", v)
	}
}
