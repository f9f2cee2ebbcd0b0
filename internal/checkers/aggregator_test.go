package checkers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voskhod/treasurywatch/config"
	"github.com/voskhod/treasurywatch/internal/models"
	"github.com/voskhod/treasurywatch/internal/ratelimit"
)

func aggregatorServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func aggregatorTestConfig(t *testing.T, url string) *config.Config {
	t.Helper()
	return &config.Config{
		DataCacheDir:    t.TempDir(),
		FilingUserAgent: "treasurywatch-test test@example.com",
		AggregatorURL:   url,
		CacheEnabled:    false,
	}
}

func TestAggregatorCheckerReportsDiscrepancy(t *testing.T) {
	srv := aggregatorServer(t, `{"companies":[
		{"slug":"acme-corp","ticker":"ACME","name":"Acme Corp","holdings":10500}
	]}`)

	checker := NewAggregatorChecker(aggregatorTestConfig(t, srv.URL), ratelimit.NewHostLimiter(100))
	entities := []models.TrackedEntity{{
		Ticker:          "ACME",
		Name:            "Acme Corp",
		CurrentHoldings: 10000,
		Sources:         models.SourceConfig{AggregatorSlug: "acme-corp"},
	}}

	candidates, err := checker.Check(context.Background(), entities, time.Time{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}

	c := candidates[0]
	if c.Category != models.SourceAggregator {
		t.Errorf("category = %q", c.Category)
	}
	if c.TrustTier != models.TrustCommunity {
		t.Errorf("trust = %q, want community", c.TrustTier)
	}
	if c.DetectedHoldings == nil || *c.DetectedHoldings != 10500 {
		t.Errorf("detected holdings = %v, want 10500", c.DetectedHoldings)
	}
}

func TestAggregatorCheckerIgnoresAgreement(t *testing.T) {
	// 10050 vs 10000 is 0.5%, inside the 1% tolerance.
	srv := aggregatorServer(t, `{"companies":[
		{"slug":"acme-corp","ticker":"ACME","name":"Acme Corp","holdings":10050}
	]}`)

	checker := NewAggregatorChecker(aggregatorTestConfig(t, srv.URL), ratelimit.NewHostLimiter(100))
	entities := []models.TrackedEntity{{
		Ticker:          "ACME",
		Name:            "Acme Corp",
		CurrentHoldings: 10000,
		Sources:         models.SourceConfig{AggregatorSlug: "acme-corp"},
	}}

	candidates, err := checker.Check(context.Background(), entities, time.Time{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates = %d, want 0", len(candidates))
	}
}

func TestAggregatorCheckerMatchesByTickerWithoutSlug(t *testing.T) {
	srv := aggregatorServer(t, `{"companies":[
		{"slug":"other","ticker":"acme","name":"Something Else","holdings":2000}
	]}`)

	checker := NewAggregatorChecker(aggregatorTestConfig(t, srv.URL), ratelimit.NewHostLimiter(100))
	entities := []models.TrackedEntity{{
		Ticker:          "ACME",
		Name:            "Acme Corp",
		CurrentHoldings: 1000,
	}}

	candidates, err := checker.Check(context.Background(), entities, time.Time{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}
}

func TestAggregatorCheckerSkipsUnmatchedEntities(t *testing.T) {
	srv := aggregatorServer(t, `{"companies":[
		{"slug":"other","ticker":"OTHR","name":"Other Inc","holdings":5000}
	]}`)

	checker := NewAggregatorChecker(aggregatorTestConfig(t, srv.URL), ratelimit.NewHostLimiter(100))
	entities := []models.TrackedEntity{{
		Ticker:          "ACME",
		Name:            "Acme Corp",
		CurrentHoldings: 1000,
	}}

	candidates, err := checker.Check(context.Background(), entities, time.Time{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates = %d, want 0", len(candidates))
	}
}

func TestAggregatorDisagrees(t *testing.T) {
	cases := []struct {
		ours, theirs float64
		want         bool
	}{
		{10000, 10500, true},
		{10000, 10050, false},
		{0, 100, true},
		{0, 0, false},
	}
	for _, tc := range cases {
		if got := aggregatorDisagrees(tc.ours, tc.theirs); got != tc.want {
			t.Errorf("aggregatorDisagrees(%v, %v) = %v, want %v", tc.ours, tc.theirs, got, tc.want)
		}
	}
}
