package checkers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voskhod/treasurywatch/config"
	"github.com/voskhod/treasurywatch/internal/httpx"
	"github.com/voskhod/treasurywatch/internal/models"
	"github.com/voskhod/treasurywatch/internal/ratelimit"
)

// explorerServer serves per-address chain stats keyed by address.
func explorerServer(t *testing.T, balances map[string]int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := r.URL.Path[len("/address/"):]
		sats, ok := balances[addr]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"chain_stats":{"funded_txo_sum":%d,"spent_txo_sum":0}}`, sats)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func onchainTestConfig(t *testing.T, url string) *config.Config {
	t.Helper()
	return &config.Config{
		DataCacheDir:    t.TempDir(),
		FilingUserAgent: "treasurywatch-test test@example.com",
		ExplorerURL:     url,
		CacheEnabled:    false,
	}
}

func TestOnchainCheckerSumsWallets(t *testing.T) {
	// 1.5 + 0.5 coins across two wallets against 1.0 recorded.
	srv := explorerServer(t, map[string]int64{
		"bc1qaaa": 150_000_000,
		"bc1qbbb": 50_000_000,
	})

	checker := NewOnchainChecker(onchainTestConfig(t, srv.URL), ratelimit.NewHostLimiter(100))
	entities := []models.TrackedEntity{{
		Ticker:          "ACME",
		CurrentHoldings: 1.0,
		Sources:         models.SourceConfig{WalletAddresses: []string{"bc1qaaa", "bc1qbbb"}},
	}}

	candidates, err := checker.Check(context.Background(), entities, time.Time{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}

	c := candidates[0]
	if c.DetectedHoldings == nil || *c.DetectedHoldings != 2.0 {
		t.Errorf("detected holdings = %v, want 2.0", c.DetectedHoldings)
	}
	if c.TrustTier != models.TrustOfficial {
		t.Errorf("trust = %q, want official", c.TrustTier)
	}
	if c.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", c.Confidence)
	}
}

func TestOnchainCheckerIgnoresRoundingTolerance(t *testing.T) {
	// 1.0005 coins vs 1.0 recorded is 0.05%, inside the 0.1% tolerance.
	srv := explorerServer(t, map[string]int64{"bc1qaaa": 100_050_000})

	checker := NewOnchainChecker(onchainTestConfig(t, srv.URL), ratelimit.NewHostLimiter(100))
	entities := []models.TrackedEntity{{
		Ticker:          "ACME",
		CurrentHoldings: 1.0,
		Sources:         models.SourceConfig{WalletAddresses: []string{"bc1qaaa"}},
	}}

	candidates, err := checker.Check(context.Background(), entities, time.Time{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates = %d, want 0", len(candidates))
	}
}

func TestOnchainCheckerFailedAddressSkipsEntity(t *testing.T) {
	// Second wallet 404s; a partial sum must not be reported as a sale.
	srv := explorerServer(t, map[string]int64{"bc1qaaa": 150_000_000})

	checker := NewOnchainChecker(onchainTestConfig(t, srv.URL), ratelimit.NewHostLimiter(100))
	checker.retry = &httpx.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	entities := []models.TrackedEntity{{
		Ticker:          "ACME",
		CurrentHoldings: 2.0,
		Sources:         models.SourceConfig{WalletAddresses: []string{"bc1qaaa", "bc1qmissing"}},
	}}

	candidates, err := checker.Check(context.Background(), entities, time.Time{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates = %d, want 0", len(candidates))
	}
}

func TestOnchainCheckerSkipsEntitiesWithoutWallets(t *testing.T) {
	srv := explorerServer(t, nil)

	checker := NewOnchainChecker(onchainTestConfig(t, srv.URL), ratelimit.NewHostLimiter(100))
	entities := []models.TrackedEntity{{Ticker: "ACME", CurrentHoldings: 5}}

	candidates, err := checker.Check(context.Background(), entities, time.Time{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates = %d, want 0", len(candidates))
	}
}
