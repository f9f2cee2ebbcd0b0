package checkers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voskhod/treasurywatch/internal/models"
)

type fakeSearch struct {
	posts map[string][]SocialPost
	err   error
}

func (f *fakeSearch) Search(_ context.Context, query string, _ time.Time) ([]SocialPost, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.posts[query], nil
}

func TestSocialCheckerFiltersAndTiers(t *testing.T) {
	posted := time.Now().UTC().Add(-2 * time.Hour)
	search := &fakeSearch{posts: map[string][]SocialPost{
		"acme bitcoin": {
			{ID: "1", Author: "analyst", Text: "ACME just purchased another 500 BTC", URL: "https://social.example/1", Verified: true, PostedAt: posted},
			{ID: "2", Author: "rando", Text: "acme accumulated more bitcoin again", URL: "https://social.example/2", Verified: false, PostedAt: posted},
			{ID: "3", Author: "noise", Text: "great quarter for ACME subscribers", URL: "https://social.example/3", Verified: true, PostedAt: posted},
		},
	}}

	checker := NewSocialChecker(search)
	entities := []models.TrackedEntity{{
		Ticker:  "ACME",
		Sources: models.SourceConfig{SocialQueries: []string{"acme bitcoin"}},
	}}

	candidates, err := checker.Check(context.Background(), entities, time.Time{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("candidates = %d, want 2 (noise post filtered)", len(candidates))
	}

	if candidates[0].TrustTier != models.TrustCommunity {
		t.Errorf("verified post trust = %q, want community", candidates[0].TrustTier)
	}
	if candidates[1].TrustTier != models.TrustUnverified {
		t.Errorf("unverified post trust = %q, want unverified", candidates[1].TrustTier)
	}
	for _, c := range candidates {
		if c.DetectedHoldings != nil {
			t.Errorf("social candidate carries a detected value: %v", *c.DetectedHoldings)
		}
		if c.Confidence != 0.3 {
			t.Errorf("confidence = %v, want 0.3", c.Confidence)
		}
		if c.Category != models.SourceSocial {
			t.Errorf("category = %q", c.Category)
		}
	}
}

func TestSocialCheckerSearchFailureIsContained(t *testing.T) {
	checker := NewSocialChecker(&fakeSearch{err: errors.New("quota exceeded")})
	entities := []models.TrackedEntity{{
		Ticker:  "ACME",
		Sources: models.SourceConfig{SocialQueries: []string{"acme bitcoin"}},
	}}

	candidates, err := checker.Check(context.Background(), entities, time.Time{})
	if err != nil {
		t.Fatalf("Check should contain search failures, got: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates = %d, want 0", len(candidates))
	}
}

func TestSocialCheckerSkipsEntitiesWithoutQueries(t *testing.T) {
	search := &fakeSearch{}
	checker := NewSocialChecker(search)
	entities := []models.TrackedEntity{{Ticker: "ACME"}}

	candidates, err := checker.Check(context.Background(), entities, time.Time{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates = %d, want 0", len(candidates))
	}
}
