package dedup

import (
	"testing"
	"time"

	"github.com/voskhod/treasurywatch/internal/models"
)

func TestPendingIdenticalIsDuplicate(t *testing.T) {
	now := time.Now()
	recent := []models.PendingUpdate{{
		EntityID:         1,
		Source:           models.SourceRegulatoryFiling,
		DetectedHoldings: 550000,
		Status:           models.UpdatePending,
		CreatedAt:        now.Add(-20 * time.Hour), // outside the 1h rule
	}}

	if !IsDuplicate(1, models.SourceRegulatoryFiling, 550000, recent, now) {
		t.Fatal("identical pending update from same source must be duplicate")
	}
}

func TestResolvedIdenticalOldIsNotDuplicate(t *testing.T) {
	now := time.Now()
	recent := []models.PendingUpdate{{
		EntityID:         1,
		Source:           models.SourceRegulatoryFiling,
		DetectedHoldings: 550000,
		Status:           models.UpdateApproved,
		CreatedAt:        now.Add(-20 * time.Hour),
	}}

	if IsDuplicate(1, models.SourceRegulatoryFiling, 550000, recent, now) {
		t.Fatal("an approved update 20h old should not suppress a new candidate")
	}
}

func TestRecentNearValueIsDuplicate(t *testing.T) {
	now := time.Now()
	recent := []models.PendingUpdate{{
		EntityID:         1,
		Source:           models.SourceHoldingsPage,
		DetectedHoldings: 550000.4,
		Status:           models.UpdateApproved,
		CreatedAt:        now.Add(-10 * time.Minute),
	}}

	// Different category, value within 1 unit, created 10 minutes ago.
	if !IsDuplicate(1, models.SourceRegulatoryFiling, 550000, recent, now) {
		t.Fatal("near-identical value created within the hour must be duplicate")
	}
}

func TestDifferentEntityIsNotDuplicate(t *testing.T) {
	now := time.Now()
	recent := []models.PendingUpdate{{
		EntityID:         2,
		Source:           models.SourceRegulatoryFiling,
		DetectedHoldings: 550000,
		Status:           models.UpdatePending,
		CreatedAt:        now.Add(-5 * time.Minute),
	}}

	if IsDuplicate(1, models.SourceRegulatoryFiling, 550000, recent, now) {
		t.Fatal("updates for other entities must not suppress candidates")
	}
}

func TestDistinctValueIsNotDuplicate(t *testing.T) {
	now := time.Now()
	recent := []models.PendingUpdate{{
		EntityID:         1,
		Source:           models.SourceRegulatoryFiling,
		DetectedHoldings: 550000,
		Status:           models.UpdatePending,
		CreatedAt:        now.Add(-5 * time.Minute),
	}}

	if IsDuplicate(1, models.SourceRegulatoryFiling, 560000, recent, now) {
		t.Fatal("a value 10k away is a distinct candidate")
	}
}
