package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/voskhod/treasurywatch/internal/models"
	"github.com/voskhod/treasurywatch/internal/storage"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store)
}

func TestAddNormalizesTicker(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	id, err := reg.Add(ctx, &models.TrackedEntity{Ticker: " acme ", Name: "Acme Corp", CurrentHoldings: 100})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id == 0 {
		t.Fatal("expected nonzero id")
	}

	got, err := reg.GetByTicker(ctx, "acme")
	if err != nil {
		t.Fatalf("GetByTicker: %v", err)
	}
	if got.Ticker != "ACME" {
		t.Errorf("ticker = %q, want ACME", got.Ticker)
	}
	if got.Asset != "BTC" {
		t.Errorf("asset = %q, want BTC default", got.Asset)
	}
}

func TestAddRejectsInvalid(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Add(ctx, &models.TrackedEntity{Name: "No Ticker"}); err == nil {
		t.Error("expected error for missing ticker")
	}
	if _, err := reg.Add(ctx, &models.TrackedEntity{Ticker: "X"}); err == nil {
		t.Error("expected error for missing name")
	}
	if _, err := reg.Add(ctx, &models.TrackedEntity{Ticker: "X", Name: "X Corp", CurrentHoldings: -1}); err == nil {
		t.Error("expected error for negative holdings")
	}
}

func TestStale(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := reg.Add(ctx, &models.TrackedEntity{Ticker: "NEW", Name: "New Corp", HoldingsLastUpdated: now.Add(-time.Hour)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := reg.Add(ctx, &models.TrackedEntity{Ticker: "OLD", Name: "Old Corp", HoldingsLastUpdated: now.Add(-10 * 24 * time.Hour)}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	stale, err := reg.Stale(ctx, 7*24*time.Hour, now)
	if err != nil {
		t.Fatalf("Stale: %v", err)
	}
	if len(stale) != 1 || stale[0].Ticker != "OLD" {
		t.Fatalf("stale = %+v, want only OLD", stale)
	}
}
