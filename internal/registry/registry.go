// Package registry is the entity-facing view over storage: which companies
// are tracked, where their sources live, and which ones have gone stale.
package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/voskhod/treasurywatch/internal/models"
	"github.com/voskhod/treasurywatch/internal/storage"
)

type Registry struct {
	store *storage.Store
}

func New(store *storage.Store) *Registry {
	return &Registry{store: store}
}

// Add registers a new tracked entity. Tickers are stored uppercase; the
// unique index in storage rejects duplicates.
func (r *Registry) Add(ctx context.Context, e *models.TrackedEntity) (int64, error) {
	e.Ticker = strings.ToUpper(strings.TrimSpace(e.Ticker))
	if e.Ticker == "" {
		return 0, fmt.Errorf("ticker is required")
	}
	if e.Name == "" {
		return 0, fmt.Errorf("name is required")
	}
	if e.Asset == "" {
		e.Asset = "BTC"
	}
	if e.CurrentHoldings < 0 {
		return 0, fmt.Errorf("holdings must be >= 0, got %v", e.CurrentHoldings)
	}

	id, err := r.store.CreateEntity(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("create entity: %w", err)
	}
	return id, nil
}

// EntitiesToMonitor returns every tracked entity. The batch is small enough
// that checkers filter for themselves by source config.
func (r *Registry) EntitiesToMonitor(ctx context.Context) ([]models.TrackedEntity, error) {
	return r.store.ListEntities(ctx)
}

func (r *Registry) GetByTicker(ctx context.Context, ticker string) (*models.TrackedEntity, error) {
	return r.store.GetEntityByTicker(ctx, strings.ToUpper(strings.TrimSpace(ticker)))
}

// Stale returns entities whose holdings have not been refreshed within the
// threshold.
func (r *Registry) Stale(ctx context.Context, threshold time.Duration, now time.Time) ([]models.TrackedEntity, error) {
	entities, err := r.store.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	var stale []models.TrackedEntity
	for _, e := range entities {
		if e.IsStale(threshold, now) {
			stale = append(stale, e)
		}
	}
	return stale, nil
}
