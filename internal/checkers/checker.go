// Package checkers implements the per-category source pollers. Each checker
// polls one external source and yields raw candidates; a failure on one
// entity is logged and skipped so the rest of the batch still reports.
package checkers

import (
	"context"
	"time"

	"github.com/voskhod/treasurywatch/internal/models"
)

// Checker polls one external source category for a batch of entities.
// Implementations must contain per-entity failures internally and return
// partial results; a returned error means the whole category failed.
type Checker interface {
	Category() models.SourceCategory
	Check(ctx context.Context, entities []models.TrackedEntity, since time.Time) ([]models.SourceCandidate, error)
}
