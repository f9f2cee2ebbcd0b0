// Package dedup suppresses candidates that duplicate an update already
// recorded in the recent window. The window (prior 24h) is loaded once at
// run start by the orchestrator.
package dedup

import (
	"math"
	"time"

	"github.com/voskhod/treasurywatch/internal/models"
)

const (
	// sameValueTolerance treats detections within one unit as equal; sources
	// round the same underlying number differently.
	sameValueTolerance = 1.0
	recentCreation     = time.Hour
)

// IsDuplicate reports whether a detected value for an entity duplicates an
// update in the recent window. Either rule suffices:
//
//  1. a pending update for the same entity with an identical detected value
//     from the same source category, or
//  2. any update for the same entity within one unit of the detected value,
//     created in the last hour.
func IsDuplicate(entityID int64, category models.SourceCategory, detected float64, recent []models.PendingUpdate, now time.Time) bool {
	for i := range recent {
		u := &recent[i]
		if u.EntityID != entityID {
			continue
		}

		if u.Status == models.UpdatePending &&
			u.Source == category &&
			u.DetectedHoldings == detected {
			return true
		}

		if math.Abs(u.DetectedHoldings-detected) <= sameValueTolerance &&
			now.Sub(u.CreatedAt) <= recentCreation {
			return true
		}
	}
	return false
}
