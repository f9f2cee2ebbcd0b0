// Package monitor sequences one monitoring run: poll every source category,
// resolve candidates through extraction, filter duplicates, evaluate the
// approval policy, and persist the outcomes. Failures below the run loop are
// contained per step; only the run record itself is allowed to fail a run.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phuslu/log"

	"github.com/voskhod/treasurywatch/internal/checkers"
	"github.com/voskhod/treasurywatch/internal/dedup"
	"github.com/voskhod/treasurywatch/internal/extraction"
	"github.com/voskhod/treasurywatch/internal/models"
	"github.com/voskhod/treasurywatch/internal/notify"
	"github.com/voskhod/treasurywatch/internal/policy"
	"github.com/voskhod/treasurywatch/internal/storage"
)

const (
	// dedupWindow is how far back the recent-updates window reaches. It is
	// loaded once at run start; mid-run human actions are not re-read.
	dedupWindow = 24 * time.Hour

	// sourceLookback is the since-date handed to checkers: how far back a
	// filing or post may be dated and still count as new.
	sourceLookback = 48 * time.Hour

	// defaultStaleAfter flags entities whose holdings have not been
	// refreshed by any approved update.
	defaultStaleAfter = 7 * 24 * time.Hour
)

// Store is the persistence surface the runner drives.
type Store interface {
	CreateRun(ctx context.Context, runType string) (int64, error)
	FinalizeRun(ctx context.Context, id int64, status models.RunStatus, counters models.RunCounters, runErrors []string) error
	ListEntities(ctx context.Context) ([]models.TrackedEntity, error)
	RecentUpdates(ctx context.Context, since time.Time) ([]models.PendingUpdate, error)
	CreatePendingUpdate(ctx context.Context, u *models.PendingUpdate) (int64, error)
	ApprovePendingUpdate(ctx context.Context, id int64, actor, notes string) error
}

// Extractor resolves raw text into a structured holdings value.
type Extractor interface {
	Extract(ctx context.Context, text string, ec extraction.Context) *models.ExtractionResult
}

// Result is what every run returns, whatever happened inside it.
type Result struct {
	RunID    int64
	RunType  string
	Status   models.RunStatus
	Counters models.RunCounters
	Errors   []string
}

type Runner struct {
	store      Store
	checkers   []checkers.Checker
	extractor  Extractor
	notifier   notify.Notifier
	staleAfter time.Duration
	now        func() time.Time
}

func NewRunner(store Store, chks []checkers.Checker, ex Extractor, n notify.Notifier, staleAfter time.Duration) *Runner {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &Runner{
		store:      store,
		checkers:   chks,
		extractor:  ex,
		notifier:   n,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Run executes one monitoring run. An error is returned only when the run
// record itself cannot be created (including storage.ErrRunActive); once a
// run exists, every failure is captured into the result and the run record.
func (r *Runner) Run(ctx context.Context, runType string) (*Result, error) {
	runID, err := r.store.CreateRun(ctx, runType)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	result := &Result{RunID: runID, RunType: runType, Status: models.RunCompleted}
	log.Info().Int64("run_id", runID).Str("type", runType).Msg("monitoring run started")

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				result.Status = models.RunFailed
				result.Errors = append(result.Errors, fmt.Sprintf("run panicked: %v", rec))
				log.Error().Int64("run_id", runID).Msgf("monitoring run panicked: %v", rec)
			}
		}()
		r.execute(ctx, result)
	}()

	result.Counters.ErrorCount = len(result.Errors)
	if err := r.store.FinalizeRun(ctx, runID, result.Status, result.Counters, result.Errors); err != nil {
		log.Error().Int64("run_id", runID).Err(err).Msg("finalize run failed")
		result.Errors = append(result.Errors, fmt.Sprintf("finalize run: %v", err))
		result.Counters.ErrorCount = len(result.Errors)
	}

	r.emitSummary(ctx, result)

	log.Info().Int64("run_id", runID).Str("status", string(result.Status)).
		Int("updates", result.Counters.UpdatesDetected).
		Int("errors", result.Counters.ErrorCount).
		Msg("monitoring run finished")
	return result, nil
}

func (r *Runner) execute(ctx context.Context, result *Result) {
	now := r.now().UTC()

	entities, err := r.store.ListEntities(ctx)
	if err != nil {
		result.Status = models.RunFailed
		result.Errors = append(result.Errors, fmt.Sprintf("load entities: %v", err))
		return
	}
	result.Counters.CompaniesChecked = len(entities)

	recent, err := r.store.RecentUpdates(ctx, now.Add(-dedupWindow))
	if err != nil {
		// Without the window every candidate looks new; keep going and let
		// the unique-pending index in storage catch the worst of it.
		result.Errors = append(result.Errors, fmt.Sprintf("load recent updates: %v", err))
	}

	since := now.Add(-sourceLookback)
	for _, chk := range r.checkers {
		category := chk.Category()
		result.Counters.SourcesChecked++

		candidates, err := runChecker(ctx, chk, entities, since)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("checker %s: %v", category, err))
			log.Warn().Str("category", string(category)).Err(err).Msg("source checker failed")
			continue
		}

		for i := range candidates {
			if update := r.processCandidate(ctx, &candidates[i], recent, result); update != nil {
				recent = append(recent, *update)
			}
		}
	}

	r.checkStale(ctx, entities, now, result)
}

// runChecker isolates one category: a panic inside a checker costs that
// category its results, not the run.
func runChecker(ctx context.Context, chk checkers.Checker, entities []models.TrackedEntity, since time.Time) (candidates []models.SourceCandidate, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			candidates = nil
			err = fmt.Errorf("checker panicked: %v", rec)
		}
	}()
	return chk.Check(ctx, entities, since)
}

// processCandidate takes one candidate through dedup, extraction, policy,
// and persistence. It returns the created update so the caller can extend
// the in-run dedup window, or nil when the candidate was dropped.
func (r *Runner) processCandidate(ctx context.Context, cand *models.SourceCandidate, recent []models.PendingUpdate, result *Result) *models.PendingUpdate {
	entity := cand.Entity
	now := r.now().UTC()

	detected := cand.DetectedHoldings
	confidence := cand.Confidence
	reasoning := ""

	if detected != nil && dedup.IsDuplicate(entity.ID, cand.Category, *detected, recent, now) {
		return nil
	}

	if detected == nil {
		if cand.RawText == "" {
			return nil
		}
		extracted := r.extractor.Extract(ctx, cand.RawText, extraction.Context{
			Ticker:          entity.Ticker,
			Name:            entity.Name,
			Asset:           entity.Asset,
			CurrentHoldings: entity.CurrentHoldings,
			SourceURL:       cand.SourceURL,
			Category:        cand.Category,
		})
		extraction.ApplyValidation(extracted, entity.CurrentHoldings)
		if !extracted.HasHoldings() {
			log.Debug().Str("ticker", entity.Ticker).Str("category", string(cand.Category)).
				Str("reason", extracted.Reasoning).Msg("no holdings extracted")
			return nil
		}
		detected = extracted.Holdings
		confidence = extracted.Confidence
		reasoning = extracted.Reasoning

		if dedup.IsDuplicate(entity.ID, cand.Category, *detected, recent, now) {
			return nil
		}
	}

	// Negative values are hard-rejected; equality with current holdings is a
	// no-op, not an update.
	if *detected < 0 || *detected == entity.CurrentHoldings {
		return nil
	}

	decision := policy.Evaluate(cand.Category, cand.TrustTier, confidence, *detected, entity.CurrentHoldings)

	update := &models.PendingUpdate{
		EntityID:         entity.ID,
		Ticker:           entity.Ticker,
		DetectedHoldings: *detected,
		PreviousHoldings: entity.CurrentHoldings,
		Confidence:       confidence,
		Source:           cand.Category,
		SourceURL:        cand.SourceURL,
		TrustTier:        cand.TrustTier,
		Status:           models.UpdatePending,
		AutoApproved:     decision.Approve,
		ApprovalReason:   decision.Reason,
		Reasoning:        reasoning,
		RunID:            result.RunID,
		CreatedAt:        now,
	}
	id, err := r.store.CreatePendingUpdate(ctx, update)
	if errors.Is(err, storage.ErrDuplicatePending) {
		// The same value is already queued from an earlier run; treat it
		// like any other duplicate.
		return nil
	}
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("persist update for %s: %v", entity.Ticker, err))
		return nil
	}
	result.Counters.UpdatesDetected++

	if decision.Approve {
		// An approval failure leaves the record pending as evidence; it is a
		// run error, not a run abort.
		if err := r.store.ApprovePendingUpdate(ctx, id, "auto-approval", decision.Reason); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("auto-approve update %d for %s: %v", id, entity.Ticker, err))
			result.Counters.PendingReview++
		} else {
			update.Status = models.UpdateApproved
			result.Counters.AutoApproved++
		}
	} else {
		result.Counters.PendingReview++
	}

	log.Info().Str("ticker", entity.Ticker).Str("category", string(cand.Category)).
		Float64("previous", update.PreviousHoldings).
		Float64("detected", update.DetectedHoldings).
		Bool("auto_approved", update.Status == models.UpdateApproved).
		Msg("holdings update recorded")

	r.send(ctx, notify.HoldingsUpdate(update, entity.Asset), result)
	return update
}

// checkStale runs independently of source results: entities whose holdings
// have not been refreshed recently get one combined alert.
func (r *Runner) checkStale(ctx context.Context, entities []models.TrackedEntity, now time.Time, result *Result) {
	var stale []string
	for i := range entities {
		if entities[i].IsStale(r.staleAfter, now) {
			stale = append(stale, entities[i].Ticker)
		}
	}
	if len(stale) == 0 {
		return
	}
	log.Warn().Strs("tickers", stale).Msg("entities with stale holdings")
	r.send(ctx, notify.StaleData(stale), result)
}

func (r *Runner) emitSummary(ctx context.Context, result *Result) {
	if result.Status == models.RunFailed {
		r.send(ctx, notify.RunError(result.RunID, result.RunType, joinErrors(result.Errors)), result)
		return
	}
	if result.Counters.UpdatesDetected > 0 || result.Counters.ErrorCount > 0 {
		run := &models.MonitoringRun{ID: result.RunID, RunType: result.RunType, Counters: result.Counters}
		r.send(ctx, notify.RunSummary(run), result)
	}
}

// send delivers one notification best-effort.
func (r *Runner) send(ctx context.Context, event notify.Event, result *Result) {
	if err := r.notifier.Send(ctx, event); err != nil {
		log.Warn().Str("kind", string(event.Kind)).Err(err).Msg("notification delivery failed")
		return
	}
	result.Counters.NotificationsSent++
}

func joinErrors(errs []string) string {
	if len(errs) == 0 {
		return "unknown failure"
	}
	msg := errs[0]
	if len(errs) > 1 {
		msg = fmt.Sprintf("%s (+%d more)", msg, len(errs)-1)
	}
	return msg
}
