// Package storage persists tracked entities, monitoring runs, and pending
// updates in sqlite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/voskhod/treasurywatch/internal/models"
	"github.com/voskhod/treasurywatch/pkg/sqlite"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrRunActive is returned by CreateRun when a run of the same type is
	// still running. One run per type at a time keeps the dedup window
	// race-free.
	ErrRunActive = errors.New("a run of this type is already active")
	// ErrDuplicatePending is returned by CreatePendingUpdate when an
	// identical update for the entity is still pending. The in-run dedup
	// window normally catches these first; the index is the backstop when
	// the window could not be loaded.
	ErrDuplicatePending = errors.New("an identical pending update already exists")
)

type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		asset TEXT NOT NULL,
		current_holdings REAL NOT NULL DEFAULT 0 CHECK (current_holdings >= 0),
		holdings_last_updated DATETIME,
		source_config TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS monitoring_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		counters_json TEXT NOT NULL DEFAULT '{}',
		errors_json TEXT NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_runs_type_status ON monitoring_runs(run_type, status);

	CREATE TABLE IF NOT EXISTS pending_updates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_id INTEGER NOT NULL REFERENCES entities(id),
		detected_holdings REAL NOT NULL,
		previous_holdings REAL NOT NULL,
		confidence REAL NOT NULL,
		source TEXT NOT NULL,
		source_url TEXT NOT NULL DEFAULT '',
		trust_tier TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		auto_approved INTEGER NOT NULL DEFAULT 0,
		approval_reason TEXT NOT NULL DEFAULT '',
		reasoning TEXT NOT NULL DEFAULT '',
		run_id INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		resolved_at DATETIME,
		resolved_by TEXT NOT NULL DEFAULT '',
		resolution_notes TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_updates_entity_created ON pending_updates(entity_id, created_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_updates_unique_pending
		ON pending_updates(entity_id, detected_holdings, source) WHERE status = 'pending';
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// --- entities ---

func (s *Store) CreateEntity(ctx context.Context, e *models.TrackedEntity) (int64, error) {
	cfg, err := models.EncodeSourceConfig(e.Sources)
	if err != nil {
		return 0, fmt.Errorf("encode source config: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (ticker, name, asset, current_holdings, holdings_last_updated, source_config)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Ticker, e.Name, e.Asset, e.CurrentHoldings, nullableTime(e.HoldingsLastUpdated), cfg)
	if err != nil {
		return 0, fmt.Errorf("insert entity %s: %w", e.Ticker, err)
	}
	return res.LastInsertId()
}

func (s *Store) ListEntities(ctx context.Context) ([]models.TrackedEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticker, name, asset, current_holdings, holdings_last_updated, source_config
		FROM entities ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var entities []models.TrackedEntity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (s *Store) GetEntityByTicker(ctx context.Context, ticker string) (*models.TrackedEntity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, ticker, name, asset, current_holdings, holdings_last_updated, source_config
		FROM entities WHERE ticker = ?`, ticker)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(row rowScanner) (models.TrackedEntity, error) {
	var e models.TrackedEntity
	var lastUpdated sql.NullTime
	var cfg string
	if err := row.Scan(&e.ID, &e.Ticker, &e.Name, &e.Asset, &e.CurrentHoldings, &lastUpdated, &cfg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("scan entity: %w", err)
	}
	if lastUpdated.Valid {
		e.HoldingsLastUpdated = lastUpdated.Time
	}
	sources, err := models.DecodeSourceConfig(cfg)
	if err != nil {
		return e, fmt.Errorf("decode source config for %s: %w", e.Ticker, err)
	}
	e.Sources = sources
	return e, nil
}

// --- runs ---

// CreateRun opens a run record. One run per type at a time: if a run of the
// same type is still running, ErrRunActive is returned.
func (s *Store) CreateRun(ctx context.Context, runType string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin create-run tx: %w", err)
	}
	defer tx.Rollback()

	var active int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM monitoring_runs WHERE run_type = ? AND status = ?`,
		runType, string(models.RunRunning)).Scan(&active); err != nil {
		return 0, fmt.Errorf("check active runs: %w", err)
	}
	if active > 0 {
		return 0, ErrRunActive
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO monitoring_runs (run_type, status, started_at) VALUES (?, ?, ?)`,
		runType, string(models.RunRunning), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit create-run: %w", err)
	}
	return id, nil
}

// FinalizeRun closes a run exactly once. Finalizing an already-terminal run
// is a no-op.
func (s *Store) FinalizeRun(ctx context.Context, id int64, status models.RunStatus, counters models.RunCounters, runErrors []string) error {
	countersJSON, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	if runErrors == nil {
		runErrors = []string{}
	}
	errorsJSON, err := json.Marshal(runErrors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE monitoring_runs
		SET status = ?, completed_at = ?, counters_json = ?, errors_json = ?
		WHERE id = ? AND status = ?`,
		string(status), time.Now().UTC(), string(countersJSON), string(errorsJSON),
		id, string(models.RunRunning))
	if err != nil {
		return fmt.Errorf("finalize run %d: %w", id, err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id int64) (*models.MonitoringRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_type, status, started_at, completed_at, counters_json, errors_json
		FROM monitoring_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.MonitoringRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_type, status, started_at, completed_at, counters_json, errors_json
		FROM monitoring_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.MonitoringRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row rowScanner) (models.MonitoringRun, error) {
	var run models.MonitoringRun
	var status string
	var completed sql.NullTime
	var countersJSON, errorsJSON string
	if err := row.Scan(&run.ID, &run.RunType, &status, &run.StartedAt, &completed, &countersJSON, &errorsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, err
		}
		return run, fmt.Errorf("scan run: %w", err)
	}
	run.Status = models.RunStatus(status)
	if completed.Valid {
		run.CompletedAt = &completed.Time
	}
	if err := json.Unmarshal([]byte(countersJSON), &run.Counters); err != nil {
		return run, fmt.Errorf("decode counters for run %d: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(errorsJSON), &run.Errors); err != nil {
		return run, fmt.Errorf("decode errors for run %d: %w", run.ID, err)
	}
	return run, nil
}

// --- pending updates ---

func (s *Store) CreatePendingUpdate(ctx context.Context, u *models.PendingUpdate) (int64, error) {
	if u.Status == "" {
		u.Status = models.UpdatePending
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_updates
		(entity_id, detected_holdings, previous_holdings, confidence, source, source_url,
		 trust_tier, status, auto_approved, approval_reason, reasoning, run_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.EntityID, u.DetectedHoldings, u.PreviousHoldings, u.Confidence,
		string(u.Source), u.SourceURL, string(u.TrustTier), string(u.Status),
		boolToInt(u.AutoApproved), u.ApprovalReason, u.Reasoning, u.RunID, u.CreatedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, ErrDuplicatePending
		}
		return 0, fmt.Errorf("insert pending update for entity %d: %w", u.EntityID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	u.ID = id
	return id, nil
}

// ApprovePendingUpdate applies an update: marks it approved, materializes
// the entity's new holdings, and supersedes other pending updates for the
// same entity. Idempotent: approving an already-approved id is a no-op.
func (s *Store) ApprovePendingUpdate(ctx context.Context, id int64, actor, notes string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approve tx: %w", err)
	}
	defer tx.Rollback()

	var entityID int64
	var detected float64
	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT entity_id, detected_holdings, status FROM pending_updates WHERE id = ?`, id).
		Scan(&entityID, &detected, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load pending update %d: %w", id, err)
	}

	switch models.UpdateStatus(status) {
	case models.UpdateApproved:
		return nil // already applied
	case models.UpdateRejected, models.UpdateSuperseded:
		return fmt.Errorf("update %d already resolved as %s", id, status)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE pending_updates SET status = ?, resolved_at = ?, resolved_by = ?, resolution_notes = ?
		WHERE id = ?`,
		string(models.UpdateApproved), now, actor, notes, id); err != nil {
		return fmt.Errorf("mark update %d approved: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE entities SET current_holdings = ?, holdings_last_updated = ? WHERE id = ?`,
		detected, now, entityID); err != nil {
		return fmt.Errorf("apply holdings to entity %d: %w", entityID, err)
	}

	// Earlier pending updates for the entity were computed against holdings
	// that no longer hold; a newer approval wins.
	if _, err := tx.ExecContext(ctx, `
		UPDATE pending_updates SET status = ?, resolved_at = ?
		WHERE entity_id = ? AND status = ? AND id != ?`,
		string(models.UpdateSuperseded), now, entityID, string(models.UpdatePending), id); err != nil {
		return fmt.Errorf("supersede pending updates for entity %d: %w", entityID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit approve: %w", err)
	}
	return nil
}

// RejectPendingUpdate marks an update rejected without touching the entity.
// Idempotent on repeated rejection.
func (s *Store) RejectPendingUpdate(ctx context.Context, id int64, actor, notes string) error {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM pending_updates WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load pending update %d: %w", id, err)
	}
	switch models.UpdateStatus(status) {
	case models.UpdateRejected:
		return nil
	case models.UpdateApproved, models.UpdateSuperseded:
		return fmt.Errorf("update %d already resolved as %s", id, status)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE pending_updates SET status = ?, resolved_at = ?, resolved_by = ?, resolution_notes = ?
		WHERE id = ?`,
		string(models.UpdateRejected), time.Now().UTC(), actor, notes, id)
	if err != nil {
		return fmt.Errorf("reject update %d: %w", id, err)
	}
	return nil
}

// RecentUpdates returns updates created since the given time, newest first.
// The orchestrator loads the 24h window once per run.
func (s *Store) RecentUpdates(ctx context.Context, since time.Time) ([]models.PendingUpdate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.entity_id, e.ticker, u.detected_holdings, u.previous_holdings,
		       u.confidence, u.source, u.source_url, u.trust_tier, u.status,
		       u.auto_approved, u.approval_reason, u.reasoning, u.run_id, u.created_at, u.resolved_at
		FROM pending_updates u JOIN entities e ON e.id = u.entity_id
		WHERE u.created_at >= ?
		ORDER BY u.created_at DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("load recent updates: %w", err)
	}
	defer rows.Close()
	return scanUpdates(rows)
}

// ListPendingUpdates returns unresolved updates, oldest first.
func (s *Store) ListPendingUpdates(ctx context.Context) ([]models.PendingUpdate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.entity_id, e.ticker, u.detected_holdings, u.previous_holdings,
		       u.confidence, u.source, u.source_url, u.trust_tier, u.status,
		       u.auto_approved, u.approval_reason, u.reasoning, u.run_id, u.created_at, u.resolved_at
		FROM pending_updates u JOIN entities e ON e.id = u.entity_id
		WHERE u.status = ?
		ORDER BY u.created_at`, string(models.UpdatePending))
	if err != nil {
		return nil, fmt.Errorf("list pending updates: %w", err)
	}
	defer rows.Close()
	return scanUpdates(rows)
}

func scanUpdates(rows *sql.Rows) ([]models.PendingUpdate, error) {
	var updates []models.PendingUpdate
	for rows.Next() {
		var u models.PendingUpdate
		var source, tier, status string
		var autoApproved int
		var resolved sql.NullTime
		if err := rows.Scan(&u.ID, &u.EntityID, &u.Ticker, &u.DetectedHoldings, &u.PreviousHoldings,
			&u.Confidence, &source, &u.SourceURL, &tier, &status,
			&autoApproved, &u.ApprovalReason, &u.Reasoning, &u.RunID, &u.CreatedAt, &resolved); err != nil {
			return nil, fmt.Errorf("scan pending update: %w", err)
		}
		u.Source = models.SourceCategory(source)
		u.TrustTier = models.TrustTier(tier)
		u.Status = models.UpdateStatus(status)
		u.AutoApproved = autoApproved != 0
		if resolved.Valid {
			u.ResolvedAt = &resolved.Time
		}
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
