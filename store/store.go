// Package store persists completed optimization runs to Postgres. It is
// optional, ambient infrastructure the core never depends on (§1: the
// optimization engine consumes no persistence layer); a nil *Store is
// always safe to call.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/devskill-org/site-optimizer/optimizer"
)

// Store persists optimizer.Result values keyed by a run timestamp.
//
// Grounded on scheduler/mpc_persistence.go's saveMPCDecisions/
// loadLatestMPCDecisions: a tx-scoped delete-then-insert per run, and a
// parameterized SELECT using sql.NullFloat64 for optional diagnostic
// columns.
type Store struct {
	db     *sql.DB
	logger Logger
}

// Logger is a minimal subset of *log.Logger, letting callers inject a
// no-op logger in tests without pulling in the stdlib log package there.
type Logger interface {
	Printf(format string, v ...any)
}

// Open opens a Postgres connection and verifies it with a ping. An empty
// connString returns (nil, nil): the caller is expected to treat a nil
// *Store as "persistence disabled," matching the teacher's `db == nil`
// guard pattern throughout scheduler/mpc_persistence.go.
func Open(connString string, logger Logger) (*Store, error) {
	if connString == "" {
		return nil, nil
	}

	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to ping database: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun persists the outcome of one optimization run, replacing any
// existing row for the same runID.
func (s *Store) SaveRun(ctx context.Context, runID string, startedAt time.Time, result optimizer.Result) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store: database connection not available")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM optimizer_runs WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("store: failed to delete existing run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM optimizer_run_hours WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("store: failed to delete existing run hours: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO optimizer_runs (
			run_id, started_at, fitness, balance_eur, losses_wh, soc_shortfall,
			ev_final_soc_percent, ev_optimization_disabled
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			fitness = EXCLUDED.fitness,
			balance_eur = EXCLUDED.balance_eur,
			losses_wh = EXCLUDED.losses_wh,
			soc_shortfall = EXCLUDED.soc_shortfall,
			ev_final_soc_percent = EXCLUDED.ev_final_soc_percent,
			ev_optimization_disabled = EXCLUDED.ev_optimization_disabled
	`,
		runID, startedAt, result.Fitness, result.Diagnostics.MeanBalanceEUR,
		result.Diagnostics.MeanLosses, result.Diagnostics.MeanSoCShortfall,
		result.EVFinal.SoCPercent, result.EVOptimizationDisabled,
	)
	if err != nil {
		return fmt.Errorf("store: failed to upsert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO optimizer_run_hours (
			run_id, hour, load_wh, grid_import_wh, grid_export_wh,
			battery_soc_percent, ev_soc_percent, cost_eur, revenue_eur, losses_wh
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`)
	if err != nil {
		return fmt.Errorf("store: failed to prepare hour insert: %w", err)
	}
	defer stmt.Close()

	for i := range result.Outcome.Load {
		_, err := stmt.ExecContext(ctx,
			runID, i,
			result.Outcome.Load[i],
			result.Outcome.GridImport[i],
			result.Outcome.GridExport[i],
			result.Outcome.BatterySoCPercent[i],
			result.Outcome.EVSoCPercent[i],
			result.Outcome.CostEUR[i],
			result.Outcome.RevenueEUR[i],
			result.Outcome.LossesWh[i],
		)
		if err != nil {
			return fmt.Errorf("store: failed to insert hour %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: failed to commit transaction: %w", err)
	}

	if s.logger != nil {
		s.logger.Printf("[STORE] saved run %s (%d hours)", runID, len(result.Outcome.Load))
	}
	return nil
}

// RunSummary is the subset of a persisted run's fields LoadLatestRun returns.
type RunSummary struct {
	RunID                  string
	StartedAt              time.Time
	Fitness                float64
	BalanceEUR             float64
	LossesWh               float64
	SoCShortfall           float64
	EVFinalSoCPercent      float64
	EVOptimizationDisabled bool
}

// LoadLatestRun loads the most recently started run, or (nil, nil) if the
// table is empty.
func (s *Store) LoadLatestRun(ctx context.Context) (*RunSummary, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store: database connection not available")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, started_at, fitness, balance_eur, losses_wh, soc_shortfall,
		       ev_final_soc_percent, ev_optimization_disabled
		FROM optimizer_runs
		ORDER BY started_at DESC
		LIMIT 1
	`)

	var r RunSummary
	var socShortfall sql.NullFloat64
	err := row.Scan(&r.RunID, &r.StartedAt, &r.Fitness, &r.BalanceEUR, &r.LossesWh,
		&socShortfall, &r.EVFinalSoCPercent, &r.EVOptimizationDisabled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: failed to scan latest run: %w", err)
	}
	if socShortfall.Valid {
		r.SoCShortfall = socShortfall.Float64
	}

	return &r, nil
}
