package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Dan9191/balance-planner/internal/models"
	"github.com/shopspring/decimal"
)

// RunRepository stores the audit trail of completed runs
type RunRepository interface {
	SaveRun(ctx context.Context, run *models.RunSummary) error
	// ListRuns returns the newest runs of a session first, at most limit of them
	ListRuns(ctx context.Context, sessionID string, limit int) ([]models.RunSummary, error)
}

// MemoryRunRepository keeps runs for the lifetime of the process
type MemoryRunRepository struct {
	mu   sync.RWMutex
	runs map[string][]models.RunSummary
}

// NewMemoryRunRepository initializes an empty in-memory repository
func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{runs: make(map[string][]models.RunSummary)}
}

// SaveRun appends a run to its session's history
func (r *MemoryRunRepository) SaveRun(_ context.Context, run *models.RunSummary) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.SessionID] = append(r.runs[run.SessionID], *run)
	return nil
}

// ListRuns returns a session's runs, newest first
func (r *MemoryRunRepository) ListRuns(_ context.Context, sessionID string, limit int) ([]models.RunSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runs := slices.Clone(r.runs[sessionID])
	slices.Reverse(runs)
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// PostgresRunRepository keeps runs in the planner.runs table
type PostgresRunRepository struct {
	db *sql.DB
}

// NewPostgresRunRepository initializes a repository on an open database
func NewPostgresRunRepository(db *sql.DB) *PostgresRunRepository {
	return &PostgresRunRepository{db: db}
}

// Migrate creates the runs table when it does not exist
func (r *PostgresRunRepository) Migrate(ctx context.Context) error {
	query := `
		CREATE SCHEMA IF NOT EXISTS planner;
		CREATE TABLE IF NOT EXISTS planner.runs (
			id            UUID PRIMARY KEY,
			session_id    TEXT NOT NULL,
			kind          TEXT NOT NULL,
			config        JSONB NOT NULL,
			fitness       DOUBLE PRECISION NOT NULL,
			feasible      BOOLEAN NOT NULL,
			final_balance NUMERIC(20, 10) NOT NULL,
			edit_count    INTEGER NOT NULL,
			generations   INTEGER NOT NULL,
			duration_ms   BIGINT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS runs_session_idx ON planner.runs (session_id, created_at DESC);`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to migrate runs table: %w", err)
	}
	return nil
}

// SaveRun inserts a run
func (r *PostgresRunRepository) SaveRun(ctx context.Context, run *models.RunSummary) error {
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("failed to encode run config: %w", err)
	}
	query := `
		INSERT INTO planner.runs (id, session_id, kind, config, fitness, feasible, final_balance, edit_count, generations, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, CURRENT_TIMESTAMP)
		RETURNING created_at`
	err = r.db.QueryRowContext(ctx, query,
		run.ID, run.SessionID, string(run.Kind), string(cfg), run.Fitness, run.Feasible,
		run.FinalBalance.String(), run.EditCount, run.Generations, run.Duration.Milliseconds(),
	).Scan(&run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// ListRuns returns a session's runs, newest first
func (r *PostgresRunRepository) ListRuns(ctx context.Context, sessionID string, limit int) ([]models.RunSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, session_id, kind, config, fitness, feasible, final_balance, edit_count, generations, duration_ms, created_at
		FROM planner.runs
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunSummary
	for rows.Next() {
		var (
			run        models.RunSummary
			kind       string
			cfg        []byte
			final      string
			durationMs int64
		)
		if err := rows.Scan(&run.ID, &run.SessionID, &kind, &cfg, &run.Fitness, &run.Feasible, &final,
			&run.EditCount, &run.Generations, &durationMs, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if err := json.Unmarshal(cfg, &run.Config); err != nil {
			return nil, fmt.Errorf("failed to decode run config: %w", err)
		}
		if run.FinalBalance, err = decimal.NewFromString(final); err != nil {
			return nil, fmt.Errorf("failed to parse final balance: %w", err)
		}
		run.Kind = models.RunKind(kind)
		run.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}
