package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/svap-labs/svap/internal/pipeline"
)

// CreateRun inserts a new pipeline run with an immutable config snapshot.
// Returns pipeline.ErrDuplicateRun on identifier collision.
func (q *Queries) CreateRun(ctx context.Context, runID string, configSnapshot []byte, notes string) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO pipeline_runs (run_id, created_at, config_snapshot, notes)
		 VALUES ($1, now(), $2, $3)`,
		runID, configSnapshot, notes)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("create run %s: %w", runID, pipeline.ErrDuplicateRun)
		}
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// LatestRun returns the most recently created run ID, or pipeline.ErrNoRun
// when no run exists.
func (q *Queries) LatestRun(ctx context.Context) (string, error) {
	var runID string
	err := q.db.QueryRow(ctx,
		`SELECT run_id FROM pipeline_runs ORDER BY created_at DESC LIMIT 1`).Scan(&runID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", pipeline.ErrNoRun
	}
	if err != nil {
		return "", fmt.Errorf("latest run: %w", err)
	}
	return runID, nil
}

// GetRun returns one run by identifier.
func (q *Queries) GetRun(ctx context.Context, runID string) (PipelineRun, error) {
	var r PipelineRun
	err := q.db.QueryRow(ctx,
		`SELECT run_id, created_at, config_snapshot, COALESCE(notes, '')
		 FROM pipeline_runs WHERE run_id = $1`,
		runID).Scan(&r.RunID, &r.CreatedAt, &r.ConfigSnapshot, &r.Notes)
	if err != nil {
		return PipelineRun{}, err
	}
	return r, nil
}

// ListRuns returns all runs, newest first.
func (q *Queries) ListRuns(ctx context.Context) ([]PipelineRun, error) {
	rows, err := q.db.Query(ctx,
		`SELECT run_id, created_at, config_snapshot, COALESCE(notes, '')
		 FROM pipeline_runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PipelineRun
	for rows.Next() {
		var r PipelineRun
		if err := rows.Scan(&r.RunID, &r.CreatedAt, &r.ConfigSnapshot, &r.Notes); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}
