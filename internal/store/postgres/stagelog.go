package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/svap-labs/svap/internal/pipeline"
)

// The stage log is append-only: a new attempt always inserts a fresh
// 'running' row, and terminal transitions update only the most recent row in
// the expected state. The current status of (run, stage) is the status of
// the row with the highest id; ids are assigned by the database sequence so
// ordering never depends on caller clocks.

// StartStage inserts a new 'running' attempt for (run, stage).
func (q *Queries) StartStage(ctx context.Context, runID string, stage int) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO stage_log (run_id, stage, status, started_at)
		 VALUES ($1, $2, 'running', now())`,
		runID, stage)
	if err != nil {
		return fmt.Errorf("start stage %d: %w", stage, err)
	}
	return nil
}

// transitionLatest updates the most recent row for (run, stage) currently in
// fromStatus. Returns the number of rows changed: zero means no matching
// attempt existed, which callers treat as an idempotent no-op.
func (q *Queries) transitionLatest(ctx context.Context, runID string, stage int, fromStatus, set string, args ...any) (int64, error) {
	params := append([]any{runID, stage}, args...)
	tag, err := q.db.Exec(ctx,
		`UPDATE stage_log SET `+set+`
		 WHERE id = (
		     SELECT id FROM stage_log
		     WHERE run_id = $1 AND stage = $2 AND status = '`+fromStatus+`'
		     ORDER BY id DESC LIMIT 1
		 )`,
		params...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CompleteStage marks the most recent 'running' attempt completed, attaching
// result metadata. No-op when no running attempt exists.
func (q *Queries) CompleteStage(ctx context.Context, runID string, stage int, metadata []byte) (int64, error) {
	n, err := q.transitionLatest(ctx, runID, stage, "running",
		`status = 'completed', completed_at = now(), metadata = $3`, metadata)
	if err != nil {
		return 0, fmt.Errorf("complete stage %d: %w", stage, err)
	}
	return n, nil
}

// FailStage marks the most recent 'running' attempt failed with error text.
func (q *Queries) FailStage(ctx context.Context, runID string, stage int, errorText string) (int64, error) {
	n, err := q.transitionLatest(ctx, runID, stage, "running",
		`status = 'failed', completed_at = now(), error_message = $3`, errorText)
	if err != nil {
		return 0, fmt.Errorf("fail stage %d: %w", stage, err)
	}
	return n, nil
}

// MarkAwaitingApproval moves the most recent 'running' attempt to the human
// gate state.
func (q *Queries) MarkAwaitingApproval(ctx context.Context, runID string, stage int) (int64, error) {
	n, err := q.transitionLatest(ctx, runID, stage, "running",
		`status = 'awaiting_approval', completed_at = now()`)
	if err != nil {
		return 0, fmt.Errorf("mark stage %d awaiting approval: %w", stage, err)
	}
	return n, nil
}

// ApproveStage moves the most recent 'awaiting_approval' attempt to
// 'approved'. Zero rows means the stage was not awaiting approval; callers
// check the precondition via CurrentStageStatus.
func (q *Queries) ApproveStage(ctx context.Context, runID string, stage int) (int64, error) {
	n, err := q.transitionLatest(ctx, runID, stage, "awaiting_approval",
		`status = 'approved'`)
	if err != nil {
		return 0, fmt.Errorf("approve stage %d: %w", stage, err)
	}
	return n, nil
}

// CurrentStageStatus returns the status of the most recent attempt for
// (run, stage), or StatusNone when the stage has never been attempted.
func (q *Queries) CurrentStageStatus(ctx context.Context, runID string, stage int) (pipeline.Status, error) {
	var status string
	err := q.db.QueryRow(ctx,
		`SELECT status FROM stage_log
		 WHERE run_id = $1 AND stage = $2
		 ORDER BY id DESC LIMIT 1`,
		runID, stage).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.StatusNone, nil
	}
	if err != nil {
		return pipeline.StatusNone, fmt.Errorf("current status of stage %d: %w", stage, err)
	}
	return pipeline.Status(status), nil
}

// PipelineStatus returns the latest attempt per stage for a run.
func (q *Queries) PipelineStatus(ctx context.Context, runID string) ([]StageStatusRow, error) {
	rows, err := q.db.Query(ctx,
		`SELECT DISTINCT ON (stage) stage, status, started_at, completed_at, error_message
		 FROM stage_log
		 WHERE run_id = $1
		 ORDER BY stage, id DESC`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("pipeline status: %w", err)
	}
	defer rows.Close()

	var items []StageStatusRow
	for rows.Next() {
		var r StageStatusRow
		if err := rows.Scan(&r.Stage, &r.Status, &r.StartedAt, &r.CompletedAt, &r.ErrorMessage); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

// StoreGateToken persists an opaque continuation token on the most recent
// attempt for (run, stage). The token's contents are never interpreted.
func (q *Queries) StoreGateToken(ctx context.Context, runID string, stage int, token string) error {
	_, err := q.db.Exec(ctx,
		`UPDATE stage_log SET task_token = $3
		 WHERE id = (
		     SELECT id FROM stage_log
		     WHERE run_id = $1 AND stage = $2
		     ORDER BY id DESC LIMIT 1
		 )`,
		runID, stage, token)
	if err != nil {
		return fmt.Errorf("store gate token for stage %d: %w", stage, err)
	}
	return nil
}

// LatestGateToken returns the most recently stored continuation token for
// (run, stage), or "" when none was ever stored (synchronous execution mode).
func (q *Queries) LatestGateToken(ctx context.Context, runID string, stage int) (string, error) {
	var token string
	err := q.db.QueryRow(ctx,
		`SELECT task_token FROM stage_log
		 WHERE run_id = $1 AND stage = $2 AND task_token IS NOT NULL
		 ORDER BY id DESC LIMIT 1`,
		runID, stage).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("gate token for stage %d: %w", stage, err)
	}
	return token, nil
}
