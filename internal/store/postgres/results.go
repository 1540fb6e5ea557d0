package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// UpsertConvergenceScore records whether a quality is present in a known
// case. Keyed on (run, case, quality) so rescoring replaces the prior cell.
func (q *Queries) UpsertConvergenceScore(ctx context.Context, runID, caseID, qualityID string, present bool, evidence string) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO convergence_scores (run_id, case_id, quality_id, present, evidence, created_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (run_id, case_id, quality_id) DO UPDATE SET
		     present = EXCLUDED.present,
		     evidence = EXCLUDED.evidence,
		     created_at = EXCLUDED.created_at`,
		runID, caseID, qualityID, present, evidence)
	if err != nil {
		return fmt.Errorf("upsert convergence score: %w", err)
	}
	return nil
}

// ConvergenceMatrix returns the full case × quality matrix for a run, joined
// with case attributes used by calibration.
func (q *Queries) ConvergenceMatrix(ctx context.Context, runID string) ([]ConvergenceCell, error) {
	rows, err := q.db.Query(ctx,
		`SELECT c.case_id, c.case_name, COALESCE(c.scale_dollars, 0),
		        cs.quality_id, cs.present, COALESCE(cs.evidence, '')
		 FROM convergence_scores cs
		 JOIN cases c ON cs.case_id = c.case_id
		 WHERE cs.run_id = $1
		 ORDER BY c.case_id, cs.quality_id`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("convergence matrix: %w", err)
	}
	defer rows.Close()

	var items []ConvergenceCell
	for rows.Next() {
		var cell ConvergenceCell
		if err := rows.Scan(&cell.CaseID, &cell.CaseName, &cell.ScaleDollars,
			&cell.QualityID, &cell.Present, &cell.Evidence); err != nil {
			return nil, err
		}
		items = append(items, cell)
	}
	return items, rows.Err()
}

// UpsertCalibration stores the stage 3 threshold analysis, one row per run.
func (q *Queries) UpsertCalibration(ctx context.Context, c Calibration) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO calibration (run_id, threshold, correlation_notes, quality_frequency, quality_combinations, created_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (run_id) DO UPDATE SET
		     threshold = EXCLUDED.threshold,
		     correlation_notes = EXCLUDED.correlation_notes,
		     quality_frequency = EXCLUDED.quality_frequency,
		     quality_combinations = EXCLUDED.quality_combinations,
		     created_at = EXCLUDED.created_at`,
		c.RunID, c.Threshold, c.CorrelationNotes, c.QualityFrequency, c.QualityCombinations)
	if err != nil {
		return fmt.Errorf("upsert calibration: %w", err)
	}
	return nil
}

// GetCalibration returns the calibration for a run, or (nil, nil) when
// stage 3 has not produced one yet.
func (q *Queries) GetCalibration(ctx context.Context, runID string) (*Calibration, error) {
	var c Calibration
	err := q.db.QueryRow(ctx,
		`SELECT run_id, threshold, COALESCE(correlation_notes, ''), quality_frequency, quality_combinations, created_at
		 FROM calibration WHERE run_id = $1`,
		runID).Scan(&c.RunID, &c.Threshold, &c.CorrelationNotes, &c.QualityFrequency, &c.QualityCombinations, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get calibration: %w", err)
	}
	return &c, nil
}

// UpsertPolicyScore records whether a quality is present in a scanned policy.
func (q *Queries) UpsertPolicyScore(ctx context.Context, runID, policyID, qualityID string, present bool, evidence string) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO policy_scores (run_id, policy_id, quality_id, present, evidence, created_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (run_id, policy_id, quality_id) DO UPDATE SET
		     present = EXCLUDED.present,
		     evidence = EXCLUDED.evidence,
		     created_at = EXCLUDED.created_at`,
		runID, policyID, qualityID, present, evidence)
	if err != nil {
		return fmt.Errorf("upsert policy score: %w", err)
	}
	return nil
}

// ListPolicyScores returns the policy × quality matrix for a run.
func (q *Queries) ListPolicyScores(ctx context.Context, runID string) ([]PolicyScore, error) {
	rows, err := q.db.Query(ctx,
		`SELECT ps.policy_id, p.name, ps.quality_id, ps.present, COALESCE(ps.evidence, '')
		 FROM policy_scores ps
		 JOIN policies p ON ps.policy_id = p.policy_id
		 WHERE ps.run_id = $1
		 ORDER BY ps.policy_id, ps.quality_id`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("list policy scores: %w", err)
	}
	defer rows.Close()

	var items []PolicyScore
	for rows.Next() {
		var s PolicyScore
		if err := rows.Scan(&s.PolicyID, &s.PolicyName, &s.QualityID, &s.Present, &s.Evidence); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

// InsertTriageResult appends one ranked policy from the triage pass.
func (q *Queries) InsertTriageResult(ctx context.Context, t TriageResult) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO triage_results (run_id, policy_id, triage_score, rationale, uncertainty, priority_rank, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())`,
		t.RunID, t.PolicyID, t.TriageScore, t.Rationale, t.Uncertainty, t.PriorityRank)
	if err != nil {
		return fmt.Errorf("insert triage result: %w", err)
	}
	return nil
}

// ListTriageResults returns a run's triage ranking, highest priority first.
// A limit of 0 returns the whole ranking.
func (q *Queries) ListTriageResults(ctx context.Context, runID string, limit int) ([]TriageResult, error) {
	sql := `SELECT id, run_id, policy_id, triage_score, COALESCE(rationale, ''),
	               COALESCE(uncertainty, ''), priority_rank, created_at
	        FROM triage_results
	        WHERE run_id = $1
	        ORDER BY priority_rank`
	args := []any{runID}
	if limit > 0 {
		sql += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list triage results: %w", err)
	}
	defer rows.Close()

	var items []TriageResult
	for rows.Next() {
		var t TriageResult
		if err := rows.Scan(&t.ID, &t.RunID, &t.PolicyID, &t.TriageScore,
			&t.Rationale, &t.Uncertainty, &t.PriorityRank, &t.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

// DeleteTriageResults clears a run's triage ranking before regeneration.
func (q *Queries) DeleteTriageResults(ctx context.Context, runID string) error {
	_, err := q.db.Exec(ctx, `DELETE FROM triage_results WHERE run_id = $1`, runID)
	if err != nil {
		return fmt.Errorf("delete triage results: %w", err)
	}
	return nil
}

// UpsertPrediction inserts or replaces an exploitation prediction.
func (q *Queries) UpsertPrediction(ctx context.Context, p Prediction) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO predictions (prediction_id, run_id, policy_id, convergence_score, mechanics,
		                          enabling_qualities, actor_profile, lifecycle_stage,
		                          detection_difficulty, review_status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'draft', now())
		 ON CONFLICT (prediction_id) DO UPDATE SET
		     run_id = EXCLUDED.run_id,
		     policy_id = EXCLUDED.policy_id,
		     convergence_score = EXCLUDED.convergence_score,
		     mechanics = EXCLUDED.mechanics,
		     enabling_qualities = EXCLUDED.enabling_qualities,
		     actor_profile = EXCLUDED.actor_profile,
		     lifecycle_stage = EXCLUDED.lifecycle_stage,
		     detection_difficulty = EXCLUDED.detection_difficulty,
		     created_at = EXCLUDED.created_at`,
		p.PredictionID, p.RunID, p.PolicyID, p.ConvergenceScore, p.Mechanics,
		p.EnablingQualities, p.ActorProfile, p.LifecycleStage, p.DetectionDifficulty)
	if err != nil {
		return fmt.Errorf("upsert prediction %s: %w", p.PredictionID, err)
	}
	return nil
}

// ListPredictions returns a run's predictions, highest convergence first.
func (q *Queries) ListPredictions(ctx context.Context, runID string) ([]Prediction, error) {
	rows, err := q.db.Query(ctx,
		`SELECT pr.prediction_id, pr.run_id, pr.policy_id, p.name, pr.convergence_score,
		        pr.mechanics, pr.enabling_qualities, COALESCE(pr.actor_profile, ''),
		        COALESCE(pr.lifecycle_stage, ''), COALESCE(pr.detection_difficulty, ''),
		        pr.review_status, pr.created_at
		 FROM predictions pr
		 JOIN policies p ON pr.policy_id = p.policy_id
		 WHERE pr.run_id = $1
		 ORDER BY pr.convergence_score DESC`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	var items []Prediction
	for rows.Next() {
		var p Prediction
		if err := rows.Scan(&p.PredictionID, &p.RunID, &p.PolicyID, &p.PolicyName,
			&p.ConvergenceScore, &p.Mechanics, &p.EnablingQualities, &p.ActorProfile,
			&p.LifecycleStage, &p.DetectionDifficulty, &p.ReviewStatus, &p.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// InsertDetectionPattern appends one monitoring rule for a prediction.
func (q *Queries) InsertDetectionPattern(ctx context.Context, d DetectionPattern) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO detection_patterns (pattern_id, run_id, prediction_id, data_source, anomaly_signal,
		                                 baseline, false_positive_risk, detection_latency, priority,
		                                 implementation_notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		 ON CONFLICT (pattern_id) DO UPDATE SET
		     data_source = EXCLUDED.data_source,
		     anomaly_signal = EXCLUDED.anomaly_signal,
		     baseline = EXCLUDED.baseline,
		     false_positive_risk = EXCLUDED.false_positive_risk,
		     detection_latency = EXCLUDED.detection_latency,
		     priority = EXCLUDED.priority,
		     implementation_notes = EXCLUDED.implementation_notes,
		     created_at = EXCLUDED.created_at`,
		d.PatternID, d.RunID, d.PredictionID, d.DataSource, d.AnomalySignal,
		d.Baseline, d.FalsePositiveRisk, d.DetectionLatency, d.Priority, d.ImplementationNotes)
	if err != nil {
		return fmt.Errorf("insert detection pattern %s: %w", d.PatternID, err)
	}
	return nil
}

// DeletePatternsForPrediction removes a prediction's stale patterns before a
// changed prediction is regenerated.
func (q *Queries) DeletePatternsForPrediction(ctx context.Context, predictionID string) error {
	_, err := q.db.Exec(ctx, `DELETE FROM detection_patterns WHERE prediction_id = $1`, predictionID)
	if err != nil {
		return fmt.Errorf("delete patterns for prediction %s: %w", predictionID, err)
	}
	return nil
}

// ListDetectionPatterns returns a run's detection patterns joined with the
// originating prediction's policy name.
func (q *Queries) ListDetectionPatterns(ctx context.Context, runID string) ([]DetectionPattern, error) {
	rows, err := q.db.Query(ctx,
		`SELECT dp.pattern_id, dp.run_id, dp.prediction_id, p.name,
		        dp.data_source, dp.anomaly_signal, COALESCE(dp.baseline, ''),
		        COALESCE(dp.false_positive_risk, ''), COALESCE(dp.detection_latency, ''),
		        COALESCE(dp.priority, 'medium'), COALESCE(dp.implementation_notes, ''), dp.created_at
		 FROM detection_patterns dp
		 JOIN predictions pr ON dp.prediction_id = pr.prediction_id
		 JOIN policies p ON pr.policy_id = p.policy_id
		 WHERE dp.run_id = $1
		 ORDER BY dp.priority, dp.pattern_id`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("list detection patterns: %w", err)
	}
	defer rows.Close()

	var items []DetectionPattern
	for rows.Next() {
		var d DetectionPattern
		if err := rows.Scan(&d.PatternID, &d.RunID, &d.PredictionID, &d.PolicyName,
			&d.DataSource, &d.AnomalySignal, &d.Baseline, &d.FalsePositiveRisk,
			&d.DetectionLatency, &d.Priority, &d.ImplementationNotes, &d.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}
