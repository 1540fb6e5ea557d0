package postgres

import (
	"context"
	"fmt"
)

// DeleteRun removes a run and everything it produced. Child tables are
// cleared before pipeline_runs so the delete never trips foreign keys;
// callers wrap this in a transaction via store.WithTx.
func (q *Queries) DeleteRun(ctx context.Context, runID string) error {
	statements := []string{
		`DELETE FROM detection_patterns WHERE run_id = $1`,
		`DELETE FROM predictions WHERE run_id = $1`,
		`DELETE FROM quality_assessments WHERE run_id = $1`,
		`DELETE FROM structural_findings WHERE run_id = $1`,
		`DELETE FROM research_sessions WHERE run_id = $1`,
		`DELETE FROM triage_results WHERE run_id = $1`,
		`DELETE FROM policy_scores WHERE run_id = $1`,
		`DELETE FROM calibration WHERE run_id = $1`,
		`DELETE FROM convergence_scores WHERE run_id = $1`,
		`DELETE FROM stage_processing_log WHERE run_id = $1`,
		`DELETE FROM stage_log WHERE run_id = $1`,
		`DELETE FROM pipeline_runs WHERE run_id = $1`,
	}
	for _, sql := range statements {
		if _, err := q.db.Exec(ctx, sql, runID); err != nil {
			return fmt.Errorf("delete run %s: %w", runID, err)
		}
	}
	return nil
}

// WipeCorpus removes the shared extraction corpus (cases, taxonomy,
// policies) along with every per-run result that references it. Run rows
// and the stage log survive so run history remains auditable.
func (q *Queries) WipeCorpus(ctx context.Context) error {
	statements := []string{
		`DELETE FROM detection_patterns`,
		`DELETE FROM predictions`,
		`DELETE FROM quality_assessments`,
		`DELETE FROM structural_findings`,
		`DELETE FROM research_sessions`,
		`DELETE FROM triage_results`,
		`DELETE FROM policy_scores`,
		`DELETE FROM calibration`,
		`DELETE FROM convergence_scores`,
		`DELETE FROM stage_processing_log`,
		`DELETE FROM policies`,
		`DELETE FROM taxonomy`,
		`DELETE FROM cases`,
	}
	for _, sql := range statements {
		if _, err := q.db.Exec(ctx, sql); err != nil {
			return fmt.Errorf("wipe corpus: %w", err)
		}
	}
	return nil
}
