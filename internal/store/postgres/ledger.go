package postgres

import (
	"context"
	"fmt"
)

// HashesForStage bulk-loads every known input digest for a stage, keyed by
// entity. Loaded once per stage run so the skip decision never costs a
// round trip per entity.
func (q *Queries) HashesForStage(ctx context.Context, stage int) (map[string]string, error) {
	rows, err := q.db.Query(ctx,
		`SELECT entity_id, input_hash FROM stage_processing_log WHERE stage = $1`,
		stage)
	if err != nil {
		return nil, fmt.Errorf("load hashes for stage %d: %w", stage, err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var entityID, hash string
		if err := rows.Scan(&entityID, &hash); err != nil {
			return nil, err
		}
		hashes[entityID] = hash
	}
	return hashes, rows.Err()
}

// RecordProcessed upserts the digest last used to process (stage, entity).
// Callers invoke this only after the entity's new output is persisted, so a
// crash mid-processing leaves a stale digest that forces reprocessing on
// retry.
func (q *Queries) RecordProcessed(ctx context.Context, stage int, entityID, digest, runID string) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO stage_processing_log (stage, entity_id, input_hash, run_id, processed_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (stage, entity_id) DO UPDATE SET
		     input_hash = EXCLUDED.input_hash,
		     run_id = EXCLUDED.run_id,
		     processed_at = EXCLUDED.processed_at`,
		stage, entityID, digest, runID)
	if err != nil {
		return fmt.Errorf("record processed (%d, %s): %w", stage, entityID, err)
	}
	return nil
}
