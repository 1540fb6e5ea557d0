package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Corpus tables (cases, taxonomy, policies) are shared across runs; the
// run_id column records provenance only. All writes are complete-row upserts,
// so concurrent writers to the same entity resolve last-write-wins without
// partial updates.

// UpsertCase inserts or replaces an enforcement case.
func (q *Queries) UpsertCase(ctx context.Context, c Case) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO cases (case_id, run_id, source_document, case_name, scheme_mechanics,
		                    exploited_policy, enabling_condition, scale_dollars, detection_method, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		 ON CONFLICT (case_id) DO UPDATE SET
		     run_id = EXCLUDED.run_id,
		     source_document = EXCLUDED.source_document,
		     case_name = EXCLUDED.case_name,
		     scheme_mechanics = EXCLUDED.scheme_mechanics,
		     exploited_policy = EXCLUDED.exploited_policy,
		     enabling_condition = EXCLUDED.enabling_condition,
		     scale_dollars = EXCLUDED.scale_dollars,
		     detection_method = EXCLUDED.detection_method,
		     created_at = EXCLUDED.created_at`,
		c.CaseID, c.RunID, c.SourceDocument, c.CaseName, c.SchemeMechanics,
		c.ExploitedPolicy, c.EnablingCondition, c.ScaleDollars, c.DetectionMethod)
	if err != nil {
		return fmt.Errorf("upsert case %s: %w", c.CaseID, err)
	}
	return nil
}

// ListCases returns all cases in the corpus ordered by identifier.
func (q *Queries) ListCases(ctx context.Context) ([]Case, error) {
	rows, err := q.db.Query(ctx,
		`SELECT case_id, run_id, COALESCE(source_document, ''), case_name, scheme_mechanics,
		        exploited_policy, enabling_condition, COALESCE(scale_dollars, 0),
		        COALESCE(detection_method, ''), created_at
		 FROM cases ORDER BY case_id`)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var items []Case
	for rows.Next() {
		var c Case
		if err := rows.Scan(&c.CaseID, &c.RunID, &c.SourceDocument, &c.CaseName,
			&c.SchemeMechanics, &c.ExploitedPolicy, &c.EnablingCondition,
			&c.ScaleDollars, &c.DetectionMethod, &c.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// UpsertQuality inserts or replaces a taxonomy quality.
func (q *Queries) UpsertQuality(ctx context.Context, ql Quality) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO taxonomy (quality_id, run_id, name, definition, recognition_test,
		                       exploitation_logic, canonical_examples, review_status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 ON CONFLICT (quality_id) DO UPDATE SET
		     run_id = EXCLUDED.run_id,
		     name = EXCLUDED.name,
		     definition = EXCLUDED.definition,
		     recognition_test = EXCLUDED.recognition_test,
		     exploitation_logic = EXCLUDED.exploitation_logic,
		     canonical_examples = EXCLUDED.canonical_examples,
		     review_status = EXCLUDED.review_status,
		     created_at = EXCLUDED.created_at`,
		ql.QualityID, ql.RunID, ql.Name, ql.Definition, ql.RecognitionTest,
		ql.ExploitationLogic, ql.CanonicalExamples, ql.ReviewStatus)
	if err != nil {
		return fmt.Errorf("upsert quality %s: %w", ql.QualityID, err)
	}
	return nil
}

// ListTaxonomy returns every taxonomy quality ordered by identifier.
func (q *Queries) ListTaxonomy(ctx context.Context) ([]Quality, error) {
	return q.listTaxonomy(ctx,
		`SELECT quality_id, run_id, name, definition, recognition_test, exploitation_logic,
		        canonical_examples, review_status, COALESCE(reviewer_notes, ''), created_at
		 FROM taxonomy ORDER BY quality_id`)
}

// ListApprovedTaxonomy returns only qualities that passed human review.
// Downstream stages score exclusively against this set.
func (q *Queries) ListApprovedTaxonomy(ctx context.Context) ([]Quality, error) {
	return q.listTaxonomy(ctx,
		`SELECT quality_id, run_id, name, definition, recognition_test, exploitation_logic,
		        canonical_examples, review_status, COALESCE(reviewer_notes, ''), created_at
		 FROM taxonomy WHERE review_status = 'approved' ORDER BY quality_id`)
}

func (q *Queries) listTaxonomy(ctx context.Context, sql string) ([]Quality, error) {
	rows, err := q.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("list taxonomy: %w", err)
	}
	defer rows.Close()

	var items []Quality
	for rows.Next() {
		var ql Quality
		if err := rows.Scan(&ql.QualityID, &ql.RunID, &ql.Name, &ql.Definition,
			&ql.RecognitionTest, &ql.ExploitationLogic, &ql.CanonicalExamples,
			&ql.ReviewStatus, &ql.ReviewerNotes, &ql.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, ql)
	}
	return items, rows.Err()
}

// UpdateQualityReview sets the human review outcome for a quality. Returns
// pgx.ErrNoRows when the quality does not exist.
func (q *Queries) UpdateQualityReview(ctx context.Context, qualityID, status, notes string) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE taxonomy SET review_status = $2, reviewer_notes = $3 WHERE quality_id = $1`,
		qualityID, status, notes)
	if err != nil {
		return fmt.Errorf("update quality review %s: %w", qualityID, err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpsertPolicy inserts or replaces a policy scan target.
func (q *Queries) UpsertPolicy(ctx context.Context, p Policy) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO policies (policy_id, run_id, name, description, source_document,
		                       structural_characterization, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (policy_id) DO UPDATE SET
		     run_id = EXCLUDED.run_id,
		     name = EXCLUDED.name,
		     description = EXCLUDED.description,
		     source_document = EXCLUDED.source_document,
		     structural_characterization = EXCLUDED.structural_characterization,
		     created_at = EXCLUDED.created_at`,
		p.PolicyID, p.RunID, p.Name, p.Description, p.SourceDocument, p.StructuralCharacterization)
	if err != nil {
		return fmt.Errorf("upsert policy %s: %w", p.PolicyID, err)
	}
	return nil
}

// ListPolicies returns all policies ordered by identifier.
func (q *Queries) ListPolicies(ctx context.Context) ([]Policy, error) {
	rows, err := q.db.Query(ctx,
		`SELECT policy_id, run_id, name, COALESCE(description, ''), COALESCE(source_document, ''),
		        COALESCE(structural_characterization, ''), created_at
		 FROM policies ORDER BY policy_id`)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var items []Policy
	for rows.Next() {
		var p Policy
		if err := rows.Scan(&p.PolicyID, &p.RunID, &p.Name, &p.Description,
			&p.SourceDocument, &p.StructuralCharacterization, &p.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
