package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// UpsertResearchSession creates or advances a deep-research session. Keyed
// on session_id so reruns move the same session through its lifecycle.
func (q *Queries) UpsertResearchSession(ctx context.Context, s ResearchSession) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO research_sessions (session_id, run_id, policy_id, status, sources_queried, error_message, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), now(), now())
		 ON CONFLICT (session_id) DO UPDATE SET
		     status = EXCLUDED.status,
		     sources_queried = EXCLUDED.sources_queried,
		     error_message = EXCLUDED.error_message,
		     updated_at = now()`,
		s.SessionID, s.RunID, s.PolicyID, s.Status, s.SourcesQueried, s.ErrorMessage)
	if err != nil {
		return fmt.Errorf("upsert research session %s: %w", s.SessionID, err)
	}
	return nil
}

// ListResearchSessions returns a run's research sessions, optionally
// filtered by status. An empty status returns every session.
func (q *Queries) ListResearchSessions(ctx context.Context, runID, status string) ([]ResearchSession, error) {
	rows, err := q.db.Query(ctx,
		`SELECT session_id, run_id, policy_id, status, sources_queried,
		        COALESCE(error_message, ''), created_at, updated_at
		 FROM research_sessions
		 WHERE run_id = $1 AND ($2 = '' OR status = $2)
		 ORDER BY created_at`,
		runID, status)
	if err != nil {
		return nil, fmt.Errorf("list research sessions: %w", err)
	}
	defer rows.Close()

	var items []ResearchSession
	for rows.Next() {
		var s ResearchSession
		if err := rows.Scan(&s.SessionID, &s.RunID, &s.PolicyID, &s.Status,
			&s.SourcesQueried, &s.ErrorMessage, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

// InsertStructuralFinding inserts or replaces one sourced finding.
func (q *Queries) InsertStructuralFinding(ctx context.Context, f StructuralFinding) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO structural_findings (finding_id, run_id, policy_id, dimension, observation,
		                                  source_type, source_citation, source_excerpt, confidence, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		 ON CONFLICT (finding_id) DO UPDATE SET
		     observation = EXCLUDED.observation,
		     source_excerpt = EXCLUDED.source_excerpt,
		     confidence = EXCLUDED.confidence,
		     created_at = EXCLUDED.created_at`,
		f.FindingID, f.RunID, f.PolicyID, f.Dimension, f.Observation,
		f.SourceType, f.SourceCitation, f.SourceExcerpt, f.Confidence)
	if err != nil {
		return fmt.Errorf("insert structural finding %s: %w", f.FindingID, err)
	}
	return nil
}

// ListStructuralFindings returns a policy's findings for a run.
func (q *Queries) ListStructuralFindings(ctx context.Context, runID, policyID string) ([]StructuralFinding, error) {
	rows, err := q.db.Query(ctx,
		`SELECT finding_id, run_id, policy_id, dimension, observation,
		        COALESCE(source_type, ''), COALESCE(source_citation, ''),
		        COALESCE(source_excerpt, ''), confidence, created_at
		 FROM structural_findings
		 WHERE run_id = $1 AND policy_id = $2
		 ORDER BY dimension, finding_id`,
		runID, policyID)
	if err != nil {
		return nil, fmt.Errorf("list structural findings: %w", err)
	}
	defer rows.Close()

	var items []StructuralFinding
	for rows.Next() {
		var f StructuralFinding
		if err := rows.Scan(&f.FindingID, &f.RunID, &f.PolicyID, &f.Dimension, &f.Observation,
			&f.SourceType, &f.SourceCitation, &f.SourceExcerpt, &f.Confidence, &f.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

// GetRegulatorySource returns a cached source document, or (nil, nil) when
// it has never been fetched.
func (q *Queries) GetRegulatorySource(ctx context.Context, sourceID string) (*RegulatorySource, error) {
	var s RegulatorySource
	err := q.db.QueryRow(ctx,
		`SELECT source_id, source_type, COALESCE(url, ''), COALESCE(title, ''), full_text, fetched_at
		 FROM regulatory_sources WHERE source_id = $1`,
		sourceID).Scan(&s.SourceID, &s.SourceType, &s.URL, &s.Title, &s.FullText, &s.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get regulatory source %s: %w", sourceID, err)
	}
	return &s, nil
}

// InsertRegulatorySource caches a fetched source. First fetch wins; the text
// of a published rule or CFR part does not change under the same key.
func (q *Queries) InsertRegulatorySource(ctx context.Context, s RegulatorySource) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO regulatory_sources (source_id, source_type, url, title, full_text, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (source_id) DO NOTHING`,
		s.SourceID, s.SourceType, s.URL, s.Title, s.FullText)
	if err != nil {
		return fmt.Errorf("insert regulatory source %s: %w", s.SourceID, err)
	}
	return nil
}

// UpsertQualityAssessment records an evidence-grounded verdict for one
// (run, policy, quality) cell.
func (q *Queries) UpsertQualityAssessment(ctx context.Context, a QualityAssessment) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO quality_assessments (assessment_id, run_id, policy_id, quality_id, present,
		                                  evidence_finding_ids, confidence, rationale, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 ON CONFLICT (assessment_id) DO UPDATE SET
		     present = EXCLUDED.present,
		     evidence_finding_ids = EXCLUDED.evidence_finding_ids,
		     confidence = EXCLUDED.confidence,
		     rationale = EXCLUDED.rationale,
		     created_at = EXCLUDED.created_at`,
		a.AssessmentID, a.RunID, a.PolicyID, a.QualityID, a.Present,
		a.EvidenceFindingIDs, a.Confidence, a.Rationale)
	if err != nil {
		return fmt.Errorf("upsert quality assessment %s: %w", a.AssessmentID, err)
	}
	return nil
}

// ListQualityAssessments returns a run's assessments, grouped by policy.
func (q *Queries) ListQualityAssessments(ctx context.Context, runID string) ([]QualityAssessment, error) {
	rows, err := q.db.Query(ctx,
		`SELECT assessment_id, run_id, policy_id, quality_id, present,
		        evidence_finding_ids, COALESCE(confidence, ''), COALESCE(rationale, ''), created_at
		 FROM quality_assessments
		 WHERE run_id = $1
		 ORDER BY policy_id, quality_id`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("list quality assessments: %w", err)
	}
	defer rows.Close()

	var items []QualityAssessment
	for rows.Next() {
		var a QualityAssessment
		if err := rows.Scan(&a.AssessmentID, &a.RunID, &a.PolicyID, &a.QualityID, &a.Present,
			&a.EvidenceFindingIDs, &a.Confidence, &a.Rationale, &a.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
