package migrate

// Steps returns the full migration history. Append new steps with higher
// versions; never edit a shipped step.
func Steps() []Step {
	return []Step{
		{
			Version: 1,
			Name:    "baseline",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS pipeline_runs (
				     run_id text PRIMARY KEY,
				     created_at timestamptz NOT NULL DEFAULT now(),
				     config_snapshot jsonb,
				     notes text
				 )`,
				`CREATE TABLE IF NOT EXISTS stage_log (
				     id bigserial PRIMARY KEY,
				     run_id text NOT NULL REFERENCES pipeline_runs(run_id),
				     stage int NOT NULL,
				     status text NOT NULL,
				     started_at timestamptz NOT NULL DEFAULT now(),
				     completed_at timestamptz,
				     error_message text,
				     metadata jsonb
				 )`,
				`CREATE INDEX IF NOT EXISTS idx_stage_log_run_stage ON stage_log (run_id, stage, id DESC)`,
				`CREATE TABLE IF NOT EXISTS cases (
				     case_id text PRIMARY KEY,
				     run_id text NOT NULL,
				     source_document text,
				     case_name text NOT NULL,
				     scheme_mechanics text NOT NULL,
				     exploited_policy text NOT NULL,
				     enabling_condition text NOT NULL,
				     scale_dollars double precision,
				     detection_method text,
				     created_at timestamptz NOT NULL DEFAULT now()
				 )`,
				`CREATE TABLE IF NOT EXISTS taxonomy (
				     quality_id text PRIMARY KEY,
				     run_id text NOT NULL,
				     name text NOT NULL,
				     definition text NOT NULL,
				     recognition_test text NOT NULL,
				     exploitation_logic text NOT NULL,
				     canonical_examples jsonb,
				     review_status text NOT NULL DEFAULT 'pending',
				     reviewer_notes text,
				     created_at timestamptz NOT NULL DEFAULT now()
				 )`,
				`CREATE TABLE IF NOT EXISTS policies (
				     policy_id text PRIMARY KEY,
				     run_id text NOT NULL,
				     name text NOT NULL,
				     description text,
				     source_document text,
				     structural_characterization text,
				     created_at timestamptz NOT NULL DEFAULT now()
				 )`,
				`CREATE TABLE IF NOT EXISTS convergence_scores (
				     run_id text NOT NULL,
				     case_id text NOT NULL REFERENCES cases(case_id),
				     quality_id text NOT NULL REFERENCES taxonomy(quality_id),
				     present boolean NOT NULL,
				     evidence text,
				     created_at timestamptz NOT NULL DEFAULT now(),
				     PRIMARY KEY (run_id, case_id, quality_id)
				 )`,
				`CREATE TABLE IF NOT EXISTS calibration (
				     run_id text PRIMARY KEY,
				     threshold int NOT NULL,
				     correlation_notes text,
				     quality_frequency jsonb,
				     quality_combinations jsonb,
				     created_at timestamptz NOT NULL DEFAULT now()
				 )`,
				`CREATE TABLE IF NOT EXISTS policy_scores (
				     run_id text NOT NULL,
				     policy_id text NOT NULL REFERENCES policies(policy_id),
				     quality_id text NOT NULL REFERENCES taxonomy(quality_id),
				     present boolean NOT NULL,
				     evidence text,
				     created_at timestamptz NOT NULL DEFAULT now(),
				     PRIMARY KEY (run_id, policy_id, quality_id)
				 )`,
				`CREATE TABLE IF NOT EXISTS predictions (
				     prediction_id text PRIMARY KEY,
				     run_id text NOT NULL,
				     policy_id text NOT NULL REFERENCES policies(policy_id),
				     convergence_score int NOT NULL,
				     mechanics text NOT NULL,
				     enabling_qualities jsonb,
				     actor_profile text,
				     lifecycle_stage text,
				     detection_difficulty text,
				     review_status text NOT NULL DEFAULT 'draft',
				     created_at timestamptz NOT NULL DEFAULT now()
				 )`,
				`CREATE TABLE IF NOT EXISTS detection_patterns (
				     pattern_id text PRIMARY KEY,
				     run_id text NOT NULL,
				     prediction_id text NOT NULL REFERENCES predictions(prediction_id),
				     data_source text,
				     anomaly_signal text NOT NULL,
				     baseline text,
				     false_positive_risk text,
				     detection_latency text,
				     priority text,
				     implementation_notes text,
				     created_at timestamptz NOT NULL DEFAULT now()
				 )`,
				`CREATE TABLE IF NOT EXISTS documents (
				     doc_id text PRIMARY KEY,
				     filename text,
				     doc_type text,
				     full_text text NOT NULL,
				     metadata jsonb,
				     created_at timestamptz NOT NULL DEFAULT now()
				 )`,
				`CREATE TABLE IF NOT EXISTS chunks (
				     chunk_id text PRIMARY KEY,
				     doc_id text NOT NULL REFERENCES documents(doc_id),
				     chunk_index int NOT NULL,
				     text text NOT NULL,
				     token_count int
				 )`,
				`CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks (doc_id, chunk_index)`,
			},
		},
		{
			Version: 2,
			Name:    "delta ledger, gate tokens, triage",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS stage_processing_log (
				     stage int NOT NULL,
				     entity_id text NOT NULL,
				     input_hash text NOT NULL,
				     run_id text NOT NULL,
				     processed_at timestamptz NOT NULL DEFAULT now(),
				     PRIMARY KEY (stage, entity_id)
				 )`,
				`ALTER TABLE stage_log ADD COLUMN IF NOT EXISTS task_token text`,
				`CREATE TABLE IF NOT EXISTS triage_results (
				     id bigserial PRIMARY KEY,
				     run_id text NOT NULL,
				     policy_id text NOT NULL REFERENCES policies(policy_id),
				     triage_score double precision NOT NULL,
				     rationale text,
				     uncertainty text,
				     priority_rank int NOT NULL,
				     created_at timestamptz NOT NULL DEFAULT now()
				 )`,
				`CREATE INDEX IF NOT EXISTS idx_triage_run_rank ON triage_results (run_id, priority_rank)`,
			},
		},
		{
			Version: 3,
			Name:    "chunk embeddings",
			Statements: []string{
				`CREATE EXTENSION IF NOT EXISTS vector`,
				`ALTER TABLE chunks ADD COLUMN IF NOT EXISTS embedding vector(1024)`,
				`CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks
				     USING hnsw (embedding vector_cosine_ops)`,
			},
		},
		{
			Version: 4,
			Name:    "deep research",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS research_sessions (
				     session_id text PRIMARY KEY,
				     run_id text NOT NULL,
				     policy_id text NOT NULL REFERENCES policies(policy_id),
				     status text NOT NULL DEFAULT 'researching',
				     sources_queried jsonb,
				     error_message text,
				     created_at timestamptz NOT NULL DEFAULT now(),
				     updated_at timestamptz NOT NULL DEFAULT now()
				 )`,
				`CREATE INDEX IF NOT EXISTS idx_research_run_status ON research_sessions (run_id, status)`,
				`CREATE TABLE IF NOT EXISTS structural_findings (
				     finding_id text PRIMARY KEY,
				     run_id text NOT NULL,
				     policy_id text NOT NULL REFERENCES policies(policy_id),
				     dimension text NOT NULL,
				     observation text NOT NULL,
				     source_type text,
				     source_citation text,
				     source_excerpt text,
				     confidence text NOT NULL DEFAULT 'medium',
				     created_at timestamptz NOT NULL DEFAULT now()
				 )`,
				`CREATE INDEX IF NOT EXISTS idx_findings_run_policy ON structural_findings (run_id, policy_id)`,
				`CREATE TABLE IF NOT EXISTS regulatory_sources (
				     source_id text PRIMARY KEY,
				     source_type text NOT NULL,
				     url text,
				     title text,
				     full_text text NOT NULL,
				     fetched_at timestamptz NOT NULL DEFAULT now()
				 )`,
				`CREATE TABLE IF NOT EXISTS quality_assessments (
				     assessment_id text PRIMARY KEY,
				     run_id text NOT NULL,
				     policy_id text NOT NULL REFERENCES policies(policy_id),
				     quality_id text NOT NULL REFERENCES taxonomy(quality_id),
				     present text NOT NULL,
				     evidence_finding_ids jsonb,
				     confidence text,
				     rationale text,
				     created_at timestamptz NOT NULL DEFAULT now()
				 )`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_assessments_run_policy_quality
				     ON quality_assessments (run_id, policy_id, quality_id)`,
			},
		},
	}
}
