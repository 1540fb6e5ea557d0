package postgres

import "time"

// PipelineRun is one execution context with an immutable config snapshot.
type PipelineRun struct {
	RunID          string    `json:"run_id"`
	CreatedAt      time.Time `json:"created_at"`
	ConfigSnapshot []byte    `json:"config_snapshot"`
	Notes          string    `json:"notes"`
}

// StageLogEntry is one append-only stage execution attempt. The current
// status of (run, stage) is the status of the entry with the highest ID.
type StageLogEntry struct {
	ID           int64      `json:"id"`
	RunID        string     `json:"run_id"`
	Stage        int        `json:"stage"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	Metadata     []byte     `json:"metadata,omitempty"`
}

// StageStatusRow is the latest attempt per stage, used for run status views.
type StageStatusRow struct {
	Stage        int        `json:"stage"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

// ProcessingRecord maps (stage, entity) to the input digest last used to
// process that entity.
type ProcessingRecord struct {
	Stage       int       `json:"stage"`
	EntityID    string    `json:"entity_id"`
	InputHash   string    `json:"input_hash"`
	RunID       string    `json:"run_id"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Case is an enforcement case extracted by stage 1.
type Case struct {
	CaseID            string    `json:"case_id"`
	RunID             string    `json:"run_id"`
	SourceDocument    string    `json:"source_document"`
	CaseName          string    `json:"case_name"`
	SchemeMechanics   string    `json:"scheme_mechanics"`
	ExploitedPolicy   string    `json:"exploited_policy"`
	EnablingCondition string    `json:"enabling_condition"`
	ScaleDollars      float64   `json:"scale_dollars"`
	DetectionMethod   string    `json:"detection_method"`
	CreatedAt         time.Time `json:"created_at"`
}

// Quality is one vulnerability quality in the taxonomy (stage 2 output).
type Quality struct {
	QualityID         string    `json:"quality_id"`
	RunID             string    `json:"run_id"`
	Name              string    `json:"name"`
	Definition        string    `json:"definition"`
	RecognitionTest   string    `json:"recognition_test"`
	ExploitationLogic string    `json:"exploitation_logic"`
	CanonicalExamples []byte    `json:"canonical_examples,omitempty"`
	ReviewStatus      string    `json:"review_status"`
	ReviewerNotes     string    `json:"reviewer_notes"`
	CreatedAt         time.Time `json:"created_at"`
}

// Policy is a scan target for stages 4 onward.
type Policy struct {
	PolicyID                   string    `json:"policy_id"`
	RunID                      string    `json:"run_id"`
	Name                       string    `json:"name"`
	Description                string    `json:"description"`
	SourceDocument             string    `json:"source_document"`
	StructuralCharacterization string    `json:"structural_characterization"`
	CreatedAt                  time.Time `json:"created_at"`
}

// ConvergenceCell is one cell of the stage 3 case × quality matrix, joined
// with case attributes for calibration.
type ConvergenceCell struct {
	CaseID       string  `json:"case_id"`
	CaseName     string  `json:"case_name"`
	ScaleDollars float64 `json:"scale_dollars"`
	QualityID    string  `json:"quality_id"`
	Present      bool    `json:"present"`
	Evidence     string  `json:"evidence"`
}

// Calibration is the stage 3 threshold analysis result, one row per run.
type Calibration struct {
	RunID               string    `json:"run_id"`
	Threshold           int       `json:"threshold"`
	CorrelationNotes    string    `json:"correlation_notes"`
	QualityFrequency    []byte    `json:"quality_frequency,omitempty"`
	QualityCombinations []byte    `json:"quality_combinations,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// PolicyScore is one cell of the stage 4 policy × quality matrix.
type PolicyScore struct {
	PolicyID   string `json:"policy_id"`
	PolicyName string `json:"policy_name"`
	QualityID  string `json:"quality_id"`
	Present    bool   `json:"present"`
	Evidence   string `json:"evidence"`
}

// TriageResult ranks a policy by likely vulnerability concentration (stage 4a).
type TriageResult struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	PolicyID     string    `json:"policy_id"`
	TriageScore  float64   `json:"triage_score"`
	Rationale    string    `json:"rationale"`
	Uncertainty  string    `json:"uncertainty"`
	PriorityRank int       `json:"priority_rank"`
	CreatedAt    time.Time `json:"created_at"`
}

// Prediction is a stage 5 exploitation prediction for a high-scoring policy.
type Prediction struct {
	PredictionID        string    `json:"prediction_id"`
	RunID               string    `json:"run_id"`
	PolicyID            string    `json:"policy_id"`
	PolicyName          string    `json:"policy_name"`
	ConvergenceScore    int       `json:"convergence_score"`
	Mechanics           string    `json:"mechanics"`
	EnablingQualities   []byte    `json:"enabling_qualities,omitempty"`
	ActorProfile        string    `json:"actor_profile"`
	LifecycleStage      string    `json:"lifecycle_stage"`
	DetectionDifficulty string    `json:"detection_difficulty"`
	ReviewStatus        string    `json:"review_status"`
	CreatedAt           time.Time `json:"created_at"`
}

// DetectionPattern is a stage 6 operational monitoring rule.
type DetectionPattern struct {
	PatternID           string    `json:"pattern_id"`
	RunID               string    `json:"run_id"`
	PredictionID        string    `json:"prediction_id"`
	PolicyName          string    `json:"policy_name"`
	DataSource          string    `json:"data_source"`
	AnomalySignal       string    `json:"anomaly_signal"`
	Baseline            string    `json:"baseline"`
	FalsePositiveRisk   string    `json:"false_positive_risk"`
	DetectionLatency    string    `json:"detection_latency"`
	Priority            string    `json:"priority"`
	ImplementationNotes string    `json:"implementation_notes"`
	CreatedAt           time.Time `json:"created_at"`
}

// ResearchSession tracks the stage 41 deep-research lifecycle for one
// triaged policy: researching, findings_complete, assessment_complete, or
// failed.
type ResearchSession struct {
	SessionID      string    `json:"session_id"`
	RunID          string    `json:"run_id"`
	PolicyID       string    `json:"policy_id"`
	Status         string    `json:"status"`
	SourcesQueried []byte    `json:"sources_queried,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// StructuralFinding is one sourced observation about how a policy actually
// operates, tagged with the structural dimension it speaks to.
type StructuralFinding struct {
	FindingID      string    `json:"finding_id"`
	RunID          string    `json:"run_id"`
	PolicyID       string    `json:"policy_id"`
	Dimension      string    `json:"dimension"`
	Observation    string    `json:"observation"`
	SourceType     string    `json:"source_type"`
	SourceCitation string    `json:"source_citation"`
	SourceExcerpt  string    `json:"source_excerpt"`
	Confidence     string    `json:"confidence"`
	CreatedAt      time.Time `json:"created_at"`
}

// RegulatorySource caches fetched primary-source text so research reruns
// skip the network.
type RegulatorySource struct {
	SourceID   string    `json:"source_id"`
	SourceType string    `json:"source_type"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	FullText   string    `json:"full_text"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// QualityAssessment is a stage 42 evidence-grounded verdict on one
// (policy, quality) pair. Present is "yes", "no", or "uncertain"; the cited
// finding IDs are validated against the policy's actual findings.
type QualityAssessment struct {
	AssessmentID       string    `json:"assessment_id"`
	RunID              string    `json:"run_id"`
	PolicyID           string    `json:"policy_id"`
	QualityID          string    `json:"quality_id"`
	Present            string    `json:"present"`
	EvidenceFindingIDs []byte    `json:"evidence_finding_ids,omitempty"`
	Confidence         string    `json:"confidence"`
	Rationale          string    `json:"rationale"`
	CreatedAt          time.Time `json:"created_at"`
}

// Document is a source document in the retrieval store.
type Document struct {
	DocID     string    `json:"doc_id"`
	Filename  string    `json:"filename"`
	DocType   string    `json:"doc_type"`
	FullText  string    `json:"full_text"`
	Metadata  []byte    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Chunk is one retrieval unit of a document.
type Chunk struct {
	ChunkID    string `json:"chunk_id"`
	DocID      string `json:"doc_id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
	Filename   string `json:"filename"`
	DocType    string `json:"doc_type"`
}
