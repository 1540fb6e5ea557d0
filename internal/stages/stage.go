// Package stages holds the business logic of each pipeline stage. Stages are
// collaborators of the orchestrator: each one filters its entities through
// the processing ledger, fans the changed subset out to the reasoning model,
// persists results, and drives its own terminal transition. A stage returning
// an error has made no terminal transition; the orchestrator records the
// failure.
package stages

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/svap-labs/svap/internal/config"
	"github.com/svap-labs/svap/internal/llm"
	"github.com/svap-labs/svap/internal/regulatory"
	"github.com/svap-labs/svap/internal/store/postgres"
)

// Store is the persistence surface stages depend on. *store.Store satisfies
// it; tests use an in-memory fake.
type Store interface {
	CompleteStage(ctx context.Context, runID string, stage int, metadata []byte) (int64, error)
	MarkAwaitingApproval(ctx context.Context, runID string, stage int) (int64, error)

	HashesForStage(ctx context.Context, stage int) (map[string]string, error)
	RecordProcessed(ctx context.Context, stage int, entityID, digest, runID string) error

	ListDocuments(ctx context.Context, docType string) ([]postgres.Document, error)
	UpsertCase(ctx context.Context, c postgres.Case) error
	ListCases(ctx context.Context) ([]postgres.Case, error)
	UpsertQuality(ctx context.Context, q postgres.Quality) error
	ListTaxonomy(ctx context.Context) ([]postgres.Quality, error)
	ListApprovedTaxonomy(ctx context.Context) ([]postgres.Quality, error)
	UpsertPolicy(ctx context.Context, p postgres.Policy) error
	ListPolicies(ctx context.Context) ([]postgres.Policy, error)

	UpsertConvergenceScore(ctx context.Context, runID, caseID, qualityID string, present bool, evidence string) error
	ConvergenceMatrix(ctx context.Context, runID string) ([]postgres.ConvergenceCell, error)
	UpsertCalibration(ctx context.Context, c postgres.Calibration) error
	GetCalibration(ctx context.Context, runID string) (*postgres.Calibration, error)
	UpsertPolicyScore(ctx context.Context, runID, policyID, qualityID string, present bool, evidence string) error
	ListPolicyScores(ctx context.Context, runID string) ([]postgres.PolicyScore, error)
	InsertTriageResult(ctx context.Context, t postgres.TriageResult) error
	DeleteTriageResults(ctx context.Context, runID string) error
	ListTriageResults(ctx context.Context, runID string, limit int) ([]postgres.TriageResult, error)
	UpsertResearchSession(ctx context.Context, s postgres.ResearchSession) error
	ListResearchSessions(ctx context.Context, runID, status string) ([]postgres.ResearchSession, error)
	InsertStructuralFinding(ctx context.Context, f postgres.StructuralFinding) error
	ListStructuralFindings(ctx context.Context, runID, policyID string) ([]postgres.StructuralFinding, error)
	GetRegulatorySource(ctx context.Context, sourceID string) (*postgres.RegulatorySource, error)
	InsertRegulatorySource(ctx context.Context, s postgres.RegulatorySource) error
	UpsertQualityAssessment(ctx context.Context, a postgres.QualityAssessment) error
	UpsertPrediction(ctx context.Context, p postgres.Prediction) error
	ListPredictions(ctx context.Context, runID string) ([]postgres.Prediction, error)
	InsertDetectionPattern(ctx context.Context, d postgres.DetectionPattern) error
	DeletePatternsForPrediction(ctx context.Context, predictionID string) error
}

// ContextRetriever assembles prompt context from the document store.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query, docType string) (string, error)
}

// SourceClient fetches primary-source regulatory text for deep research.
// *regulatory.Client satisfies it; tests use a stub.
type SourceClient interface {
	ECFRFullText(ctx context.Context, title int, part string) (string, error)
	SearchRules(ctx context.Context, term string, perPage int) ([]regulatory.RuleDocument, error)
	DocumentText(ctx context.Context, rawTextURL string) (string, error)
}

// Env carries the collaborators shared by every stage.
type Env struct {
	Store    Store
	LLM      llm.Invoker
	Context  ContextRetriever
	Sources  SourceClient
	Pipeline config.PipelineConfig
	Logger   *slog.Logger
}

// Stage is one pipeline stage.
type Stage struct {
	Number int
	Name   string
	Run    func(ctx context.Context, env *Env, runID string) error
}

// All returns every stage in execution order.
func All() []Stage {
	return []Stage{
		{1, "Case Corpus Assembly", runCaseAssembly},
		{2, "Vulnerability Taxonomy Extraction", runTaxonomy},
		{3, "Convergence Scoring & Calibration", runScoring},
		{40, "Policy Triage", runTriage},
		{41, "Deep Regulatory Research", runDeepResearch},
		{42, "Evidence-Grounded Assessment", runAssessment},
		{4, "Policy Corpus Scanning", runScanning},
		{5, "Exploitation Prediction", runPrediction},
		{6, "Detection Pattern Generation", runDetection},
	}
}

// ByNumber looks up a stage by its number.
func ByNumber(n int) (Stage, bool) {
	for _, s := range All() {
		if s.Number == n {
			return s, true
		}
	}
	return Stage{}, false
}

// shortID derives a stable short identifier from its parts.
func shortID(n int, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])[:n]
}

// truncate caps text length for prompt injection.
func truncate(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	return text[:maxChars] + "\n\n[TRUNCATED]"
}

// parseDollars converts values like 10600000, "10.6 billion", or
// "$900 million" to a dollar amount. Returns 0 when unparseable.
func parseDollars(v any) float64 {
	switch val := v.(type) {
	case nil:
		return 0
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		text := strings.ToLower(strings.TrimSpace(val))
		text = strings.ReplaceAll(text, ",", "")
		text = strings.ReplaceAll(text, "$", "")
		for word, mult := range map[string]float64{"billion": 1e9, "million": 1e6, "thousand": 1e3} {
			if strings.Contains(text, word) {
				num, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(text, word, "")), 64)
				if err != nil {
					return 0
				}
				return num * mult
			}
		}
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return f
		}
	}
	return 0
}

func itoa(n int) string { return strconv.Itoa(n) }

// completionMeta marshals stage result metadata for the stage log.
func completionMeta(kv map[string]any) []byte {
	b, err := json.Marshal(kv)
	if err != nil {
		return nil
	}
	return b
}
