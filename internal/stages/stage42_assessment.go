package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/svap-labs/svap/internal/pipeline"
	"github.com/svap-labs/svap/internal/store/postgres"
)

type qualityVerdict struct {
	Present    string   `json:"present"`
	FindingIDs []string `json:"finding_ids"`
	Confidence string   `json:"confidence"`
	Rationale  string   `json:"rationale"`
}

type assessedQuality struct {
	QualityID string
	Verdict   qualityVerdict
}

// runAssessment replaces background-knowledge scoring with evidence-grounded
// verdicts for every policy whose research session has findings. Each
// (policy, quality) pair is judged against the sourced findings alone; cited
// finding IDs that do not exist for the policy are dropped. Verdicts are
// synced into the policy score matrix so stages 5 and 6 run off the grounded
// answers, with "uncertain" treated as absent.
func runAssessment(ctx context.Context, env *Env, runID string) error {
	sessions, err := env.Store.ListResearchSessions(ctx, runID, "findings_complete")
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		done, err := env.Store.ListResearchSessions(ctx, runID, "assessment_complete")
		if err != nil {
			return err
		}
		if len(done) > 0 {
			env.Logger.Info("all research sessions already assessed", "run_id", runID, "sessions", len(done))
			_, err := env.Store.CompleteStage(ctx, runID, 42, completionMeta(map[string]any{
				"policies_assessed": 0, "skipped_assessed": len(done),
			}))
			return err
		}
		return errors.New("no completed research sessions; run stage 41 first")
	}

	taxonomy, err := env.Store.ListApprovedTaxonomy(ctx)
	if err != nil {
		return err
	}
	if len(taxonomy) == 0 {
		return errors.New("no approved taxonomy; run stage 2 and approve it first")
	}
	policies, err := env.Store.ListPolicies(ctx)
	if err != nil {
		return err
	}
	byID := make(map[string]postgres.Policy, len(policies))
	for _, p := range policies {
		byID[p.PolicyID] = p
	}

	type assessJob struct {
		session  postgres.ResearchSession
		policy   postgres.Policy
		findings []postgres.StructuralFinding
	}
	var jobs []pipeline.Job[assessJob, assessJob]
	noFindings := 0
	for _, s := range sessions {
		policy, ok := byID[s.PolicyID]
		if !ok {
			continue
		}
		findings, err := env.Store.ListStructuralFindings(ctx, runID, s.PolicyID)
		if err != nil {
			return err
		}
		if len(findings) == 0 {
			env.Logger.Warn("research session has no findings", "run_id", runID, "policy", s.PolicyID)
			noFindings++
			continue
		}
		job := assessJob{session: s, policy: policy, findings: findings}
		jobs = append(jobs, pipeline.Job[assessJob, assessJob]{Label: s.PolicyID, Payload: job, Context: job})
	}
	if len(jobs) == 0 {
		return errors.New("no research session has findings to assess")
	}

	env.Logger.Info("assessing policies against findings", "run_id", runID,
		"policies", len(jobs), "qualities", len(taxonomy))

	invoke := func(ctx context.Context, job assessJob) ([]assessedQuality, error) {
		var lines []string
		for _, f := range job.findings {
			lines = append(lines, fmt.Sprintf("- [%s] (%s; %s): %s",
				f.FindingID, f.Dimension, f.SourceCitation, truncate(f.Observation, 500)))
		}
		findingsBlock := strings.Join(lines, "\n")

		var verdicts []assessedQuality
		for _, q := range taxonomy {
			var v qualityVerdict
			if err := env.LLM.InvokeJSON(ctx,
				assessPrompt(job.policy.Name, q.Name, q.Definition, q.RecognitionTest, findingsBlock),
				systemAssess, &v); err != nil {
				return nil, fmt.Errorf("assess %s against %s: %w", job.policy.PolicyID, q.QualityID, err)
			}
			verdicts = append(verdicts, assessedQuality{QualityID: q.QualityID, Verdict: v})
		}
		return verdicts, nil
	}
	onResult := func(verdicts []assessedQuality, job assessJob) (int, error) {
		valid := make(map[string]bool, len(job.findings))
		for _, f := range job.findings {
			valid[f.FindingID] = true
		}

		stored := 0
		for _, av := range verdicts {
			v := av.Verdict
			present := strings.ToLower(strings.TrimSpace(v.Present))
			if present != "yes" && present != "no" {
				present = "uncertain"
			}
			var cited []string
			for _, id := range v.FindingIDs {
				if valid[id] {
					cited = append(cited, id)
				} else {
					env.Logger.Warn("verdict cited unknown finding", "run_id", runID,
						"policy", job.policy.PolicyID, "finding", id)
				}
			}
			// A yes with no surviving citations has no evidence behind it.
			if present == "yes" && len(cited) == 0 {
				present = "uncertain"
			}
			confidence := v.Confidence
			if confidence == "" {
				confidence = "medium"
			}
			citedJSON, _ := json.Marshal(cited)
			if err := env.Store.UpsertQualityAssessment(ctx, postgres.QualityAssessment{
				AssessmentID:       shortID(12, runID, job.policy.PolicyID, av.QualityID),
				RunID:              runID,
				PolicyID:           job.policy.PolicyID,
				QualityID:          av.QualityID,
				Present:            present,
				EvidenceFindingIDs: citedJSON,
				Confidence:         confidence,
				Rationale:          v.Rationale,
			}); err != nil {
				return stored, err
			}
			if err := env.Store.UpsertPolicyScore(ctx, runID, job.policy.PolicyID, av.QualityID,
				present == "yes", v.Rationale); err != nil {
				return stored, err
			}
			stored++
		}

		session := job.session
		session.Status = "assessment_complete"
		if err := env.Store.UpsertResearchSession(ctx, session); err != nil {
			return stored, err
		}
		return stored, nil
	}

	total, failed := pipeline.Dispatch(ctx, jobs, invoke, onResult, env.Pipeline.MaxConcurrency)
	if total == 0 && len(failed) == len(jobs) {
		return fmt.Errorf("assessment failed for all %d policies", len(jobs))
	}
	if len(failed) > 0 {
		env.Logger.Warn("some policies failed assessment", "run_id", runID, "failed", failed)
	}

	env.Logger.Info("assessment finished", "run_id", runID,
		"assessments", total, "policies", len(jobs)-len(failed), "no_findings", noFindings)
	_, err = env.Store.CompleteStage(ctx, runID, 42, completionMeta(map[string]any{
		"assessments":       total,
		"policies_assessed": len(jobs) - len(failed),
		"no_findings":       noFindings,
	}))
	return err
}
