package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/svap-labs/svap/internal/delta"
	"github.com/svap-labs/svap/internal/pipeline"
	"github.com/svap-labs/svap/internal/store/postgres"
)

type predictedScheme struct {
	Mechanics           string   `json:"mechanics"`
	EnablingQualities   []string `json:"enabling_qualities"`
	ActorProfile        string   `json:"actor_profile"`
	LifecycleStage      string   `json:"lifecycle_stage"`
	DetectionDifficulty string   `json:"detection_difficulty"`
}

// runPrediction generates exploitation predictions for every policy whose
// convergence score meets the calibrated threshold. Per-policy digests cover
// the quality profile and the threshold, so a recalibration or a rescored
// policy regenerates its predictions. Fresh predictions land as drafts; when
// stage 5 is configured as a gate they park the stage for analyst review.
func runPrediction(ctx context.Context, env *Env, runID string) error {
	cal, err := env.Store.GetCalibration(ctx, runID)
	if err != nil {
		return err
	}
	if cal == nil {
		return errors.New("no calibration found; run stage 3 first")
	}
	scores, err := env.Store.ListPolicyScores(ctx, runID)
	if err != nil {
		return err
	}
	if len(scores) == 0 {
		return errors.New("no policy scores found; run stage 4 first")
	}
	policies, err := env.Store.ListPolicies(ctx)
	if err != nil {
		return err
	}
	taxonomy, err := env.Store.ListApprovedTaxonomy(ctx)
	if err != nil {
		return err
	}
	qualityByID := make(map[string]postgres.Quality, len(taxonomy))
	for _, q := range taxonomy {
		qualityByID[q.QualityID] = q
	}

	presentByPolicy := make(map[string][]string)
	for _, s := range scores {
		if s.Present {
			presentByPolicy[s.PolicyID] = append(presentByPolicy[s.PolicyID], s.QualityID)
		}
	}

	known, err := env.Store.HashesForStage(ctx, 5)
	if err != nil {
		return err
	}
	calFingerprint := delta.CalibrationFingerprint(cal)

	type predJob struct {
		p       postgres.Policy
		present []string
		digest  string
	}
	var jobs []pipeline.Job[predJob, predJob]
	highRisk, skipped := 0, 0
	for _, p := range policies {
		present := presentByPolicy[p.PolicyID]
		if len(present) < cal.Threshold {
			continue
		}
		highRisk++
		digest := delta.Hash(delta.PolicyQualityProfile(p.PolicyID, scores), calFingerprint)
		if known[p.PolicyID] == digest {
			skipped++
			continue
		}
		job := predJob{p: p, present: present, digest: digest}
		jobs = append(jobs, pipeline.Job[predJob, predJob]{Label: p.PolicyID, Payload: job, Context: job})
	}

	if highRisk == 0 {
		env.Logger.Info("no policy meets the threshold", "run_id", runID, "threshold", cal.Threshold)
		_, err := env.Store.CompleteStage(ctx, runID, 5, completionMeta(map[string]any{
			"predictions": 0, "high_risk_policies": 0, "threshold": cal.Threshold,
		}))
		return err
	}
	if len(jobs) == 0 {
		env.Logger.Info("all high-risk policies unchanged", "run_id", runID, "high_risk", highRisk)
		_, err := env.Store.CompleteStage(ctx, runID, 5, completionMeta(map[string]any{
			"predictions": 0, "high_risk_policies": highRisk, "skipped_unchanged": skipped,
		}))
		return err
	}

	env.Logger.Info("predicting exploitation schemes", "run_id", runID,
		"high_risk_policies", highRisk, "to_process", len(jobs), "threshold", cal.Threshold)

	invoke := func(ctx context.Context, job predJob) ([]predictedScheme, error) {
		var profile []string
		for _, id := range job.present {
			q, ok := qualityByID[id]
			if !ok {
				continue
			}
			profile = append(profile, fmt.Sprintf("- %s: %s\n  Exploitation logic: %s",
				q.Name, q.Definition, q.ExploitationLogic))
		}
		description := job.p.StructuralCharacterization
		if description == "" {
			description = job.p.Description
		}
		var out struct {
			Predictions []predictedScheme `json:"predictions"`
		}
		if err := env.LLM.InvokeJSON(ctx,
			predictPrompt(job.p.Name, truncate(description, 6000), len(job.present),
				strings.Join(profile, "\n")),
			systemPredict, &out); err != nil {
			return nil, fmt.Errorf("predict for %s: %w", job.p.PolicyID, err)
		}
		return out.Predictions, nil
	}
	onResult := func(schemes []predictedScheme, job predJob) (int, error) {
		for i, s := range schemes {
			enabling, _ := json.Marshal(s.EnablingQualities)
			if err := env.Store.UpsertPrediction(ctx, postgres.Prediction{
				PredictionID:        shortID(12, job.p.PolicyID, itoa(i), s.Mechanics),
				RunID:               runID,
				PolicyID:            job.p.PolicyID,
				PolicyName:          job.p.Name,
				ConvergenceScore:    len(job.present),
				Mechanics:           s.Mechanics,
				EnablingQualities:   enabling,
				ActorProfile:        s.ActorProfile,
				LifecycleStage:      s.LifecycleStage,
				DetectionDifficulty: s.DetectionDifficulty,
			}); err != nil {
				return 0, err
			}
		}
		if err := env.Store.RecordProcessed(ctx, 5, job.p.PolicyID, job.digest, runID); err != nil {
			return 0, err
		}
		return len(schemes), nil
	}

	total, failed := pipeline.Dispatch(ctx, jobs, invoke, onResult, env.Pipeline.MaxConcurrency)
	if total == 0 && len(failed) == len(jobs) {
		return fmt.Errorf("prediction failed for all %d policies", len(jobs))
	}
	if len(failed) > 0 {
		env.Logger.Warn("some policies failed prediction", "run_id", runID, "failed", failed)
	}

	if env.Pipeline.Gated(5) {
		env.Logger.Info("prediction finished, drafts await review", "run_id", runID,
			"predictions", total, "policies", len(jobs)-len(failed))
		_, err = env.Store.MarkAwaitingApproval(ctx, runID, 5)
		return err
	}
	env.Logger.Info("prediction finished", "run_id", runID,
		"predictions", total, "policies", len(jobs)-len(failed))
	_, err = env.Store.CompleteStage(ctx, runID, 5, completionMeta(map[string]any{
		"predictions": total, "high_risk_policies": highRisk, "threshold": cal.Threshold,
	}))
	return err
}
