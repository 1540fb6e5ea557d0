package stages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/svap-labs/svap/internal/delta"
	"github.com/svap-labs/svap/internal/pipeline"
	"github.com/svap-labs/svap/internal/store/postgres"
)

type detectedPattern struct {
	DataSource          string `json:"data_source"`
	AnomalySignal       string `json:"anomaly_signal"`
	Baseline            string `json:"baseline"`
	FalsePositiveRisk   string `json:"false_positive_risk"`
	DetectionLatency    string `json:"detection_latency"`
	Priority            string `json:"priority"`
	ImplementationNotes string `json:"implementation_notes"`
}

// defaultDataSources is the fallback data catalog when the document store
// holds no catalog material.
const defaultDataSources = `Available data sources (replace with your actual data catalog):
- Claims Database: Medicare FFS claims (Part A, B, D), including procedure codes,
  diagnosis codes, provider NPIs, beneficiary IDs, dates, amounts
- Enrollment Database: Medicare/Medicaid beneficiary enrollment, plan selections,
  demographics, eligibility status
- Provider Enrollment: NPI registry, provider enrollment dates, specialty codes,
  practice locations, ownership information
- MA Encounter Data: Medicare Advantage plan encounter submissions, risk adjustment
  codes, plan identifiers
- EVV Data: Electronic Visit Verification records (Medicaid HCBS), GPS coordinates,
  check-in/check-out times
- Marketplace Enrollment: ACA marketplace applications, APTC amounts, broker IDs,
  plan selections, income attestations
- Exclusions Database: OIG exclusion list, state exclusion actions, CMS revocations
- Financial Data: Provider payment amounts, beneficiary cost-sharing, plan bid data`

// runDetection translates reviewed predictions into operational monitoring
// rules. One ledger entity per prediction, keyed on its mechanics and
// enabling qualities. Stale patterns are deleted before the model calls, so
// a mid-batch crash leaves no mix of old and new patterns for a prediction.
func runDetection(ctx context.Context, env *Env, runID string) error {
	predictions, err := env.Store.ListPredictions(ctx, runID)
	if err != nil {
		return err
	}
	if len(predictions) == 0 {
		return errors.New("no predictions found; run stage 5 first")
	}

	known, err := env.Store.HashesForStage(ctx, 6)
	if err != nil {
		return err
	}

	type predJob struct {
		pred   postgres.Prediction
		digest string
	}
	var jobs []pipeline.Job[predJob, predJob]
	for _, pred := range predictions {
		digest := delta.Hash(pred.Mechanics, string(pred.EnablingQualities))
		if known[pred.PredictionID] == digest {
			continue
		}
		job := predJob{pred, digest}
		jobs = append(jobs, pipeline.Job[predJob, predJob]{Label: pred.PredictionID, Payload: job, Context: job})
	}

	if len(jobs) == 0 {
		env.Logger.Info("all predictions unchanged", "run_id", runID, "predictions", len(predictions))
		_, err := env.Store.CompleteStage(ctx, runID, 6,
			completionMeta(map[string]any{"patterns_generated": 0, "skipped_unchanged": len(predictions)}))
		return err
	}

	for _, job := range jobs {
		if err := env.Store.DeletePatternsForPrediction(ctx, job.Payload.pred.PredictionID); err != nil {
			return err
		}
	}

	dataSources, err := env.Context.Retrieve(ctx, "data sources claims enrollment provider", "other")
	if err != nil || dataSources == "" {
		dataSources = defaultDataSources
	}

	env.Logger.Info("generating detection patterns", "run_id", runID,
		"predictions", len(jobs), "skipped_unchanged", len(predictions)-len(jobs))

	invoke := func(ctx context.Context, job predJob) ([]detectedPattern, error) {
		var qualities []string
		if len(job.pred.EnablingQualities) > 0 {
			qualities = append(qualities, string(job.pred.EnablingQualities))
		}
		var out struct {
			Patterns []detectedPattern `json:"patterns"`
		}
		if err := env.LLM.InvokeJSON(ctx,
			detectPrompt(job.pred.PolicyName, job.pred.Mechanics, strings.Join(qualities, ", "),
				job.pred.ActorProfile, job.pred.DetectionDifficulty, dataSources),
			systemDetect, &out); err != nil {
			return nil, fmt.Errorf("detect for %s: %w", job.pred.PredictionID, err)
		}
		return out.Patterns, nil
	}
	onResult := func(patterns []detectedPattern, job predJob) (int, error) {
		for i, pat := range patterns {
			if err := env.Store.InsertDetectionPattern(ctx, postgres.DetectionPattern{
				PatternID:           shortID(12, job.pred.PredictionID, itoa(i), pat.AnomalySignal),
				RunID:               runID,
				PredictionID:        job.pred.PredictionID,
				PolicyName:          job.pred.PolicyName,
				DataSource:          pat.DataSource,
				AnomalySignal:       pat.AnomalySignal,
				Baseline:            pat.Baseline,
				FalsePositiveRisk:   pat.FalsePositiveRisk,
				DetectionLatency:    pat.DetectionLatency,
				Priority:            pat.Priority,
				ImplementationNotes: pat.ImplementationNotes,
			}); err != nil {
				return 0, err
			}
		}
		if err := env.Store.RecordProcessed(ctx, 6, job.pred.PredictionID, job.digest, runID); err != nil {
			return 0, err
		}
		return len(patterns), nil
	}

	total, failed := pipeline.Dispatch(ctx, jobs, invoke, onResult, env.Pipeline.MaxConcurrency)
	if total == 0 && len(failed) == len(jobs) {
		return fmt.Errorf("pattern generation failed for all %d predictions", len(jobs))
	}
	if len(failed) > 0 {
		env.Logger.Warn("some predictions failed pattern generation", "run_id", runID, "failed", failed)
	}

	env.Logger.Info("detection pattern generation finished", "run_id", runID,
		"patterns_generated", total, "failed", len(failed))
	meta := map[string]any{
		"patterns_generated": total,
		"skipped_unchanged":  len(predictions) - len(jobs),
	}
	if len(failed) > 0 {
		meta["failed_predictions"] = failed
	}
	_, err = env.Store.CompleteStage(ctx, runID, 6, completionMeta(meta))
	return err
}
