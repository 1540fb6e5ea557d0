package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/svap-labs/svap/internal/delta"
	"github.com/svap-labs/svap/internal/pipeline"
	"github.com/svap-labs/svap/internal/rag"
	"github.com/svap-labs/svap/internal/store/postgres"
)

type scoreSheet struct {
	Scores map[string]scoreCell `json:"scores"`
}

type scoreCell struct {
	Present  bool   `json:"present"`
	Evidence string `json:"evidence"`
}

// runScoring scores every case against the approved taxonomy to produce the
// convergence matrix, then derives the calibration threshold from it. Case
// digests fold in the taxonomy fingerprint, so approving a new quality
// re-scores every case.
func runScoring(ctx context.Context, env *Env, runID string) error {
	cases, err := env.Store.ListCases(ctx)
	if err != nil {
		return err
	}
	taxonomy, err := env.Store.ListApprovedTaxonomy(ctx)
	if err != nil {
		return err
	}
	if len(cases) == 0 || len(taxonomy) == 0 {
		return errors.New("need both cases (stage 1) and an approved taxonomy (stage 2)")
	}

	known, err := env.Store.HashesForStage(ctx, 3)
	if err != nil {
		return err
	}
	fingerprint := delta.TaxonomyFingerprint(taxonomy)
	taxonomyContext := rag.FormatTaxonomy(taxonomy)

	type caseJob struct {
		c      postgres.Case
		digest string
	}
	var jobs []pipeline.Job[postgres.Case, caseJob]
	for _, c := range cases {
		digest := delta.Hash(c.SchemeMechanics, c.EnablingCondition, fingerprint)
		if known[c.CaseID] == digest {
			continue
		}
		jobs = append(jobs, pipeline.Job[postgres.Case, caseJob]{
			Label: c.CaseID, Payload: c, Context: caseJob{c, digest},
		})
	}

	scored := 0
	if len(jobs) == 0 {
		if cal, err := env.Store.GetCalibration(ctx, runID); err != nil {
			return err
		} else if cal != nil {
			env.Logger.Info("all cases unchanged, calibration current",
				"run_id", runID, "cases", len(cases))
			_, err := env.Store.CompleteStage(ctx, runID, 3, completionMeta(map[string]any{
				"cases_scored": 0, "threshold": cal.Threshold, "skipped_unchanged": len(cases),
			}))
			return err
		}
		// Matrix is current but calibration never ran; fall through to it.
	} else {
		env.Logger.Info("scoring cases against taxonomy",
			"run_id", runID, "cases", len(jobs), "qualities", len(taxonomy))

		invoke := func(ctx context.Context, c postgres.Case) (scoreSheet, error) {
			var sheet scoreSheet
			prompt := scoreCasePrompt(c.CaseName, c.ExploitedPolicy, c.SchemeMechanics,
				c.EnablingCondition, taxonomyContext)
			if err := env.LLM.InvokeJSON(ctx, prompt, systemScore, &sheet); err != nil {
				return scoreSheet{}, fmt.Errorf("score case %s: %w", c.CaseID, err)
			}
			return sheet, nil
		}
		onResult := func(sheet scoreSheet, job caseJob) (int, error) {
			for qualityID, cell := range sheet.Scores {
				if err := env.Store.UpsertConvergenceScore(ctx, runID, job.c.CaseID,
					qualityID, cell.Present, cell.Evidence); err != nil {
					return 0, err
				}
			}
			if err := env.Store.RecordProcessed(ctx, 3, job.c.CaseID, job.digest, runID); err != nil {
				return 0, err
			}
			return 1, nil
		}

		var failed []string
		scored, failed = pipeline.Dispatch(ctx, jobs, invoke, onResult, env.Pipeline.MaxConcurrency)
		if scored == 0 {
			return fmt.Errorf("scoring failed for all %d cases", len(jobs))
		}
		if len(failed) > 0 {
			env.Logger.Warn("some cases failed scoring", "run_id", runID, "failed", failed)
		}
	}

	threshold, err := calibrate(ctx, env, runID)
	if err != nil {
		return err
	}

	env.Logger.Info("scoring finished", "run_id", runID, "cases_scored", scored, "threshold", threshold)
	_, err = env.Store.CompleteStage(ctx, runID, 3, completionMeta(map[string]any{
		"cases_scored": scored, "threshold": threshold,
	}))
	return err
}

// calibrate derives the threshold from the convergence matrix and stores the
// calibration row. Returns the chosen threshold.
func calibrate(ctx context.Context, env *Env, runID string) (int, error) {
	matrix, err := env.Store.ConvergenceMatrix(ctx, runID)
	if err != nil {
		return 0, err
	}

	type caseScore struct {
		Case  string  `json:"case"`
		Score int     `json:"score"`
		Scale float64 `json:"scale_dollars"`
	}
	byCase := make(map[string]*caseScore)
	qualities := make(map[string][]string)
	freq := make(map[string]int)

	var order []string
	for _, cell := range matrix {
		cs, ok := byCase[cell.CaseID]
		if !ok {
			cs = &caseScore{Case: cell.CaseName, Scale: cell.ScaleDollars}
			byCase[cell.CaseID] = cs
			order = append(order, cell.CaseID)
		}
		if cell.Present {
			cs.Score++
			qualities[cell.CaseID] = append(qualities[cell.CaseID], cell.QualityID)
			freq[cell.QualityID]++
		}
	}

	combos := make(map[string]int)
	for _, quals := range qualities {
		sort.Strings(quals)
		for i := 0; i < len(quals); i++ {
			for j := i + 1; j < len(quals); j++ {
				combos[quals[i]+"+"+quals[j]]++
			}
		}
	}

	scores := make([]caseScore, 0, len(order))
	for _, id := range order {
		scores = append(scores, *byCase[id])
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })

	scoreJSON, err := json.MarshalIndent(scores, "", "  ")
	if err != nil {
		return 0, err
	}

	var cal struct {
		Threshold        int    `json:"threshold"`
		CorrelationNotes string `json:"correlation_notes"`
	}
	if err := env.LLM.InvokeJSON(ctx, calibrationPrompt(string(scoreJSON)), "", &cal); err != nil {
		return 0, fmt.Errorf("calibration analysis: %w", err)
	}
	if cal.Threshold <= 0 {
		cal.Threshold = env.Pipeline.DefaultThreshold
	}

	freqJSON, _ := json.Marshal(freq)
	comboJSON, _ := json.Marshal(combos)
	if err := env.Store.UpsertCalibration(ctx, postgres.Calibration{
		RunID:               runID,
		Threshold:           cal.Threshold,
		CorrelationNotes:    cal.CorrelationNotes,
		QualityFrequency:    freqJSON,
		QualityCombinations: comboJSON,
	}); err != nil {
		return 0, err
	}
	return cal.Threshold, nil
}
