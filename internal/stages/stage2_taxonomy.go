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

type draftQuality struct {
	Name               string   `json:"name"`
	Definition         string   `json:"definition"`
	RecognitionTest    string   `json:"recognition_test"`
	ExploitationLogic  string   `json:"exploitation_logic"`
	CanonicalExamples  []string `json:"canonical_examples"`
	EnablingConditions []string `json:"enabling_conditions"`
}

type dedupResult struct {
	Match             bool   `json:"match"`
	ExistingQualityID string `json:"existing_quality_id"`
}

// runTaxonomy abstracts case enabling conditions into vulnerability
// qualities. Three passes: cluster the new cases' conditions, refine each
// cluster into a full quality, then deduplicate semantically against the
// existing taxonomy. Human gate: when stage 2 is configured as a gate,
// novel drafts park the stage at awaiting_approval; if everything merged,
// or gating is disabled, the stage completes on its own.
func runTaxonomy(ctx context.Context, env *Env, runID string) error {
	cases, err := env.Store.ListCases(ctx)
	if err != nil {
		return err
	}
	if len(cases) == 0 {
		return errors.New("no cases found; run stage 1 first")
	}

	known, err := env.Store.HashesForStage(ctx, 2)
	if err != nil {
		return err
	}

	type caseDelta struct {
		c      postgres.Case
		digest string
	}
	var newCases []caseDelta
	for _, c := range cases {
		digest := delta.Hash(c.EnablingCondition)
		if known[c.CaseID] == digest {
			continue
		}
		newCases = append(newCases, caseDelta{c, digest})
	}

	if len(newCases) == 0 {
		taxonomy, err := env.Store.ListTaxonomy(ctx)
		if err != nil {
			return err
		}
		env.Logger.Info("all cases already distilled into taxonomy",
			"run_id", runID, "cases", len(cases), "qualities", len(taxonomy))
		_, err = env.Store.CompleteStage(ctx, runID, 2,
			completionMeta(map[string]any{"qualities_total": len(taxonomy), "cases_processed": 0}))
		return err
	}

	env.Logger.Info("clustering enabling conditions",
		"run_id", runID, "new_cases", len(newCases), "already_processed", len(cases)-len(newCases))

	// Pass 1: cluster new cases' enabling conditions into draft qualities.
	var conditionBlocks []string
	for _, cd := range newCases {
		conditionBlocks = append(conditionBlocks,
			fmt.Sprintf("CASE: %s\nENABLING CONDITION: %s", cd.c.CaseName, cd.c.EnablingCondition))
	}
	var clustered struct {
		Qualities []draftQuality `json:"qualities"`
	}
	if err := env.LLM.InvokeJSON(ctx,
		clusterPrompt(strings.Join(conditionBlocks, "\n\n"), len(newCases)),
		systemCluster, &clustered); err != nil {
		return fmt.Errorf("cluster enabling conditions: %w", err)
	}
	env.Logger.Info("draft qualities identified", "run_id", runID, "drafts", len(clustered.Qualities))

	// Pass 2: refine each draft independently.
	allNames := make([]string, len(clustered.Qualities))
	for i, d := range clustered.Qualities {
		allNames[i] = d.Name
	}

	var refineJobs []pipeline.Job[draftQuality, int]
	for i, d := range clustered.Qualities {
		refineJobs = append(refineJobs, pipeline.Job[draftQuality, int]{
			Label: d.Name, Payload: d, Context: i,
		})
	}

	refined := make([]draftQuality, len(clustered.Qualities))
	invoke := func(ctx context.Context, d draftQuality) (draftQuality, error) {
		others := make([]string, 0, len(allNames))
		for _, n := range allNames {
			if n != d.Name {
				others = append(others, n)
			}
		}
		examples, _ := json.Marshal(d.EnablingConditions)
		var out draftQuality
		if err := env.LLM.InvokeJSON(ctx,
			refinePrompt(d.Name, d.Definition, string(examples), strings.Join(others, ", ")),
			systemRefine, &out); err != nil {
			return draftQuality{}, err
		}
		if out.Name == "" {
			out.Name = d.Name
		}
		if out.Definition == "" {
			out.Definition = d.Definition
		}
		if len(out.CanonicalExamples) == 0 {
			out.CanonicalExamples = d.EnablingConditions
		}
		return out, nil
	}
	onResult := func(out draftQuality, idx int) (int, error) {
		refined[idx] = out
		return 1, nil
	}
	refinedCount, refineFailed := pipeline.Dispatch(ctx, refineJobs, invoke, onResult, env.Pipeline.MaxConcurrency)
	if refinedCount == 0 && len(refineJobs) > 0 {
		return fmt.Errorf("refinement failed for all %d draft qualities", len(refineJobs))
	}
	if len(refineFailed) > 0 {
		env.Logger.Warn("some drafts failed refinement", "run_id", runID, "failed", refineFailed)
	}

	// Pass 3: semantic dedup against the growing taxonomy. Sequential, so
	// each check sees qualities added earlier in the same pass.
	existing, err := env.Store.ListTaxonomy(ctx)
	if err != nil {
		return err
	}

	novel, merged := 0, 0
	for _, draft := range refined {
		if draft.Name == "" {
			continue // refinement failed for this slot
		}
		match, err := semanticDedup(ctx, env, draft, existing)
		if err != nil {
			return err
		}
		if match != "" {
			env.Logger.Info("draft merged with existing quality",
				"run_id", runID, "draft", draft.Name, "existing", match)
			if err := mergeExamples(ctx, env, existing, match, draft.CanonicalExamples); err != nil {
				return err
			}
			merged++
			continue
		}

		examples, _ := json.Marshal(draft.CanonicalExamples)
		quality := postgres.Quality{
			QualityID:         shortID(8, draft.Name),
			RunID:             runID,
			Name:              draft.Name,
			Definition:        draft.Definition,
			RecognitionTest:   draft.RecognitionTest,
			ExploitationLogic: draft.ExploitationLogic,
			CanonicalExamples: examples,
			ReviewStatus:      "draft",
		}
		if err := env.Store.UpsertQuality(ctx, quality); err != nil {
			return err
		}
		existing = append(existing, quality)
		novel++
		env.Logger.Info("novel quality added as draft", "run_id", runID, "quality", draft.Name)
	}

	// Ledger last, after all taxonomy writes landed.
	for _, cd := range newCases {
		if err := env.Store.RecordProcessed(ctx, 2, cd.c.CaseID, cd.digest, runID); err != nil {
			return err
		}
	}

	taxonomy, err := env.Store.ListTaxonomy(ctx)
	if err != nil {
		return err
	}
	env.Logger.Info("taxonomy extraction finished",
		"run_id", runID, "cases_processed", len(newCases),
		"merged", merged, "novel", novel, "qualities_total", len(taxonomy))

	if novel > 0 && env.Pipeline.Gated(2) {
		_, err := env.Store.MarkAwaitingApproval(ctx, runID, 2)
		return err
	}
	_, err = env.Store.CompleteStage(ctx, runID, 2, completionMeta(map[string]any{
		"qualities_total": len(taxonomy),
		"cases_processed": len(newCases),
		"merged":          merged,
		"novel":           novel,
	}))
	return err
}

// semanticDedup returns the matching existing quality ID, or "" if the draft
// is novel.
func semanticDedup(ctx context.Context, env *Env, draft draftQuality, existing []postgres.Quality) (string, error) {
	if len(existing) == 0 {
		return "", nil
	}

	var blocks []string
	validIDs := make(map[string]bool, len(existing))
	for _, q := range existing {
		validIDs[q.QualityID] = true
		blocks = append(blocks, fmt.Sprintf("ID: %s\nName: %s\nDefinition: %s\nExploitation Logic: %s",
			q.QualityID, q.Name, q.Definition, q.ExploitationLogic))
	}

	var result dedupResult
	if err := env.LLM.InvokeJSON(ctx,
		dedupPrompt(draft.Name, draft.Definition, draft.ExploitationLogic, strings.Join(blocks, "\n\n")),
		systemDedup, &result); err != nil {
		return "", fmt.Errorf("dedup %s: %w", draft.Name, err)
	}

	if result.Match && validIDs[result.ExistingQualityID] {
		return result.ExistingQualityID, nil
	}
	return "", nil
}

// mergeExamples appends a merged draft's examples onto the matched quality.
func mergeExamples(ctx context.Context, env *Env, existing []postgres.Quality, qualityID string, examples []string) error {
	if len(examples) == 0 {
		return nil
	}
	for _, q := range existing {
		if q.QualityID != qualityID {
			continue
		}
		var current []string
		if len(q.CanonicalExamples) > 0 {
			_ = json.Unmarshal(q.CanonicalExamples, &current)
		}
		combined, err := json.Marshal(append(current, examples...))
		if err != nil {
			return err
		}
		q.CanonicalExamples = combined
		return env.Store.UpsertQuality(ctx, q)
	}
	return nil
}
