package stages

import (
	"context"
	"errors"
	"fmt"

	"github.com/svap-labs/svap/internal/delta"
	"github.com/svap-labs/svap/internal/pipeline"
	"github.com/svap-labs/svap/internal/rag"
	"github.com/svap-labs/svap/internal/store/postgres"
)

// runScanning scores every policy in the corpus against the approved
// taxonomy. Each policy is characterized structurally first (grounded in
// retrieved source material), then the recognition tests are applied to the
// characterization rather than to raw policy text. Per-policy digests fold
// in the taxonomy fingerprint, so an approved new quality rescans the
// whole corpus.
func runScanning(ctx context.Context, env *Env, runID string) error {
	policies, err := env.Store.ListPolicies(ctx)
	if err != nil {
		return err
	}
	if len(policies) == 0 {
		return errors.New("no policies loaded; seed the policy corpus first")
	}
	taxonomy, err := env.Store.ListApprovedTaxonomy(ctx)
	if err != nil {
		return err
	}
	if len(taxonomy) == 0 {
		return errors.New("no approved taxonomy; run stage 2 and approve it first")
	}

	known, err := env.Store.HashesForStage(ctx, 4)
	if err != nil {
		return err
	}
	fingerprint := delta.TaxonomyFingerprint(taxonomy)
	taxonomyContext := rag.FormatTaxonomy(taxonomy)

	type policyJob struct {
		p      postgres.Policy
		digest string
	}
	var jobs []pipeline.Job[postgres.Policy, policyJob]
	for _, p := range policies {
		digest := delta.Hash(p.Name, p.Description, fingerprint)
		if known[p.PolicyID] == digest {
			continue
		}
		jobs = append(jobs, pipeline.Job[postgres.Policy, policyJob]{
			Label: p.PolicyID, Payload: p, Context: policyJob{p, digest},
		})
	}

	if len(jobs) == 0 {
		env.Logger.Info("all policies unchanged", "run_id", runID, "policies", len(policies))
		_, err := env.Store.CompleteStage(ctx, runID, 4,
			completionMeta(map[string]any{"policies_scored": 0, "skipped_unchanged": len(policies)}))
		return err
	}

	env.Logger.Info("scanning policy corpus", "run_id", runID,
		"policies", len(jobs), "skipped_unchanged", len(policies)-len(jobs))

	type scanResult struct {
		characterization string
		sheet            scoreSheet
	}
	invoke := func(ctx context.Context, p postgres.Policy) (scanResult, error) {
		ragContext, err := env.Context.Retrieve(ctx, p.Name+" "+truncate(p.Description, 500), "policy")
		if err != nil {
			env.Logger.Warn("retrieval failed, characterizing from description only",
				"policy", p.Name, "error", err)
			ragContext = ""
		}
		characterization, err := env.LLM.Invoke(ctx,
			characterizePrompt(p.Name, p.Description, ragContext), systemCharacterize)
		if err != nil {
			return scanResult{}, fmt.Errorf("characterize %s: %w", p.PolicyID, err)
		}
		var sheet scoreSheet
		if err := env.LLM.InvokeJSON(ctx,
			scorePolicyPrompt(p.Name, characterization, taxonomyContext),
			systemScore, &sheet); err != nil {
			return scanResult{}, fmt.Errorf("score policy %s: %w", p.PolicyID, err)
		}
		return scanResult{characterization, sheet}, nil
	}
	onResult := func(res scanResult, job policyJob) (int, error) {
		job.p.StructuralCharacterization = res.characterization
		if err := env.Store.UpsertPolicy(ctx, job.p); err != nil {
			return 0, err
		}
		for qualityID, cell := range res.sheet.Scores {
			if err := env.Store.UpsertPolicyScore(ctx, runID, job.p.PolicyID,
				qualityID, cell.Present, cell.Evidence); err != nil {
				return 0, err
			}
		}
		if err := env.Store.RecordProcessed(ctx, 4, job.p.PolicyID, job.digest, runID); err != nil {
			return 0, err
		}
		return 1, nil
	}

	scored, failed := pipeline.Dispatch(ctx, jobs, invoke, onResult, env.Pipeline.MaxConcurrency)
	if scored == 0 {
		return fmt.Errorf("scanning failed for all %d policies", len(jobs))
	}
	if len(failed) > 0 {
		env.Logger.Warn("some policies failed scanning", "run_id", runID, "failed", failed)
	}

	env.Logger.Info("scanning finished", "run_id", runID,
		"policies_scored", scored, "failed", len(failed))
	meta := map[string]any{
		"policies_scored":   scored,
		"skipped_unchanged": len(policies) - len(jobs),
	}
	if len(failed) > 0 {
		meta["failed_policies"] = failed
	}
	_, err = env.Store.CompleteStage(ctx, runID, 4, completionMeta(meta))
	return err
}
