package stages

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/svap-labs/svap/internal/delta"
	"github.com/svap-labs/svap/internal/store/postgres"
)

type triageRanking struct {
	PolicyName  string  `json:"policy_name"`
	Score       float64 `json:"score"`
	Rationale   string  `json:"rationale"`
	Uncertainty string  `json:"uncertainty"`
}

// runTriage ranks the full policy corpus by likely vulnerability
// concentration in a single reasoning pass, so the expensive per-policy
// scanning of stage 4 can work highest risk first. The whole corpus is one
// ledger entity: any change to policies, taxonomy, or cases re-triages.
func runTriage(ctx context.Context, env *Env, runID string) error {
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
	cases, err := env.Store.ListCases(ctx)
	if err != nil {
		return err
	}

	digest := triageDigest(policies, taxonomy, cases)
	known, err := env.Store.HashesForStage(ctx, 40)
	if err != nil {
		return err
	}
	if known["triage_batch"] == digest {
		env.Logger.Info("triage inputs unchanged", "run_id", runID, "policies", len(policies))
		_, err := env.Store.CompleteStage(ctx, runID, 40,
			completionMeta(map[string]any{"policies_ranked": 0, "skipped_unchanged": len(policies)}))
		return err
	}

	var taxonomyLines []string
	for _, q := range taxonomy {
		taxonomyLines = append(taxonomyLines, fmt.Sprintf("- %s: %s", q.Name, q.Definition))
	}
	var caseLines []string
	for _, c := range cases {
		caseLines = append(caseLines, fmt.Sprintf("- %s exploited %s via: %s",
			c.CaseName, c.ExploitedPolicy, truncate(c.EnablingCondition, 300)))
	}
	var policyLines []string
	for _, p := range policies {
		policyLines = append(policyLines, fmt.Sprintf("- %s: %s", p.Name, truncate(p.Description, 400)))
	}

	env.Logger.Info("triaging policy corpus", "run_id", runID,
		"policies", len(policies), "qualities", len(taxonomy), "cases", len(cases))

	var out struct {
		Rankings []triageRanking `json:"rankings"`
	}
	if err := env.LLM.InvokeJSON(ctx,
		triagePrompt(len(policies), strings.Join(taxonomyLines, "\n"),
			strings.Join(caseLines, "\n"), strings.Join(policyLines, "\n")),
		systemTriage, &out); err != nil {
		return fmt.Errorf("triage ranking: %w", err)
	}
	if len(out.Rankings) == 0 {
		return errors.New("triage returned no rankings")
	}

	sort.SliceStable(out.Rankings, func(i, j int) bool {
		return out.Rankings[i].Score > out.Rankings[j].Score
	})

	// Regenerate the whole ranking. Partial rankings are useless, so stale
	// rows go first.
	if err := env.Store.DeleteTriageResults(ctx, runID); err != nil {
		return err
	}

	ranked, unmatched := 0, 0
	for i, r := range out.Rankings {
		policy := resolvePolicy(policies, r.PolicyName)
		if policy == nil {
			env.Logger.Warn("triage named unknown policy", "run_id", runID, "name", r.PolicyName)
			unmatched++
			continue
		}
		if err := env.Store.InsertTriageResult(ctx, postgres.TriageResult{
			RunID:        runID,
			PolicyID:     policy.PolicyID,
			TriageScore:  r.Score,
			Rationale:    r.Rationale,
			Uncertainty:  r.Uncertainty,
			PriorityRank: i + 1,
		}); err != nil {
			return err
		}
		ranked++
	}
	if ranked == 0 {
		return errors.New("no triage ranking matched a known policy")
	}

	if err := env.Store.RecordProcessed(ctx, 40, "triage_batch", digest, runID); err != nil {
		return err
	}

	env.Logger.Info("triage finished", "run_id", runID, "ranked", ranked, "unmatched", unmatched)
	_, err = env.Store.CompleteStage(ctx, runID, 40, completionMeta(map[string]any{
		"policies_ranked": ranked, "unmatched": unmatched,
	}))
	return err
}

// triageDigest fingerprints everything the ranking depends on.
func triageDigest(policies []postgres.Policy, taxonomy []postgres.Quality, cases []postgres.Case) string {
	policyIDs := make([]string, len(policies))
	for i, p := range policies {
		policyIDs[i] = p.PolicyID
	}
	sort.Strings(policyIDs)
	caseIDs := make([]string, len(cases))
	for i, c := range cases {
		caseIDs[i] = c.CaseID
	}
	sort.Strings(caseIDs)
	return delta.Hash(strings.Join(policyIDs, ":"),
		delta.TaxonomyFingerprint(taxonomy), strings.Join(caseIDs, ":"))
}

// resolvePolicy matches a model-reported policy name back to a corpus row,
// tolerating casing and minor truncation.
func resolvePolicy(policies []postgres.Policy, name string) *postgres.Policy {
	want := strings.ToLower(strings.TrimSpace(name))
	for i := range policies {
		if strings.ToLower(policies[i].Name) == want {
			return &policies[i]
		}
	}
	for i := range policies {
		have := strings.ToLower(policies[i].Name)
		if strings.Contains(have, want) || strings.Contains(want, have) {
			return &policies[i]
		}
	}
	return nil
}
