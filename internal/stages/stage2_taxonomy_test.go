package stages

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/svap-labs/svap/internal/store/postgres"
)

func taxonomyLLM(t *testing.T, dedupResponse string) *stubLLM {
	t.Helper()
	return &stubLLM{handler: func(prompt, system string) (string, error) {
		switch system {
		case systemCluster:
			return `{"qualities": [{"name": "Self-Attested Eligibility", "definition": "d",
				"enabling_conditions": ["no income verification"]}]}`, nil
		case systemRefine:
			return `{"name": "Self-Attested Eligibility", "definition": "refined",
				"recognition_test": "rt", "exploitation_logic": "el",
				"canonical_examples": ["no income verification"]}`, nil
		case systemDedup:
			return dedupResponse, nil
		}
		t.Errorf("unexpected system prompt: %q", system)
		return "", nil
	}}
}

func TestTaxonomyNovelQualityParksForReview(t *testing.T) {
	store := newMemStore()
	store.cases["c1"] = postgres.Case{CaseID: "c1", CaseName: "Case 1", EnablingCondition: "no income verification"}

	llm := taxonomyLLM(t, `{"match": false, "existing_quality_id": null}`)
	if err := runTaxonomy(context.Background(), testEnv(store, llm), "run_1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	if !store.awaiting[2] {
		t.Error("novel draft should park the stage at awaiting_approval")
	}
	if _, done := store.completed[2]; done {
		t.Error("stage must not complete while a draft awaits review")
	}
	if len(store.taxonomy) != 1 {
		t.Fatalf("got %d qualities, want 1", len(store.taxonomy))
	}
	for _, q := range store.taxonomy {
		if q.ReviewStatus != "draft" {
			t.Errorf("review_status = %q, want draft", q.ReviewStatus)
		}
	}
}

func TestTaxonomyMergedQualityCompletes(t *testing.T) {
	store := newMemStore()
	store.cases["c1"] = postgres.Case{CaseID: "c1", CaseName: "Case 1", EnablingCondition: "no income verification"}
	examples, _ := json.Marshal([]string{"prior example"})
	store.taxonomy["q_exist"] = postgres.Quality{
		QualityID: "q_exist", Name: "Self-Attested Eligibility",
		CanonicalExamples: examples, ReviewStatus: "approved",
	}

	llm := taxonomyLLM(t, `{"match": true, "existing_quality_id": "q_exist"}`)
	if err := runTaxonomy(context.Background(), testEnv(store, llm), "run_1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	if store.awaiting[2] {
		t.Error("fully merged pass should not gate")
	}
	if _, done := store.completed[2]; !done {
		t.Error("stage should complete when nothing novel was added")
	}
	if len(store.taxonomy) != 1 {
		t.Fatalf("got %d qualities, want the 1 existing", len(store.taxonomy))
	}
	var merged []string
	if err := json.Unmarshal(store.taxonomy["q_exist"].CanonicalExamples, &merged); err != nil {
		t.Fatalf("unmarshal examples: %v", err)
	}
	if len(merged) != 2 {
		t.Errorf("got %d canonical examples after merge, want 2: %v", len(merged), merged)
	}
}

func TestTaxonomySkipsProcessedCases(t *testing.T) {
	store := newMemStore()
	store.cases["c1"] = postgres.Case{CaseID: "c1", EnablingCondition: "no income verification"}

	llm := taxonomyLLM(t, `{"match": false, "existing_quality_id": null}`)
	env := testEnv(store, llm)
	if err := runTaxonomy(context.Background(), env, "run_1"); err != nil {
		t.Fatalf("first run: %v", err)
	}

	before := llm.callCount()
	if err := runTaxonomy(context.Background(), env, "run_1"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if llm.callCount() != before {
		t.Errorf("rerun with unchanged cases made %d model calls", llm.callCount()-before)
	}
	if _, done := store.completed[2]; !done {
		t.Error("rerun with nothing to process should complete")
	}
}

func TestTaxonomyUngatedNovelQualityCompletes(t *testing.T) {
	store := newMemStore()
	store.cases["c1"] = postgres.Case{CaseID: "c1", CaseName: "Case 1", EnablingCondition: "no income verification"}

	llm := taxonomyLLM(t, `{"match": false, "existing_quality_id": null}`)
	env := testEnv(store, llm)
	env.Pipeline.GateStages = []int{5}
	if err := runTaxonomy(context.Background(), env, "run_1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	if store.awaiting[2] {
		t.Error("stage 2 removed from gate stages must not park for review")
	}
	meta, done := store.completed[2]
	if !done {
		t.Fatal("ungated stage should complete even with novel drafts")
	}
	var parsed struct {
		Novel int `json:"novel"`
	}
	if err := json.Unmarshal(meta, &parsed); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}
	if parsed.Novel != 1 {
		t.Errorf("completion metadata novel = %d, want 1", parsed.Novel)
	}
}

func TestTaxonomyDedupRejectsUnknownID(t *testing.T) {
	store := newMemStore()
	store.cases["c1"] = postgres.Case{CaseID: "c1", EnablingCondition: "no income verification"}
	store.taxonomy["q_exist"] = postgres.Quality{QualityID: "q_exist", Name: "Other", ReviewStatus: "approved"}

	// Model hallucinates an ID outside the taxonomy: treat as novel.
	llm := taxonomyLLM(t, `{"match": true, "existing_quality_id": "q_made_up"}`)
	if err := runTaxonomy(context.Background(), testEnv(store, llm), "run_1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(store.taxonomy) != 2 {
		t.Errorf("got %d qualities, want 2 (hallucinated match treated as novel)", len(store.taxonomy))
	}
	if !store.awaiting[2] {
		t.Error("novel draft should gate the stage")
	}
}
