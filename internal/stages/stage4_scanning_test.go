package stages

import (
	"context"
	"strings"
	"testing"

	"github.com/svap-labs/svap/internal/store/postgres"
)

func scanningLLM(t *testing.T) *stubLLM {
	t.Helper()
	return &stubLLM{handler: func(prompt, system string) (string, error) {
		switch system {
		case systemCharacterize:
			return "Payments flow monthly on self-reported attestations with no pre-payment review.", nil
		case systemScore:
			return `{"scores": {"q1": {"present": true, "evidence": "attestation-based"}}}`, nil
		case systemTriage:
			return `{"rankings": [
				{"policy_name": "Hospice Benefit", "score": 0.9, "rationale": "r1", "uncertainty": "u1"},
				{"policy_name": "Telehealth Expansion", "score": 0.4, "rationale": "r2", "uncertainty": "u2"},
				{"policy_name": "Imaginary Program", "score": 0.2, "rationale": "r3", "uncertainty": "u3"}]}`, nil
		}
		t.Errorf("unexpected system prompt: %q", system)
		return "", nil
	}}
}

func seedScanFixture(store *memStore) {
	store.policies["p1"] = postgres.Policy{PolicyID: "p1", Name: "Hospice Benefit", Description: "d1"}
	store.policies["p2"] = postgres.Policy{PolicyID: "p2", Name: "Telehealth Expansion", Description: "d2"}
	store.taxonomy["q1"] = postgres.Quality{QualityID: "q1", Name: "Q1", ReviewStatus: "approved"}
	store.cases["c1"] = postgres.Case{CaseID: "c1", CaseName: "Case 1", ExploitedPolicy: "x", EnablingCondition: "e"}
}

func TestTriageRanksCorpusInOnePass(t *testing.T) {
	store := newMemStore()
	seedScanFixture(store)

	llm := scanningLLM(t)
	env := testEnv(store, llm)
	if err := runTriage(context.Background(), env, "run_1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if llm.callCount() != 1 {
		t.Errorf("triage made %d model calls, want 1 for the whole corpus", llm.callCount())
	}
	if len(store.triage) != 2 {
		t.Fatalf("got %d triage rows, want 2 (unknown policy dropped)", len(store.triage))
	}
	if store.triage[0].PolicyID != "p1" || store.triage[0].PriorityRank != 1 {
		t.Errorf("top rank = %+v, want p1 at rank 1", store.triage[0])
	}
	if !strings.Contains(string(store.completed[40]), `"unmatched":1`) {
		t.Errorf("completion metadata = %s, want unmatched:1", store.completed[40])
	}

	// Unchanged corpus skips the model entirely.
	if err := runTriage(context.Background(), env, "run_1"); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if llm.callCount() != 1 {
		t.Errorf("unchanged rerun made %d extra calls", llm.callCount()-1)
	}

	// A new case invalidates the batch digest.
	store.cases["c2"] = postgres.Case{CaseID: "c2", CaseName: "Case 2"}
	if err := runTriage(context.Background(), env, "run_1"); err != nil {
		t.Fatalf("third run: %v", err)
	}
	if llm.callCount() != 2 {
		t.Errorf("corpus change should re-triage, got %d calls total", llm.callCount())
	}
}

func TestScanningCharacterizesThenScores(t *testing.T) {
	store := newMemStore()
	seedScanFixture(store)

	llm := scanningLLM(t)
	env := testEnv(store, llm)
	if err := runScanning(context.Background(), env, "run_1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Two calls per policy: characterize, then score.
	if llm.callCount() != 4 {
		t.Errorf("made %d model calls, want 4", llm.callCount())
	}
	if len(store.policyScore) != 2 {
		t.Errorf("got %d policy score cells, want 2", len(store.policyScore))
	}
	if store.policies["p1"].StructuralCharacterization == "" {
		t.Error("characterization was not persisted on the policy")
	}

	before := llm.callCount()
	if err := runScanning(context.Background(), env, "run_1"); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if llm.callCount() != before {
		t.Errorf("unchanged rerun made %d extra calls", llm.callCount()-before)
	}

	// Approving another quality rescans every policy.
	store.taxonomy["q2"] = postgres.Quality{QualityID: "q2", Name: "Q2", ReviewStatus: "approved"}
	if err := runScanning(context.Background(), env, "run_1"); err != nil {
		t.Fatalf("third run: %v", err)
	}
	if got := llm.callCount() - before; got != 4 {
		t.Errorf("taxonomy growth triggered %d calls, want 4", got)
	}
}

func TestScanningRequiresApprovedTaxonomy(t *testing.T) {
	store := newMemStore()
	store.policies["p1"] = postgres.Policy{PolicyID: "p1", Name: "P1"}
	store.taxonomy["q1"] = postgres.Quality{QualityID: "q1", ReviewStatus: "draft"}

	llm := scanningLLM(t)
	if err := runScanning(context.Background(), testEnv(store, llm), "run_1"); err == nil {
		t.Error("expected error when no quality is approved")
	}
	if llm.callCount() != 0 {
		t.Errorf("made %d model calls before failing validation", llm.callCount())
	}
}
