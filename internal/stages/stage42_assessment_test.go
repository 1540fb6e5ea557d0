package stages

import (
	"context"
	"strings"
	"testing"

	"github.com/svap-labs/svap/internal/store/postgres"
)

func seedResearchedPolicy(store *memStore) {
	store.policies["pol_1"] = postgres.Policy{
		PolicyID: "pol_1", Name: "Medicare Hospice Benefit",
		Description: "Per-diem hospice payment for terminally ill beneficiaries.",
	}
	store.taxonomy["q_1"] = postgres.Quality{
		QualityID: "q_1", Name: "Pay-Then-Verify",
		Definition:      "Payment precedes verification of the underlying service.",
		RecognitionTest: "Does money move before any independent check occurs?",
		ReviewStatus:    "approved",
	}
	store.sessions["sess_1"] = postgres.ResearchSession{
		SessionID: "sess_1", RunID: "run_1", PolicyID: "pol_1", Status: "findings_complete",
	}
	store.findings["fnd_1"] = postgres.StructuralFinding{
		FindingID: "fnd_1", RunID: "run_1", PolicyID: "pol_1",
		Dimension:   "payment_timing",
		Observation: "Per-diem payment is made before any medical review of the election.",
		SourceType:  "ecfr", SourceCitation: "§ 418.22", Confidence: "high",
	}
}

func TestAssessmentGroundsVerdictsInFindings(t *testing.T) {
	store := newMemStore()
	seedResearchedPolicy(store)
	llm := &stubLLM{handler: func(prompt, system string) (string, error) {
		if system != systemAssess {
			t.Errorf("unexpected system prompt %q", system)
		}
		if !strings.Contains(prompt, "fnd_1") {
			t.Error("assessment prompt missing the finding ID")
		}
		return `{"present": "yes", "finding_ids": ["fnd_1", "fnd_bogus"],
			"confidence": "high", "rationale": "payment precedes review"}`, nil
	}}
	env := testEnv(store, llm)

	if err := runAssessment(context.Background(), env, "run_1"); err != nil {
		t.Fatalf("runAssessment: %v", err)
	}

	a, ok := store.assessments[shortID(12, "run_1", "pol_1", "q_1")]
	if !ok {
		t.Fatal("no assessment stored")
	}
	if a.Present != "yes" {
		t.Errorf("present = %q, want yes", a.Present)
	}
	cited := string(a.EvidenceFindingIDs)
	if !strings.Contains(cited, "fnd_1") || strings.Contains(cited, "fnd_bogus") {
		t.Errorf("cited findings = %s, want only fnd_1", cited)
	}

	score, ok := store.policyScore["pol_1|q_1"]
	if !ok || !score.Present {
		t.Errorf("policy score not synced: %+v", score)
	}

	if store.sessions["sess_1"].Status != "assessment_complete" {
		t.Errorf("session status = %q, want assessment_complete", store.sessions["sess_1"].Status)
	}
	if store.completed[42] == nil {
		t.Error("stage 42 not completed")
	}
}

func TestAssessmentDowngradesUncitedYes(t *testing.T) {
	store := newMemStore()
	seedResearchedPolicy(store)
	llm := &stubLLM{handler: func(_, _ string) (string, error) {
		return `{"present": "yes", "finding_ids": ["fnd_bogus"],
			"confidence": "high", "rationale": "sounds plausible"}`, nil
	}}
	env := testEnv(store, llm)

	if err := runAssessment(context.Background(), env, "run_1"); err != nil {
		t.Fatalf("runAssessment: %v", err)
	}
	a := store.assessments[shortID(12, "run_1", "pol_1", "q_1")]
	if a.Present != "uncertain" {
		t.Errorf("present = %q, want uncertain when no cited finding survives", a.Present)
	}
	if store.policyScore["pol_1|q_1"].Present {
		t.Error("uncertain verdict synced as present in the score matrix")
	}
}

func TestAssessmentRequiresResearch(t *testing.T) {
	store := newMemStore()
	store.policies["pol_1"] = postgres.Policy{PolicyID: "pol_1", Name: "Some Program"}
	env := testEnv(store, &stubLLM{handler: func(_, _ string) (string, error) {
		t.Error("model called without research sessions")
		return "", nil
	}})

	err := runAssessment(context.Background(), env, "run_1")
	if err == nil || !strings.Contains(err.Error(), "stage 41") {
		t.Fatalf("err = %v, want missing research error", err)
	}
}

func TestAssessmentCompletesWhenAlreadyAssessed(t *testing.T) {
	store := newMemStore()
	seedResearchedPolicy(store)
	s := store.sessions["sess_1"]
	s.Status = "assessment_complete"
	store.sessions["sess_1"] = s
	llm := &stubLLM{handler: func(_, _ string) (string, error) {
		t.Error("model called for an already assessed session")
		return "", nil
	}}
	env := testEnv(store, llm)

	if err := runAssessment(context.Background(), env, "run_1"); err != nil {
		t.Fatalf("runAssessment: %v", err)
	}
	if !strings.Contains(string(store.completed[42]), `"skipped_assessed":1`) {
		t.Errorf("completion metadata = %s", store.completed[42])
	}
}
