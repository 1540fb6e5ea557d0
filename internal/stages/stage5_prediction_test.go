package stages

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/svap-labs/svap/internal/store/postgres"
)

func predictionFixture(threshold int) *memStore {
	store := newMemStore()
	store.calibration = &postgres.Calibration{RunID: "run_1", Threshold: threshold}
	store.taxonomy["q1"] = postgres.Quality{QualityID: "q1", Name: "Q1", ReviewStatus: "approved"}
	store.taxonomy["q2"] = postgres.Quality{QualityID: "q2", Name: "Q2", ReviewStatus: "approved"}
	store.policies["p_hot"] = postgres.Policy{PolicyID: "p_hot", Name: "Hot Program", Description: "d"}
	store.policies["p_cold"] = postgres.Policy{PolicyID: "p_cold", Name: "Cold Program", Description: "d"}
	store.policyScore["p_hot|q1"] = postgres.PolicyScore{PolicyID: "p_hot", QualityID: "q1", Present: true}
	store.policyScore["p_hot|q2"] = postgres.PolicyScore{PolicyID: "p_hot", QualityID: "q2", Present: true}
	store.policyScore["p_cold|q1"] = postgres.PolicyScore{PolicyID: "p_cold", QualityID: "q1", Present: true}
	return store
}

func predictionLLM(t *testing.T) *stubLLM {
	t.Helper()
	return &stubLLM{handler: func(prompt, system string) (string, error) {
		if system != systemPredict {
			t.Errorf("unexpected system prompt: %q", system)
		}
		return `{"predictions": [{"mechanics": "phantom billing via attestation",
			"enabling_qualities": ["Q1", "Q2"], "actor_profile": "organized provider group",
			"lifecycle_stage": "mature", "detection_difficulty": "high"}]}`, nil
	}}
}

func TestPredictionGatesOnDrafts(t *testing.T) {
	store := predictionFixture(2)
	llm := predictionLLM(t)
	if err := runPrediction(context.Background(), testEnv(store, llm), "run_1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Only p_hot meets the threshold of 2.
	if llm.callCount() != 1 {
		t.Errorf("made %d model calls, want 1 for the high-risk policy", llm.callCount())
	}
	if len(store.predictions) != 1 {
		t.Fatalf("got %d predictions, want 1", len(store.predictions))
	}
	for _, p := range store.predictions {
		if p.PolicyID != "p_hot" || p.ConvergenceScore != 2 {
			t.Errorf("prediction = %+v, want p_hot with convergence 2", p)
		}
	}
	if !store.awaiting[5] {
		t.Error("fresh predictions should park the stage for review")
	}
	if _, done := store.completed[5]; done {
		t.Error("stage must not complete while drafts await review")
	}
}

func TestPredictionCompletesWhenNothingMeetsThreshold(t *testing.T) {
	store := predictionFixture(5)
	llm := predictionLLM(t)
	if err := runPrediction(context.Background(), testEnv(store, llm), "run_1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if llm.callCount() != 0 {
		t.Errorf("made %d model calls, want 0", llm.callCount())
	}
	if store.awaiting[5] {
		t.Error("nothing to review, stage should not gate")
	}
	if !strings.Contains(string(store.completed[5]), `"high_risk_policies":0`) {
		t.Errorf("completion metadata = %s", store.completed[5])
	}
}

func TestPredictionSkipsUnchangedProfiles(t *testing.T) {
	store := predictionFixture(2)
	llm := predictionLLM(t)
	env := testEnv(store, llm)
	if err := runPrediction(context.Background(), env, "run_1"); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Quality profile and threshold unchanged: no regeneration, no gate.
	if err := runPrediction(context.Background(), env, "run_1"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if llm.callCount() != 1 {
		t.Errorf("unchanged rerun made %d extra calls", llm.callCount()-1)
	}
	if _, done := store.completed[5]; !done {
		t.Error("all-skipped rerun should complete instead of gating again")
	}

	// Recalibration invalidates the profile digests.
	store.calibration = &postgres.Calibration{RunID: "run_1", Threshold: 1}
	if err := runPrediction(context.Background(), env, "run_1"); err != nil {
		t.Fatalf("third run: %v", err)
	}
	if llm.callCount() != 3 {
		t.Errorf("recalibration should regenerate both qualifying policies, got %d calls total", llm.callCount())
	}
}

func TestPredictionUngatedCompletes(t *testing.T) {
	store := predictionFixture(2)
	llm := predictionLLM(t)
	env := testEnv(store, llm)
	env.Pipeline.GateStages = []int{2}
	if err := runPrediction(context.Background(), env, "run_1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	if store.awaiting[5] {
		t.Error("stage 5 removed from gate stages must not park for review")
	}
	if len(store.predictions) != 1 {
		t.Fatalf("got %d predictions, want 1", len(store.predictions))
	}
	if !strings.Contains(string(store.completed[5]), `"predictions":1`) {
		t.Errorf("completion metadata = %s", store.completed[5])
	}
}

func TestPredictionRequiresCalibration(t *testing.T) {
	store := newMemStore()
	store.policyScore["p|q"] = postgres.PolicyScore{PolicyID: "p", QualityID: "q", Present: true}
	llm := predictionLLM(t)
	if err := runPrediction(context.Background(), testEnv(store, llm), "run_1"); err == nil {
		t.Error("expected error without calibration")
	}
}

func TestPredictionFailureIsNotSwallowed(t *testing.T) {
	store := predictionFixture(2)
	llm := &stubLLM{handler: func(string, string) (string, error) {
		return "", errors.New("model unavailable")
	}}
	if err := runPrediction(context.Background(), testEnv(store, llm), "run_1"); err == nil {
		t.Error("expected error when every policy fails prediction")
	}
	if store.awaiting[5] {
		t.Error("failed run must not gate")
	}
}
