package stages

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/svap-labs/svap/internal/regulatory"
	"github.com/svap-labs/svap/internal/store/postgres"
)

const hospicePartXML = `<?xml version="1.0"?>
<DIV5 N="418" TYPE="PART">
  <HEAD>PART 418 - HOSPICE CARE</HEAD>
  <DIV8 N="418.22" TYPE="SECTION">
    <SECTNO>§ 418.22</SECTNO>
    <HEAD>Certification of terminal illness.</HEAD>
    <P>For the first 90-day period of hospice coverage, the hospice must obtain written
    certification statements from the medical director and the attending physician, and
    the certification must specify a prognosis of 6 months or less.</P>
  </DIV8>
</DIV5>`

// stubSources is a SourceClient for research tests.
type stubSources struct {
	ecfrXML   string
	ecfrErr   error
	docs      []regulatory.RuleDocument
	searchErr error
	docText   string
	ecfrCalls int
}

func (s *stubSources) ECFRFullText(context.Context, int, string) (string, error) {
	s.ecfrCalls++
	return s.ecfrXML, s.ecfrErr
}

func (s *stubSources) SearchRules(context.Context, string, int) ([]regulatory.RuleDocument, error) {
	return s.docs, s.searchErr
}

func (s *stubSources) DocumentText(context.Context, string) (string, error) {
	return s.docText, nil
}

func researchLLM(t *testing.T) *stubLLM {
	t.Helper()
	return &stubLLM{handler: func(_, system string) (string, error) {
		switch system {
		case systemResearchPlan:
			return `{"ecfr_queries": [{"title": 42, "part": "418"}],
				"search_terms": ["hospice payment"]}`, nil
		case systemFindings:
			return `{"findings": [
				{"dimension": "payment_timing",
				 "observation": "Certification is obtained before coverage begins",
				 "source_citation": "§ 418.22", "source_excerpt": "must obtain written certification",
				 "confidence": "high"},
				{"dimension": "not_a_dimension",
				 "observation": "should be dropped", "source_citation": "§ 418.22"}]}`, nil
		}
		return "", errors.New("unexpected system prompt")
	}}
}

func seedTriagedPolicy(store *memStore) {
	store.policies["pol_1"] = postgres.Policy{
		PolicyID: "pol_1", Name: "Medicare Hospice Benefit",
		Description: "Per-diem hospice payment for terminally ill beneficiaries.",
	}
	store.triage = []postgres.TriageResult{
		{RunID: "run_1", PolicyID: "pol_1", TriageScore: 0.9, PriorityRank: 1},
	}
}

func TestDeepResearchExtractsFindings(t *testing.T) {
	store := newMemStore()
	seedTriagedPolicy(store)
	llm := researchLLM(t)
	env := testEnv(store, llm)
	env.Sources = &stubSources{
		ecfrXML: hospicePartXML,
		docs: []regulatory.RuleDocument{{
			DocumentNumber: "2024-1234", Title: "Hospice Payment Rate Update",
			RawTextURL: "https://example.gov/raw/2024-1234",
		}},
		docText: strings.Repeat("The hospice payment rate update revises per-diem rates. ", 10),
	}

	if err := runDeepResearch(context.Background(), env, "run_1"); err != nil {
		t.Fatalf("runDeepResearch: %v", err)
	}

	session := store.sessions[shortID(12, "run_1", "pol_1")]
	if session.Status != "findings_complete" {
		t.Errorf("session status = %q, want findings_complete", session.Status)
	}
	if !strings.Contains(string(session.SourcesQueried), "ecfr_42_418") {
		t.Errorf("sources queried = %s, want ecfr_42_418 recorded", session.SourcesQueried)
	}

	if _, ok := store.sources["ecfr_42_418"]; !ok {
		t.Error("eCFR text not cached")
	}
	if _, ok := store.sources["fr_2024-1234"]; !ok {
		t.Error("federal register text not cached")
	}

	findings, _ := store.ListStructuralFindings(context.Background(), "run_1", "pol_1")
	if len(findings) == 0 {
		t.Fatal("no findings stored")
	}
	for _, f := range findings {
		if !validDimension(f.Dimension) {
			t.Errorf("finding stored with invalid dimension %q", f.Dimension)
		}
		if f.PolicyID != "pol_1" {
			t.Errorf("finding policy = %q", f.PolicyID)
		}
	}

	if store.completed[41] == nil {
		t.Error("stage 41 not completed")
	}
}

func TestDeepResearchReusesCachedSources(t *testing.T) {
	store := newMemStore()
	seedTriagedPolicy(store)
	store.sources["ecfr_42_418"] = postgres.RegulatorySource{
		SourceID: "ecfr_42_418", SourceType: "ecfr", FullText: hospicePartXML,
	}
	llm := &stubLLM{handler: func(_, system string) (string, error) {
		switch system {
		case systemResearchPlan:
			return `{"ecfr_queries": [{"title": 42, "part": "418"}], "search_terms": []}`, nil
		case systemFindings:
			return `{"findings": [{"dimension": "verification_architecture",
				"observation": "Two physicians certify the prognosis",
				"source_citation": "§ 418.22"}]}`, nil
		}
		return "", errors.New("unexpected system prompt")
	}}
	env := testEnv(store, llm)
	sources := &stubSources{ecfrErr: errors.New("network down")}
	env.Sources = sources

	if err := runDeepResearch(context.Background(), env, "run_1"); err != nil {
		t.Fatalf("runDeepResearch: %v", err)
	}
	if sources.ecfrCalls != 0 {
		t.Errorf("eCFR fetched %d times despite cache", sources.ecfrCalls)
	}
	if len(store.findings) == 0 {
		t.Error("cached source produced no findings")
	}
}

func TestDeepResearchSkipsResearchedPolicies(t *testing.T) {
	store := newMemStore()
	seedTriagedPolicy(store)
	store.sessions["prior"] = postgres.ResearchSession{
		SessionID: "prior", RunID: "run_1", PolicyID: "pol_1", Status: "findings_complete",
	}
	llm := researchLLM(t)
	env := testEnv(store, llm)
	env.Sources = &stubSources{ecfrXML: hospicePartXML}

	if err := runDeepResearch(context.Background(), env, "run_1"); err != nil {
		t.Fatalf("runDeepResearch: %v", err)
	}
	if llm.callCount() != 0 {
		t.Errorf("made %d model calls for an already researched policy", llm.callCount())
	}
	if !strings.Contains(string(store.completed[41]), `"skipped_researched":1`) {
		t.Errorf("completion metadata = %s", store.completed[41])
	}
}

func TestDeepResearchRequiresTriage(t *testing.T) {
	store := newMemStore()
	store.policies["pol_1"] = postgres.Policy{PolicyID: "pol_1", Name: "Some Program"}
	env := testEnv(store, researchLLM(t))
	env.Sources = &stubSources{}

	err := runDeepResearch(context.Background(), env, "run_1")
	if err == nil || !strings.Contains(err.Error(), "stage 40") {
		t.Fatalf("err = %v, want missing triage error", err)
	}
}

func TestDeepResearchMarksFailedSessions(t *testing.T) {
	store := newMemStore()
	seedTriagedPolicy(store)
	llm := &stubLLM{handler: func(_, system string) (string, error) {
		if system == systemResearchPlan {
			return `{"ecfr_queries": [], "search_terms": []}`, nil
		}
		return "", errors.New("unexpected system prompt")
	}}
	env := testEnv(store, llm)
	env.Sources = &stubSources{ecfrErr: errors.New("network down"), searchErr: errors.New("network down")}

	err := runDeepResearch(context.Background(), env, "run_1")
	if err == nil {
		t.Fatal("expected error when every policy fails")
	}
	session := store.sessions[shortID(12, "run_1", "pol_1")]
	if session.Status != "failed" {
		t.Errorf("session status = %q, want failed", session.Status)
	}
	if session.ErrorMessage == "" {
		t.Error("failed session has no error message")
	}
	if store.completed[41] != nil {
		t.Error("stage 41 completed despite total failure")
	}
}
