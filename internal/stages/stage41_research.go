package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/svap-labs/svap/internal/regulatory"
	"github.com/svap-labs/svap/internal/store/postgres"
)

// structuralDimensions frames what deep research looks for in primary
// sources. Every finding is tagged with exactly one dimension ID.
var structuralDimensions = []struct {
	ID         string
	Name       string
	Definition string
}{
	{"payment_timing", "Payment Timing",
		"When money moves relative to verification of the service or eligibility."},
	{"verification_architecture", "Verification Architecture",
		"What is checked, by whom, and when; self-attestation versus independent confirmation."},
	{"eligibility_controls", "Eligibility Controls",
		"How providers and beneficiaries enter the program and what screens them."},
	{"information_asymmetry", "Information Asymmetry",
		"Who holds the facts the payer relies on and whether the payer can observe them."},
	{"oversight_structure", "Oversight Structure",
		"Audit cadence, sampling, and the consequences attached to findings."},
	{"barrier_structure", "Barrier Structure",
		"The practical cost of entering, billing, and scaling participation."},
}

func dimensionLines() string {
	var lines []string
	for _, d := range structuralDimensions {
		lines = append(lines, fmt.Sprintf("- %s (%s): %s", d.ID, d.Name, d.Definition))
	}
	return strings.Join(lines, "\n")
}

func validDimension(id string) bool {
	for _, d := range structuralDimensions {
		if d.ID == id {
			return true
		}
	}
	return false
}

type researchPlan struct {
	ECFRQueries []struct {
		Title int    `json:"title"`
		Part  string `json:"part"`
	} `json:"ecfr_queries"`
	SearchTerms []string `json:"search_terms"`
}

type extractedFinding struct {
	Dimension      string `json:"dimension"`
	Observation    string `json:"observation"`
	SourceCitation string `json:"source_citation"`
	SourceExcerpt  string `json:"source_excerpt"`
	Confidence     string `json:"confidence"`
}

// Sections shorter than this carry no extractable structure (reserved
// markers, cross-references).
const minSectionChars = 100

const (
	maxCFRParts    = 3
	maxSearchTerms = 3
	maxRuleDocs    = 2
)

// runDeepResearch grounds the top triaged policies in primary sources: for
// each policy it plans which CFR parts and Federal Register rules to read,
// fetches them through the regulatory_sources cache, and extracts sourced
// structural findings. One session per policy tracks the lifecycle, so a
// rerun resumes where the last attempt stopped instead of refetching
// everything.
func runDeepResearch(ctx context.Context, env *Env, runID string) error {
	if env.Sources == nil {
		return errors.New("no regulatory source client configured")
	}
	triage, err := env.Store.ListTriageResults(ctx, runID, env.Pipeline.ResearchTopN)
	if err != nil {
		return err
	}
	if len(triage) == 0 {
		return errors.New("no triage ranking found; run stage 40 first")
	}
	policies, err := env.Store.ListPolicies(ctx)
	if err != nil {
		return err
	}
	byID := make(map[string]postgres.Policy, len(policies))
	for _, p := range policies {
		byID[p.PolicyID] = p
	}

	sessions, err := env.Store.ListResearchSessions(ctx, runID, "")
	if err != nil {
		return err
	}
	done := make(map[string]bool)
	for _, s := range sessions {
		if s.Status == "findings_complete" || s.Status == "assessment_complete" {
			done[s.PolicyID] = true
		}
	}

	env.Logger.Info("starting deep research", "run_id", runID,
		"triaged", len(triage), "already_researched", len(done))

	researched, skipped, failed, findingsTotal := 0, 0, 0, 0
	for _, tr := range triage {
		policy, ok := byID[tr.PolicyID]
		if !ok {
			continue
		}
		if done[tr.PolicyID] {
			skipped++
			continue
		}

		session := postgres.ResearchSession{
			SessionID: shortID(12, runID, tr.PolicyID),
			RunID:     runID,
			PolicyID:  tr.PolicyID,
			Status:    "researching",
		}
		if err := env.Store.UpsertResearchSession(ctx, session); err != nil {
			return err
		}

		count, sources, rerr := researchPolicy(ctx, env, runID, policy)
		if rerr != nil {
			env.Logger.Warn("policy research failed",
				"run_id", runID, "policy", tr.PolicyID, "error", rerr)
			session.Status = "failed"
			session.ErrorMessage = rerr.Error()
			if err := env.Store.UpsertResearchSession(ctx, session); err != nil {
				return err
			}
			failed++
			continue
		}

		queried, _ := json.Marshal(sources)
		session.Status = "findings_complete"
		session.SourcesQueried = queried
		if err := env.Store.UpsertResearchSession(ctx, session); err != nil {
			return err
		}
		researched++
		findingsTotal += count
		env.Logger.Info("policy researched", "run_id", runID,
			"policy", tr.PolicyID, "findings", count, "sources", len(sources))
	}

	if researched == 0 && failed > 0 {
		return fmt.Errorf("research failed for all %d attempted policies", failed)
	}

	env.Logger.Info("deep research finished", "run_id", runID,
		"researched", researched, "findings", findingsTotal, "skipped", skipped, "failed", failed)
	_, err = env.Store.CompleteStage(ctx, runID, 41, completionMeta(map[string]any{
		"policies_researched": researched,
		"findings":            findingsTotal,
		"skipped_researched":  skipped,
		"failed":              failed,
	}))
	return err
}

// researchPolicy plans the sources for one policy, fetches them, and
// extracts findings section by section. Sources are fetched serially; both
// APIs rate-limit aggressively.
func researchPolicy(ctx context.Context, env *Env, runID string, policy postgres.Policy) (int, []string, error) {
	known := regulatory.SourcesFor(policy.Name)
	var knownLines []string
	for _, ref := range known {
		knownLines = append(knownLines, fmt.Sprintf("%d CFR Part %s", ref.Title, ref.Part))
	}
	knownText := strings.Join(knownLines, ", ")
	if knownText == "" {
		knownText = "none"
	}

	var plan researchPlan
	if err := env.LLM.InvokeJSON(ctx,
		researchPlanPrompt(policy.Name, truncate(policy.Description, 2000), dimensionLines(), knownText),
		systemResearchPlan, &plan); err != nil {
		return 0, nil, fmt.Errorf("research plan for %s: %w", policy.PolicyID, err)
	}

	// Keyword-mapped parts first, then the planner's additions.
	refs := known
	seen := make(map[regulatory.CFRRef]bool)
	for _, ref := range refs {
		seen[ref] = true
	}
	for _, q := range plan.ECFRQueries {
		if q.Part == "" {
			continue
		}
		title := q.Title
		if title == 0 {
			title = 42
		}
		ref := regulatory.CFRRef{Title: title, Part: q.Part}
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	if len(refs) > maxCFRParts {
		refs = refs[:maxCFRParts]
	}

	findings := 0
	var sources []string
	fetched := make(map[string]bool)

	for _, ref := range refs {
		sourceID := fmt.Sprintf("ecfr_%d_%s", ref.Title, ref.Part)
		text, err := cachedSource(ctx, env, sourceID, "ecfr", "", func() (string, error) {
			return env.Sources.ECFRFullText(ctx, ref.Title, ref.Part)
		})
		if err != nil {
			env.Logger.Warn("ecfr fetch failed", "run_id", runID,
				"policy", policy.PolicyID, "source", sourceID, "error", err)
			continue
		}
		sources = append(sources, sourceID)
		fetched[sourceID] = true

		partCitation := fmt.Sprintf("%d CFR Part %s", ref.Title, ref.Part)
		for _, section := range regulatory.ParseSections(text) {
			if len(section.Text) < minSectionChars {
				continue
			}
			citation := section.CFRReference
			if citation == "" {
				citation = partCitation
			}
			n, err := extractFindings(ctx, env, runID, policy, citation, "ecfr",
				truncate(section.Text, 4000))
			if err != nil {
				return findings, sources, err
			}
			findings += n
		}
	}

	terms := plan.SearchTerms
	if len(terms) > maxSearchTerms {
		terms = terms[:maxSearchTerms]
	}
	for _, term := range terms {
		docs, err := env.Sources.SearchRules(ctx, term, maxRuleDocs+1)
		if err != nil {
			env.Logger.Warn("federal register search failed", "run_id", runID,
				"policy", policy.PolicyID, "term", term, "error", err)
			continue
		}
		if len(docs) > maxRuleDocs {
			docs = docs[:maxRuleDocs]
		}
		for _, doc := range docs {
			if doc.RawTextURL == "" {
				continue
			}
			sourceID := "fr_" + doc.DocumentNumber
			if fetched[sourceID] {
				continue
			}
			text, err := cachedSource(ctx, env, sourceID, "federal_register", doc.RawTextURL, func() (string, error) {
				return env.Sources.DocumentText(ctx, doc.RawTextURL)
			})
			if err != nil {
				env.Logger.Warn("federal register fetch failed", "run_id", runID,
					"policy", policy.PolicyID, "source", sourceID, "error", err)
				continue
			}
			sources = append(sources, sourceID)
			fetched[sourceID] = true

			citation := fmt.Sprintf("%s (%s)", doc.Title, doc.DocumentNumber)
			n, err := extractFindings(ctx, env, runID, policy, citation, "federal_register",
				truncate(text, 8000))
			if err != nil {
				return findings, sources, err
			}
			findings += n
		}
	}

	if findings == 0 {
		return 0, sources, errors.New("no findings extracted from any source")
	}
	return findings, sources, nil
}

// extractFindings runs one extraction pass over a block of source text and
// persists the valid findings. The finding ID is stable across reruns for
// the same (policy, dimension, citation), so re-extraction replaces instead
// of duplicating.
func extractFindings(ctx context.Context, env *Env, runID string, policy postgres.Policy, citation, sourceType, text string) (int, error) {
	var out struct {
		Findings []extractedFinding `json:"findings"`
	}
	if err := env.LLM.InvokeJSON(ctx,
		findingsPrompt(policy.Name, citation, text, dimensionLines()),
		systemFindings, &out); err != nil {
		return 0, fmt.Errorf("extract findings from %s: %w", citation, err)
	}

	stored := 0
	for _, f := range out.Findings {
		if f.Observation == "" {
			continue
		}
		if !validDimension(f.Dimension) {
			env.Logger.Warn("finding tagged with unknown dimension",
				"run_id", runID, "policy", policy.PolicyID, "dimension", f.Dimension)
			continue
		}
		if f.SourceCitation == "" {
			f.SourceCitation = citation
		}
		if f.Confidence == "" {
			f.Confidence = "medium"
		}
		if err := env.Store.InsertStructuralFinding(ctx, postgres.StructuralFinding{
			FindingID:      shortID(12, policy.PolicyID, f.Dimension, f.SourceCitation),
			RunID:          runID,
			PolicyID:       policy.PolicyID,
			Dimension:      f.Dimension,
			Observation:    f.Observation,
			SourceType:     sourceType,
			SourceCitation: f.SourceCitation,
			SourceExcerpt:  truncate(f.SourceExcerpt, 1000),
			Confidence:     f.Confidence,
		}); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}

// cachedSource returns the stored text for a source, fetching and caching it
// on a miss.
func cachedSource(ctx context.Context, env *Env, sourceID, sourceType, url string, fetch func() (string, error)) (string, error) {
	cached, err := env.Store.GetRegulatorySource(ctx, sourceID)
	if err != nil {
		return "", err
	}
	if cached != nil {
		return cached.FullText, nil
	}

	text, err := fetch()
	if err != nil {
		return "", err
	}
	if err := env.Store.InsertRegulatorySource(ctx, postgres.RegulatorySource{
		SourceID:   sourceID,
		SourceType: sourceType,
		URL:        url,
		FullText:   text,
	}); err != nil {
		return "", err
	}
	return text, nil
}
