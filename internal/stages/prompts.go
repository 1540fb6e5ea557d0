package stages

// System prompts and prompt builders for each stage's reasoning calls.

const systemExtract = `You are an analyst extracting structured information from enforcement
documents. You extract the mechanical details of how schemes operated, not just legal
conclusions. Be precise about the enabling policy structure: identify the specific
design feature that was exploited, not generic labels like "weak oversight".`

const systemCluster = `You are a structural analyst. Your task is to find the abstract
patterns that make policies exploitable. You think in terms of system design properties
such as payment timing, verification architecture, information asymmetry, and barrier
structures, not in terms of specific domains or actors. You are looking for qualities
that would create exploitable conditions in ANY policy system.`

const systemRefine = `You are refining a taxonomy of structural vulnerability qualities.
Each quality must be precise enough that two independent analysts would agree on whether a
given policy has it. The recognition test must be a set of concrete yes/no questions, not
subjective judgments. The exploitation logic must articulate the causal mechanism: why
this structural property creates exploitable conditions.`

const systemDedup = `You are a taxonomy curator comparing a newly extracted vulnerability
quality against an existing approved taxonomy. Determine whether the new quality is
semantically equivalent to any existing quality. Two qualities are equivalent if they
describe the same fundamental structural property that creates exploitable conditions,
even if worded differently or illustrated with different examples.`

const systemScore = `You are scoring a policy against a structural vulnerability taxonomy.
Apply each recognition test precisely. A quality is PRESENT only if the policy clearly
exhibits the structural property described. If ambiguous, mark ABSENT and note the
ambiguity in the evidence field. Do not over-score.`

const systemCharacterize = `You are a structural analyst characterizing how a government
policy or program works. Focus on the mechanical structure: how money flows, who reports
what, what verification exists, what barriers exist to participation. Be concrete and
specific. Do not evaluate whether the policy is good or bad.`

const systemTriage = `You are an expert policy analyst assessing structural vulnerability
to fraud. You rank policies by how many vulnerability qualities are likely present based
on how the program actually operates: payment mechanics, verification structure,
eligibility controls, and oversight architecture.`

const systemResearchPlan = `You are planning primary-source research into how a government program
actually operates. You identify which CFR parts and Federal Register rules would reveal the
program's payment mechanics, verification architecture, and eligibility controls. Prefer the
parts that govern payment and enrollment over general administrative provisions.`

const systemFindings = `You are extracting structural findings from regulatory text. A finding is
a concrete, citable fact about how the program operates: when payment occurs, what is verified
and by whom, what documentation is required, what screens participants. Every finding must
quote or closely paraphrase the source text. Do not extract opinions, preamble, or findings
the text does not support. Tag each finding with exactly one dimension from the provided list.`

const systemAssess = `You are assessing whether a structural vulnerability quality is present in
a policy. You may rely ONLY on the sourced findings provided; your background knowledge of the
program does not count as evidence. Answer "yes" only when findings directly support the
quality's recognition test, "no" when findings show the quality is absent, and "uncertain"
when the findings do not settle it. Cite the finding IDs you relied on.`

const systemPredict = `You are a structural analyst predicting exploitation patterns. You NEVER
speculate freely. Every prediction must be CAUSED by a specific vulnerability quality or
combination of qualities present in the policy. If you cannot cite which structural quality
enables a predicted behavior, do not include it.

Think like an adversary who has studied this policy's structural properties and is designing
an exploitation scheme that takes maximum advantage of each vulnerability quality. The most
dangerous schemes exploit the INTERACTION between multiple qualities.`

const systemDetect = `You are a fraud detection analyst designing monitoring rules. You translate
predicted exploitation mechanics into specific, queryable anomaly signals. Every pattern
must specify: what data source to query, what specific measurable condition to test, what
the normal baseline looks like, what false positives to expect, and how quickly the signal
becomes visible after exploitation begins.

Be concrete. "Monitor for unusual billing patterns" is useless. "Flag providers billing
more than 16 hours/day of personal care services, where normal P95 is 10 hours/day" is
actionable.`

func extractPrompt(documentText string) string {
	return `Extract every distinct enforcement case described in this document. For each case
provide the mechanics of the scheme, the specific policy that was exploited, and the
structural condition that enabled the exploitation.

Return JSON:
[{"case_name": "...", "scheme_mechanics": "...", "exploited_policy": "...",
  "enabling_condition": "...", "scale_dollars": "...", "detection_method": "..."}]

DOCUMENT:
` + documentText
}

func clusterPrompt(enablingConditions string, numCases int) string {
	return `Below are enabling conditions from ` + itoa(numCases) + ` exploitation cases. Group them
by structural similarity into abstract vulnerability qualities. Each quality names a
design property that creates exploitable conditions, independent of domain.

Return JSON:
{"qualities": [{"name": "...", "definition": "...", "enabling_conditions": ["..."]}]}

ENABLING CONDITIONS:
` + enablingConditions
}

func refinePrompt(name, definition, exampleConditions, otherQualityNames string) string {
	return `Refine this draft vulnerability quality into a complete taxonomy entry.

DRAFT NAME: ` + name + `
DRAFT DEFINITION: ` + definition + `
EXAMPLE ENABLING CONDITIONS: ` + exampleConditions + `
OTHER QUALITIES IN THIS TAXONOMY (keep this one distinct from them): ` + otherQualityNames + `

Return JSON:
{"name": "...", "definition": "...", "recognition_test": "...",
 "exploitation_logic": "...", "canonical_examples": ["..."]}`
}

func dedupPrompt(newName, newDefinition, newLogic, existingTaxonomy string) string {
	return `Compare this new vulnerability quality against the existing taxonomy.

NEW QUALITY:
Name: ` + newName + `
Definition: ` + newDefinition + `
Exploitation Logic: ` + newLogic + `

EXISTING TAXONOMY:
` + existingTaxonomy + `

Return JSON: {"match": true/false, "existing_quality_id": "... or null", "reasoning": "..."}`
}

func scoreCasePrompt(caseName, exploitedPolicy, schemeMechanics, enablingCondition, taxonomy string) string {
	return `Score this known exploitation case against each quality in the taxonomy.

CASE: ` + caseName + `
EXPLOITED POLICY: ` + exploitedPolicy + `
SCHEME MECHANICS: ` + schemeMechanics + `
ENABLING CONDITION: ` + enablingCondition + `

TAXONOMY:
` + taxonomy + `

Return JSON: {"scores": {"<quality_id>": {"present": true/false, "evidence": "..."}}}`
}

func calibrationPrompt(caseScores string) string {
	return `Analyze this convergence score data to determine the calibration threshold.

Each entry shows a known exploitation case, its convergence score (number of vulnerability
qualities present), and the scale in dollars.

` + caseScores + `

Determine:
1. THRESHOLD: The convergence score at or above which exploitation tends to be large-scale
   (>$100M+). This is the minimum score that should trigger proactive investigation.
2. CORRELATION_NOTES: Describe the relationship between convergence score and scale.

Return JSON: {"threshold": N, "correlation_notes": "..."}`
}

func characterizePrompt(policyName, policyDescription, ragContext string) string {
	return `Describe the mechanical structure of this policy or program: how money flows, who
reports what, what verification exists, and what barriers exist to participation.

POLICY: ` + policyName + `
DESCRIPTION: ` + policyDescription + `

SOURCE MATERIAL:
` + ragContext
}

func scorePolicyPrompt(policyName, characterization, taxonomy string) string {
	return `Score this policy against each quality in the taxonomy by applying the recognition
tests to its structural characterization.

POLICY: ` + policyName + `
STRUCTURAL CHARACTERIZATION:
` + characterization + `

TAXONOMY:
` + taxonomy + `

Return JSON: {"scores": {"<quality_id>": {"present": true/false, "evidence": "..."}}}`
}

func triagePrompt(numPolicies int, taxonomySummary, caseSummary, policyList string) string {
	return `Rank all ` + itoa(numPolicies) + ` policies below by likely vulnerability concentration,
highest risk first. Base the ranking on how each program operates and on the patterns in
the known case corpus.

TAXONOMY:
` + taxonomySummary + `

KNOWN CASES:
` + caseSummary + `

POLICIES:
` + policyList + `

Return JSON:
{"rankings": [{"policy_name": "...", "score": 0.0-1.0, "rationale": "...", "uncertainty": "..."}]}`
}

func researchPlanPrompt(policyName, policyDescription, dimensions, knownRefs string) string {
	return `Plan primary-source research for this program. Name the CFR parts most likely to
document its structure along each dimension, and the Federal Register search terms that would
surface its payment rules.

POLICY: ` + policyName + `
DESCRIPTION: ` + policyDescription + `

RESEARCH DIMENSIONS:
` + dimensions + `

CFR PARTS ALREADY MAPPED TO THIS PROGRAM: ` + knownRefs + `

Return JSON:
{"ecfr_queries": [{"title": 42, "part": "..."}], "search_terms": ["..."]}`
}

func findingsPrompt(policyName, citation, sectionText, dimensions string) string {
	return `Extract structural findings about this program from the regulation text below.

POLICY: ` + policyName + `
SOURCE: ` + citation + `

DIMENSIONS (tag each finding with one dimension id):
` + dimensions + `

TEXT:
` + sectionText + `

Return JSON:
{"findings": [{"dimension": "...", "observation": "...", "source_citation": "...",
  "source_excerpt": "...", "confidence": "high|medium|low"}]}`
}

func assessPrompt(policyName, qualityName, definition, recognitionTest, findingsBlock string) string {
	return `Assess whether this vulnerability quality is present in the policy, using only the
sourced findings below as evidence.

POLICY: ` + policyName + `

QUALITY: ` + qualityName + `
DEFINITION: ` + definition + `
RECOGNITION TEST: ` + recognitionTest + `

FINDINGS:
` + findingsBlock + `

Return JSON:
{"present": "yes|no|uncertain", "finding_ids": ["..."], "confidence": "high|medium|low",
 "rationale": "..."}`
}

func predictPrompt(policyName, policyDescription string, convergenceScore int, qualityProfile string) string {
	return `Generate specific exploitation predictions for this policy. Every prediction must be
structurally entailed by the vulnerability qualities present.

POLICY: ` + policyName + `
DESCRIPTION:
` + policyDescription + `
CONVERGENCE SCORE: ` + itoa(convergenceScore) + `
QUALITIES PRESENT:
` + qualityProfile + `

Return JSON:
{"predictions": [{"mechanics": "...", "enabling_qualities": ["..."], "actor_profile": "...",
  "lifecycle_stage": "...", "detection_difficulty": "..."}]}`
}

func detectPrompt(policyName, mechanics, enablingQualities, actorProfile, detectionDifficulty, dataSources string) string {
	return `Translate this exploitation prediction into operational detection patterns.

POLICY: ` + policyName + `
PREDICTED MECHANICS: ` + mechanics + `
ENABLING QUALITIES: ` + enablingQualities + `
ACTOR PROFILE: ` + actorProfile + `
DETECTION DIFFICULTY: ` + detectionDifficulty + `

AVAILABLE DATA SOURCES:
` + dataSources + `

Return JSON:
{"patterns": [{"data_source": "...", "anomaly_signal": "...", "baseline": "...",
  "false_positive_risk": "...", "detection_latency": "...", "priority": "critical|high|medium|low",
  "implementation_notes": "..."}]}`
}
