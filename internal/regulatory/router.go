package regulatory

import "strings"

// CFRRef names one CFR part, e.g. {42, "418"} for 42 CFR Part 418.
type CFRRef struct {
	Title int
	Part  string
}

// cfrKeywords maps program-name keywords to the CFR parts that govern them.
// The research planner can add parts beyond these; this seed covers the
// programs that recur in the HHS corpus.
var cfrKeywords = []struct {
	keywords []string
	refs     []CFRRef
}{
	{[]string{"hospice"}, []CFRRef{{42, "418"}}},
	{[]string{"home health"}, []CFRRef{{42, "484"}}},
	{[]string{"skilled nursing", "nursing facility"}, []CFRRef{{42, "483"}}},
	{[]string{"durable medical equipment", "dme", "prosthetic"}, []CFRRef{{42, "414"}}},
	{[]string{"telehealth", "telemedicine"}, []CFRRef{{42, "410"}}},
	{[]string{"medicare advantage", "part c"}, []CFRRef{{42, "422"}}},
	{[]string{"prescription drug", "part d"}, []CFRRef{{42, "423"}}},
	{[]string{"medicaid"}, []CFRRef{{42, "430"}, {42, "431"}}},
	{[]string{"clinical laboratory", "laboratory"}, []CFRRef{{42, "493"}}},
	{[]string{"ambulance"}, []CFRRef{{42, "414"}}},
	{[]string{"provider enrollment", "enrollment"}, []CFRRef{{42, "424"}}},
	{[]string{"personal care", "attendant services"}, []CFRRef{{42, "440"}}},
}

// SourcesFor returns the CFR parts whose keywords appear in the policy name,
// deduplicated in match order. An empty result means the planner starts from
// the model's own suggestions.
func SourcesFor(policyName string) []CFRRef {
	name := strings.ToLower(policyName)
	seen := make(map[CFRRef]bool)
	var refs []CFRRef
	for _, entry := range cfrKeywords {
		for _, kw := range entry.keywords {
			if !strings.Contains(name, kw) {
				continue
			}
			for _, ref := range entry.refs {
				if !seen[ref] {
					seen[ref] = true
					refs = append(refs, ref)
				}
			}
			break
		}
	}
	return refs
}
