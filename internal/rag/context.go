package rag

import (
	"fmt"
	"strings"

	"github.com/svap-labs/svap/internal/store/postgres"
)

// FormatCases renders case data as a structured prompt context block.
func FormatCases(cases []postgres.Case) string {
	parts := make([]string, len(cases))
	for i, c := range cases {
		parts[i] = fmt.Sprintf(
			"CASE: %s\n  Scheme: %s\n  Exploited Policy: %s\n  Enabling Condition: %s\n  Scale: $%.0f\n  Detection: %s",
			c.CaseName, c.SchemeMechanics, c.ExploitedPolicy, c.EnablingCondition,
			c.ScaleDollars, orUnknown(c.DetectionMethod))
	}
	return strings.Join(parts, "\n\n")
}

// FormatTaxonomy renders the taxonomy as a structured prompt context block.
func FormatTaxonomy(taxonomy []postgres.Quality) string {
	parts := make([]string, len(taxonomy))
	for i, q := range taxonomy {
		parts[i] = fmt.Sprintf(
			"%s: %s\n  Definition: %s\n  Recognition Test: %s\n  Exploitation Logic: %s",
			q.QualityID, q.Name, q.Definition, q.RecognitionTest, q.ExploitationLogic)
	}
	return strings.Join(parts, "\n\n")
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
