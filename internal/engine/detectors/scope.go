package detectors

import (
	"fmt"

	"github.com/triage-ai/portfolio-guard/internal/engine"
)

// DefaultScopeKeywords is the vocabulary a job description is expected to use.
var DefaultScopeKeywords = []string{
	"job",
	"role",
	"position",
	"title",
	"responsibilities",
	"responsibility",
	"requirements",
	"required",
	"qualifications",
	"experience",
	"skills",
	"candidate",
	"hiring",
	"apply",
	"salary",
	"compensation",
	"benefits",
	"team",
	"degree",
	"must have",
	"nice to have",
	"we are looking for",
	"you will",
}

// JobDescriptionScope rejects input that contains none of the job-description
// keywords. Applies only to profiles that enforce scope.
func JobDescriptionScope(keywords []string) engine.Rule {
	if len(keywords) == 0 {
		keywords = DefaultScopeKeywords
	}
	compiled := compilePhrases(keywords)

	return engine.Rule{
		Type:        engine.TypeScopeEnforcement,
		Severity:    engine.SeverityMedium,
		Category:    "Scope Enforcement",
		Explanation: "The fit assessment only evaluates job descriptions. Input that does not look like one is refused rather than answered off-topic.",
		Implementation: fmt.Sprintf(
			"Keyword presence check: the text must contain at least one of %d job-description terms (title, requirements, responsibilities, qualifications...).",
			len(compiled)),
		Reason:    "This doesn't look like a job description. Please paste the full job posting including the role, requirements and responsibilities.",
		ScopeOnly: true,
		Detect: func(text string) *engine.Finding {
			if _, ok := firstMatch(compiled, text); ok {
				return nil
			}
			return &engine.Finding{
				Detected: fmt.Sprintf("None of the %d job-description keywords were found", len(compiled)),
				Context: map[string]any{
					"keywordsChecked": len(compiled),
				},
			}
		},
	}
}
