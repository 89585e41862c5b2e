package detectors

import "github.com/triage-ai/portfolio-guard/internal/engine"

// Options tunes the default rule set. Zero values fall back to built-in defaults.
type Options struct {
	MaxChars         int
	InjectionPhrases []string
	ScopeKeywords    []string
}

// Rules returns the ordered rule set: cheap, unambiguous checks first.
func Rules(opts Options) []engine.Rule {
	return []engine.Rule{
		Length(opts.MaxChars),
		SuspiciousMarkup(),
		PromptInjection(opts.InjectionPhrases),
		JobDescriptionScope(opts.ScopeKeywords),
	}
}
