package detectors

import (
	"fmt"
	"unicode/utf8"

	"github.com/triage-ai/portfolio-guard/internal/engine"
)

// DefaultMaxChars is the per-message character cap.
const DefaultMaxChars = 50_000

// Length rejects messages longer than maxChars characters (runes, not bytes).
func Length(maxChars int) engine.Rule {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return engine.Rule{
		Type:        engine.TypeLengthValidation,
		Severity:    engine.SeverityLow,
		Category:    "Input Length Validation",
		Explanation: "Very long messages are a common way to hide instructions or exhaust the assistant's context window, so each message has a size limit.",
		Implementation: fmt.Sprintf(
			"Character count check against a %d character limit, applied before any pattern matching.", maxChars),
		Reason: fmt.Sprintf("Message is too long. Please keep messages under %d characters.", maxChars),
		Detect: func(text string) *engine.Finding {
			n := utf8.RuneCountInString(text)
			if n <= maxChars {
				return nil
			}
			return &engine.Finding{
				Detected: fmt.Sprintf("Message length of %d characters exceeds the %d character limit", n, maxChars),
				Context: map[string]any{
					"length": n,
					"limit":  maxChars,
				},
			}
		},
	}
}
