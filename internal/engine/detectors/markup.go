package detectors

import (
	"regexp"
	"strings"

	"github.com/triage-ai/portfolio-guard/internal/engine"
)

// Compiled once at startup, never during a request.
var suspiciousPatterns = []struct {
	re     *regexp.Regexp
	detail string
}{
	{regexp.MustCompile(`(?i)<\s*script\b`), "script tag"},
	{regexp.MustCompile(`(?i)<\s*/\s*script\s*>`), "closing script tag"},
	{regexp.MustCompile(`(?i)<\s*iframe\b`), "iframe tag"},
	{regexp.MustCompile(`(?i)<\s*object\b`), "object tag"},
	{regexp.MustCompile(`(?i)<\s*embed\b`), "embed tag"},
	{regexp.MustCompile(`(?i)<\s*svg\b[^>]*\bon[a-z]+\s*=`), "svg tag with event handler"},
	{regexp.MustCompile(`(?i)\bon(load|error|click|dblclick|mouseover|mouseout|mouseenter|focus|blur|submit|change|input|keydown|keyup|keypress|animationstart|toggle|pointerdown)\s*=`), "inline event handler attribute"},
	{regexp.MustCompile(`(?i)javascript\s*:`), "javascript: URL scheme"},
	{regexp.MustCompile(`(?i)vbscript\s*:`), "vbscript: URL scheme"},
	{regexp.MustCompile(`(?i)data\s*:\s*text/html`), "data:text/html URL"},
}

// SuspiciousMarkup rejects HTML/script constructs. Messages are never rendered
// as HTML by the chat UI, but stored conversations reach logs and admin tools.
func SuspiciousMarkup() engine.Rule {
	return engine.Rule{
		Type:           engine.TypeSuspiciousPattern,
		Severity:       engine.SeverityHigh,
		Category:       "Suspicious Pattern Detection",
		Explanation:    "Script tags, embedded frames and inline event handlers have no place in a chat message and are typical of cross-site scripting payloads.",
		Implementation: "Regular expression scan for script, iframe, object and embed tags, inline event-handler attributes and script URL schemes.",
		Reason:         "Your message contains potentially unsafe content (HTML or script patterns).",
		Detect: func(text string) *engine.Finding {
			for _, p := range suspiciousPatterns {
				if loc := p.re.FindStringIndex(text); loc != nil {
					return &engine.Finding{
						Detected: "Found " + p.detail + ": " + excerpt(text, loc[0], loc[1]),
					}
				}
			}
			return nil
		},
	}
}

// excerpt returns the matched text, capped so a huge match never ends up
// verbatim in a response.
func excerpt(text string, start, end int) string {
	const maxExcerpt = 40
	if end-start > maxExcerpt {
		end = start + maxExcerpt
	}
	return `"` + strings.ToValidUTF8(text[start:end], "") + `"`
}
