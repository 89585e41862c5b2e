package engine

// Finding is what a rule reports when it matches.
type Finding struct {
	// Detected describes the specific signal that matched (e.g. the phrase).
	Detected string
	// Context carries small counters surfaced to the caller (optional).
	Context map[string]any
}

// Rule is a single guardrail check. Rules are plain records evaluated in a
// fixed order by the Classifier; the first rule that returns a Finding wins.
type Rule struct {
	Type     GuardrailType
	Severity Severity

	// Category, Explanation and Implementation are the fixed, human-readable
	// texts shown in the guardrail panel.
	Category       string
	Explanation    string
	Implementation string

	// Reason is the user-facing error message returned with a rejection.
	Reason string

	// ScopeOnly marks rules that only run for profiles enforcing topic scope.
	ScopeOnly bool

	// Detect inspects the raw message text. Returns nil when the rule passes.
	// Must be pure and must not panic.
	Detect func(text string) *Finding
}

// Detail builds the GuardrailDetail for a finding of this rule.
func (r Rule) Detail(f *Finding) *GuardrailDetail {
	d := &GuardrailDetail{
		Type:           r.Type,
		Severity:       r.Severity,
		Category:       r.Category,
		Explanation:    r.Explanation,
		Implementation: r.Implementation,
	}
	if f != nil {
		d.Detected = f.Detected
		if len(f.Context) > 0 {
			d.Context = f.Context
		}
	}
	return d
}
