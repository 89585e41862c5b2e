package engine

// Profile selects which rules apply to a use case. The chat and
// fit-assessment endpoints share one pipeline and differ only by profile.
type Profile struct {
	Name string `json:"name" yaml:"name"`

	// EnforceScope enables ScopeOnly rules (job-description shape checks).
	EnforceScope bool `json:"enforce_scope" yaml:"enforce_scope"`

	// Disabled lists rule types switched off for this profile.
	// nil = every rule on.
	Disabled map[GuardrailType]bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// ProfileChat is the general chat assistant profile.
var ProfileChat = Profile{Name: "chat"}

// ProfileFitAssessment judges a job description against the site owner's profile.
var ProfileFitAssessment = Profile{Name: "fit_assessment", EnforceScope: true}

// Applies reports whether a rule runs under this profile.
func (p Profile) Applies(r Rule) bool {
	if r.ScopeOnly && !p.EnforceScope {
		return false
	}
	return !p.Disabled[r.Type]
}
