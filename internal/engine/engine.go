package engine

import (
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// Classifier runs an ordered rule list against untrusted user text.
//
// Rules are held behind an atomic pointer so the rule set can be swapped
// (e.g. after the rules file changes) without locking the request path.
type Classifier struct {
	rules  atomic.Pointer[[]Rule]
	logger *zap.Logger
}

// NewClassifier creates a classifier over the given rules. Order matters:
// the first failing rule decides the verdict.
func NewClassifier(rules []Rule, logger *zap.Logger) *Classifier {
	c := &Classifier{logger: logger}
	c.Reload(rules)
	return c
}

// Reload atomically replaces the rule set.
func (c *Classifier) Reload(rules []Rule) {
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	c.rules.Store(&cp)

	types := make([]string, len(cp))
	for i, r := range cp {
		types[i] = string(r.Type)
	}
	c.logger.Info("classifier rules loaded",
		zap.Int("rules", len(cp)),
		zap.Strings("order", types),
	)
}

// Rules returns the active rule set.
func (c *Classifier) Rules() []Rule {
	return *c.rules.Load()
}

// Classify evaluates text under the given profile. It never fails: every call
// yields a verdict.
//
// Rejection is the defense for dangerous content. Admitted text is only
// trimmed, never rewritten.
func (c *Classifier) Classify(text string, profile Profile) Verdict {
	for _, r := range c.Rules() {
		if !profile.Applies(r) {
			continue
		}
		f := r.Detect(text)
		if f == nil {
			continue
		}
		return Verdict{
			IsValid:  false,
			Reason:   r.Reason,
			Severity: r.Severity,
			Detail:   r.Detail(f),
		}
	}

	return Verdict{
		IsValid:        true,
		SanitizedInput: strings.TrimSpace(text),
	}
}

// CatalogEntry describes a rule for the public guardrail panel.
type CatalogEntry struct {
	Type           GuardrailType `json:"type"`
	Severity       Severity      `json:"severity"`
	Category       string        `json:"category"`
	Explanation    string        `json:"explanation"`
	Implementation string        `json:"implementation"`
	Order          int           `json:"order"`
	Profiles       []string      `json:"profiles"`
}

// Catalog lists the active rules in evaluation order and the profiles each
// one applies to.
func (c *Classifier) Catalog(profiles ...Profile) []CatalogEntry {
	rules := c.Rules()
	out := make([]CatalogEntry, 0, len(rules))
	for i, r := range rules {
		names := make([]string, 0, len(profiles))
		for _, p := range profiles {
			if p.Applies(r) {
				names = append(names, p.Name)
			}
		}
		out = append(out, CatalogEntry{
			Type:           r.Type,
			Severity:       r.Severity,
			Category:       r.Category,
			Explanation:    r.Explanation,
			Implementation: r.Implementation,
			Order:          i + 1,
			Profiles:       names,
		})
	}
	return out
}
