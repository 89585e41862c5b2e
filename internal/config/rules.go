package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/triage-ai/portfolio-guard/internal/engine"
	"github.com/triage-ai/portfolio-guard/internal/engine/detectors"
	"gopkg.in/yaml.v3"
)

// RulesFile is the YAML shape of GUARD_RULES_FILE. The phrase and keyword
// lists are tuning data: a list replaces the built-in one, an extra_ list
// extends it.
//
//	max_chars: 20000
//	extra_injection_phrases:
//	  - "sudo mode"
//	scope_keywords: [job, role, requirements]
//	profiles:
//	  chat:
//	    disabled: [suspicious_pattern]
type RulesFile struct {
	MaxChars              int                     `yaml:"max_chars"`
	InjectionPhrases      []string                `yaml:"injection_phrases"`
	ExtraInjectionPhrases []string                `yaml:"extra_injection_phrases"`
	ScopeKeywords         []string                `yaml:"scope_keywords"`
	ExtraScopeKeywords    []string                `yaml:"extra_scope_keywords"`
	Profiles              map[string]ProfileRules `yaml:"profiles"`
}

// ProfileRules adjusts one classification profile.
type ProfileRules struct {
	Disabled []engine.GuardrailType `yaml:"disabled"`
}

var knownRuleTypes = map[engine.GuardrailType]bool{
	engine.TypeLengthValidation:  true,
	engine.TypeSuspiciousPattern: true,
	engine.TypePromptInjection:   true,
	engine.TypeScopeEnforcement:  true,
}

// LoadRules reads and validates a rules file. An empty path yields the
// built-in defaults.
func LoadRules(path string) (*RulesFile, error) {
	if path == "" {
		return &RulesFile{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadRules: %w", err)
	}
	return ParseRules(raw)
}

// ParseRules decodes a rules document. Unknown keys are rejected so a typo
// cannot silently fall back to defaults.
func ParseRules(raw []byte) (*RulesFile, error) {
	var rf RulesFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("ParseRules: %w", err)
	}
	if err := rf.Validate(); err != nil {
		return nil, err
	}
	return &rf, nil
}

// Validate checks value ranges and rule type names.
func (rf *RulesFile) Validate() error {
	if rf.MaxChars < 0 {
		return fmt.Errorf("max_chars must not be negative, got %d", rf.MaxChars)
	}
	for name, p := range rf.Profiles {
		for _, t := range p.Disabled {
			if !knownRuleTypes[t] {
				return fmt.Errorf("profile %q: unknown rule type %q", name, t)
			}
		}
	}
	return nil
}

// Options converts the file into detector options, merging extra_ lists
// into the defaults.
func (rf *RulesFile) Options() detectors.Options {
	phrases := rf.InjectionPhrases
	if len(rf.ExtraInjectionPhrases) > 0 {
		base := phrases
		if len(base) == 0 {
			base = detectors.DefaultInjectionPhrases
		}
		phrases = append(append([]string{}, base...), rf.ExtraInjectionPhrases...)
	}

	keywords := rf.ScopeKeywords
	if len(rf.ExtraScopeKeywords) > 0 {
		base := keywords
		if len(base) == 0 {
			base = detectors.DefaultScopeKeywords
		}
		keywords = append(append([]string{}, base...), rf.ExtraScopeKeywords...)
	}

	return detectors.Options{
		MaxChars:         rf.MaxChars,
		InjectionPhrases: phrases,
		ScopeKeywords:    keywords,
	}
}

// Rules builds the ordered rule set described by the file.
func (rf *RulesFile) Rules() []engine.Rule {
	return detectors.Rules(rf.Options())
}

// Profile applies the file's adjustments for p.Name to p.
func (rf *RulesFile) Profile(p engine.Profile) engine.Profile {
	pr, ok := rf.Profiles[p.Name]
	if !ok || len(pr.Disabled) == 0 {
		return p
	}
	disabled := make(map[engine.GuardrailType]bool, len(pr.Disabled))
	for _, t := range pr.Disabled {
		disabled[t] = true
	}
	p.Disabled = disabled
	return p
}
