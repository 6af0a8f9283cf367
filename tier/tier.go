// Package tier maps CI workflow and job names to maintainer priority tiers.
//
// Classification is an ordered list of rules evaluated top to bottom. The
// first rule with a keyword contained in the lower-cased name wins; names
// matching no rule fall back to CI.
//
// Example usage:
//
//	c := tier.NewClassifier(tier.DefaultRules()...)
//	c.Classify("unit-test (amd64)") // tier.Required
//	c.Classify("e2e (fedora)")      // tier.Nightly
package tier

import "strings"

// Tier is a maintainer-assigned priority bucket for a job.
type Tier string

const (
	Required     Tier = "REQUIRED"
	Nightly      Tier = "NIGHTLY"
	Experimental Tier = "EXPERIMENTAL"
	CI           Tier = "CI"
)

// String returns the tier name.
func (t Tier) String() string {
	return string(t)
}

// Icon returns the display glyph for the tier.
func (t Tier) Icon() string {
	switch t {
	case Required:
		return "🛡️"
	case Nightly:
		return "🌙"
	case Experimental:
		return "🧪"
	default:
		return "⚙️"
	}
}

// Rule assigns Tier to any name containing one of Keywords.
type Rule struct {
	Tier     Tier
	Keywords []string
}

// matches reports whether the lower-cased name contains any keyword.
func (r Rule) matches(lower string) bool {
	for _, kw := range r.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Default keyword lists, in rule order.
var (
	DefaultRequiredKeywords     = []string{"unit-test", "lint", "build (amd64)"}
	DefaultNightlyKeywords      = []string{"nightly", "e2e"}
	DefaultExperimentalKeywords = []string{"arm64", "experimental", "bench"}
)

// DefaultRules returns the built-in rule list: REQUIRED, NIGHTLY, EXPERIMENTAL.
func DefaultRules() []Rule {
	return RulesFromKeywords(nil, nil, nil)
}

// RulesFromKeywords builds the ordered rule list from configured keyword lists.
// A nil or empty list falls back to the default keywords for that tier.
func RulesFromKeywords(required, nightly, experimental []string) []Rule {
	return []Rule{
		{Tier: Required, Keywords: orDefault(required, DefaultRequiredKeywords)},
		{Tier: Nightly, Keywords: orDefault(nightly, DefaultNightlyKeywords)},
		{Tier: Experimental, Keywords: orDefault(experimental, DefaultExperimentalKeywords)},
	}
}

func orDefault(keywords, fallback []string) []string {
	if len(keywords) == 0 {
		keywords = fallback
	}
	out := make([]string, len(keywords))
	copy(out, keywords)
	return out
}

// Classifier evaluates an ordered rule list. It is immutable and safe for
// concurrent use.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a Classifier from rules, evaluated in the given order.
// With no rules every name classifies as CI.
func NewClassifier(rules ...Rule) *Classifier {
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Classifier{rules: cp}
}

// Rules returns a copy of the rule list in evaluation order.
func (c *Classifier) Rules() []Rule {
	cp := make([]Rule, len(c.rules))
	copy(cp, c.rules)
	return cp
}

// Classify returns the tier of the first matching rule, or CI.
func (c *Classifier) Classify(name string) Tier {
	lower := strings.ToLower(name)
	for _, r := range c.rules {
		if r.matches(lower) {
			return r.Tier
		}
	}
	return CI
}

// IsRequired reports whether name matches a REQUIRED rule, regardless of
// where that rule sits in the list.
func (c *Classifier) IsRequired(name string) bool {
	lower := strings.ToLower(name)
	for _, r := range c.rules {
		if r.Tier == Required && r.matches(lower) {
			return true
		}
	}
	return false
}

var defaultClassifier = NewClassifier(DefaultRules()...)

// Classify classifies name with the default rules.
func Classify(name string) Tier {
	return defaultClassifier.Classify(name)
}
