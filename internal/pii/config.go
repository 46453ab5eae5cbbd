package pii

import (
	"fmt"
	"regexp"
)

// Rule kinds.
const (
	KindPersonal   = "personal"
	KindCredential = "credential"
)

// Config configures the masker.
type Config struct {
	// Enabled controls whether masking is active (default: true)
	Enabled bool `koanf:"enabled"`

	// Rules defines the detection rules
	Rules []Rule `koanf:"rules"`

	// DefaultPlaceholder replaces matches of rules without their own placeholder
	DefaultPlaceholder string `koanf:"default_placeholder"`

	// AllowList contains patterns that are never masked
	AllowList []string `koanf:"allow_list"`

	compiledRules     []*compiledRule
	compiledAllowList []*regexp.Regexp
}

// Rule defines a detection rule.
type Rule struct {
	ID          string   `koanf:"id"`
	Description string   `koanf:"description"`
	Kind        string   `koanf:"kind"`
	Pattern     string   `koanf:"pattern"`
	Placeholder string   `koanf:"placeholder"`
	// Keywords must appear somewhere in the input for the rule to apply.
	Keywords []string `koanf:"keywords"`
}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

// DefaultConfig returns a configuration with the standard rule set.
func DefaultConfig() *Config {
	return &Config{
		Enabled:            true,
		DefaultPlaceholder: "[REDACTED]",
		Rules:              DefaultRules(),
	}
}

// Validate validates and compiles the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.DefaultPlaceholder == "" {
		c.DefaultPlaceholder = "[REDACTED]"
	}

	c.compiledRules = make([]*compiledRule, 0, len(c.Rules))
	seen := make(map[string]bool, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.ID == "" {
			return fmt.Errorf("rule %d: ID is required", i)
		}
		if seen[rule.ID] {
			return fmt.Errorf("rule %s: duplicate ID", rule.ID)
		}
		seen[rule.ID] = true
		if rule.Pattern == "" {
			return fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		switch rule.Kind {
		case KindPersonal, KindCredential:
		case "":
			rule.Kind = KindPersonal
		default:
			return fmt.Errorf("rule %s: unknown kind %q", rule.ID, rule.Kind)
		}

		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}
		if rule.Placeholder == "" {
			rule.Placeholder = c.DefaultPlaceholder
		}

		compiled := &compiledRule{
			Rule:     rule,
			pattern:  pattern,
			keywords: make([]*regexp.Regexp, 0, len(rule.Keywords)),
		}
		for _, kw := range rule.Keywords {
			compiled.keywords = append(compiled.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		c.compiledRules = append(c.compiledRules, compiled)
	}

	c.compiledAllowList = make([]*regexp.Regexp, 0, len(c.AllowList))
	for i, pattern := range c.AllowList {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		c.compiledAllowList = append(c.compiledAllowList, compiled)
	}
	return nil
}
