package pii

import (
	"sort"
	"strings"
	"time"
)

// Masker detects and masks personal data and credentials.
type Masker interface {
	// Mask replaces detected spans with their placeholders.
	Mask(content string) *Result

	// Check detects without masking.
	Check(content string) *Result

	// IsEnabled returns whether masking is enabled.
	IsEnabled() bool
}

type masker struct {
	config *Config
}

type span struct {
	start, end  int
	placeholder string
}

// New creates a Masker with the given configuration.
// If cfg is nil, DefaultConfig() is used.
func New(cfg *Config) (Masker, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &masker{config: cfg}, nil
}

// MustNew creates a Masker, panicking on error.
func MustNew(cfg *Config) Masker {
	m, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return m
}

// Mask replaces detected spans with their placeholders.
func (m *masker) Mask(content string) *Result {
	start := time.Now()
	result := &Result{
		Original: content,
		Masked:   content,
		Findings: make([]Finding, 0),
		ByRule:   make(map[string]int),
	}
	if !m.config.Enabled {
		result.Duration = time.Since(start)
		return result
	}

	spans := make([]span, 0)
	for _, rule := range m.config.compiledRules {
		if !rule.applies(content) {
			continue
		}
		for _, match := range rule.pattern.FindAllStringIndex(content, -1) {
			if m.isAllowed(content[match[0]:match[1]]) {
				continue
			}
			result.Findings = append(result.Findings, Finding{
				RuleID:     rule.ID,
				Kind:       rule.Kind,
				StartIndex: match[0],
				EndIndex:   match[1],
				Line:       strings.Count(content[:match[0]], "\n") + 1,
			})
			result.ByRule[rule.ID]++
			spans = append(spans, span{start: match[0], end: match[1], placeholder: rule.Placeholder})
		}
	}
	result.TotalFindings = len(result.Findings)

	if len(spans) > 0 {
		// Stable so that, for equal starts, the earlier rule's placeholder wins.
		sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
		merged := mergeSpans(spans)

		var b strings.Builder
		b.Grow(len(content))
		prev := 0
		for _, s := range merged {
			b.WriteString(content[prev:s.start])
			b.WriteString(s.placeholder)
			prev = s.end
		}
		b.WriteString(content[prev:])
		result.Masked = b.String()
	}

	result.Duration = time.Since(start)
	return result
}

// Check detects without masking.
func (m *masker) Check(content string) *Result {
	result := m.Mask(content)
	result.Masked = result.Original
	return result
}

// IsEnabled returns whether masking is enabled.
func (m *masker) IsEnabled() bool {
	return m.config.Enabled
}

func (m *masker) isAllowed(match string) bool {
	for _, pattern := range m.config.compiledAllowList {
		if pattern.MatchString(match) {
			return true
		}
	}
	return false
}

func (r *compiledRule) applies(content string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

// mergeSpans merges overlapping spans. Input must be sorted by start.
// The merged span keeps the placeholder of its first member.
func mergeSpans(spans []span) []span {
	merged := []span{spans[0]}
	for _, curr := range spans[1:] {
		last := &merged[len(merged)-1]
		if curr.start < last.end {
			if curr.end > last.end {
				last.end = curr.end
			}
			continue
		}
		merged = append(merged, curr)
	}
	return merged
}

// NoopMasker returns content unchanged.
type NoopMasker struct{}

// Mask returns content unchanged.
func (NoopMasker) Mask(content string) *Result {
	return &Result{Original: content, Masked: content, ByRule: map[string]int{}}
}

// Check returns content unchanged.
func (n NoopMasker) Check(content string) *Result { return n.Mask(content) }

// IsEnabled returns false.
func (NoopMasker) IsEnabled() bool { return false }

var (
	_ Masker = (*masker)(nil)
	_ Masker = NoopMasker{}
)
