package pii

import "time"

// Result contains the masking result.
type Result struct {
	Original string `json:"-"`
	Masked   string `json:"masked"`

	// Findings never include the matched value.
	Findings      []Finding      `json:"findings,omitempty"`
	Duration      time.Duration  `json:"duration"`
	TotalFindings int            `json:"total_findings"`
	ByRule        map[string]int `json:"by_rule,omitempty"`
}

// Finding represents one detected span.
type Finding struct {
	RuleID     string `json:"rule_id"`
	Kind       string `json:"kind"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
	Line       int    `json:"line,omitempty"`
}

// HasFindings returns true if anything was detected.
func (r *Result) HasFindings() bool {
	return r.TotalFindings > 0
}

// FindingsByKind returns findings filtered by rule kind.
func (r *Result) FindingsByKind(kind string) []Finding {
	var filtered []Finding
	for _, f := range r.Findings {
		if f.Kind == kind {
			filtered = append(filtered, f)
		}
	}
	return filtered
}

// Summary returns a brief summary of findings.
func (r *Result) Summary() string {
	switch {
	case !r.HasFindings():
		return "no personal data detected"
	case len(r.FindingsByKind(KindCredential)) > 0:
		return "credentials masked"
	default:
		return "personal data masked"
	}
}
