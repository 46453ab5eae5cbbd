package pii

// DefaultRules returns the default rule set.
//
// Credential rules come first so a token embedded in a URL is reported as a
// credential rather than a link.
func DefaultRules() []Rule {
	return []Rule{
		// Credentials
		{
			ID:          "private-key",
			Description: "Private key block",
			Kind:        KindCredential,
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----`,
			Placeholder: "[SECRET]",
		},
		{
			ID:          "github-token",
			Description: "GitHub token",
			Kind:        KindCredential,
			Pattern:     `(?:ghp|gho|ghu|ghs)_[A-Za-z0-9]{36}|github_pat_[A-Za-z0-9_]{22,}`,
			Placeholder: "[SECRET]",
		},
		{
			ID:          "slack-token",
			Description: "Slack token",
			Kind:        KindCredential,
			Pattern:     `xox[abprs]-[A-Za-z0-9\-]{10,}`,
			Placeholder: "[SECRET]",
		},
		{
			ID:          "anthropic-api-key",
			Description: "Anthropic API key",
			Kind:        KindCredential,
			Pattern:     `sk-ant-[A-Za-z0-9_\-]{20,}`,
			Placeholder: "[SECRET]",
		},
		{
			ID:          "openai-api-key",
			Description: "OpenAI API key",
			Kind:        KindCredential,
			Pattern:     `sk-(?:proj-)?[A-Za-z0-9]{32,}`,
			Placeholder: "[SECRET]",
		},
		{
			ID:          "aws-access-key-id",
			Description: "AWS access key ID",
			Kind:        KindCredential,
			Pattern:     `(?:A3T[A-Z0-9]|AKIA|ASIA)[A-Z0-9]{16}`,
			Placeholder: "[SECRET]",
		},
		{
			ID:          "jwt",
			Description: "JSON Web Token",
			Kind:        KindCredential,
			Pattern:     `eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`,
			Placeholder: "[SECRET]",
		},
		{
			ID:          "credential-assignment",
			Description: "Password or secret assignment",
			Kind:        KindCredential,
			Pattern:     `(?i)(?:password|passwd|secret|api[_-]?key|token)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`,
			Keywords:    []string{"password", "passwd", "secret", "key", "token"},
			Placeholder: "[SECRET]",
		},
		{
			ID:          "url-credentials",
			Description: "URL with embedded credentials",
			Kind:        KindCredential,
			Pattern:     `(?i)[a-z][a-z0-9+.\-]*://[^\s:/@]+:[^\s@/]+@[^\s]+`,
			Placeholder: "[SECRET]",
		},

		// Personal data
		{
			ID:          "email",
			Description: "Email address",
			Kind:        KindPersonal,
			Pattern:     `[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`,
			Placeholder: "[EMAIL]",
		},
		{
			ID:          "slack-mention",
			Description: "Chat user mention",
			Kind:        KindPersonal,
			Pattern:     `<@[UW][A-Z0-9]{6,}(?:\|[^>]*)?>`,
			Placeholder: "[USER]",
		},
		{
			ID:          "handle",
			Description: "At-handle",
			Kind:        KindPersonal,
			Pattern:     `\B@[A-Za-z][A-Za-z0-9._\-]{1,30}`,
			Placeholder: "[USER]",
		},
		{
			ID:          "us-ssn",
			Description: "US social security number",
			Kind:        KindPersonal,
			Pattern:     `\b\d{3}-\d{2}-\d{4}\b`,
			Placeholder: "[ID]",
		},
		{
			ID:          "credit-card",
			Description: "Payment card number",
			Kind:        KindPersonal,
			Pattern:     `\b(?:\d[ \-]?){13,16}\b`,
			Keywords:    []string{"card", "visa", "mastercard", "amex", "payment"},
			Placeholder: "[CARD]",
		},
		{
			ID:          "phone",
			Description: "Phone number",
			Kind:        KindPersonal,
			Pattern:     `(?:\+\d{1,3}[\s.\-]?)?\(?\d{3}\)?[\s.\-]\d{3}[\s.\-]\d{4}\b`,
			Placeholder: "[PHONE]",
		},
		{
			ID:          "ipv4",
			Description: "IPv4 address",
			Kind:        KindPersonal,
			Pattern:     `\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`,
			Placeholder: "[IP]",
		},
		{
			ID:          "employee-id",
			Description: "Employee identifier",
			Kind:        KindPersonal,
			Pattern:     `(?i)\b(?:emp|employee)[\s#:_\-]*\d{3,}\b`,
			Placeholder: "[ID]",
		},
	}
}
