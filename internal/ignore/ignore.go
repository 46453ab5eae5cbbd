// Package ignore provides gitignore-style exclusion lists for knowledge
// base indexing.
package ignore

import (
	"bufio"
	"fmt"
	"path"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// FileName is the exclusion list read from the repository root.
const FileName = ".archieignore"

// Matcher reports whether repository paths are excluded. Later patterns
// take precedence, so a negation re-includes what an earlier line excluded.
type Matcher struct {
	sources  []string
	patterns []gitignore.Pattern
}

// Parse reads gitignore-style content. Blank lines and comments are
// skipped, as are patterns that are not valid globs.
func Parse(content string) *Matcher {
	m := &Matcher{}
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		m.add(scanner.Text())
	}
	return m
}

// New builds a Matcher from patterns, rejecting invalid ones.
func New(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		if err := ValidatePattern(p); err != nil {
			return nil, err
		}
		m.add(p)
	}
	return m, nil
}

func (m *Matcher) add(line string) {
	if p, ok := parseLine(line); ok {
		m.sources = append(m.sources, strings.TrimRight(line, " \t"))
		m.patterns = append(m.patterns, p)
	}
}

// Merge returns a Matcher holding the patterns of m followed by those of
// other.
func (m *Matcher) Merge(other *Matcher) *Matcher {
	out := &Matcher{}
	for _, src := range []*Matcher{m, other} {
		if src == nil {
			continue
		}
		out.sources = append(out.sources, src.sources...)
		out.patterns = append(out.patterns, src.patterns...)
	}
	return out
}

// Len returns the number of patterns.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.patterns)
}

// Patterns returns the patterns as written, deduplicated in order.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	seen := make(map[string]bool)
	out := make([]string, 0, len(m.sources))
	for _, s := range m.sources {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Excluded reports whether p, a slash-separated path relative to the
// repository root, is excluded. isDir marks p as a directory.
func (m *Matcher) Excluded(p string, isDir bool) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" {
		return false
	}
	return gitignore.NewMatcher(m.patterns).Match(strings.Split(p, "/"), isDir)
}

// parseLine parses a single line of an ignore file.
func parseLine(line string) (gitignore.Pattern, bool) {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, false
	}
	body := strings.TrimPrefix(line, "!")
	if strings.Trim(body, "/") == "" || ValidatePattern(body) != nil {
		return nil, false
	}
	return gitignore.ParsePattern(line, nil), true
}

// ValidatePattern checks that pattern is a usable glob.
func ValidatePattern(pattern string) error {
	if len(pattern) > 256 {
		return fmt.Errorf("ignore pattern too long: %d characters (max 256)", len(pattern))
	}
	if strings.ContainsRune(pattern, 0) {
		return fmt.Errorf("ignore pattern contains a null byte")
	}
	if _, err := path.Match(strings.ReplaceAll(pattern, "**", "*"), "test"); err != nil {
		return fmt.Errorf("invalid ignore pattern %q: %w", pattern, err)
	}
	return nil
}
