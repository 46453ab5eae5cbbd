package knowledge

import (
	"fmt"
	"strings"
)

// Category is a knowledge document kind.
type Category string

const (
	CategoryTroubleshooting Category = "troubleshooting"
	CategoryProcess         Category = "process"
	CategoryDecision        Category = "decision"
	CategoryReference       Category = "reference"
	CategoryGeneral         Category = "general"
)

// Categories lists every category in canonical order.
var Categories = []Category{
	CategoryTroubleshooting,
	CategoryProcess,
	CategoryDecision,
	CategoryReference,
	CategoryGeneral,
}

// CategoryNames returns the category labels in canonical order.
func CategoryNames() []string {
	names := make([]string, len(Categories))
	for i, c := range Categories {
		names[i] = string(c)
	}
	return names
}

// ParseCategory parses a category label case-insensitively. Surrounding
// whitespace and quotes are ignored.
func ParseCategory(s string) (Category, error) {
	label := strings.ToLower(strings.Trim(strings.TrimSpace(s), `"'.`))
	for _, c := range Categories {
		if string(c) == label {
			return c, nil
		}
	}
	return "", fmt.Errorf("unrecognized category %q", s)
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Title returns the display form ("Troubleshooting").
func (c Category) Title() string {
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

func (c Category) String() string { return string(c) }
