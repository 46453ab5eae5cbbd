package index

import (
	"context"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Search weights. A document scores the sum of the fields the query
// appears in.
const (
	titleWeight   = 0.5
	summaryWeight = 0.3
	tagWeight     = 0.2
	bodyWeight    = 0.1
)

// DefaultSearchLimit applies when Search is called with limit <= 0.
const DefaultSearchLimit = 10

// SearchResult is a document with its relevance score.
type SearchResult struct {
	Document
	Score float64 `json:"score"`
	Link  string  `json:"link,omitempty"`
}

// Search scores every document against query by case-insensitive
// substring match. category, when set, filters first. Results are sorted
// by score, then path.
func (x *Index) Search(ctx context.Context, query, category string, limit int) ([]SearchResult, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []SearchResult{}, nil
	}
	return x.search(ctx, category, limit, func(d Document) float64 {
		return scoreDocument(d, q)
	})
}

// SearchTerms scores documents against each word of query separately and
// sums the scores, so a question matches documents that mention its
// topics. Body mentions count as well. Ordering and filtering follow
// Search.
func (x *Index) SearchTerms(ctx context.Context, query, category string, limit int) ([]SearchResult, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return []SearchResult{}, nil
	}
	return x.search(ctx, category, limit, func(d Document) float64 {
		body := strings.ToLower(d.Body)
		var score float64
		for _, t := range terms {
			score += scoreDocument(d, t)
			if strings.Contains(body, t) {
				score += bodyWeight
			}
		}
		return score
	})
}

func (x *Index) search(ctx context.Context, category string, limit int, score func(Document) float64) ([]SearchResult, error) {
	docs, err := x.Documents(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	results := make([]SearchResult, 0)
	for _, d := range docs {
		if category != "" && !strings.EqualFold(d.Category, category) {
			continue
		}
		if s := score(d); s > 0 {
			results = append(results, SearchResult{Document: d, Score: s, Link: x.Link(d.Path)})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Path < results[j].Path
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// searchTerms lowercases query and keeps its distinct words of three or
// more characters, minus common question words.
func searchTerms(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool)
	var terms []string
	for _, w := range words {
		if utf8.RuneCountInString(w) < 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
	}
	return terms
}

var stopWords = map[string]bool{
	"the": true, "and": true, "are": true, "does": true, "how": true,
	"what": true, "when": true, "where": true, "why": true, "who": true,
	"which": true, "for": true, "can": true, "should": true, "our": true,
	"with": true, "this": true, "that": true, "about": true, "there": true,
}

func scoreDocument(d Document, q string) float64 {
	var score float64
	if strings.Contains(strings.ToLower(d.Title), q) {
		score += titleWeight
	}
	if strings.Contains(strings.ToLower(d.Summary), q) {
		score += summaryWeight
	}
	for _, tag := range d.Tags {
		if strings.Contains(tag, q) {
			score += tagWeight
			break
		}
	}
	return score
}

// Stats summarizes the indexed repository.
type Stats struct {
	TotalDocuments int            `json:"total_documents"`
	Categories     []string       `json:"categories"`
	ByCategory     map[string]int `json:"by_category"`
	ByTag          map[string]int `json:"by_tag"`
}

// Stats counts documents by category and by tag. Documents without a
// category count under "unknown".
func (x *Index) Stats(ctx context.Context) (*Stats, error) {
	docs, err := x.Documents(ctx)
	if err != nil {
		return nil, err
	}
	categories, err := x.Categories(ctx)
	if err != nil {
		return nil, err
	}

	s := &Stats{
		TotalDocuments: len(docs),
		Categories:     categories,
		ByCategory:     make(map[string]int),
		ByTag:          make(map[string]int),
	}
	for _, d := range docs {
		c := d.Category
		if c == "" {
			c = "unknown"
		}
		s.ByCategory[c]++
		for _, tag := range d.Tags {
			s.ByTag[tag]++
		}
	}
	return s, nil
}
