// Package matching decides whether a new knowledge record should create a
// document, update an existing one, or be ignored.
//
// The Engine ranks existing documents with a deterministic heuristic and
// hands the best candidates to a Decider. Decider failures never block the
// pipeline: the Engine falls back to CREATE.
package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/archie/internal/index"
	"github.com/fyrsmithlabs/archie/internal/knowledge"
	"github.com/fyrsmithlabs/archie/internal/repohost"
)

// Action is a match verdict.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionIgnore Action = "IGNORE"
)

// ParseAction parses an action case-insensitively.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(s))); a {
	case ActionCreate, ActionUpdate, ActionIgnore:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// DefaultMaxCandidates bounds how many ranked documents reach the Decider.
const DefaultMaxCandidates = 20

// FallbackConfidence is the confidence of a CREATE produced by fallback.
const FallbackConfidence = 0.5

// Decision is the outcome of matching one record.
type Decision struct {
	Action          Action  `json:"action"`
	Confidence      float64 `json:"confidence"`
	Rationale       string  `json:"rationale"`
	ValueAssessment string  `json:"value_assessment,omitempty"`
	TargetPath      string  `json:"target_path,omitempty"`
	TargetTitle     string  `json:"target_title,omitempty"`
	Category        string  `json:"category,omitempty"`
	// ExistingDocumentLink is set only for IGNORE verdicts that point at a
	// known document.
	ExistingDocumentLink string `json:"existing_document_link,omitempty"`
	// Fallback marks a CREATE produced because the Decider failed.
	Fallback bool `json:"fallback,omitempty"`
}

// Candidate is an existing document as shown to a Decider.
type Candidate struct {
	Path     string
	Title    string
	Category string
	Tags     []string
	Summary  string
	Body     string
}

// Verdict is what a Decider returns. Action is a raw label so invalid
// answers are caught by the Engine.
type Verdict struct {
	Action          string  `json:"action" jsonschema:"enum=CREATE,enum=UPDATE,enum=IGNORE,description=What to do with the new knowledge"`
	Confidence      float64 `json:"confidence" jsonschema:"description=Confidence in the decision from 0 to 1"`
	Rationale       string  `json:"rationale" jsonschema:"description=Why this action was chosen"`
	ValueAssessment string  `json:"value_assessment" jsonschema:"description=What the new knowledge adds beyond existing documents"`
	TargetPath      string  `json:"target_path" jsonschema:"description=Path of the document to update or the duplicate; empty for CREATE"`
	TargetTitle     string  `json:"target_title" jsonschema:"description=Title of the target document"`
	Category        string  `json:"category" jsonschema:"description=Category folder for the document"`
}

// Decider makes the final match decision from ranked candidates.
type Decider interface {
	DecideMatch(ctx context.Context, rec *knowledge.Record, candidates []Candidate) (*Verdict, error)
}

// Linker builds browsable links to repository documents.
type Linker interface {
	Link(path string) string
}

// Engine matches records against existing documents.
type Engine struct {
	decider       Decider
	linker        Linker
	maxCandidates int
	logger        *zap.Logger
}

// NewEngine creates an Engine. linker may be nil, in which case IGNORE
// decisions carry no link.
func NewEngine(decider Decider, linker Linker, maxCandidates int, logger *zap.Logger) *Engine {
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{decider: decider, linker: linker, maxCandidates: maxCandidates, logger: logger}
}

// Match decides what to do with rec given the current documents. It never
// fails: Decider errors and unusable verdicts become a fallback CREATE.
// Documents without a category do not take part.
func (e *Engine) Match(ctx context.Context, rec *knowledge.Record, docs []index.Document) *Decision {
	matchable := make([]index.Document, 0, len(docs))
	for _, d := range docs {
		if d.HasCategory() {
			matchable = append(matchable, d)
		}
	}

	if len(matchable) == 0 {
		return &Decision{
			Action:          ActionCreate,
			Confidence:      rec.Confidence,
			Rationale:       "No existing documents to compare against",
			ValueAssessment: "New knowledge for an empty knowledge base",
			TargetPath:      rec.SuggestedPath(),
			TargetTitle:     rec.Title,
			Category:        string(rec.Category),
		}
	}

	ranked := Rank(rec, matchable)
	if len(ranked) > e.maxCandidates {
		ranked = ranked[:e.maxCandidates]
	}
	candidates := make([]Candidate, len(ranked))
	for i, d := range ranked {
		candidates[i] = Candidate{
			Path:     d.Path,
			Title:    d.Title,
			Category: d.Category,
			Tags:     d.Tags,
			Summary:  d.Summary,
			Body:     d.Body,
		}
	}

	verdict, err := e.decider.DecideMatch(ctx, rec, candidates)
	if err != nil {
		return e.fallback(rec, err)
	}
	decision, err := e.apply(rec, verdict, matchable)
	if err != nil {
		return e.fallback(rec, err)
	}
	e.logger.Info("Match decided",
		zap.String("action", string(decision.Action)),
		zap.Float64("confidence", decision.Confidence),
		zap.String("target_path", decision.TargetPath),
		zap.Int("candidates", len(candidates)),
	)
	return decision
}

// apply validates a verdict against the known documents.
func (e *Engine) apply(rec *knowledge.Record, v *Verdict, docs []index.Document) (*Decision, error) {
	if v == nil {
		return nil, fmt.Errorf("empty match verdict")
	}
	action, err := ParseAction(v.Action)
	if err != nil {
		return nil, err
	}

	d := &Decision{
		Action:          action,
		Confidence:      clamp01(v.Confidence),
		Rationale:       strings.TrimSpace(v.Rationale),
		ValueAssessment: strings.TrimSpace(v.ValueAssessment),
		TargetTitle:     strings.TrimSpace(v.TargetTitle),
		Category:        strings.TrimSpace(v.Category),
	}
	target := repohost.CleanPath(strings.TrimSpace(v.TargetPath))
	existing, known := findDocument(docs, target)

	switch action {
	case ActionCreate:
		d.TargetPath = rec.SuggestedPath()
		d.TargetTitle = rec.Title
		d.Category = string(rec.Category)
	case ActionUpdate:
		if !known {
			return nil, fmt.Errorf("update target %q is not an existing document", target)
		}
		d.TargetPath = existing.Path
		if d.TargetTitle == "" {
			d.TargetTitle = existing.Title
		}
		d.Category = existing.Category
	case ActionIgnore:
		if known {
			d.TargetPath = existing.Path
			if d.TargetTitle == "" {
				d.TargetTitle = existing.Title
			}
			d.Category = existing.Category
			if e.linker != nil {
				d.ExistingDocumentLink = e.linker.Link(existing.Path)
			}
		} else {
			d.TargetPath = target
		}
	}
	if d.Category == "" {
		d.Category = string(rec.Category)
	}
	return d, nil
}

func (e *Engine) fallback(rec *knowledge.Record, err error) *Decision {
	e.logger.Warn("Match decision failed, falling back to CREATE", zap.Error(err))
	return &Decision{
		Action:      ActionCreate,
		Confidence:  FallbackConfidence,
		Rationale:   fmt.Sprintf("Fallback to CREATE due to error: %v", err),
		TargetPath:  rec.SuggestedPath(),
		TargetTitle: rec.Title,
		Category:    string(rec.Category),
		Fallback:    true,
	}
}

// Rank orders docs by relevance to rec: same category first, then
// documents sharing a tag, then the rest. Within a tier, more shared tags
// rank higher and ties break on path. Every input document is returned.
func Rank(rec *knowledge.Record, docs []index.Document) []index.Document {
	type scored struct {
		doc     index.Document
		tier    int
		overlap int
	}
	tags := make(map[string]bool, len(rec.Tags))
	for _, t := range rec.Tags {
		tags[t] = true
	}

	items := make([]scored, len(docs))
	for i, d := range docs {
		overlap := 0
		for _, t := range d.Tags {
			if tags[t] {
				overlap++
			}
		}
		tier := 2
		switch {
		case strings.EqualFold(d.Category, string(rec.Category)):
			tier = 0
		case overlap > 0:
			tier = 1
		}
		items[i] = scored{doc: d, tier: tier, overlap: overlap}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.tier != b.tier {
			return a.tier < b.tier
		}
		if a.overlap != b.overlap {
			return a.overlap > b.overlap
		}
		return a.doc.Path < b.doc.Path
	})

	out := make([]index.Document, len(items))
	for i, it := range items {
		out[i] = it.doc
	}
	return out
}

func findDocument(docs []index.Document, path string) (index.Document, bool) {
	if path == "" {
		return index.Document{}, false
	}
	for _, d := range docs {
		if d.Path == path {
			return d, true
		}
	}
	return index.Document{}, false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
