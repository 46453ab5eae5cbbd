// Package oracle provides the model-backed capabilities the pipeline
// consumes: anonymization, classification, extraction, match decisions,
// document merges and knowledge base answers.
//
// LLM implements every capability on top of a provider Completer (see the
// openai, anthropic and langchain subpackages). Local implements them with
// deterministic heuristics and needs no network. Stub is for tests.
package oracle

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/archie/internal/anonymize"
	"github.com/fyrsmithlabs/archie/internal/index"
	"github.com/fyrsmithlabs/archie/internal/knowledge"
	"github.com/fyrsmithlabs/archie/internal/matching"
	"github.com/fyrsmithlabs/archie/internal/publish"
)

var (
	// ErrEmptyResponse indicates the provider returned no content.
	ErrEmptyResponse = errors.New("empty response from model")
	// ErrInvalidResponse indicates the response could not be decoded.
	ErrInvalidResponse = errors.New("invalid response from model")
)

// Oracle bundles every capability the pipeline needs from a model.
type Oracle interface {
	Anonymize(ctx context.Context, text string) (string, error)
	Classify(ctx context.Context, text string) (string, error)
	Extract(ctx context.Context, category knowledge.Category, text string, ec knowledge.ExtractContext) (*knowledge.Extraction, error)
	DecideMatch(ctx context.Context, rec *knowledge.Record, candidates []matching.Candidate) (*matching.Verdict, error)
	Merge(ctx context.Context, existingBody string, rec *knowledge.Record) (string, error)
	Answer(ctx context.Context, question string, sources []index.Source) (string, error)
}

// Request is one completion call.
type Request struct {
	// Operation names the call in logs ("classify", "extract", ...).
	Operation   string
	System      string
	Prompt      string
	Schema      *Schema
	MaxTokens   int
	Temperature float64
}

// Completer sends a single prompt to a model provider and returns the text
// of its reply. When req.Schema is set the reply must be a JSON document;
// providers use native structured output where they have it.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	Model() string
}

var (
	_ anonymize.Anonymizer       = Oracle(nil)
	_ knowledge.Classifier       = Oracle(nil)
	_ knowledge.PayloadExtractor = Oracle(nil)
	_ matching.Decider           = Oracle(nil)
	_ publish.Merger             = Oracle(nil)
	_ index.Answerer             = Oracle(nil)
)
