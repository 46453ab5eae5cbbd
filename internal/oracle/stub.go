package oracle

import (
	"context"
	"sync"

	"github.com/fyrsmithlabs/archie/internal/index"
	"github.com/fyrsmithlabs/archie/internal/knowledge"
	"github.com/fyrsmithlabs/archie/internal/matching"
)

// Stub is a scriptable Oracle for tests. Each capability uses its Func
// field when set and a fixed default otherwise; every call is counted.
//
// Defaults: Anonymize returns the text unchanged, Classify returns
// Category, Extract returns Extraction, DecideMatch returns Verdict (CREATE
// when nil), Merge appends the record body and Answer returns AnswerText
// (index.NoAnswer when empty).
type Stub struct {
	AnonymizeFunc   func(ctx context.Context, text string) (string, error)
	ClassifyFunc    func(ctx context.Context, text string) (string, error)
	ExtractFunc     func(ctx context.Context, category knowledge.Category, text string, ec knowledge.ExtractContext) (*knowledge.Extraction, error)
	DecideMatchFunc func(ctx context.Context, rec *knowledge.Record, candidates []matching.Candidate) (*matching.Verdict, error)
	MergeFunc       func(ctx context.Context, existingBody string, rec *knowledge.Record) (string, error)
	AnswerFunc      func(ctx context.Context, question string, sources []index.Source) (string, error)

	Category   knowledge.Category
	Extraction *knowledge.Extraction
	Verdict    *matching.Verdict
	AnswerText string

	mu    sync.Mutex
	calls map[string]int
}

func (s *Stub) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[op]++
}

// Calls returns how often op ("anonymize", "classify", "extract",
// "decide_match", "merge", "answer") was called.
func (s *Stub) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Stub) Anonymize(ctx context.Context, text string) (string, error) {
	s.record("anonymize")
	if s.AnonymizeFunc != nil {
		return s.AnonymizeFunc(ctx, text)
	}
	return text, nil
}

func (s *Stub) Classify(ctx context.Context, text string) (string, error) {
	s.record("classify")
	if s.ClassifyFunc != nil {
		return s.ClassifyFunc(ctx, text)
	}
	if s.Category == "" {
		return string(knowledge.CategoryGeneral), nil
	}
	return string(s.Category), nil
}

func (s *Stub) Extract(ctx context.Context, category knowledge.Category, text string, ec knowledge.ExtractContext) (*knowledge.Extraction, error) {
	s.record("extract")
	if s.ExtractFunc != nil {
		return s.ExtractFunc(ctx, category, text, ec)
	}
	if s.Extraction == nil {
		return nil, ErrEmptyResponse
	}
	ext := *s.Extraction
	return &ext, nil
}

func (s *Stub) DecideMatch(ctx context.Context, rec *knowledge.Record, candidates []matching.Candidate) (*matching.Verdict, error) {
	s.record("decide_match")
	if s.DecideMatchFunc != nil {
		return s.DecideMatchFunc(ctx, rec, candidates)
	}
	if s.Verdict == nil {
		return &matching.Verdict{
			Action:     string(matching.ActionCreate),
			Confidence: 0.9,
			Rationale:  "New topic",
			Category:   string(rec.Category),
		}, nil
	}
	v := *s.Verdict
	return &v, nil
}

func (s *Stub) Merge(ctx context.Context, existingBody string, rec *knowledge.Record) (string, error) {
	s.record("merge")
	if s.MergeFunc != nil {
		return s.MergeFunc(ctx, existingBody, rec)
	}
	return existingBody + "\n" + rec.Body(), nil
}

func (s *Stub) Answer(ctx context.Context, question string, sources []index.Source) (string, error) {
	s.record("answer")
	if s.AnswerFunc != nil {
		return s.AnswerFunc(ctx, question, sources)
	}
	if s.AnswerText == "" {
		return index.NoAnswer, nil
	}
	return s.AnswerText, nil
}

var _ Oracle = (*Stub)(nil)
