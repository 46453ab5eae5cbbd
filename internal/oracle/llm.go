package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/archie/internal/index"
	"github.com/fyrsmithlabs/archie/internal/knowledge"
	"github.com/fyrsmithlabs/archie/internal/logging"
	"github.com/fyrsmithlabs/archie/internal/matching"
)

// Defaults for LLM options.
const (
	DefaultMaxTokens     = 4000
	DefaultRatePerMinute = 50
	DefaultBurst         = 5
)

// Options tunes an LLM oracle.
type Options struct {
	MaxTokens         int
	Temperature       float64
	RatePerMinute     int
	Burst             int
	PromptTokenBudget int
	// Timeout bounds each provider call. Zero means no limit beyond the
	// caller's context.
	Timeout time.Duration
}

// LLM implements Oracle on top of a provider Completer. Calls are paced by
// a shared rate limiter.
type LLM struct {
	completer Completer
	opts      Options
	limiter   *rate.Limiter
	budget    *Budget
	schemas   *schemas
	logger    *zap.Logger
}

// NewLLM creates an LLM oracle.
func NewLLM(c Completer, opts Options, logger *zap.Logger) (*LLM, error) {
	if c == nil {
		return nil, errors.New("completer is required")
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = DefaultRatePerMinute
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultBurst
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s, err := buildSchemas()
	if err != nil {
		return nil, err
	}
	return &LLM{
		completer: c,
		opts:      opts,
		limiter:   rate.NewLimiter(rate.Limit(float64(opts.RatePerMinute)/60.0), opts.Burst),
		budget:    NewBudget(opts.PromptTokenBudget),
		schemas:   s,
		logger:    logger,
	}, nil
}

func (l *LLM) call(ctx context.Context, req Request) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	if l.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.Timeout)
		defer cancel()
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = l.opts.MaxTokens
	}
	req.Temperature = l.opts.Temperature
	l.logger.Log(logging.TraceLevel, "Oracle request prepared",
		zap.String("operation", req.Operation),
		zap.Int("system_length", len(req.System)),
		zap.Int("prompt_length", len(req.Prompt)),
		zap.Int("max_tokens", req.MaxTokens),
		zap.Bool("structured", req.Schema != nil),
	)

	start := time.Now()
	text, err := l.completer.Complete(ctx, req)
	if err != nil {
		l.logger.Warn("Oracle call failed",
			zap.String("operation", req.Operation),
			zap.String("model", l.completer.Model()),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return "", err
	}
	l.logger.Debug("Oracle call completed",
		zap.String("operation", req.Operation),
		zap.String("model", l.completer.Model()),
		zap.Duration("duration", time.Since(start)),
		zap.Int("response_length", len(text)),
	)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Anonymize redacts personal data from text. Empty input is returned
// without a call.
func (l *LLM) Anonymize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	maxTokens := l.budget.Count(text)*2 + 256
	if maxTokens < l.opts.MaxTokens {
		maxTokens = l.opts.MaxTokens
	}
	return l.call(ctx, Request{
		Operation: "anonymize",
		System:    anonymizeSystemPrompt,
		Prompt:    text,
		MaxTokens: maxTokens,
	})
}

// Classify returns the category label for a transcript.
func (l *LLM) Classify(ctx context.Context, text string) (string, error) {
	out, err := l.call(ctx, Request{
		Operation: "classify",
		System:    classifySystemPrompt,
		Prompt:    classifyPrompt(text),
		Schema:    l.schemas.classify,
	})
	if err != nil {
		return "", err
	}
	var c Classification
	if err := decodeJSON(out, &c); err != nil {
		return "", err
	}
	return c.Category, nil
}

// Extract asks for a record in the schema of category.
func (l *LLM) Extract(ctx context.Context, category knowledge.Category, text string, ec knowledge.ExtractContext) (*knowledge.Extraction, error) {
	schema, ok := l.schemas.extract[category]
	if !ok {
		return nil, fmt.Errorf("unrecognized category %q", category)
	}
	out, err := l.call(ctx, Request{
		Operation: "extract",
		System:    extractSystemPrompt,
		Prompt:    extractPrompt(category, text, ec),
		Schema:    schema,
	})
	if err != nil {
		return nil, err
	}
	ext, err := knowledge.DecodeExtraction(category, []byte(cleanJSON(out)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return ext, nil
}

// DecideMatch asks for a CREATE, UPDATE or IGNORE verdict. Candidate
// summaries are trimmed to fit the prompt token budget.
func (l *LLM) DecideMatch(ctx context.Context, rec *knowledge.Record, candidates []matching.Candidate) (*matching.Verdict, error) {
	record := recordBlock(rec)
	blocks := make([]string, len(candidates))
	for i, c := range candidates {
		blocks[i] = candidateBlock(i, c)
	}
	blocks = l.budget.Fit(matchSystemPrompt+record, blocks)

	out, err := l.call(ctx, Request{
		Operation: "decide_match",
		System:    matchSystemPrompt,
		Prompt:    matchPrompt(record, blocks),
		Schema:    l.schemas.verdict,
	})
	if err != nil {
		return nil, err
	}
	var v matching.Verdict
	if err := decodeJSON(out, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Merge folds rec into an existing document body.
func (l *LLM) Merge(ctx context.Context, existingBody string, rec *knowledge.Record) (string, error) {
	out, err := l.call(ctx, Request{
		Operation: "merge",
		System:    mergeSystemPrompt,
		Prompt:    mergePrompt(existingBody, rec),
	})
	if err != nil {
		return "", err
	}
	return stripFence(out, "markdown") + "\n", nil
}

// Answer replies to question from sources, trimmed to fit the prompt token
// budget. Without sources no call is made.
func (l *LLM) Answer(ctx context.Context, question string, sources []index.Source) (string, error) {
	blocks := make([]string, len(sources))
	for i, s := range sources {
		blocks[i] = sourceBlock(i, s)
	}
	blocks = l.budget.Fit(answerSystemPrompt+question, blocks)
	if len(blocks) == 0 {
		return index.NoAnswer, nil
	}
	out, err := l.call(ctx, Request{
		Operation: "answer",
		System:    answerSystemPrompt,
		Prompt:    answerPrompt(question, blocks),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// cleanJSON removes markdown fences and any prose around the outermost
// JSON object.
func cleanJSON(s string) string {
	s = stripFence(s, "json")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

func stripFence(s, lang string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, lang)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func decodeJSON(s string, v any) error {
	if err := json.Unmarshal([]byte(cleanJSON(s)), v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return nil
}

var _ Oracle = (*LLM)(nil)
