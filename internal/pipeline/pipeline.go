package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/archie/internal/anonymize"
	"github.com/fyrsmithlabs/archie/internal/conversation"
	"github.com/fyrsmithlabs/archie/internal/index"
	"github.com/fyrsmithlabs/archie/internal/knowledge"
	"github.com/fyrsmithlabs/archie/internal/logging"
	"github.com/fyrsmithlabs/archie/internal/matching"
	"github.com/fyrsmithlabs/archie/internal/publish"
	"github.com/fyrsmithlabs/archie/internal/telemetry"
)

// Components are the stage implementations an Orchestrator drives.
type Components struct {
	Standardizer *conversation.Standardizer
	Anonymizer   *anonymize.Coordinator
	Extractor    *knowledge.Extractor
	Index        *index.Index
	Matcher      *matching.Engine
	Publisher    *publish.Publisher
	// Answerer is optional. Without it Answer fails.
	Answerer index.Answerer
}

func (c Components) validate() error {
	switch {
	case c.Standardizer == nil:
		return errors.New("pipeline: standardizer is required")
	case c.Anonymizer == nil:
		return errors.New("pipeline: anonymizer is required")
	case c.Extractor == nil:
		return errors.New("pipeline: extractor is required")
	case c.Index == nil:
		return errors.New("pipeline: index is required")
	case c.Matcher == nil:
		return errors.New("pipeline: matcher is required")
	case c.Publisher == nil:
		return errors.New("pipeline: publisher is required")
	}
	return nil
}

// Options tune a run.
type Options struct {
	// DryRun stops after rendering; nothing is written to the repository.
	DryRun bool
}

// Orchestrator sequences the stages of a run.
type Orchestrator struct {
	c        Components
	opts     Options
	tracer   trace.Tracer
	metrics  *Metrics
	logger   *zap.Logger
	newRunID func() string
}

// New creates an Orchestrator. tel may be nil, in which case the global
// providers are used.
func New(c Components, opts Options, tel *telemetry.Telemetry, logger *zap.Logger) (*Orchestrator, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	metrics, err := NewMetrics(tel.Meter(InstrumentationName))
	if err != nil {
		logger.Warn("Pipeline metrics unavailable", zap.Error(err))
		metrics = nil
	}

	return &Orchestrator{
		c:        c,
		opts:     opts,
		tracer:   tel.Tracer(InstrumentationName),
		metrics:  metrics,
		logger:   logger,
		newRunID: uuid.NewString,
	}, nil
}

// ProcessChat runs the pipeline over a chat channel or thread.
//
// The Result is never nil. The error is non-nil only for failed runs and is
// always a *StageError.
func (o *Orchestrator) ProcessChat(ctx context.Context, src conversation.ChatSource, w conversation.Window) (*Result, error) {
	desc := src.Describe()
	ctx, r := o.begin(ctx, string(desc.Kind))

	var conv *conversation.Conversation
	err := o.stage(ctx, r, StageStandardize, func(ctx context.Context) error {
		var err error
		conv, err = o.c.Standardizer.FromChat(ctx, src, w)
		return err
	})
	if err != nil {
		return o.finish(ctx, r)
	}
	return o.process(ctx, r, conv)
}

// ProcessText runs the pipeline over free text. title and metadata are
// optional.
func (o *Orchestrator) ProcessText(ctx context.Context, text, title string, metadata map[string]string) (*Result, error) {
	ctx, r := o.begin(ctx, string(conversation.SourceText))
	r.result.TextLength = len(text)

	var conv *conversation.Conversation
	err := o.stage(ctx, r, StageStandardize, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		conv = o.c.Standardizer.FromText(text, title, metadata)
		return nil
	})
	if err != nil {
		return o.finish(ctx, r)
	}
	return o.process(ctx, r, conv)
}

// Search queries the knowledge base index.
func (o *Orchestrator) Search(ctx context.Context, query, category string, limit int) ([]index.SearchResult, error) {
	return o.c.Index.Search(ctx, query, category, limit)
}

// Answer is a reply to a question together with the documents it was drawn
// from.
type Answer struct {
	Question string               `json:"question"`
	Text     string               `json:"answer"`
	Sources  []index.SearchResult `json:"sources"`
}

// Answer searches the knowledge base for question and asks the Answerer to
// reply from the matching documents. When nothing matches the reply is
// index.NoAnswer and the Answerer is not called.
func (o *Orchestrator) Answer(ctx context.Context, question, category string, limit int) (*Answer, error) {
	if o.c.Answerer == nil {
		return nil, errors.New("pipeline: answerer is required")
	}
	results, err := o.c.Index.SearchTerms(ctx, question, category, limit)
	if err != nil {
		return nil, err
	}
	ans := &Answer{Question: question, Text: index.NoAnswer, Sources: results}
	if len(results) == 0 {
		return ans, nil
	}
	sources := make([]index.Source, len(results))
	for i, r := range results {
		sources[i] = index.SourceOf(r.Document)
	}
	text, err := o.c.Answerer.Answer(ctx, question, sources)
	if err != nil {
		return nil, fmt.Errorf("answering question: %w", err)
	}
	ans.Text = text
	o.log(ctx).Debug("Question answered", zap.Int("sources", len(sources)), zap.Int("answer_length", len(text)))
	return ans, nil
}

// Stats summarizes the knowledge base index.
func (o *Orchestrator) Stats(ctx context.Context) (*index.Stats, error) {
	return o.c.Index.Stats(ctx)
}

type run struct {
	result *Result
	span   trace.Span
	start  time.Time
}

func (o *Orchestrator) begin(ctx context.Context, source string) (context.Context, *run) {
	runID := o.newRunID()
	ctx = logging.WithRunID(ctx, runID)
	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("pipeline.source", source),
		attribute.Bool("pipeline.dry_run", o.opts.DryRun),
	))
	o.log(ctx).Info("Pipeline run started",
		zap.String("source", source),
		zap.Bool("dry_run", o.opts.DryRun),
	)
	return ctx, &run{
		result: &Result{RunID: runID, Stage: StageStandardize},
		span:   span,
		start:  time.Now(),
	}
}

func (o *Orchestrator) process(ctx context.Context, r *run, conv *conversation.Conversation) (*Result, error) {
	res := r.result
	ctx = logging.WithConversationID(ctx, conv.ID)
	r.span.SetAttributes(attribute.String("conversation.id", conv.ID))
	res.ConversationID = conv.ID
	res.MessagesProcessed = len(conv.Messages)

	if len(conv.Messages) == 0 {
		res.Status = StatusNotExtractable
		res.Action = matching.ActionIgnore
		res.Reason = knowledge.ReasonNoMessages
		return o.finish(ctx, r)
	}

	anon := conv
	err := o.stage(ctx, r, StageAnonymize, func(ctx context.Context) error {
		var err error
		anon, err = o.c.Anonymizer.AnonymizeOne(ctx, conv)
		return err
	})
	if err != nil {
		return o.finish(ctx, r)
	}

	var outcome knowledge.Outcome
	err = o.stage(ctx, r, StageExtract, func(ctx context.Context) error {
		var err error
		outcome, err = o.c.Extractor.Extract(ctx, anon)
		return err
	})
	if err != nil {
		return o.finish(ctx, r)
	}
	if !outcome.Extractable {
		res.Status = StatusNotExtractable
		res.Action = matching.ActionIgnore
		res.Reason = outcome.Reason
		res.Detail = outcome.Detail
		return o.finish(ctx, r)
	}

	rec := outcome.Record
	res.Title = rec.Title
	res.Category = string(rec.Category)
	res.Tags = rec.Tags
	res.Confidence = rec.Confidence

	var decision *matching.Decision
	err = o.stage(ctx, r, StageMatch, func(ctx context.Context) error {
		docs, err := o.c.Index.Documents(ctx)
		if err != nil {
			return err
		}
		decision = o.c.Matcher.Match(ctx, rec, docs)
		return nil
	})
	if err != nil {
		return o.finish(ctx, r)
	}

	res.Action = decision.Action
	res.Rationale = decision.Rationale
	res.ValueAssessment = decision.ValueAssessment
	if decision.Category != "" {
		res.Category = decision.Category
	}
	if decision.Fallback {
		res.MatchFallback = true
		o.metrics.recordMatchFallback(ctx)
		o.log(ctx).Warn("Match decision unavailable, creating a new document",
			zap.String("error_kind", string(KindMatchDecision)),
			zap.String("rationale", decision.Rationale),
		)
	}

	if decision.Action == matching.ActionIgnore {
		res.Status = StatusIgnored
		res.FilePath = decision.TargetPath
		res.ExistingDocumentLink = decision.ExistingDocumentLink
		return o.finish(ctx, r)
	}

	var doc *publish.Document
	err = o.stage(ctx, r, StageRender, func(ctx context.Context) error {
		var err error
		doc, err = o.c.Publisher.Prepare(ctx, rec, decision)
		return err
	})
	if err != nil {
		return o.finish(ctx, r)
	}
	res.FilePath = doc.Path
	res.Content = doc.Content
	if doc.Title != "" {
		res.Title = doc.Title
	}

	if o.opts.DryRun {
		res.Status = StatusDryRun
		return o.finish(ctx, r)
	}

	err = o.stage(ctx, r, StagePublish, func(ctx context.Context) error {
		cr, err := o.c.Publisher.Publish(ctx, doc)
		if err != nil {
			return err
		}
		res.ChangeRequest = cr
		o.metrics.recordPublishAttempts(ctx, cr.Attempts)
		return nil
	})
	if err != nil {
		return o.finish(ctx, r)
	}

	res.Status = StatusPublished
	return o.finish(ctx, r)
}

// stage runs fn inside a span named after the stage and records its
// duration. A failure is recorded on the run result and returned as a
// *StageError.
func (o *Orchestrator) stage(ctx context.Context, r *run, stage Stage, fn func(context.Context) error) error {
	r.result.Stage = stage
	ctx = logging.WithStage(ctx, string(stage))
	ctx, span := o.tracer.Start(ctx, "pipeline."+string(stage))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	o.metrics.recordStage(ctx, stage, time.Since(start), err != nil)
	if err == nil {
		return nil
	}

	se := newStageError(stage, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(se.Kind))
	span.SetAttributes(attribute.String("error.kind", string(se.Kind)))
	r.result.fail(se)
	return se
}

func (o *Orchestrator) finish(ctx context.Context, r *run) (*Result, error) {
	res := r.result
	r.span.SetAttributes(
		attribute.String("pipeline.status", string(res.Status)),
		attribute.String("pipeline.stage", string(res.Stage)),
	)
	if res.Action != "" {
		r.span.SetAttributes(attribute.String("pipeline.action", string(res.Action)))
	}
	if res.Err != nil {
		r.span.RecordError(res.Err)
		r.span.SetStatus(codes.Error, string(res.ErrorKind))
	}
	r.span.End()

	o.metrics.recordRun(ctx, res.Status, res.ErrorKind)

	fields := []zap.Field{
		zap.String("status", string(res.Status)),
		zap.String("stage", string(res.Stage)),
		zap.Duration("duration", time.Since(r.start)),
	}
	if res.Action != "" {
		fields = append(fields, zap.String("action", string(res.Action)))
	}
	if res.Err != nil {
		fields = append(fields,
			zap.String("error_kind", string(res.ErrorKind)),
			zap.Error(res.Err),
		)
		o.log(ctx).Error("Pipeline run failed", fields...)
		return res, res.Err
	}
	if res.Reason != "" {
		fields = append(fields, zap.String("reason", res.Reason))
	}
	o.log(ctx).Info("Pipeline run completed", fields...)
	return res, nil
}

func (o *Orchestrator) log(ctx context.Context) *zap.Logger {
	return o.logger.With(logging.ContextFields(ctx)...)
}
