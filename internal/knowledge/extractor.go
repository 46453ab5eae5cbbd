package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/archie/internal/conversation"
)

var (
	// ErrClassification indicates the classifier failed or returned an unknown category.
	ErrClassification = errors.New("classification failed")
	// ErrExtraction indicates the extractor failed or returned an empty or invalid record.
	ErrExtraction = errors.New("extraction failed")
)

// DefaultMinContentChars is the content length below which a conversation
// is not extractable.
const DefaultMinContentChars = 50

// Not-extractable reasons.
const (
	ReasonNoMessages          = "no messages found"
	ReasonInsufficientContent = "insufficient content"
)

// InsufficientContentMessage is the user-facing explanation for a
// conversation that was too small to extract from.
const InsufficientContentMessage = "Conversation has insufficient content for KB extraction. Try a longer time range or more messages."

// Classifier maps conversation text to a category label.
type Classifier interface {
	Classify(ctx context.Context, text string) (string, error)
}

// ExtractContext is passed to extraction oracles alongside the transcript.
type ExtractContext struct {
	SourceKind   conversation.SourceKind
	Channel      string
	Title        string
	Participants []string
	MessageCount int
}

// PayloadExtractor extracts a category-specific record from conversation text.
type PayloadExtractor interface {
	Extract(ctx context.Context, category Category, text string, ec ExtractContext) (*Extraction, error)
}

// Outcome is the result of Extract. When Extractable is false, Record is
// nil and Reason explains why.
type Outcome struct {
	Record      *Record
	Extractable bool
	Reason      string
	Detail      string
}

// Extractor turns anonymized conversations into records. It performs no
// retries.
type Extractor struct {
	classifier Classifier
	extractor  PayloadExtractor
	minChars   int
	logger     *zap.Logger
	now        func() time.Time
}

// NewExtractor creates an Extractor. minChars <= 0 uses DefaultMinContentChars.
func NewExtractor(classifier Classifier, extractor PayloadExtractor, minChars int, logger *zap.Logger) *Extractor {
	if minChars <= 0 {
		minChars = DefaultMinContentChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		classifier: classifier,
		extractor:  extractor,
		minChars:   minChars,
		logger:     logger,
		now:        time.Now,
	}
}

// Extract classifies conv and extracts a record for its category.
//
// Conversations that are empty, shorter than the minimum content length or,
// outside free text, have fewer than two messages are reported through
// Outcome rather than an error. Failures wrap ErrClassification or
// ErrExtraction.
func (e *Extractor) Extract(ctx context.Context, conv *conversation.Conversation) (Outcome, error) {
	if reason, detail, ok := e.precheck(conv); !ok {
		e.logger.Info("Conversation not extractable",
			zap.String("conversation_id", conv.ID),
			zap.String("reason", reason),
			zap.Int("messages", len(conv.Messages)),
			zap.Int("content_length", conv.TotalContentLength()),
		)
		return Outcome{Reason: reason, Detail: detail}, nil
	}

	text := conv.Transcript()

	label, err := e.classifier.Classify(ctx, text)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrClassification, err)
	}
	category, err := ParseCategory(label)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrClassification, err)
	}

	participants := conv.Participants()
	ec := ExtractContext{
		SourceKind:   conv.Source.Kind,
		Channel:      conv.Source.ChannelName,
		Title:        conv.Source.Metadata["title"],
		Participants: participants,
		MessageCount: len(conv.Messages),
	}
	if ec.Channel == "" {
		ec.Channel = conv.Source.ChannelID
	}

	ext, err := e.extractor.Extract(ctx, category, text, ec)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	if err := checkExtraction(category, ext); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	record := &Record{
		Category:   category,
		Payload:    ext.Payload,
		Title:      strings.TrimSpace(ext.Title),
		Tags:       NormalizeTags(ext.Tags),
		Confidence: clamp01(ext.Confidence),
		Rationale:  strings.TrimSpace(ext.Rationale),
		Provenance: Provenance{
			ConversationID: conv.ID,
			SourceKind:     conv.Source.Kind,
			Workspace:      conv.Source.Workspace,
			Channel:        conv.Source.ChannelID,
			ChannelName:    conv.Source.ChannelName,
			ThreadTS:       conv.Source.ThreadTS,
			Permalink:      conv.Source.Permalink,
			Participants:   participants,
			MessageCount:   len(conv.Messages),
			ExtractedAt:    e.now().UTC(),
		},
	}

	e.logger.Info("Extracted knowledge record",
		zap.String("conversation_id", conv.ID),
		zap.String("category", string(category)),
		zap.Int("tags", len(record.Tags)),
		zap.Float64("confidence", record.Confidence),
	)
	return Outcome{Record: record, Extractable: true}, nil
}

func (e *Extractor) precheck(conv *conversation.Conversation) (reason, detail string, ok bool) {
	switch {
	case len(conv.Messages) == 0:
		return ReasonNoMessages, "conversation has no messages", false
	case conv.TotalContentLength() < e.minChars:
		return ReasonInsufficientContent, fmt.Sprintf("content length %d is below the minimum of %d characters", conv.TotalContentLength(), e.minChars), false
	case len(conv.Messages) < 2 && !conv.IsFreeText():
		return ReasonInsufficientContent, "chat conversations need at least two messages", false
	}
	return "", "", true
}

func checkExtraction(category Category, ext *Extraction) error {
	if ext == nil || ext.Payload == nil {
		return errors.New("empty result")
	}
	if ext.Payload.Category() != category {
		return fmt.Errorf("payload category %s does not match %s", ext.Payload.Category(), category)
	}
	if strings.TrimSpace(ext.Title) == "" {
		return errors.New("missing title")
	}
	if err := ext.Payload.Validate(); err != nil {
		return err
	}
	return nil
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
