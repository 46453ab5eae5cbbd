package anonymize

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/archie/internal/conversation"
)

// Separator joins message contents in the batch sent to the oracle. The
// marker is split on with surrounding whitespace ignored.
const (
	markerPrefix    = "<<<MESSAGE_BREAK"
	separatorMarker = markerPrefix + ">>>"
	Separator       = "\n\n" + separatorMarker + "\n\n"
)

// AliasPrefix prefixes the placeholder given to each distinct author.
const AliasPrefix = "ALIAS_"

var (
	// ErrOracle indicates the anonymization oracle call failed.
	ErrOracle = errors.New("anonymization oracle failed")
	// ErrDistribute indicates the oracle output could not be mapped back onto messages.
	ErrDistribute = errors.New("anonymized content could not be distributed")
)

// Anonymizer masks personal data in text. Paragraph boundaries and the
// separator must survive the call.
type Anonymizer interface {
	Anonymize(ctx context.Context, text string) (string, error)
}

// Coordinator anonymizes conversations through an Anonymizer.
type Coordinator struct {
	oracle      Anonymizer
	concurrency int
	logger      *zap.Logger
}

// NewCoordinator creates a Coordinator running at most concurrency oracle
// calls at once.
func NewCoordinator(oracle Anonymizer, concurrency int, logger *zap.Logger) *Coordinator {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{oracle: oracle, concurrency: concurrency, logger: logger}
}

// ConversationError reports the failure of one conversation in a batch.
type ConversationError struct {
	ConversationID string
	Err            error
}

func (e *ConversationError) Error() string {
	return fmt.Sprintf("conversation %s: %v", e.ConversationID, e.Err)
}

func (e *ConversationError) Unwrap() error { return e.Err }

// BatchError aggregates per-conversation failures. Successful conversations
// are still returned alongside it.
type BatchError struct {
	Failures []*ConversationError
}

func (e *BatchError) Error() string {
	if len(e.Failures) == 1 {
		return "anonymization failed: " + e.Failures[0].Error()
	}
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("anonymization failed for %d conversations: %s", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Anonymize returns anonymized copies of convs in the same order. The inputs
// are never modified. When any conversation fails, its slot is nil and a
// *BatchError is returned together with the successful results.
func (c *Coordinator) Anonymize(ctx context.Context, convs ...*conversation.Conversation) ([]*conversation.Conversation, error) {
	results := make([]*conversation.Conversation, len(convs))
	if len(convs) == 0 {
		return results, nil
	}

	errs := make([]error, len(convs))
	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup

	for i, conv := range convs {
		wg.Add(1)
		go func(i int, conv *conversation.Conversation) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}

			results[i], errs[i] = c.anonymizeOne(ctx, conv)
		}(i, conv)
	}
	wg.Wait()

	var batch BatchError
	for i, err := range errs {
		if err == nil {
			continue
		}
		id := ""
		if convs[i] != nil {
			id = convs[i].ID
		}
		results[i] = nil
		batch.Failures = append(batch.Failures, &ConversationError{ConversationID: id, Err: err})
	}
	if len(batch.Failures) > 0 {
		return results, &batch
	}
	return results, nil
}

// AnonymizeOne anonymizes a single conversation.
func (c *Coordinator) AnonymizeOne(ctx context.Context, conv *conversation.Conversation) (*conversation.Conversation, error) {
	results, err := c.Anonymize(ctx, conv)
	if err != nil {
		var batch *BatchError
		if errors.As(err, &batch) && len(batch.Failures) == 1 {
			return nil, batch.Failures[0].Err
		}
		return nil, err
	}
	return results[0], nil
}

func (c *Coordinator) anonymizeOne(ctx context.Context, orig *conversation.Conversation) (*conversation.Conversation, error) {
	if orig == nil {
		return nil, errors.New("nil conversation")
	}
	conv := orig.Clone()

	if conv.IsAnonymized() {
		c.logger.Debug("Conversation already anonymized", zap.String("conversation_id", conv.ID))
		return conv, nil
	}
	if len(conv.Messages) == 0 {
		return conv, nil
	}

	batch := make([]string, len(conv.Messages))
	for i, m := range conv.Messages {
		batch[i] = escapeMarker(m.Content)
	}

	out, err := c.oracle.Anonymize(ctx, strings.Join(batch, Separator))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOracle, err)
	}

	parts := splitBatch(out)
	if len(parts) != len(conv.Messages) {
		c.logger.Warn("Anonymized part count mismatch",
			zap.String("conversation_id", conv.ID),
			zap.Int("messages", len(conv.Messages)),
			zap.Int("parts", len(parts)),
		)
	}
	if len(parts) < len(conv.Messages) {
		return nil, fmt.Errorf("%w: oracle returned %d parts for %d messages", ErrDistribute, len(parts), len(conv.Messages))
	}

	names := make(map[string]string)
	aliases := make(map[string]string)
	for i := range conv.Messages {
		m := &conv.Messages[i]
		alias, ok := aliases[m.AuthorID]
		if !ok {
			alias = AliasPrefix + strconv.Itoa(len(aliases)+1)
			aliases[m.AuthorID] = alias
		}
		if name := strings.TrimSpace(m.AuthorDisplay); name != "" && !strings.HasPrefix(name, AliasPrefix) {
			names[name] = alias
		}
		m.Content = parts[i]
		m.AuthorDisplay = alias
		m.IsAnonymized = true
	}
	maskKnownNames(conv, names)

	c.logger.Debug("Anonymized conversation",
		zap.String("conversation_id", conv.ID),
		zap.Int("messages", len(conv.Messages)),
		zap.Int("aliases", len(aliases)),
	)
	return conv, nil
}

// splitBatch splits oracle output on the separator marker, trimming the
// padding the oracle may have altered.
func splitBatch(out string) []string {
	raw := strings.Split(out, separatorMarker)
	parts := make([]string, len(raw))
	for i, p := range raw {
		parts[i] = unescapeMarker(strings.TrimSpace(p))
	}
	return parts
}

// escapeMarker follows every marker prefix in a message with "_", so no
// message can contain a full separator. The prefix never overlaps itself,
// which makes unescapeMarker an exact inverse.
func escapeMarker(s string) string {
	return strings.ReplaceAll(s, markerPrefix, markerPrefix+"_")
}

func unescapeMarker(s string) string {
	return strings.ReplaceAll(s, markerPrefix+"_", markerPrefix)
}

// maskKnownNames replaces remaining occurrences of participants' real
// display names with their aliases. A match counts only when it is not
// inside a longer word, with letters and digits of any script.
func maskKnownNames(conv *conversation.Conversation, names map[string]string) {
	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}
	// Longest first so "Jo Smith" is masked before "Jo".
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	for _, name := range ordered {
		re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(name))
		if err != nil {
			continue
		}
		for i := range conv.Messages {
			conv.Messages[i].Content = replaceWord(conv.Messages[i].Content, re, names[name])
		}
	}
}

func replaceWord(s string, re *regexp.Regexp, alias string) string {
	var b strings.Builder
	last := 0
	for _, loc := range re.FindAllStringIndex(s, -1) {
		if !atWordBoundary(s, loc[0], loc[1]) {
			continue
		}
		b.WriteString(s[last:loc[0]])
		b.WriteString(alias)
		last = loc[1]
	}
	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

func atWordBoundary(s string, start, end int) bool {
	if start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(s[:start]); isWordRune(r) {
			return false
		}
	}
	if end < len(s) {
		if r, _ := utf8.DecodeRuneInString(s[end:]); isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}
