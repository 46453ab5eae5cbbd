package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrFetch indicates the conversation source could not be read.
var ErrFetch = errors.New("conversation source unreachable")

// Free-text input identifiers.
const (
	TextAuthorID     = "text_input_user"
	TextChannelID    = "text_input"
	TextChannelTitle = "Text Input"
)

// ChatSource delivers raw chat history and thread replies.
type ChatSource interface {
	// History returns top-level messages inside the window, in any order.
	History(ctx context.Context, w Window) ([]RawMessage, error)
	// Replies returns the messages of a thread. The root may be included.
	Replies(ctx context.Context, threadID string) ([]RawMessage, error)
	// Describe identifies the source.
	Describe() Source
}

// Standardizer converts raw sources into Conversations.
type Standardizer struct {
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// StandardizerOption configures a Standardizer.
type StandardizerOption func(*Standardizer)

// WithClock overrides the time source used for free-text messages.
func WithClock(now func() time.Time) StandardizerOption {
	return func(s *Standardizer) { s.now = now }
}

// WithIDGenerator overrides conversation ID generation.
func WithIDGenerator(f func() string) StandardizerOption {
	return func(s *Standardizer) { s.newID = f }
}

// NewStandardizer creates a Standardizer.
func NewStandardizer(logger *zap.Logger, opts ...StandardizerOption) *Standardizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Standardizer{
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromChat fetches history from src and standardizes it. Thread roots with
// replies are expanded once, their replies spliced right after them in
// chronological order. Any source failure wraps ErrFetch.
func (s *Standardizer) FromChat(ctx context.Context, src ChatSource, w Window) (*Conversation, error) {
	history, err := src.History(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("%w: history: %w", ErrFetch, err)
	}

	roots := selectWindow(history, w)

	b := newBuilder()
	expanded := make(map[string]bool)
	for _, raw := range roots {
		if b.emitted(raw.ID) {
			continue
		}

		var parent *int
		if raw.IsReply() {
			// A reply whose root is already present attaches to it; an orphan
			// reply becomes top-level.
			if idx, ok := b.indexOf(raw.ThreadID); ok {
				parent = &idx
			}
		}
		rootIdx := b.add(raw, parent)

		if !raw.IsThreadRoot() || expanded[raw.ID] {
			continue
		}
		expanded[raw.ID] = true

		replies, err := src.Replies(ctx, raw.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: replies for %s: %w", ErrFetch, raw.ID, err)
		}
		sortChronological(replies)
		for _, reply := range replies {
			if reply.ID == raw.ID || b.emitted(reply.ID) {
				continue
			}
			p := rootIdx
			b.add(reply, &p)
		}
	}

	conv := &Conversation{
		ID:       s.newID(),
		Source:   src.Describe(),
		Messages: b.messages,
	}
	conv.Recount()

	s.logger.Debug("Standardized chat conversation",
		zap.String("conversation_id", conv.ID),
		zap.String("channel", conv.Source.ChannelID),
		zap.Int("history", len(history)),
		zap.Int("messages", len(conv.Messages)),
		zap.Int("threads_expanded", len(expanded)),
	)
	return conv, nil
}

// FromText wraps free text as a single-message conversation. Blank text
// yields an empty conversation.
func (s *Standardizer) FromText(text, title string, metadata map[string]string) *Conversation {
	now := s.now().UTC()

	name := strings.TrimSpace(title)
	if name == "" {
		name = TextChannelTitle
	}
	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	if title != "" {
		meta["title"] = title
	}

	conv := &Conversation{
		ID: s.newID(),
		Source: Source{
			Kind:        SourceText,
			ChannelID:   TextChannelID,
			ChannelName: name,
			Metadata:    meta,
		},
		Messages: []Message{},
	}
	if strings.TrimSpace(text) != "" {
		conv.Messages = append(conv.Messages, Message{
			Index:      0,
			AuthorID:   TextAuthorID,
			Content:    text,
			Timestamp:  now,
			ExternalID: "text_input_" + strconv.FormatInt(now.Unix(), 10),
		})
	}
	conv.Recount()
	return conv
}

// selectWindow filters by time range, orders oldest-first and keeps the most
// recent Limit messages.
func selectWindow(history []RawMessage, w Window) []RawMessage {
	out := make([]RawMessage, 0, len(history))
	for _, m := range history {
		if w.Contains(m.Timestamp) {
			out = append(out, m)
		}
	}
	sortChronological(out)
	if w.Limit > 0 && len(out) > w.Limit {
		out = out[len(out)-w.Limit:]
	}
	return out
}

func sortChronological(msgs []RawMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

// builder assigns dense indexes as messages are appended.
type builder struct {
	messages []Message
	byID     map[string]int
}

func newBuilder() *builder {
	return &builder{messages: []Message{}, byID: make(map[string]int)}
}

func (b *builder) emitted(id string) bool {
	if id == "" {
		return false
	}
	_, ok := b.byID[id]
	return ok
}

func (b *builder) indexOf(id string) (int, bool) {
	idx, ok := b.byID[id]
	return idx, ok
}

func (b *builder) add(raw RawMessage, parent *int) int {
	idx := len(b.messages)
	b.messages = append(b.messages, Message{
		Index:         idx,
		ParentIndex:   parent,
		AuthorID:      raw.AuthorID,
		AuthorDisplay: raw.AuthorName,
		Content:       raw.Text,
		Timestamp:     raw.Timestamp,
		ExternalID:    raw.ID,
	})
	if raw.ID != "" {
		b.byID[raw.ID] = idx
	}
	return idx
}
