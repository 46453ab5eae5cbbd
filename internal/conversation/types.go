package conversation

import (
	"fmt"
	"strings"
	"time"
)

// SourceKind identifies where a conversation came from.
type SourceKind string

const (
	// SourceChat is live chat history fetched from an API.
	SourceChat SourceKind = "chat"
	// SourceExport is chat history read from an export file.
	SourceExport SourceKind = "export"
	// SourceText is a single block of free text.
	SourceText SourceKind = "text"
)

// Source describes the origin of a conversation.
type Source struct {
	Kind        SourceKind        `json:"kind"`
	Workspace   string            `json:"workspace,omitempty"`
	ChannelID   string            `json:"channel_id,omitempty"`
	ChannelName string            `json:"channel_name,omitempty"`
	ThreadTS    string            `json:"thread_ts,omitempty"`
	Permalink   string            `json:"permalink,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Message is one entry of a standardized conversation.
type Message struct {
	// Index is the dense zero-based position in the conversation.
	Index int `json:"index"`
	// ParentIndex points at the thread root for replies; nil for top-level messages.
	ParentIndex *int `json:"parent_index,omitempty"`

	AuthorID string `json:"author_id"`
	// AuthorDisplay starts as the real name (or empty) and is replaced by an alias.
	AuthorDisplay string    `json:"author_display,omitempty"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
	IsAnonymized  bool      `json:"is_anonymized"`

	// ExternalID is the source's identifier (e.g. Slack ts).
	ExternalID string `json:"external_id,omitempty"`
}

// IsReply reports whether the message belongs to a thread under another message.
func (m Message) IsReply() bool {
	return m.ParentIndex != nil
}

// Conversation is an ordered, thread-aware sequence of messages.
type Conversation struct {
	ID       string    `json:"id"`
	Source   Source    `json:"source"`
	Messages []Message `json:"messages"`

	// Derived from Messages by Recount.
	ParticipantCount int       `json:"participant_count"`
	CreatedAt        time.Time `json:"created_at"`
	LastActivityAt   time.Time `json:"last_activity_at"`
}

// Recount refreshes the derived fields from the message list.
func (c *Conversation) Recount() {
	seen := make(map[string]struct{}, len(c.Messages))
	for _, m := range c.Messages {
		seen[m.AuthorID] = struct{}{}
	}
	c.ParticipantCount = len(seen)
	c.CreatedAt = time.Time{}
	c.LastActivityAt = time.Time{}
	if len(c.Messages) > 0 {
		c.CreatedAt = c.Messages[0].Timestamp
		c.LastActivityAt = c.Messages[len(c.Messages)-1].Timestamp
	}
}

// Clone returns a deep copy.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	if c.Source.Metadata != nil {
		out.Source.Metadata = make(map[string]string, len(c.Source.Metadata))
		for k, v := range c.Source.Metadata {
			out.Source.Metadata[k] = v
		}
	}
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		for i, m := range c.Messages {
			if m.ParentIndex != nil {
				p := *m.ParentIndex
				m.ParentIndex = &p
			}
			out.Messages[i] = m
		}
	}
	return &out
}

// IsFreeText reports whether the conversation came from free text.
func (c *Conversation) IsFreeText() bool {
	return c.Source.Kind == SourceText
}

// IsAnonymized reports whether every message has been anonymized.
// An empty conversation is not considered anonymized.
func (c *Conversation) IsAnonymized() bool {
	if len(c.Messages) == 0 {
		return false
	}
	for _, m := range c.Messages {
		if !m.IsAnonymized {
			return false
		}
	}
	return true
}

// TotalContentLength returns the summed length of trimmed message contents in runes.
func (c *Conversation) TotalContentLength() int {
	n := 0
	for _, m := range c.Messages {
		n += len([]rune(strings.TrimSpace(m.Content)))
	}
	return n
}

// Participants returns display names (or author IDs when no display name is
// set) in first-appearance order.
func (c *Conversation) Participants() []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, m := range c.Messages {
		name := m.AuthorDisplay
		if name == "" {
			name = m.AuthorID
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// Transcript renders the conversation as one line per message, replies
// indented under their root.
func (c *Conversation) Transcript() string {
	var b strings.Builder
	for _, m := range c.Messages {
		name := m.AuthorDisplay
		if name == "" {
			name = m.AuthorID
		}
		if m.IsReply() {
			b.WriteString("  ↳ ")
		}
		fmt.Fprintf(&b, "[%d] %s: %s\n", m.Index, name, m.Content)
	}
	return b.String()
}

// Validate checks the indexing invariants: indexes are contiguous from
// zero and every parent index refers to an earlier message.
func (c *Conversation) Validate() error {
	for i, m := range c.Messages {
		if m.Index != i {
			return fmt.Errorf("message %d has index %d", i, m.Index)
		}
		if m.ParentIndex != nil && (*m.ParentIndex < 0 || *m.ParentIndex >= m.Index) {
			return fmt.Errorf("message %d has invalid parent index %d", i, *m.ParentIndex)
		}
	}
	return nil
}

// RawMessage is a message as delivered by a chat source, before indexing.
type RawMessage struct {
	ID         string
	AuthorID   string
	AuthorName string
	Text       string
	Timestamp  time.Time
	// ThreadID is the ID of the thread root; equal to ID for a root, empty
	// outside threads.
	ThreadID   string
	ReplyCount int
}

// IsThreadRoot reports whether the message opens a thread with replies.
func (r RawMessage) IsThreadRoot() bool {
	return r.ReplyCount > 0 && (r.ThreadID == "" || r.ThreadID == r.ID)
}

// IsReply reports whether the message is a reply inside another message's thread.
func (r RawMessage) IsReply() bool {
	return r.ThreadID != "" && r.ThreadID != r.ID
}

// Window restricts which history messages are standardized.
// Zero values mean unbounded.
type Window struct {
	From  time.Time
	To    time.Time
	Limit int
}

// Contains reports whether t falls inside the time range (inclusive).
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}
