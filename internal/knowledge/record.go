package knowledge

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fyrsmithlabs/archie/internal/conversation"
)

// Record is a knowledge item extracted from one conversation. Records are
// built once by the Extractor and not modified afterwards.
type Record struct {
	Category   Category   `json:"category"`
	Payload    Payload    `json:"payload"`
	Title      string     `json:"title"`
	Tags       []string   `json:"tags"`
	Confidence float64    `json:"confidence"`
	Rationale  string     `json:"rationale"`
	Provenance Provenance `json:"provenance"`
}

// Provenance identifies the conversation a record came from. Participants
// are aliases, never real names.
type Provenance struct {
	ConversationID string                  `json:"conversation_id"`
	SourceKind     conversation.SourceKind `json:"source_kind"`
	Workspace      string                  `json:"workspace,omitempty"`
	Channel        string                  `json:"channel,omitempty"`
	ChannelName    string                  `json:"channel_name,omitempty"`
	ThreadTS       string                  `json:"thread_ts,omitempty"`
	Permalink      string                  `json:"permalink,omitempty"`
	Participants   []string                `json:"participants"`
	MessageCount   int                     `json:"message_count"`
	ExtractedAt    time.Time               `json:"extracted_at"`
}

// SourceLink returns the best link back to the source conversation.
func (p Provenance) SourceLink() string {
	if p.Permalink != "" {
		return p.Permalink
	}
	if p.Workspace != "" && p.Channel != "" {
		return fmt.Sprintf("https://%s.slack.com/archives/%s", p.Workspace, p.Channel)
	}
	return ""
}

// SourceLabel describes the source for humans.
func (p Provenance) SourceLabel() string {
	switch {
	case p.ChannelName != "":
		return p.ChannelName
	case p.Channel != "":
		return "#" + p.Channel
	default:
		return string(p.SourceKind)
	}
}

// Slug returns the title slug used for file names.
func (r *Record) Slug() string {
	return Slug(r.Title)
}

// SuggestedPath returns category/slug.md.
func (r *Record) SuggestedPath() string {
	return SuggestedPath(r.Category, r.Title)
}

// Body returns the payload rendered as markdown sections.
func (r *Record) Body() string {
	if r.Payload == nil {
		return ""
	}
	return Markdown(r.Payload)
}

// Extraction is what an extraction oracle returns for one category.
type Extraction struct {
	Title      string
	Tags       []string
	Confidence float64
	Rationale  string
	Payload    Payload
}

// Envelope is the JSON shape requested from extraction oracles; Fields
// holds the category payload.
type Envelope[P Payload] struct {
	Title      string   `json:"title" jsonschema:"description=Short descriptive document title"`
	Tags       []string `json:"tags" jsonschema:"description=Lowercase hyphenated topic tags"`
	Confidence float64  `json:"confidence" jsonschema:"description=Confidence from 0 to 1 that this is reusable knowledge"`
	Rationale  string   `json:"rationale" jsonschema:"description=Why this conversation is worth documenting"`
	Fields     P        `json:"fields"`
}

// NewEnvelope returns a pointer to the envelope type for c, for schema
// generation.
func NewEnvelope(c Category) (any, error) {
	switch c {
	case CategoryTroubleshooting:
		return &Envelope[Troubleshooting]{}, nil
	case CategoryProcess:
		return &Envelope[Process]{}, nil
	case CategoryDecision:
		return &Envelope[Decision]{}, nil
	case CategoryReference:
		return &Envelope[Reference]{}, nil
	case CategoryGeneral:
		return &Envelope[General]{}, nil
	}
	return nil, fmt.Errorf("unrecognized category %q", c)
}

// DecodeExtraction decodes an envelope for category c.
func DecodeExtraction(c Category, data []byte) (*Extraction, error) {
	var raw struct {
		Title      string          `json:"title"`
		Tags       []string        `json:"tags"`
		Confidence float64         `json:"confidence"`
		Rationale  string          `json:"rationale"`
		Fields     json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding extraction: %w", err)
	}
	if len(raw.Fields) == 0 || string(raw.Fields) == "null" {
		return nil, fmt.Errorf("extraction has no fields")
	}
	payload, err := DecodePayload(c, raw.Fields)
	if err != nil {
		return nil, err
	}
	return &Extraction{
		Title:      raw.Title,
		Tags:       raw.Tags,
		Confidence: raw.Confidence,
		Rationale:  raw.Rationale,
		Payload:    payload,
	}, nil
}

var (
	tagSeparators = regexp.MustCompile(`[\s_]+`)
	tagInvalid    = regexp.MustCompile(`[^a-z0-9-]`)
	dashRuns      = regexp.MustCompile(`-{2,}`)
	slugInvalid   = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeTag lowercases, hyphenates and strips a tag. Returns "" when
// nothing usable remains.
func NormalizeTag(tag string) string {
	t := strings.ToLower(strings.TrimSpace(tag))
	t = strings.TrimPrefix(t, "#")
	t = tagSeparators.ReplaceAllString(t, "-")
	t = tagInvalid.ReplaceAllString(t, "")
	t = dashRuns.ReplaceAllString(t, "-")
	return strings.Trim(t, "-")
}

// NormalizeTags normalizes, deduplicates and drops empty tags, keeping
// first-seen order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		t := NormalizeTag(tag)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Slug lowercases s and collapses runs of other characters into single
// hyphens.
func Slug(s string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// SuggestedPath returns the repository path for a new document.
func SuggestedPath(c Category, title string) string {
	slug := Slug(title)
	if slug == "" {
		slug = "untitled"
	}
	return string(c) + "/" + slug + ".md"
}
