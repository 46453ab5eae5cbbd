// Package render turns knowledge records into repository documents: a YAML
// header block followed by a markdown body built from a template.
package render

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/fyrsmithlabs/archie/internal/frontmatter"
	"github.com/fyrsmithlabs/archie/internal/knowledge"
)

// DateLayout formats created and last_updated.
const DateLayout = "2006-01-02"

// DefaultBodyTemplate renders a record body. It receives a BodyData.
const DefaultBodyTemplate = `# {{ .Title }}

{{ .Sections }}
{{ if .Rationale }}
## Why this matters

{{ .Rationale }}
{{ end }}
---

*Source: {{ .Source }}{{ if .SourceLink }} ({{ .SourceLink }}){{ end }} · {{ .MessageCount }} messages · {{ .ParticipantCount }} participants · generated {{ .Generated }}*
`

// Header is the document header block. Extra keeps fields written by
// people or other tools so updates do not drop them.
type Header struct {
	Title       string         `yaml:"title"`
	Category    string         `yaml:"category"`
	Tags        []string       `yaml:"tags"`
	Confidence  float64        `yaml:"confidence"`
	Created     string         `yaml:"created"`
	LastUpdated string         `yaml:"last_updated"`
	Source      string         `yaml:"source,omitempty"`
	SourceLink  string         `yaml:"source_link,omitempty"`
	Extra       map[string]any `yaml:",inline"`
}

// BodyData is the template input.
type BodyData struct {
	Title            string
	Category         string
	Sections         string
	Rationale        string
	Source           string
	SourceLink       string
	MessageCount     int
	ParticipantCount int
	Generated        string
}

// Renderer renders records into documents.
type Renderer struct {
	tmpl *template.Template
	now  func() time.Time
}

// Option configures a Renderer.
type Option func(*Renderer) error

// WithClock sets the time source for dates.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) error {
		r.now = now
		return nil
	}
}

// WithTemplate replaces the body template.
func WithTemplate(text string) Option {
	return func(r *Renderer) error {
		t, err := template.New("body").Option("missingkey=error").Parse(text)
		if err != nil {
			return fmt.Errorf("parsing body template: %w", err)
		}
		r.tmpl = t
		return nil
	}
}

// New creates a Renderer with the default template.
func New(opts ...Option) (*Renderer, error) {
	r := &Renderer{now: time.Now}
	if err := WithTemplate(DefaultBodyTemplate)(r); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Renderer) today() string {
	return r.now().UTC().Format(DateLayout)
}

// Body renders the markdown body of rec without a header.
func (r *Renderer) Body(rec *knowledge.Record) (string, error) {
	data := BodyData{
		Title:            rec.Title,
		Category:         rec.Category.Title(),
		Sections:         strings.TrimRight(rec.Body(), "\n"),
		Rationale:        strings.TrimSpace(rec.Rationale),
		Source:           rec.Provenance.SourceLabel(),
		SourceLink:       rec.Provenance.SourceLink(),
		MessageCount:     rec.Provenance.MessageCount,
		ParticipantCount: len(rec.Provenance.Participants),
		Generated:        r.today(),
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering body: %w", err)
	}
	return buf.String(), nil
}

// Render produces a complete new document for rec. category overrides the
// record category when the document lives in a different folder.
func (r *Renderer) Render(rec *knowledge.Record, category string) (string, error) {
	if category == "" {
		category = string(rec.Category)
	}
	body, err := r.Body(rec)
	if err != nil {
		return "", err
	}
	today := r.today()
	h := Header{
		Title:       rec.Title,
		Category:    category,
		Tags:        nonNilTags(rec.Tags),
		Confidence:  roundConfidence(rec.Confidence),
		Created:     today,
		LastUpdated: today,
		Source:      rec.Provenance.SourceLabel(),
		SourceLink:  rec.Provenance.SourceLink(),
	}
	return frontmatter.Compose(h, body)
}

// Update produces an updated document from the stored content and a new
// body. Title, created date and unknown header fields are kept; tags are
// merged and last_updated is set to today. A malformed stored header is
// replaced.
func (r *Renderer) Update(existing string, rec *knowledge.Record, body string) (string, error) {
	fields, _, err := frontmatter.Parse(existing)
	if err != nil {
		fields = map[string]any{}
	}
	today := r.today()

	h := Header{
		Title:       frontmatter.String(fields, "title"),
		Category:    frontmatter.String(fields, "category"),
		Tags:        knowledge.NormalizeTags(append(frontmatter.Strings(fields, "tags"), rec.Tags...)),
		Confidence:  roundConfidence(rec.Confidence),
		Created:     frontmatter.String(fields, "created"),
		LastUpdated: today,
		Source:      rec.Provenance.SourceLabel(),
		SourceLink:  rec.Provenance.SourceLink(),
		Extra:       map[string]any{},
	}
	if h.Title == "" {
		h.Title = rec.Title
	}
	if h.Category == "" {
		h.Category = string(rec.Category)
	}
	if h.Created == "" {
		h.Created = today
	}
	for k, v := range fields {
		if !knownHeaderKeys[k] {
			h.Extra[k] = v
		}
	}
	return frontmatter.Compose(h, body)
}

// StripHeader returns the body of a stored document.
func StripHeader(content string) string {
	_, body, _ := frontmatter.Parse(content)
	return body
}

var knownHeaderKeys = map[string]bool{
	"title": true, "category": true, "tags": true, "confidence": true,
	"created": true, "last_updated": true, "source": true, "source_link": true,
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func roundConfidence(c float64) float64 {
	return float64(int(c*100+0.5)) / 100
}
