package index

import (
	"path"
	"strings"

	"github.com/fyrsmithlabs/archie/internal/frontmatter"
	"github.com/fyrsmithlabs/archie/internal/knowledge"
)

// Document is one knowledge document read from the repository.
type Document struct {
	Path     string   `json:"path"`
	Title    string   `json:"title"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	// RawContent is the file as stored, header included.
	RawContent string `json:"-"`
	// Body is the content after the header block.
	Body string `json:"-"`
	// Header holds the parsed header fields. Empty when the header is
	// missing or malformed.
	Header  map[string]any `json:"-"`
	Summary string         `json:"summary,omitempty"`
}

// HasCategory reports whether the document can take part in matching.
func (d Document) HasCategory() bool {
	return d.Category != ""
}

// IsDocumentPath reports whether p names a knowledge document: a markdown
// file outside hidden directories that is not the root README.
func IsDocumentPath(p string) bool {
	if !strings.EqualFold(path.Ext(p), ".md") {
		return false
	}
	if strings.EqualFold(p, "README.md") {
		return false
	}
	for _, part := range strings.Split(p, "/") {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	return true
}

// categoryFromPath returns the top-level folder of p, or "" for root files.
func categoryFromPath(p string) string {
	dir, _, nested := strings.Cut(p, "/")
	if !nested {
		return ""
	}
	return dir
}

// parseDocument builds a Document from raw file content. The returned
// error reports a malformed header; the Document is usable either way.
func parseDocument(p, raw string) (Document, error) {
	header, body, err := frontmatter.Parse(raw)
	if err != nil {
		header = map[string]any{}
	}

	doc := Document{
		Path:       p,
		RawContent: raw,
		Body:       body,
		Header:     header,
	}

	o := outlineOf(body)
	doc.Summary = o.summary

	doc.Title = strings.TrimSpace(frontmatter.String(header, "title"))
	if doc.Title == "" {
		doc.Title = o.heading
	}
	if doc.Title == "" {
		doc.Title = titleFromFilename(p)
	}

	doc.Category = categoryFromPath(p)
	if doc.Category == "" {
		doc.Category = strings.ToLower(strings.TrimSpace(frontmatter.String(header, "category")))
	}

	doc.Tags = knowledge.NormalizeTags(frontmatter.Strings(header, "tags"))
	return doc, err
}

// titleFromFilename turns "db-connection-timeout.md" into
// "Db connection timeout".
func titleFromFilename(p string) string {
	name := strings.TrimSuffix(path.Base(p), path.Ext(p))
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
