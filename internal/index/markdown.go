package index

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// SummaryLength caps the plain-text summary derived from a document body.
const SummaryLength = 300

var (
	markdownOnce   sync.Once
	markdownParser goldmark.Markdown
)

func getMarkdownParser() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownParser = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdownParser
}

// outline holds what the index reads out of a markdown body.
type outline struct {
	heading string
	summary string
}

// outlineOf parses body and returns its first heading and the plain text
// of its paragraphs, capped at SummaryLength runes.
func outlineOf(body string) outline {
	if strings.TrimSpace(body) == "" {
		return outline{}
	}
	source := []byte(body)
	document := getMarkdownParser().Parser().Parse(text.NewReader(source))

	var o outline
	var summary strings.Builder
	_ = ast.Walk(document, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Heading:
			if o.heading == "" {
				o.heading = strings.TrimSpace(inlineText(n, source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph:
			if utf8.RuneCountInString(summary.String()) < SummaryLength {
				if summary.Len() > 0 {
					summary.WriteString(" ")
				}
				summary.WriteString(strings.TrimSpace(inlineText(n, source)))
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	o.summary = truncateRunes(summary.String(), SummaryLength)
	return o
}

// inlineText concatenates the text segments under node.
func inlineText(node ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteString(" ")
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.CodeSpan:
			for c := t.FirstChild(); c != nil; c = c.NextSibling() {
				if seg, ok := c.(*ast.Text); ok {
					b.Write(seg.Segment.Value(source))
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}
