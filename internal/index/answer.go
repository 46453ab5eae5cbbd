package index

import "context"

// NoAnswer is the reply when the knowledge base does not cover a question.
const NoAnswer = "I don't have information about this in the knowledge base."

// Source is a document handed to an Answerer as context.
type Source struct {
	Path     string
	Title    string
	Category string
	Content  string
}

// SourceOf returns d as answer context.
func SourceOf(d Document) Source {
	return Source{Path: d.Path, Title: d.Title, Category: d.Category, Content: d.Body}
}

// Answerer answers a question using only the given documents. It replies
// with NoAnswer when they do not cover the question.
type Answerer interface {
	Answer(ctx context.Context, question string, sources []Source) (string, error)
}
