package publish

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/archie/internal/repohost"
)

var (
	// ErrInvalidOperation indicates a malformed deletion or batch request.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrNothingApplied indicates every operation of a batch failed.
	ErrNothingApplied = errors.New("no batch operation succeeded")
)

// Op is the kind of a batch operation.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpAppend Op = "append"
	OpDelete Op = "delete"
)

// Operation is one edit of a batch. Content is the full document for
// create and update and the text to add for append.
type Operation struct {
	Action  Op     `json:"action" yaml:"action"`
	Path    string `json:"path" yaml:"path"`
	Title   string `json:"title,omitempty" yaml:"title,omitempty"`
	Content string `json:"content,omitempty" yaml:"content,omitempty"`
}

func (op Operation) label() string {
	if op.Title != "" {
		return op.Title
	}
	return op.Path
}

// Batch is a set of edits published as one change request.
type Batch struct {
	Title      string      `json:"title" yaml:"title"`
	Summary    string      `json:"summary,omitempty" yaml:"summary,omitempty"`
	SourceLink string      `json:"source,omitempty" yaml:"source,omitempty"`
	Confidence float64     `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Operations []Operation `json:"operations" yaml:"operations"`
}

// OperationResult is the outcome of one batch operation.
type OperationResult struct {
	Operation
	Commit string `json:"commit,omitempty"`
	Error  string `json:"error,omitempty"`
}

// BatchResult is a published batch.
type BatchResult struct {
	Result
	Operations []OperationResult `json:"operations"`
}

// Deletion asks for a document to be removed.
type Deletion struct {
	Path   string
	Title  string
	Reason string
}

// Delete proposes removing a document from the base branch. The document
// must exist there.
func (p *Publisher) Delete(ctx context.Context, d Deletion) (*Result, error) {
	d.Path = repohost.CleanPath(d.Path)
	if d.Path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidOperation)
	}
	if d.Title == "" {
		d.Title = strings.TrimSuffix(path.Base(d.Path), path.Ext(d.Path))
	}
	if _, err := p.host.ReadFile(ctx, p.opts.BaseBranch, d.Path); err != nil {
		return nil, fmt.Errorf("reading %s: %w", d.Path, err)
	}

	return p.run(ctx, change{
		name:    "delete-" + d.Title,
		subject: d.Path,
		apply: func(ctx context.Context, branch string) error {
			if err := p.host.DeleteFile(ctx, branch, d.Path, "Delete KB document: "+d.Title); err != nil {
				return fmt.Errorf("deleting %s: %w", d.Path, err)
			}
			return nil
		},
		request: func() (string, string) {
			return "Delete KB: " + d.Title, deletionBody(d)
		},
		labels: func() []string {
			return uniqueLabels(p.opts.Labels, string(OpDelete), categoryOf(d.Path))
		},
	})
}

func deletionBody(d Deletion) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Deletion Request\n\nDeleting KB document: **%s**\n\n", d.Title)
	if d.Reason != "" {
		fmt.Fprintf(&b, "**Reason**: %s\n\n", d.Reason)
	}
	fmt.Fprintf(&b, "**File Path**: `%s`\n\n", d.Path)
	b.WriteString("---\n\n")
	b.WriteString("*This deletion was requested through archie.*\n\n")
	b.WriteString("Please confirm the document is obsolete before merging.\n")
	return b.String()
}

// Batch applies every operation on one branch and opens a single change
// request. A failed operation is recorded and the rest still run; when
// none succeeds no change request is opened and ErrNothingApplied is
// returned.
func (p *Publisher) Batch(ctx context.Context, batch Batch) (*BatchResult, error) {
	if strings.TrimSpace(batch.Title) == "" {
		return nil, fmt.Errorf("%w: batch title is required", ErrInvalidOperation)
	}
	if len(batch.Operations) == 0 {
		return nil, fmt.Errorf("%w: batch has no operations", ErrInvalidOperation)
	}
	batch.Operations = append([]Operation(nil), batch.Operations...)
	for i := range batch.Operations {
		op := &batch.Operations[i]
		op.Path = repohost.CleanPath(op.Path)
		switch op.Action {
		case OpCreate, OpUpdate, OpAppend, OpDelete:
		default:
			return nil, fmt.Errorf("%w: operation %d has unknown action %q", ErrInvalidOperation, i+1, op.Action)
		}
		if op.Path == "" {
			return nil, fmt.Errorf("%w: operation %d has no path", ErrInvalidOperation, i+1)
		}
	}

	var outcomes []OperationResult
	res, err := p.run(ctx, change{
		name:    batch.Title,
		subject: fmt.Sprintf("%d operations", len(batch.Operations)),
		apply: func(ctx context.Context, branch string) error {
			outcomes = outcomes[:0]
			var errs []error
			for i, op := range batch.Operations {
				commit, err := p.applyOperation(ctx, branch, op)
				if err != nil {
					if ctxErr := ctx.Err(); ctxErr != nil {
						return ctxErr
					}
					p.logger.Error("Batch operation failed",
						zap.Int("operation", i+1),
						zap.String("action", string(op.Action)),
						zap.String("path", op.Path),
						zap.Error(err),
					)
					errs = append(errs, err)
					outcomes = append(outcomes, OperationResult{Operation: op, Error: err.Error()})
					continue
				}
				outcomes = append(outcomes, OperationResult{Operation: op, Commit: commit})
			}
			if len(errs) == len(batch.Operations) {
				return fmt.Errorf("%w: %w", ErrNothingApplied, errors.Join(errs...))
			}
			return nil
		},
		request: func() (string, string) {
			return "KB Batch: " + batch.Title, p.batchBody(batch, outcomes)
		},
		labels: func() []string { return batchLabels(p.opts.Labels, batch.Operations) },
	})
	if err != nil {
		return nil, err
	}
	return &BatchResult{Result: *res, Operations: outcomes}, nil
}

// applyOperation performs op on branch and returns its commit message.
func (p *Publisher) applyOperation(ctx context.Context, branch string, op Operation) (string, error) {
	existing, readErr := p.host.ReadFile(ctx, branch, op.Path)
	if readErr != nil && !errors.Is(readErr, repohost.ErrNotFound) {
		return "", fmt.Errorf("reading %s: %w", op.Path, readErr)
	}
	exists := readErr == nil

	var message, content string
	switch op.Action {
	case OpCreate:
		if exists {
			return "", fmt.Errorf("%s is already in the repository", op.Path)
		}
		if err := p.ensureFolder(ctx, branch, path.Dir(op.Path)); err != nil {
			return "", err
		}
		message, content = "Create: "+op.label(), op.Content
	case OpUpdate:
		if !exists {
			return "", fmt.Errorf("reading %s: %w", op.Path, readErr)
		}
		message, content = "Update: "+op.label(), op.Content
	case OpAppend:
		if !exists {
			return "", fmt.Errorf("reading %s: %w", op.Path, readErr)
		}
		message = "Append to: " + op.label()
		content = strings.TrimRight(existing, " \t\n") + "\n\n" + strings.TrimSpace(op.Content) + "\n"
	case OpDelete:
		message = "Delete: " + op.label()
		if err := p.host.DeleteFile(ctx, branch, op.Path, message); err != nil {
			return "", fmt.Errorf("deleting %s: %w", op.Path, err)
		}
		return message, nil
	}
	if err := p.host.WriteFile(ctx, branch, op.Path, content, message); err != nil {
		return "", fmt.Errorf("writing %s: %w", op.Path, err)
	}
	return message, nil
}

func (p *Publisher) batchBody(batch Batch, outcomes []OperationResult) string {
	var b strings.Builder
	if batch.Summary != "" {
		fmt.Fprintf(&b, "## Summary\n\n%s\n\n", batch.Summary)
	}

	fmt.Fprintf(&b, "## Operations Performed (%d)\n\n", len(outcomes))
	for i, o := range outcomes {
		fmt.Fprintf(&b, "%d. **%s** `%s`", i+1, strings.ToUpper(string(o.Action)), o.Path)
		if o.Title != "" {
			fmt.Fprintf(&b, " - %s", o.Title)
		}
		if o.Error != "" {
			b.WriteString(" (failed)")
		}
		b.WriteString("\n")
	}

	b.WriteString("\n## Metadata\n\n")
	if batch.SourceLink != "" {
		fmt.Fprintf(&b, "**Source**: %s\n", batch.SourceLink)
	}
	if batch.Confidence > 0 {
		fmt.Fprintf(&b, "**AI Confidence**: %d%%\n", int(batch.Confidence*100))
	}
	fmt.Fprintf(&b, "**Generated**: %s UTC\n", p.now().UTC().Format("2006-01-02 15:04:05"))

	b.WriteString("\n---\n\n")
	b.WriteString("*This batch of knowledge base changes was generated automatically by archie.*\n\n")
	b.WriteString("Please review all changes for accuracy before merging.\n")
	return b.String()
}

// batchLabels returns base labels, "batch-operation", each action and the
// category folder of each path, deduplicated in that order.
func batchLabels(base []string, ops []Operation) []string {
	extra := []string{"batch-operation"}
	for _, op := range ops {
		extra = append(extra, string(op.Action))
	}
	for _, op := range ops {
		extra = append(extra, categoryOf(op.Path))
	}
	return uniqueLabels(base, extra...)
}

// categoryOf returns the top-level folder of p, or "" for a root file.
func categoryOf(p string) string {
	dir, _, nested := strings.Cut(repohost.CleanPath(p), "/")
	if !nested {
		return ""
	}
	return dir
}
