// Package publish writes rendered documents to the repository through a
// change-request workflow. Deletions and batches of edits go through the
// same workflow.
//
// Each attempt creates a working branch, makes sure the category folder
// exists, writes the document and opens a change request. When a branch
// or change request name is already taken the next attempt appends a
// numeric suffix (-2, -3, ...). Attempts are strictly sequential.
package publish

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/archie/internal/knowledge"
	"github.com/fyrsmithlabs/archie/internal/matching"
	"github.com/fyrsmithlabs/archie/internal/render"
	"github.com/fyrsmithlabs/archie/internal/repohost"
)

// ErrNamesExhausted indicates every candidate branch name was taken.
var ErrNamesExhausted = errors.New("all branch names taken")

// Defaults.
const (
	DefaultMaxAttempts     = 5
	DefaultBranchPrefix    = "kb/"
	DefaultBranchMaxLength = 50
	placeholderFile        = ".gitkeep"
)

// Merger folds new knowledge into an existing document body.
type Merger interface {
	Merge(ctx context.Context, existingBody string, rec *knowledge.Record) (string, error)
}

// Options configures a Publisher.
type Options struct {
	// BaseBranch is where working branches start and change requests
	// target. Defaults to the host's default branch.
	BaseBranch      string
	BranchPrefix    string
	BranchMaxLength int
	MaxAttempts     int
	// Labels are applied to every change request in addition to the
	// action and category labels.
	Labels []string
}

// Document is a rendered document ready to publish.
type Document struct {
	Path     string
	Title    string
	Category string
	Tags     []string
	Action   matching.Action
	Content  string
	// Merged is true when an UPDATE body came from the Merger.
	Merged     bool
	Rationale  string
	Confidence float64
	SourceLink string
	Source     string
}

// Result identifies a published change request.
type Result struct {
	ChangeRequestID  int    `json:"change_request_id"`
	ChangeRequestURL string `json:"change_request_url"`
	BranchName       string `json:"branch_name"`
	Attempts         int    `json:"attempts"`
}

// Publisher renders and publishes documents.
type Publisher struct {
	host     repohost.Host
	renderer *render.Renderer
	merger   Merger
	opts     Options
	logger   *zap.Logger
	now      func() time.Time

	labelsMu sync.Mutex
	labels   map[string]bool
}

// New creates a Publisher. merger may be nil, in which case updates are
// regenerated from the template.
func New(host repohost.Host, renderer *render.Renderer, merger Merger, opts Options, logger *zap.Logger) *Publisher {
	if opts.BaseBranch == "" {
		opts.BaseBranch = host.Info().DefaultBranch
	}
	if opts.BranchPrefix == "" {
		opts.BranchPrefix = DefaultBranchPrefix
	}
	if opts.BranchMaxLength <= 0 {
		opts.BranchMaxLength = DefaultBranchMaxLength
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		host:     host,
		renderer: renderer,
		merger:   merger,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Prepare renders the document a decision calls for. UPDATE reads the
// stored document and asks the Merger to fold rec into it; if reading or
// merging fails the body is regenerated from the template instead.
func (p *Publisher) Prepare(ctx context.Context, rec *knowledge.Record, d *matching.Decision) (*Document, error) {
	if d.Action == matching.ActionIgnore {
		return nil, fmt.Errorf("nothing to publish for %s", d.Action)
	}
	doc := &Document{
		Path:       repohost.CleanPath(d.TargetPath),
		Title:      rec.Title,
		Category:   d.Category,
		Tags:       rec.Tags,
		Action:     d.Action,
		Rationale:  firstNonEmpty(d.Rationale, rec.Rationale),
		Confidence: rec.Confidence,
		SourceLink: rec.Provenance.SourceLink(),
		Source:     rec.Provenance.SourceLabel(),
	}
	if doc.Path == "" {
		doc.Path = rec.SuggestedPath()
	}
	if doc.Category == "" {
		doc.Category = string(rec.Category)
	}

	if d.Action == matching.ActionCreate {
		content, err := p.renderer.Render(rec, doc.Category)
		if err != nil {
			return nil, err
		}
		doc.Content = content
		return doc, nil
	}

	if d.TargetTitle != "" {
		doc.Title = d.TargetTitle
	}
	content, merged, err := p.update(ctx, rec, doc.Path, doc.Category)
	if err != nil {
		return nil, err
	}
	doc.Content = content
	doc.Merged = merged
	return doc, nil
}

func (p *Publisher) update(ctx context.Context, rec *knowledge.Record, docPath, category string) (string, bool, error) {
	existing, err := p.host.ReadFile(ctx, p.opts.BaseBranch, docPath)
	if err != nil {
		p.logger.Warn("Existing document unreadable, regenerating from template",
			zap.String("path", docPath),
			zap.Error(err),
		)
		content, err := p.renderer.Render(rec, category)
		return content, false, err
	}

	if p.merger != nil {
		body, err := p.merger.Merge(ctx, render.StripHeader(existing), rec)
		if err == nil && strings.TrimSpace(body) != "" {
			content, err := p.renderer.Update(existing, rec, body)
			return content, true, err
		}
		if err == nil {
			err = errors.New("merge returned empty body")
		}
		p.logger.Warn("Document merge failed, regenerating from template",
			zap.String("path", docPath),
			zap.Error(err),
		)
	}

	body, err := p.renderer.Body(rec)
	if err != nil {
		return "", false, err
	}
	content, err := p.renderer.Update(existing, rec, body)
	return content, false, err
}

// Publish runs the branch/write/change-request workflow, retrying with a
// new branch name while names are taken. At most MaxAttempts are made.
func (p *Publisher) Publish(ctx context.Context, doc *Document) (*Result, error) {
	return p.run(ctx, change{
		name:    doc.Title,
		subject: doc.Path,
		apply: func(ctx context.Context, branch string) error {
			if err := p.ensureFolder(ctx, branch, path.Dir(doc.Path)); err != nil {
				return err
			}
			if err := p.host.WriteFile(ctx, branch, doc.Path, doc.Content, CommitMessage(doc)); err != nil {
				return fmt.Errorf("writing %s: %w", doc.Path, err)
			}
			return nil
		},
		request: func() (string, string) {
			return CommitMessage(doc), p.ChangeRequestBody(doc)
		},
		labels: func() []string { return Labels(p.opts.Labels, doc) },
	})
}

// change is one branch worth of repository edits.
type change struct {
	// name seeds the branch name.
	name    string
	subject string
	// apply edits the freshly created branch. It runs again on every
	// attempt, each time on a new branch.
	apply   func(ctx context.Context, branch string) error
	request func() (title, body string)
	labels  func() []string
}

// run creates a branch for c, applies it and opens a change request,
// appending -2, -3, ... to the branch name while names are taken.
func (p *Publisher) run(ctx context.Context, c change) (*Result, error) {
	base := BranchName(p.opts.BranchPrefix, c.name, p.opts.BranchMaxLength)

	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		branch := base
		if attempt > 1 {
			branch = fmt.Sprintf("%s-%d", base, attempt)
		}

		cr, err := p.attempt(ctx, branch, c)
		if err == nil {
			p.applyLabels(ctx, cr.ID, c.labels())
			p.logger.Info("Published document",
				zap.String("path", c.subject),
				zap.String("branch", branch),
				zap.Int("attempt", attempt),
				zap.String("url", cr.URL),
			)
			return &Result{
				ChangeRequestID:  cr.ID,
				ChangeRequestURL: cr.URL,
				BranchName:       branch,
				Attempts:         attempt,
			}, nil
		}
		if !errors.Is(err, repohost.ErrAlreadyExists) {
			p.logger.Error("Publish attempt failed",
				zap.String("branch", branch),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return nil, err
		}
		p.logger.Info("Branch name taken, retrying with next suffix",
			zap.String("branch", branch),
			zap.Int("attempt", attempt),
		)
	}
	return nil, fmt.Errorf("%w: %d attempts starting at %q", ErrNamesExhausted, p.opts.MaxAttempts, base)
}

func (p *Publisher) attempt(ctx context.Context, branch string, c change) (*repohost.ChangeRequestResult, error) {
	if err := p.host.CreateBranch(ctx, branch, p.opts.BaseBranch); err != nil {
		return nil, fmt.Errorf("creating branch: %w", err)
	}
	if err := c.apply(ctx, branch); err != nil {
		return nil, err
	}
	title, body := c.request()
	cr, err := p.host.OpenChangeRequest(ctx, repohost.ChangeRequest{
		Title: title,
		Body:  body,
		Head:  branch,
		Base:  p.opts.BaseBranch,
	})
	if err != nil {
		return nil, fmt.Errorf("opening change request: %w", err)
	}
	return cr, nil
}

// Status reports change request id.
func (p *Publisher) Status(ctx context.Context, id int) (*repohost.ChangeRequestStatus, error) {
	return p.host.ChangeRequestStatus(ctx, id)
}

// ensureFolder writes a placeholder into dir when it has no files on
// branch.
func (p *Publisher) ensureFolder(ctx context.Context, branch, dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	entries, err := p.host.ListDir(ctx, branch, dir)
	if err != nil && !errors.Is(err, repohost.ErrNotFound) {
		return fmt.Errorf("checking folder %s: %w", dir, err)
	}
	if len(entries) > 0 {
		return nil
	}
	placeholder := repohost.JoinPath(dir, placeholderFile)
	if err := p.host.WriteFile(ctx, branch, placeholder, "", "Create folder: "+dir); err != nil {
		return fmt.Errorf("creating folder %s: %w", dir, err)
	}
	return nil
}

// applyLabels adds wanted, minus labels the repository does not define.
// Failures are logged only.
func (p *Publisher) applyLabels(ctx context.Context, id int, wanted []string) {
	if lister, ok := p.host.(repohost.LabelLister); ok {
		known, err := p.knownLabels(ctx, lister)
		if err != nil {
			p.logger.Warn("Failed to list repository labels", zap.Int("change_request", id), zap.Error(err))
			return
		}
		filtered := wanted[:0]
		for _, l := range wanted {
			if known[l] {
				filtered = append(filtered, l)
			}
		}
		wanted = filtered
	}
	if len(wanted) == 0 {
		p.logger.Info("No matching labels found in repository", zap.Int("change_request", id))
		return
	}
	if err := p.host.AddLabels(ctx, id, wanted); err != nil {
		p.logger.Warn("Failed to apply labels",
			zap.Int("change_request", id),
			zap.Strings("labels", wanted),
			zap.Error(err),
		)
	}
}

func (p *Publisher) knownLabels(ctx context.Context, lister repohost.LabelLister) (map[string]bool, error) {
	p.labelsMu.Lock()
	defer p.labelsMu.Unlock()
	if p.labels != nil {
		return p.labels, nil
	}
	names, err := lister.ListLabels(ctx)
	if err != nil {
		return nil, err
	}
	p.labels = make(map[string]bool, len(names))
	for _, n := range names {
		p.labels[n] = true
	}
	return p.labels, nil
}

// Labels returns base labels plus the lowercase action and the category,
// deduplicated in that order.
func Labels(base []string, doc *Document) []string {
	return uniqueLabels(base, strings.ToLower(string(doc.Action)), doc.Category)
}

func uniqueLabels(base []string, extra ...string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range append(append([]string{}, base...), extra...) {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// CommitMessage returns "Create: <title>" or "Update: <title>".
func CommitMessage(doc *Document) string {
	verb := "Create"
	if doc.Action == matching.ActionUpdate {
		verb = "Update"
	}
	return verb + ": " + doc.Title
}

// ChangeRequestBody describes doc for reviewers.
func (p *Publisher) ChangeRequestBody(doc *Document) string {
	var b strings.Builder
	if doc.Rationale != "" {
		fmt.Fprintf(&b, "## Summary\n\n%s\n\n", doc.Rationale)
	}

	b.WriteString("## Document\n\n")
	fmt.Fprintf(&b, "- **Path**: `%s`\n", doc.Path)
	fmt.Fprintf(&b, "- **Category**: %s\n", doc.Category)
	if len(doc.Tags) > 0 {
		fmt.Fprintf(&b, "- **Tags**: %s\n", strings.Join(doc.Tags, ", "))
	}
	fmt.Fprintf(&b, "- **Action**: %s\n", doc.Action)
	if doc.Action == matching.ActionUpdate {
		if doc.Merged {
			b.WriteString("- **Update**: merged into the existing document\n")
		} else {
			b.WriteString("- **Update**: regenerated from template\n")
		}
	}

	b.WriteString("\n## Metadata\n\n")
	switch {
	case doc.SourceLink != "":
		fmt.Fprintf(&b, "**Source**: %s\n", doc.SourceLink)
	case doc.Source != "":
		fmt.Fprintf(&b, "**Source**: %s\n", doc.Source)
	}
	fmt.Fprintf(&b, "**AI Confidence**: %d%%\n", int(doc.Confidence*100))
	fmt.Fprintf(&b, "**Generated**: %s UTC\n", p.now().UTC().Format("2006-01-02 15:04:05"))

	b.WriteString("\n---\n\n")
	b.WriteString("*This knowledge base change was generated automatically by archie.*\n\n")
	b.WriteString("Please review for accuracy before merging.\n")
	return b.String()
}

// BranchName returns prefix plus the title slug capped at maxLen. An empty
// slug becomes "untitled".
func BranchName(prefix, title string, maxLen int) string {
	slug := knowledge.Slug(title)
	if maxLen > 0 && len(slug) > maxLen {
		slug = strings.TrimRight(slug[:maxLen], "-")
	}
	if slug == "" {
		slug = "untitled"
	}
	return prefix + slug
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
