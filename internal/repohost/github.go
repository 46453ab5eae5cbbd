package repohost

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// GitHubConfig configures a GitHub host.
type GitHubConfig struct {
	Owner         string
	Name          string
	DefaultBranch string
	Token         string `json:"-"`
	// BaseURL is the API root for GitHub Enterprise; empty means github.com.
	BaseURL string
	WebURL  string
	Retry   *RetryConfig
}

// GitHub is a Host backed by the GitHub REST API.
type GitHub struct {
	client *github.Client
	cfg    GitHubConfig
	logger *zap.Logger
}

// NewGitHubClient creates an authenticated GitHub client. A non-empty
// baseURL selects a GitHub Enterprise server.
func NewGitHubClient(ctx context.Context, token, baseURL string) (*github.Client, error) {
	if token == "" {
		return nil, fmt.Errorf("GitHub token not set")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	if baseURL == "" {
		return client, nil
	}
	enterprise, err := client.WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub base URL: %w", err)
	}
	return enterprise, nil
}

// NewGitHub creates a GitHub host authenticated with cfg.Token.
func NewGitHub(ctx context.Context, cfg GitHubConfig, logger *zap.Logger) (*GitHub, error) {
	client, err := NewGitHubClient(ctx, cfg.Token, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	return NewGitHubWithClient(client, cfg, logger)
}

// NewGitHubWithClient creates a GitHub host around an existing client.
func NewGitHubWithClient(client *github.Client, cfg GitHubConfig, logger *zap.Logger) (*GitHub, error) {
	if cfg.Owner == "" || cfg.Name == "" {
		return nil, errors.New("GitHub owner and name are required")
	}
	if cfg.DefaultBranch == "" {
		cfg.DefaultBranch = "main"
	}
	if cfg.WebURL == "" {
		cfg.WebURL = "https://github.com"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitHub{client: client, cfg: cfg, logger: logger}, nil
}

// Info identifies the repository.
func (g *GitHub) Info() Info {
	return Info{Owner: g.cfg.Owner, Name: g.cfg.Name, DefaultBranch: g.cfg.DefaultBranch, WebURL: g.cfg.WebURL}
}

func (g *GitHub) retry(ctx context.Context, op func() (*github.Response, error)) error {
	_, err := retryGitHubOperation(ctx, g.cfg.Retry, g.logger, op)
	return err
}

// ListDir lists a directory through the contents API.
func (g *GitHub) ListDir(ctx context.Context, ref, dir string) ([]Entry, error) {
	dir = CleanPath(dir)
	var file *github.RepositoryContent
	var listing []*github.RepositoryContent
	err := g.retry(ctx, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		file, listing, resp, err = g.client.Repositories.GetContents(ctx, g.cfg.Owner, g.cfg.Name, dir, &github.RepositoryContentGetOptions{Ref: ref})
		return resp, err
	})
	if err != nil {
		return nil, g.mapError(err, "list %q at %s", dir, ref)
	}
	if file != nil {
		return nil, fmt.Errorf("%q is a file, not a directory", dir)
	}

	entries := make([]Entry, 0, len(listing))
	for _, item := range listing {
		typ := EntryFile
		switch item.GetType() {
		case "dir":
			typ = EntryDir
		case "file":
		default:
			continue
		}
		entries = append(entries, Entry{Path: CleanPath(item.GetPath()), Name: item.GetName(), Type: typ})
	}
	return entries, nil
}

// ReadFile reads a file through the contents API.
func (g *GitHub) ReadFile(ctx context.Context, ref, path string) (string, error) {
	content, _, err := g.getFile(ctx, ref, path)
	return content, err
}

func (g *GitHub) getFile(ctx context.Context, ref, path string) (string, string, error) {
	path = CleanPath(path)
	var file *github.RepositoryContent
	err := g.retry(ctx, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		file, _, resp, err = g.client.Repositories.GetContents(ctx, g.cfg.Owner, g.cfg.Name, path, &github.RepositoryContentGetOptions{Ref: ref})
		return resp, err
	})
	if err != nil {
		return "", "", g.mapError(err, "read %q at %s", path, ref)
	}
	if file == nil {
		return "", "", fmt.Errorf("%q is a directory, not a file", path)
	}
	content, err := file.GetContent()
	if err != nil {
		return "", "", fmt.Errorf("decoding %q: %w", path, err)
	}
	return content, file.GetSHA(), nil
}

// WriteFile creates or updates a file on branch.
func (g *GitHub) WriteFile(ctx context.Context, branch, path, content, message string) error {
	path = CleanPath(path)
	_, sha, err := g.getFile(ctx, branch, path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: []byte(content),
		Branch:  github.String(branch),
	}
	err = g.retry(ctx, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		if sha != "" {
			opts.SHA = github.String(sha)
			_, resp, err = g.client.Repositories.UpdateFile(ctx, g.cfg.Owner, g.cfg.Name, path, opts)
		} else {
			_, resp, err = g.client.Repositories.CreateFile(ctx, g.cfg.Owner, g.cfg.Name, path, opts)
		}
		return resp, err
	})
	if err != nil {
		return g.mapError(err, "write %q on %s", path, branch)
	}
	return nil
}

// DeleteFile removes a file from branch through the contents API.
func (g *GitHub) DeleteFile(ctx context.Context, branch, path, message string) error {
	path = CleanPath(path)
	_, sha, err := g.getFile(ctx, branch, path)
	if err != nil {
		return err
	}
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		SHA:     github.String(sha),
		Branch:  github.String(branch),
	}
	err = g.retry(ctx, func() (*github.Response, error) {
		_, resp, err := g.client.Repositories.DeleteFile(ctx, g.cfg.Owner, g.cfg.Name, path, opts)
		return resp, err
	})
	if err != nil {
		return g.mapError(err, "delete %q on %s", path, branch)
	}
	return nil
}

// CreateBranch creates refs/heads/name at the head of fromRef.
func (g *GitHub) CreateBranch(ctx context.Context, name, fromRef string) error {
	var base *github.Reference
	err := g.retry(ctx, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		base, resp, err = g.client.Git.GetRef(ctx, g.cfg.Owner, g.cfg.Name, "refs/heads/"+fromRef)
		return resp, err
	})
	if err != nil {
		return g.mapError(err, "resolve %s", fromRef)
	}

	ref := &github.Reference{
		Ref:    github.String("refs/heads/" + name),
		Object: &github.GitObject{SHA: base.GetObject().SHA},
	}
	err = g.retry(ctx, func() (*github.Response, error) {
		_, resp, err := g.client.Git.CreateRef(ctx, g.cfg.Owner, g.cfg.Name, ref)
		return resp, err
	})
	if err != nil {
		return g.mapError(err, "create branch %s", name)
	}
	return nil
}

// OpenChangeRequest opens a pull request.
func (g *GitHub) OpenChangeRequest(ctx context.Context, cr ChangeRequest) (*ChangeRequestResult, error) {
	var pr *github.PullRequest
	err := g.retry(ctx, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		pr, resp, err = g.client.PullRequests.Create(ctx, g.cfg.Owner, g.cfg.Name, &github.NewPullRequest{
			Title: github.String(cr.Title),
			Head:  github.String(cr.Head),
			Base:  github.String(cr.Base),
			Body:  github.String(cr.Body),
		})
		return resp, err
	})
	if err != nil {
		return nil, g.mapError(err, "open pull request %s -> %s", cr.Head, cr.Base)
	}
	return &ChangeRequestResult{ID: pr.GetNumber(), URL: pr.GetHTMLURL()}, nil
}

// AddLabels labels a pull request.
func (g *GitHub) AddLabels(ctx context.Context, id int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	err := g.retry(ctx, func() (*github.Response, error) {
		_, resp, err := g.client.Issues.AddLabelsToIssue(ctx, g.cfg.Owner, g.cfg.Name, id, labels)
		return resp, err
	})
	if err != nil {
		return g.mapError(err, "label #%d", id)
	}
	return nil
}

// ChangeRequestStatus reads pull request id.
func (g *GitHub) ChangeRequestStatus(ctx context.Context, id int) (*ChangeRequestStatus, error) {
	var pr *github.PullRequest
	err := g.retry(ctx, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		pr, resp, err = g.client.PullRequests.Get(ctx, g.cfg.Owner, g.cfg.Name, id)
		return resp, err
	})
	if err != nil {
		return nil, g.mapError(err, "get pull request #%d", id)
	}

	state := ChangeRequestState(pr.GetState())
	if pr.GetMerged() {
		state = StateMerged
	}
	status := &ChangeRequestStatus{
		ID:    pr.GetNumber(),
		URL:   pr.GetHTMLURL(),
		Title: pr.GetTitle(),
		State: state,
		Head:  pr.GetHead().GetRef(),
		Base:  pr.GetBase().GetRef(),
	}
	for _, l := range pr.Labels {
		status.Labels = append(status.Labels, l.GetName())
	}
	return status, nil
}

// ListLabels returns every label defined in the repository.
func (g *GitHub) ListLabels(ctx context.Context) ([]string, error) {
	var names []string
	opts := &github.ListOptions{PerPage: 100}
	for {
		var labels []*github.Label
		var resp *github.Response
		err := g.retry(ctx, func() (*github.Response, error) {
			var err error
			labels, resp, err = g.client.Issues.ListLabels(ctx, g.cfg.Owner, g.cfg.Name, opts)
			return resp, err
		})
		if err != nil {
			return nil, g.mapError(err, "list labels")
		}
		for _, l := range labels {
			names = append(names, l.GetName())
		}
		if resp == nil || resp.NextPage == 0 {
			return names, nil
		}
		opts.Page = resp.NextPage
	}
}

// mapError translates GitHub responses into ErrNotFound and ErrAlreadyExists.
func (g *GitHub) mapError(err error, format string, args ...any) error {
	op := fmt.Sprintf(format, args...)
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		case http.StatusUnprocessableEntity:
			if alreadyExists(ghErr) {
				return fmt.Errorf("%s: %w: %s", op, ErrAlreadyExists, ghErr.Message)
			}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func alreadyExists(e *github.ErrorResponse) bool {
	if strings.Contains(strings.ToLower(e.Message), "already exists") {
		return true
	}
	for _, detail := range e.Errors {
		if strings.Contains(strings.ToLower(detail.Message), "already exists") || detail.Code == "already_exists" {
			return true
		}
	}
	return false
}

var (
	_ Host        = (*GitHub)(nil)
	_ LabelLister = (*GitHub)(nil)
)
