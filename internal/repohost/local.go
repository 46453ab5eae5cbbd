package repohost

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

// Local is a Host over a git working copy on disk. Reads go through the
// object store at a ref. Writes check out the branch and commit. Change
// requests have no server to live on, so they are recorded in process.
type Local struct {
	mu       sync.Mutex
	root     string
	repo     *git.Repository
	info     Info
	author   object.Signature
	requests []ChangeRequest
	applied  map[int][]string
	logger   *zap.Logger
}

// OpenLocal opens the repository at root. A missing repository is
// ErrNotFound.
func OpenLocal(root string, info Info, logger *zap.Logger) (*Local, error) {
	repo, err := git.PlainOpen(root)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("repository %s: %w", root, ErrNotFound)
		}
		return nil, fmt.Errorf("opening repository %s: %w", root, err)
	}
	return newLocal(root, repo, info, logger), nil
}

// InitLocal creates a repository at root with one commit on branch holding
// files.
func InitLocal(root, branch string, files map[string]string, logger *zap.Logger) (*Local, error) {
	repo, err := git.PlainInitWithOptions(root, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(branch)},
	})
	if err != nil {
		return nil, fmt.Errorf("initializing repository %s: %w", root, err)
	}
	l := newLocal(root, repo, Info{Owner: "local", Name: filepath.Base(root), DefaultBranch: branch}, logger)

	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	for p, content := range files {
		if err := l.writeWorktree(wt, CleanPath(p), content); err != nil {
			return nil, err
		}
	}
	if _, err := wt.Commit("Initial commit", &git.CommitOptions{Author: l.signature(), AllowEmptyCommits: true}); err != nil {
		return nil, fmt.Errorf("initial commit: %w", err)
	}
	return l, nil
}

func newLocal(root string, repo *git.Repository, info Info, logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	if info.DefaultBranch == "" {
		info.DefaultBranch = "main"
	}
	return &Local{
		root:    root,
		repo:    repo,
		info:    info,
		author:  object.Signature{Name: "archie", Email: "archie@localhost"},
		applied: make(map[int][]string),
		logger:  logger,
	}
}

// Info identifies the repository.
func (l *Local) Info() Info { return l.info }

func (l *Local) signature() *object.Signature {
	sig := l.author
	sig.When = time.Now()
	return &sig
}

func (l *Local) commitAt(ref string) (*object.Commit, error) {
	hash, err := l.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, fmt.Errorf("ref %s: %w", ref, ErrNotFound)
		}
		return nil, fmt.Errorf("resolving %s: %w", ref, err)
	}
	commit, err := l.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("loading commit %s: %w", hash, err)
	}
	return commit, nil
}

// ListDir lists the direct children of dir at ref.
func (l *Local) ListDir(ctx context.Context, ref, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	commit, err := l.commitAt(ref)
	if err != nil {
		return nil, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}
	dir = CleanPath(dir)
	if dir != "" {
		tree, err = tree.Tree(dir)
		if err != nil {
			if errors.Is(err, object.ErrDirectoryNotFound) {
				return nil, fmt.Errorf("dir %q: %w", dir, ErrNotFound)
			}
			return nil, err
		}
	}

	entries := make([]Entry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		var typ EntryType
		switch e.Mode {
		case filemode.Dir:
			typ = EntryDir
		case filemode.Regular, filemode.Executable:
			typ = EntryFile
		default:
			continue
		}
		entries = append(entries, Entry{Path: JoinPath(dir, e.Name), Name: e.Name, Type: typ})
	}
	return entries, nil
}

// ReadFile returns the content of p at ref.
func (l *Local) ReadFile(ctx context.Context, ref, p string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	commit, err := l.commitAt(ref)
	if err != nil {
		return "", err
	}
	file, err := commit.File(CleanPath(p))
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", fmt.Errorf("file %q: %w", p, ErrNotFound)
		}
		return "", err
	}
	return file.Contents()
}

// WriteFile checks out branch, writes p and commits it.
func (l *Local) WriteFile(ctx context.Context, branch, p, content, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	wt, err := l.checkout(branch)
	if err != nil {
		return err
	}

	p = CleanPath(p)
	if err := l.writeWorktree(wt, p, content); err != nil {
		return err
	}
	hash, err := wt.Commit(message, &git.CommitOptions{Author: l.signature()})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			l.logger.Debug("File unchanged, nothing to commit", zap.String("path", p), zap.String("branch", branch))
			return nil
		}
		return fmt.Errorf("committing %s: %w", p, err)
	}
	l.logger.Debug("Committed file", zap.String("path", p), zap.String("branch", branch), zap.String("commit", hash.String()))
	return nil
}

// DeleteFile checks out branch, removes p and commits.
func (l *Local) DeleteFile(ctx context.Context, branch, p, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	wt, err := l.checkout(branch)
	if err != nil {
		return err
	}
	p = CleanPath(p)
	if _, err := os.Stat(filepath.Join(l.root, filepath.FromSlash(p))); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("file %q: %w", p, ErrNotFound)
		}
		return err
	}
	if _, err := wt.Remove(p); err != nil {
		return fmt.Errorf("removing %s: %w", p, err)
	}
	hash, err := wt.Commit(message, &git.CommitOptions{Author: l.signature()})
	if err != nil {
		return fmt.Errorf("committing removal of %s: %w", p, err)
	}
	l.logger.Debug("Committed file removal", zap.String("path", p), zap.String("branch", branch), zap.String("commit", hash.String()))
	return nil
}

func (l *Local) checkout(branch string) (*git.Worktree, error) {
	wt, err := l.repo.Worktree()
	if err != nil {
		return nil, err
	}
	err = wt.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(branch), Force: true})
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, fmt.Errorf("branch %s: %w", branch, ErrNotFound)
		}
		return nil, fmt.Errorf("checking out %s: %w", branch, err)
	}
	return wt, nil
}

func (l *Local) writeWorktree(wt *git.Worktree, p, content string) error {
	if p == "" {
		return errors.New("empty path")
	}
	full := filepath.Join(l.root, filepath.FromSlash(p))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", p, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", p, err)
	}
	if _, err := wt.Add(p); err != nil {
		return fmt.Errorf("staging %s: %w", p, err)
	}
	return nil
}

// CreateBranch points refs/heads/name at the commit fromRef resolves to.
func (l *Local) CreateBranch(ctx context.Context, name, fromRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	refName := plumbing.NewBranchReferenceName(name)
	if _, err := l.repo.Reference(refName, false); err == nil {
		return fmt.Errorf("branch %s: %w", name, ErrAlreadyExists)
	}
	commit, err := l.commitAt(fromRef)
	if err != nil {
		return err
	}
	if err := l.repo.Storer.SetReference(plumbing.NewHashReference(refName, commit.Hash)); err != nil {
		return fmt.Errorf("creating branch %s: %w", name, err)
	}
	return nil
}

// OpenChangeRequest records cr. The URL points at the head branch of the
// working copy.
func (l *Local) OpenChangeRequest(ctx context.Context, cr ChangeRequest) (*ChangeRequestResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.repo.Reference(plumbing.NewBranchReferenceName(cr.Head), false); err != nil {
		return nil, fmt.Errorf("branch %s: %w", cr.Head, ErrNotFound)
	}
	for _, existing := range l.requests {
		if existing.Head == cr.Head {
			return nil, fmt.Errorf("change request for %s: %w", cr.Head, ErrAlreadyExists)
		}
	}
	l.requests = append(l.requests, cr)
	l.logger.Info("Recorded local change request",
		zap.String("head", cr.Head),
		zap.String("base", cr.Base),
	)
	return &ChangeRequestResult{ID: len(l.requests), URL: fmt.Sprintf("file://%s#%s", l.root, cr.Head)}, nil
}

// AddLabels records labels for a change request.
func (l *Local) AddLabels(ctx context.Context, id int, labels []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id < 1 || id > len(l.requests) {
		return fmt.Errorf("change request %d: %w", id, ErrNotFound)
	}
	l.applied[id] = append(l.applied[id], labels...)
	return nil
}

// ChangeRequestStatus reports a recorded change request. It is merged once
// its head commit is reachable from the base branch and closed when the
// head branch is gone.
func (l *Local) ChangeRequestStatus(ctx context.Context, id int) (*ChangeRequestStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if id < 1 || id > len(l.requests) {
		return nil, fmt.Errorf("change request %d: %w", id, ErrNotFound)
	}
	cr := l.requests[id-1]
	status := &ChangeRequestStatus{
		ID:     id,
		URL:    fmt.Sprintf("file://%s#%s", l.root, cr.Head),
		Title:  cr.Title,
		State:  StateOpen,
		Head:   cr.Head,
		Base:   cr.Base,
		Labels: append([]string(nil), l.applied[id]...),
	}

	head, err := l.commitAt(cr.Head)
	if errors.Is(err, ErrNotFound) {
		status.State = StateClosed
		return status, nil
	}
	if err != nil {
		return nil, err
	}
	base, err := l.commitAt(cr.Base)
	if err != nil {
		return nil, err
	}
	if head.Hash != base.Hash {
		merged, err := head.IsAncestor(base)
		if err != nil {
			return nil, fmt.Errorf("comparing %s with %s: %w", cr.Head, cr.Base, err)
		}
		if merged {
			status.State = StateMerged
		}
	}
	return status, nil
}

// ChangeRequests returns the recorded change requests.
func (l *Local) ChangeRequests() []ChangeRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ChangeRequest(nil), l.requests...)
}

var _ Host = (*Local)(nil)
