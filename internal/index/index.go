// Package index reads the knowledge-base repository into memory.
//
// The Index walks the repository one directory level at a time, discovers
// category folders, and parses every markdown document into its header
// fields and body. Results are cached until Refresh is called. Lookups
// are linear; the index is a snapshot, not a search engine.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/archie/internal/ignore"
	"github.com/fyrsmithlabs/archie/internal/repohost"
)

// ErrRepositoryRead indicates the repository could not be listed or read.
var ErrRepositoryRead = errors.New("repository read failed")

// DefaultConcurrency bounds parallel listing and file reads.
const DefaultConcurrency = 8

// Options configures an Index.
type Options struct {
	// Ref is the branch or revision to read. Defaults to the host's
	// default branch.
	Ref string
	// DefaultCategories is used when no category folder exists.
	DefaultCategories []string
	// Concurrency bounds parallel host calls within one directory level.
	Concurrency int
	// Exclude skips matching paths. Rules from an ignore.FileName at the
	// repository root are added to it on every scan.
	Exclude *ignore.Matcher
}

// Index caches the documents and categories of one repository.
type Index struct {
	host   repohost.Host
	opts   Options
	logger *zap.Logger

	mu         sync.Mutex
	loaded     bool
	categories []string
	documents  []Document
}

// New creates an Index over host.
func New(host repohost.Host, opts Options, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Ref == "" {
		opts.Ref = host.Info().DefaultBranch
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Index{host: host, opts: opts, logger: logger}
}

// Ref returns the revision the index reads.
func (x *Index) Ref() string { return x.opts.Ref }

// Categories returns the discovered category folders, or the default set
// when the repository has none.
func (x *Index) Categories(ctx context.Context) ([]string, error) {
	if err := x.ensure(ctx); err != nil {
		return nil, err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]string(nil), x.categories...), nil
}

// Documents returns every document in path order.
func (x *Index) Documents(ctx context.Context) ([]Document, error) {
	if err := x.ensure(ctx); err != nil {
		return nil, err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]Document(nil), x.documents...), nil
}

// Document returns the document at path, if indexed.
func (x *Index) Document(ctx context.Context, path string) (Document, bool, error) {
	docs, err := x.Documents(ctx)
	if err != nil {
		return Document{}, false, err
	}
	path = repohost.CleanPath(path)
	for _, d := range docs {
		if d.Path == path {
			return d, true, nil
		}
	}
	return Document{}, false, nil
}

// Refresh drops the cache and rescans the repository.
func (x *Index) Refresh(ctx context.Context) error {
	x.mu.Lock()
	x.loaded = false
	x.mu.Unlock()
	return x.ensure(ctx)
}

// Link returns a browsable URL for path on the indexed ref, or "" when
// the host configuration is incomplete.
func (x *Index) Link(path string) string {
	return x.host.Info().BlobURL(x.opts.Ref, repohost.CleanPath(path))
}

func (x *Index) ensure(ctx context.Context) error {
	x.mu.Lock()
	if x.loaded {
		x.mu.Unlock()
		return nil
	}
	x.mu.Unlock()

	categories, documents, err := x.scan(ctx)
	if err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.categories = categories
	x.documents = documents
	x.loaded = true
	return nil
}

// scan walks the tree breadth first, one host call per directory, and then
// reads every document file.
func (x *Index) scan(ctx context.Context) ([]string, []Document, error) {
	var paths []string
	exclude := x.opts.Exclude
	level := []string{""}
	for depth := 0; len(level) > 0; depth++ {
		listings, err := x.listLevel(ctx, level)
		if err != nil {
			if depth == 0 && errors.Is(err, repohost.ErrNotFound) {
				x.logger.Info("Repository is empty or missing, indexing zero documents",
					zap.String("ref", x.opts.Ref))
				return x.defaultCategories(), nil, nil
			}
			return nil, nil, fmt.Errorf("%w: %w", ErrRepositoryRead, err)
		}

		if depth == 0 {
			if exclude, err = x.exclusions(ctx, listings[0]); err != nil {
				return nil, nil, fmt.Errorf("%w: %w", ErrRepositoryRead, err)
			}
		}

		var next []string
		for _, entries := range listings {
			for _, e := range entries {
				switch {
				case e.Type == repohost.EntryDir && !strings.HasPrefix(e.Name, "."):
					if !exclude.Excluded(e.Path, true) {
						next = append(next, e.Path)
					}
				case e.Type == repohost.EntryFile && IsDocumentPath(e.Path):
					if !exclude.Excluded(e.Path, false) {
						paths = append(paths, e.Path)
					}
				}
			}
		}
		sort.Strings(next)
		level = next
	}
	sort.Strings(paths)

	documents, err := x.readDocuments(ctx, paths)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrRepositoryRead, err)
	}

	categories := discoverCategories(paths)
	if len(categories) == 0 {
		categories = x.defaultCategories()
	}
	x.logger.Debug("Indexed repository",
		zap.String("ref", x.opts.Ref),
		zap.Int("documents", len(documents)),
		zap.Strings("categories", categories),
	)
	return categories, documents, nil
}

// exclusions merges the configured rules with the repository's ignore
// file, read only when the root listing contains one.
func (x *Index) exclusions(ctx context.Context, root []repohost.Entry) (*ignore.Matcher, error) {
	for _, e := range root {
		if e.Type != repohost.EntryFile || e.Name != ignore.FileName {
			continue
		}
		raw, err := x.host.ReadFile(ctx, x.opts.Ref, e.Path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", ignore.FileName, err)
		}
		m := ignore.Parse(raw)
		x.logger.Debug("Loaded repository exclusions",
			zap.String("file", e.Path),
			zap.Strings("patterns", m.Patterns()),
		)
		return x.opts.Exclude.Merge(m), nil
	}
	return x.opts.Exclude, nil
}

func (x *Index) defaultCategories() []string {
	return append([]string(nil), x.opts.DefaultCategories...)
}

// listLevel lists every directory of one depth level with bounded
// parallelism. Results keep the order of dirs.
func (x *Index) listLevel(ctx context.Context, dirs []string) ([][]repohost.Entry, error) {
	out := make([][]repohost.Entry, len(dirs))
	err := x.forEach(ctx, len(dirs), func(ctx context.Context, i int) error {
		entries, err := x.host.ListDir(ctx, x.opts.Ref, dirs[i])
		if err != nil {
			return fmt.Errorf("listing %q: %w", dirs[i], err)
		}
		out[i] = entries
		return nil
	})
	return out, err
}

func (x *Index) readDocuments(ctx context.Context, paths []string) ([]Document, error) {
	docs := make([]Document, len(paths))
	err := x.forEach(ctx, len(paths), func(ctx context.Context, i int) error {
		raw, err := x.host.ReadFile(ctx, x.opts.Ref, paths[i])
		if err != nil {
			return fmt.Errorf("reading %q: %w", paths[i], err)
		}
		doc, perr := parseDocument(paths[i], raw)
		if perr != nil {
			x.logger.Warn("Document header failed to parse, using empty header",
				zap.String("path", paths[i]),
				zap.Error(perr),
			)
		}
		docs[i] = doc
		return nil
	})
	return docs, err
}

// forEach runs fn for 0..n-1 with at most Concurrency calls in flight and
// returns the first error. Remaining work is canceled on error.
func (x *Index) forEach(ctx context.Context, n int, fn func(context.Context, int) error) error {
	if n == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, x.opts.Concurrency)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			if err := fn(ctx, i); err != nil {
				errs[i] = err
				cancel()
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// discoverCategories returns the top-level folders that hold at least one
// document, sorted.
func discoverCategories(paths []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range paths {
		c := categoryFromPath(p)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
