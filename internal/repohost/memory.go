package repohost

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Host. Branches are flat path -> content maps.
// It backs dry runs and tests.
type Memory struct {
	mu       sync.Mutex
	info     Info
	branches map[string]map[string]string
	labels   map[string]bool
	requests []ChangeRequest
	applied  map[int][]string
	states   map[int]ChangeRequestState
	commits  []Commit

	// Hooks let tests inject failures. Each is consulted before the
	// operation and a non-nil return aborts it.
	BeforeCreateBranch func(name string) error
	BeforeWriteFile    func(branch, path string) error
	BeforeDeleteFile   func(branch, path string) error
	BeforeOpen         func(cr ChangeRequest) error
	BeforeAddLabels    func(id int, labels []string) error
}

// Commit records one WriteFile or DeleteFile call on a Memory host.
type Commit struct {
	Branch  string
	Path    string
	Message string
	Deleted bool
}

// NewMemory creates an in-memory host whose default branch holds files.
func NewMemory(info Info, files map[string]string) *Memory {
	if info.DefaultBranch == "" {
		info.DefaultBranch = "main"
	}
	base := make(map[string]string, len(files))
	for p, c := range files {
		base[CleanPath(p)] = c
	}
	return &Memory{
		info:     info,
		branches: map[string]map[string]string{info.DefaultBranch: base},
		labels:   make(map[string]bool),
		applied:  make(map[int][]string),
		states:   make(map[int]ChangeRequestState),
	}
}

// NewEmptyMemory creates a host with no repository at all. Every read
// reports ErrNotFound.
func NewEmptyMemory(info Info) *Memory {
	m := NewMemory(info, nil)
	delete(m.branches, m.info.DefaultBranch)
	return m
}

// Info identifies the repository.
func (m *Memory) Info() Info { return m.info }

// DefineLabels adds labels to the repository's known label set.
func (m *Memory) DefineLabels(labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range labels {
		m.labels[l] = true
	}
}

// ListLabels returns the known labels, sorted.
func (m *Memory) ListLabels(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.labels))
	for l := range m.labels {
		out = append(out, l)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) branch(ref string) (map[string]string, error) {
	files, ok := m.branches[ref]
	if !ok {
		return nil, fmt.Errorf("ref %s: %w", ref, ErrNotFound)
	}
	return files, nil
}

// ListDir lists the direct children of dir at ref.
func (m *Memory) ListDir(ctx context.Context, ref, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	files, err := m.branch(ref)
	if err != nil {
		return nil, err
	}
	dir = CleanPath(dir)
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}

	seen := make(map[string]EntryType)
	for p := range files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if name, _, nested := strings.Cut(rest, "/"); nested {
			seen[name] = EntryDir
		} else {
			seen[rest] = EntryFile
		}
	}
	if len(seen) == 0 && dir != "" {
		return nil, fmt.Errorf("dir %q: %w", dir, ErrNotFound)
	}

	entries := make([]Entry, 0, len(seen))
	for name, typ := range seen {
		entries = append(entries, Entry{Path: JoinPath(dir, name), Name: name, Type: typ})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// ReadFile returns the content of p at ref.
func (m *Memory) ReadFile(ctx context.Context, ref, p string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	files, err := m.branch(ref)
	if err != nil {
		return "", err
	}
	content, ok := files[CleanPath(p)]
	if !ok {
		return "", fmt.Errorf("file %q: %w", p, ErrNotFound)
	}
	return content, nil
}

// WriteFile stores content at p on branch.
func (m *Memory) WriteFile(ctx context.Context, branch, p, content, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p = CleanPath(p)
	if m.BeforeWriteFile != nil {
		if err := m.BeforeWriteFile(branch, p); err != nil {
			return err
		}
	}
	if p == "" || path.Base(p) == "." {
		return fmt.Errorf("invalid path %q", p)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	files, err := m.branch(branch)
	if err != nil {
		return err
	}
	files[p] = content
	m.commits = append(m.commits, Commit{Branch: branch, Path: p, Message: message})
	return nil
}

// DeleteFile removes p from branch.
func (m *Memory) DeleteFile(ctx context.Context, branch, p, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p = CleanPath(p)
	if m.BeforeDeleteFile != nil {
		if err := m.BeforeDeleteFile(branch, p); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	files, err := m.branch(branch)
	if err != nil {
		return err
	}
	if _, ok := files[p]; !ok {
		return fmt.Errorf("file %q: %w", p, ErrNotFound)
	}
	delete(files, p)
	m.commits = append(m.commits, Commit{Branch: branch, Path: p, Message: message, Deleted: true})
	return nil
}

// CreateBranch copies fromRef into a new branch.
func (m *Memory) CreateBranch(ctx context.Context, name, fromRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.BeforeCreateBranch != nil {
		if err := m.BeforeCreateBranch(name); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.branches[name]; exists {
		return fmt.Errorf("branch %s: %w", name, ErrAlreadyExists)
	}
	src, err := m.branch(fromRef)
	if err != nil {
		return err
	}
	dst := make(map[string]string, len(src))
	for p, c := range src {
		dst[p] = c
	}
	m.branches[name] = dst
	return nil
}

// AddBranch creates an empty branch. Tests use it to simulate names
// already taken on the host.
func (m *Memory) AddBranch(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.branches[name]; !ok {
		m.branches[name] = make(map[string]string)
	}
}

// OpenChangeRequest records cr. Only one open request per head branch is
// allowed.
func (m *Memory) OpenChangeRequest(ctx context.Context, cr ChangeRequest) (*ChangeRequestResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.BeforeOpen != nil {
		if err := m.BeforeOpen(cr); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.branch(cr.Head); err != nil {
		return nil, err
	}
	for _, existing := range m.requests {
		if existing.Head == cr.Head {
			return nil, fmt.Errorf("change request for %s: %w", cr.Head, ErrAlreadyExists)
		}
	}
	m.requests = append(m.requests, cr)
	id := len(m.requests)
	return &ChangeRequestResult{ID: id, URL: fmt.Sprintf("memory://%s/%s/pull/%d", m.info.Owner, m.info.Name, id)}, nil
}

// AddLabels records labels against change request id.
func (m *Memory) AddLabels(ctx context.Context, id int, labels []string) error {
	if m.BeforeAddLabels != nil {
		if err := m.BeforeAddLabels(id, labels); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 1 || id > len(m.requests) {
		return fmt.Errorf("change request %d: %w", id, ErrNotFound)
	}
	m.applied[id] = append(m.applied[id], labels...)
	return nil
}

// ChangeRequestStatus reports change request id. Requests are open until
// SetChangeRequestState says otherwise.
func (m *Memory) ChangeRequestStatus(ctx context.Context, id int) (*ChangeRequestStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 1 || id > len(m.requests) {
		return nil, fmt.Errorf("change request %d: %w", id, ErrNotFound)
	}
	cr := m.requests[id-1]
	state, ok := m.states[id]
	if !ok {
		state = StateOpen
	}
	return &ChangeRequestStatus{
		ID:     id,
		URL:    fmt.Sprintf("memory://%s/%s/pull/%d", m.info.Owner, m.info.Name, id),
		Title:  cr.Title,
		State:  state,
		Head:   cr.Head,
		Base:   cr.Base,
		Labels: append([]string(nil), m.applied[id]...),
	}, nil
}

// SetChangeRequestState moves change request id to state.
func (m *Memory) SetChangeRequestState(id int, state ChangeRequestState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[id] = state
}

// Branches returns every branch name, sorted.
func (m *Memory) Branches() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.branches))
	for b := range m.branches {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// ChangeRequests returns the opened change requests in order.
func (m *Memory) ChangeRequests() []ChangeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChangeRequest(nil), m.requests...)
}

// Labels returns the labels applied to change request id.
func (m *Memory) Labels(id int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.applied[id]...)
}

// Commits returns every recorded write.
func (m *Memory) Commits() []Commit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Commit(nil), m.commits...)
}

var (
	_ Host        = (*Memory)(nil)
	_ LabelLister = (*Memory)(nil)
)
