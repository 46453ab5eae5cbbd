package repohost

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemory() *Memory {
	return NewMemory(Info{Owner: "acme", Name: "kb", WebURL: "https://github.com"}, map[string]string{
		"README.md":                     "# KB",
		"troubleshooting/db-timeout.md": "---\ntitle: DB timeout\n---\nbody",
		"process/deploy/steps.md":       "steps",
	})
}

func TestMemory_ListDir(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()

	root, err := m.ListDir(ctx, "main", "")
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Path: "README.md", Name: "README.md", Type: EntryFile},
		{Path: "process", Name: "process", Type: EntryDir},
		{Path: "troubleshooting", Name: "troubleshooting", Type: EntryDir},
	}, root)

	nested, err := m.ListDir(ctx, "main", "/process/")
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Path: "process/deploy", Name: "deploy", Type: EntryDir}}, nested)

	_, err = m.ListDir(ctx, "main", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.ListDir(ctx, "nope", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_EmptyRepository(t *testing.T) {
	m := NewEmptyMemory(Info{Owner: "acme", Name: "kb"})
	_, err := m.ListDir(context.Background(), "main", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_BranchIsolation(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()

	require.NoError(t, m.CreateBranch(ctx, "kb/new", "main"))
	require.NoError(t, m.WriteFile(ctx, "kb/new", "decision/x.md", "x", "Create: X"))

	got, err := m.ReadFile(ctx, "kb/new", "decision/x.md")
	require.NoError(t, err)
	assert.Equal(t, "x", got)

	_, err = m.ReadFile(ctx, "main", "decision/x.md")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []Commit{{Branch: "kb/new", Path: "decision/x.md", Message: "Create: X"}}, m.Commits())
}

func TestMemory_CreateBranchCollision(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()
	m.AddBranch("kb/taken")

	err := m.CreateBranch(ctx, "kb/taken", "main")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	err = m.CreateBranch(ctx, "kb/other", "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ChangeRequests(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()
	m.DefineLabels("docs", "create")
	require.NoError(t, m.CreateBranch(ctx, "kb/a", "main"))

	cr := ChangeRequest{Title: "Add A", Head: "kb/a", Base: "main"}
	res, err := m.OpenChangeRequest(ctx, cr)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ID)
	assert.Equal(t, "memory://acme/kb/pull/1", res.URL)

	_, err = m.OpenChangeRequest(ctx, cr)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	require.NoError(t, m.AddLabels(ctx, 1, []string{"docs"}))
	assert.Equal(t, []string{"docs"}, m.Labels(1))
	assert.ErrorIs(t, m.AddLabels(ctx, 9, []string{"docs"}), ErrNotFound)

	labels, err := m.ListLabels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"create", "docs"}, labels)
}

func TestMemory_DeleteFile(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()
	require.NoError(t, m.CreateBranch(ctx, "kb/delete", "main"))

	require.NoError(t, m.DeleteFile(ctx, "kb/delete", "/troubleshooting/db-timeout.md", "Delete KB document: DB timeout"))
	_, err := m.ReadFile(ctx, "kb/delete", "troubleshooting/db-timeout.md")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.ReadFile(ctx, "main", "troubleshooting/db-timeout.md")
	require.NoError(t, err)
	assert.Equal(t, []Commit{{Branch: "kb/delete", Path: "troubleshooting/db-timeout.md", Message: "Delete KB document: DB timeout", Deleted: true}}, m.Commits())

	assert.ErrorIs(t, m.DeleteFile(ctx, "kb/delete", "troubleshooting/db-timeout.md", "again"), ErrNotFound)
	assert.ErrorIs(t, m.DeleteFile(ctx, "kb/none", "README.md", "msg"), ErrNotFound)
}

func TestMemory_ChangeRequestStatus(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()
	require.NoError(t, m.CreateBranch(ctx, "kb/a", "main"))
	_, err := m.OpenChangeRequest(ctx, ChangeRequest{Title: "Add A", Head: "kb/a", Base: "main"})
	require.NoError(t, err)
	require.NoError(t, m.AddLabels(ctx, 1, []string{"create"}))

	status, err := m.ChangeRequestStatus(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, &ChangeRequestStatus{
		ID:     1,
		URL:    "memory://acme/kb/pull/1",
		Title:  "Add A",
		State:  StateOpen,
		Head:   "kb/a",
		Base:   "main",
		Labels: []string{"create"},
	}, status)

	m.SetChangeRequestState(1, StateMerged)
	status, err = m.ChangeRequestStatus(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StateMerged, status.State)

	_, err = m.ChangeRequestStatus(ctx, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_Hooks(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()
	boom := errors.New("boom")
	m.BeforeWriteFile = func(branch, path string) error { return boom }

	err := m.WriteFile(ctx, "main", "a.md", "a", "msg")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, m.Commits())
}

func TestInfo_BlobURL(t *testing.T) {
	info := Info{Owner: "acme", Name: "kb", WebURL: "https://github.com/"}
	assert.Equal(t, "https://github.com/acme/kb/blob/main/process/a.md", info.BlobURL("main", "/process/a.md"))
	assert.Empty(t, Info{Owner: "acme", Name: "kb"}.BlobURL("main", "a.md"))
	assert.Empty(t, info.BlobURL("", "a.md"))
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "a/b.md", CleanPath("/a\\b.md/"))
	assert.Equal(t, "a/b.md", JoinPath("a/", "b.md"))
	assert.Equal(t, "b.md", JoinPath("", "/b.md"))
}
