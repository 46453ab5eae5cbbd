package repohost

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_ReadWriteBranches(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	l, err := InitLocal(root, "main", map[string]string{
		"troubleshooting/db.md": "# DB",
		"README.md":             "readme",
	}, nil)
	require.NoError(t, err)

	entries, err := l.ListDir(ctx, "main", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []Entry{
		{Path: "README.md", Name: "README.md", Type: EntryFile},
		{Path: "troubleshooting", Name: "troubleshooting", Type: EntryDir},
	}, entries)

	require.NoError(t, l.CreateBranch(ctx, "kb/new", "main"))
	assert.ErrorIs(t, l.CreateBranch(ctx, "kb/new", "main"), ErrAlreadyExists)

	require.NoError(t, l.WriteFile(ctx, "kb/new", "process/deploy.md", "steps", "Create: Deploy"))

	got, err := l.ReadFile(ctx, "kb/new", "process/deploy.md")
	require.NoError(t, err)
	assert.Equal(t, "steps", got)

	_, err = l.ReadFile(ctx, "main", "process/deploy.md")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = l.ListDir(ctx, "main", "process")
	assert.ErrorIs(t, err, ErrNotFound)

	// Rewriting identical content is not an error.
	require.NoError(t, l.WriteFile(ctx, "kb/new", "process/deploy.md", "steps", "Update: Deploy"))
}

func TestLocal_ChangeRequests(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	l, err := InitLocal(root, "main", nil, nil)
	require.NoError(t, err)

	_, err = l.OpenChangeRequest(ctx, ChangeRequest{Head: "kb/missing", Base: "main"})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, l.CreateBranch(ctx, "kb/a", "main"))
	res, err := l.OpenChangeRequest(ctx, ChangeRequest{Title: "A", Head: "kb/a", Base: "main"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ID)
	assert.Equal(t, "file://"+root+"#kb/a", res.URL)

	_, err = l.OpenChangeRequest(ctx, ChangeRequest{Head: "kb/a", Base: "main"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	require.NoError(t, l.AddLabels(ctx, 1, []string{"docs"}))
}

func TestLocal_DeleteFile(t *testing.T) {
	ctx := context.Background()
	l, err := InitLocal(t.TempDir(), "main", map[string]string{"decision/x.md": "x", "decision/y.md": "y"}, nil)
	require.NoError(t, err)
	require.NoError(t, l.CreateBranch(ctx, "kb/delete-x", "main"))

	require.NoError(t, l.DeleteFile(ctx, "kb/delete-x", "decision/x.md", "Delete KB document: X"))
	_, err = l.ReadFile(ctx, "kb/delete-x", "decision/x.md")
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := l.ReadFile(ctx, "kb/delete-x", "decision/y.md")
	require.NoError(t, err)
	assert.Equal(t, "y", got)

	got, err = l.ReadFile(ctx, "main", "decision/x.md")
	require.NoError(t, err)
	assert.Equal(t, "x", got)

	assert.ErrorIs(t, l.DeleteFile(ctx, "kb/delete-x", "decision/x.md", "again"), ErrNotFound)
	assert.ErrorIs(t, l.DeleteFile(ctx, "kb/missing", "decision/y.md", "msg"), ErrNotFound)
}

func TestLocal_ChangeRequestStatus(t *testing.T) {
	ctx := context.Background()
	l, err := InitLocal(t.TempDir(), "main", map[string]string{"a.md": "a"}, nil)
	require.NoError(t, err)

	for _, name := range []string{"kb/a", "kb/b"} {
		require.NoError(t, l.CreateBranch(ctx, name, "main"))
		require.NoError(t, l.WriteFile(ctx, name, name+".md", name, "Create: "+name))
		_, err := l.OpenChangeRequest(ctx, ChangeRequest{Title: name, Head: name, Base: "main"})
		require.NoError(t, err)
	}
	require.NoError(t, l.AddLabels(ctx, 1, []string{"create"}))

	status, err := l.ChangeRequestStatus(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StateOpen, status.State)
	assert.Equal(t, []string{"create"}, status.Labels)
	assert.Equal(t, "kb/a", status.Head)

	// Fast-forward main onto kb/a.
	head, err := l.repo.Reference(plumbing.NewBranchReferenceName("kb/a"), true)
	require.NoError(t, err)
	require.NoError(t, l.repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), head.Hash())))
	status, err = l.ChangeRequestStatus(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StateMerged, status.State)

	require.NoError(t, l.repo.Storer.RemoveReference(plumbing.NewBranchReferenceName("kb/b")))
	status, err = l.ChangeRequestStatus(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, status.State)

	_, err = l.ChangeRequestStatus(ctx, 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenLocal(t *testing.T) {
	_, err := OpenLocal(filepath.Join(t.TempDir(), "absent"), Info{}, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	root := t.TempDir()
	_, err = InitLocal(root, "trunk", map[string]string{"a.md": "a"}, nil)
	require.NoError(t, err)

	l, err := OpenLocal(root, Info{DefaultBranch: "trunk"}, nil)
	require.NoError(t, err)
	got, err := l.ReadFile(context.Background(), "trunk", "a.md")
	require.NoError(t, err)
	assert.Equal(t, "a", got)
}
