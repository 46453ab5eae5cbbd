package repohost

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGitHub(t *testing.T, mux *http.ServeMux) *GitHub {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	g, err := NewGitHubWithClient(client, GitHubConfig{Owner: "acme", Name: "kb", Retry: fastRetry()}, nil)
	require.NoError(t, err)
	return g
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewGitHubWithClient_Validation(t *testing.T) {
	_, err := NewGitHubWithClient(github.NewClient(nil), GitHubConfig{Owner: "acme"}, nil)
	assert.Error(t, err)

	g, err := NewGitHubWithClient(github.NewClient(nil), GitHubConfig{Owner: "acme", Name: "kb"}, nil)
	require.NoError(t, err)
	assert.Equal(t, Info{Owner: "acme", Name: "kb", DefaultBranch: "main", WebURL: "https://github.com"}, g.Info())

	_, err = NewGitHubClient(context.Background(), "", "")
	assert.Error(t, err)
}

func TestGitHub_ListDirAndReadFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/kb/contents/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		switch r.URL.Path {
		case "/repos/acme/kb/contents/":
			writeJSON(w, 200, []map[string]string{
				{"type": "dir", "name": "process", "path": "process"},
				{"type": "file", "name": "README.md", "path": "README.md"},
				{"type": "symlink", "name": "link", "path": "link"},
			})
		case "/repos/acme/kb/contents/process/deploy.md":
			writeJSON(w, 200, map[string]string{
				"type":     "file",
				"name":     "deploy.md",
				"path":     "process/deploy.md",
				"sha":      "abc",
				"encoding": "base64",
				"content":  base64.StdEncoding.EncodeToString([]byte("# Deploy")),
			})
		default:
			writeJSON(w, 404, map[string]string{"message": "Not Found"})
		}
	})
	g := newTestGitHub(t, mux)
	ctx := context.Background()

	entries, err := g.ListDir(ctx, "main", "")
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Path: "process", Name: "process", Type: EntryDir},
		{Path: "README.md", Name: "README.md", Type: EntryFile},
	}, entries)

	content, err := g.ReadFile(ctx, "main", "process/deploy.md")
	require.NoError(t, err)
	assert.Equal(t, "# Deploy", content)

	_, err = g.ReadFile(ctx, "main", "process/missing.md")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGitHub_WriteFile(t *testing.T) {
	tests := []struct {
		name    string
		exists  bool
		wantSHA string
	}{
		{name: "creates new file", exists: false},
		{name: "updates existing file", exists: true, wantSHA: "old-sha"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var put map[string]any
			mux := http.NewServeMux()
			mux.HandleFunc("/repos/acme/kb/contents/decision/x.md", func(w http.ResponseWriter, r *http.Request) {
				switch r.Method {
				case http.MethodGet:
					if !tt.exists {
						writeJSON(w, 404, map[string]string{"message": "Not Found"})
						return
					}
					writeJSON(w, 200, map[string]string{"type": "file", "path": "decision/x.md", "sha": "old-sha", "encoding": "base64", "content": ""})
				case http.MethodPut:
					body, _ := io.ReadAll(r.Body)
					require.NoError(t, json.Unmarshal(body, &put))
					writeJSON(w, 200, map[string]any{"content": map[string]string{"path": "decision/x.md"}})
				}
			})
			g := newTestGitHub(t, mux)

			require.NoError(t, g.WriteFile(context.Background(), "kb/x", "decision/x.md", "hello", "Create: X"))
			assert.Equal(t, "kb/x", put["branch"])
			assert.Equal(t, "Create: X", put["message"])
			assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("hello")), put["content"])
			if tt.wantSHA != "" {
				assert.Equal(t, tt.wantSHA, put["sha"])
			} else {
				assert.NotContains(t, put, "sha")
			}
		})
	}
}

func TestGitHub_CreateBranch(t *testing.T) {
	var created []string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/kb/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"ref": "refs/heads/main", "object": map[string]string{"sha": "base-sha"}})
	})
	mux.HandleFunc("/repos/acme/kb/git/refs", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "base-sha", body.SHA)
		if body.Ref == "refs/heads/kb/taken" {
			writeJSON(w, 422, map[string]string{"message": "Reference already exists"})
			return
		}
		created = append(created, body.Ref)
		writeJSON(w, 201, map[string]any{"ref": body.Ref, "object": map[string]string{"sha": body.SHA}})
	})
	g := newTestGitHub(t, mux)
	ctx := context.Background()

	require.NoError(t, g.CreateBranch(ctx, "kb/new", "main"))
	assert.Equal(t, []string{"refs/heads/kb/new"}, created)

	err := g.CreateBranch(ctx, "kb/taken", "main")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	err = g.CreateBranch(ctx, "kb/other", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGitHub_OpenChangeRequestAndLabels(t *testing.T) {
	var labelled []string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/kb/pulls", func(w http.ResponseWriter, r *http.Request) {
		var body github.NewPullRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.GetHead() == "kb/dup" {
			writeJSON(w, 422, map[string]any{
				"message": "Validation Failed",
				"errors":  []map[string]string{{"resource": "PullRequest", "code": "custom", "message": "A pull request already exists for acme:kb/dup."}},
			})
			return
		}
		writeJSON(w, 201, map[string]any{"number": 7, "html_url": "https://github.com/acme/kb/pull/7"})
	})
	mux.HandleFunc("/repos/acme/kb/issues/7/labels", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&labelled))
		writeJSON(w, 200, []map[string]string{})
	})
	mux.HandleFunc("/repos/acme/kb/labels", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "" {
			w.Header().Set("Link", fmt.Sprintf(`<http://%s/repos/acme/kb/labels?page=2>; rel="next"`, r.Host))
			writeJSON(w, 200, []map[string]string{{"name": "docs"}})
			return
		}
		writeJSON(w, 200, []map[string]string{{"name": "create"}})
	})
	g := newTestGitHub(t, mux)
	ctx := context.Background()

	res, err := g.OpenChangeRequest(ctx, ChangeRequest{Title: "T", Head: "kb/a", Base: "main", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, &ChangeRequestResult{ID: 7, URL: "https://github.com/acme/kb/pull/7"}, res)

	_, err = g.OpenChangeRequest(ctx, ChangeRequest{Head: "kb/dup", Base: "main"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	require.NoError(t, g.AddLabels(ctx, 7, []string{"docs", "create"}))
	assert.Equal(t, []string{"docs", "create"}, labelled)
	require.NoError(t, g.AddLabels(ctx, 7, nil))

	labels, err := g.ListLabels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs", "create"}, labels)
}

func TestGitHub_DeleteFile(t *testing.T) {
	var deleted map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/kb/contents/decision/x.md", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "kb/delete-x", r.URL.Query().Get("ref"))
			writeJSON(w, 200, map[string]string{"type": "file", "path": "decision/x.md", "sha": "old-sha", "encoding": "base64", "content": ""})
		case http.MethodDelete:
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &deleted))
			writeJSON(w, 200, map[string]any{"commit": map[string]string{"sha": "new-sha"}})
		}
	})
	mux.HandleFunc("/repos/acme/kb/contents/decision/missing.md", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 404, map[string]string{"message": "Not Found"})
	})
	g := newTestGitHub(t, mux)
	ctx := context.Background()

	require.NoError(t, g.DeleteFile(ctx, "kb/delete-x", "decision/x.md", "Delete KB document: X"))
	assert.Equal(t, "old-sha", deleted["sha"])
	assert.Equal(t, "kb/delete-x", deleted["branch"])
	assert.Equal(t, "Delete KB document: X", deleted["message"])

	err := g.DeleteFile(ctx, "kb/delete-x", "decision/missing.md", "Delete")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGitHub_ChangeRequestStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/kb/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{
			"number":   7,
			"html_url": "https://github.com/acme/kb/pull/7",
			"title":    "Add KB: DB timeout",
			"state":    "closed",
			"merged":   true,
			"head":     map[string]string{"ref": "kb/db-timeout"},
			"base":     map[string]string{"ref": "main"},
			"labels":   []map[string]string{{"name": "create"}, {"name": "troubleshooting"}},
		})
	})
	mux.HandleFunc("/repos/acme/kb/pulls/8", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"number": 8, "state": "open", "head": map[string]string{"ref": "kb/x"}})
	})
	mux.HandleFunc("/repos/acme/kb/pulls/9", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 404, map[string]string{"message": "Not Found"})
	})
	g := newTestGitHub(t, mux)
	ctx := context.Background()

	status, err := g.ChangeRequestStatus(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, &ChangeRequestStatus{
		ID:     7,
		URL:    "https://github.com/acme/kb/pull/7",
		Title:  "Add KB: DB timeout",
		State:  StateMerged,
		Head:   "kb/db-timeout",
		Base:   "main",
		Labels: []string{"create", "troubleshooting"},
	}, status)

	status, err = g.ChangeRequestStatus(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, StateOpen, status.State)
	assert.Empty(t, status.Labels)

	_, err = g.ChangeRequestStatus(ctx, 9)
	assert.ErrorIs(t, err, ErrNotFound)
}
