package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/archie/internal/repohost"
)

func TestIndex_Search(t *testing.T) {
	host := repohost.NewMemory(repohost.Info{Owner: "acme", Name: "kb", WebURL: "https://github.com"}, map[string]string{
		"troubleshooting/db-timeout.md": dbTimeoutDoc,
		"troubleshooting/cache.md":      "---\ntitle: Cache eviction\ntags: [database]\n---\nRedis evicts keys.\n",
		"process/db-backup.md":          "---\ntitle: Database backups\n---\nNightly dump.\n",
		"general/misc.md":               "---\ntitle: Misc\n---\nNothing here.\n",
	})
	idx := New(host, Options{}, nil)
	ctx := context.Background()

	tests := []struct {
		name      string
		query     string
		category  string
		limit     int
		wantPaths []string
		wantTop   float64
	}{
		{
			name:      "title summary and tag hits rank first",
			query:     "database",
			wantPaths: []string{"troubleshooting/db-timeout.md", "process/db-backup.md", "troubleshooting/cache.md"},
			wantTop:   1.0,
		},
		{
			name:      "category filter",
			query:     "database",
			category:  "troubleshooting",
			wantPaths: []string{"troubleshooting/db-timeout.md", "troubleshooting/cache.md"},
			wantTop:   1.0,
		},
		{
			name:      "limit",
			query:     "database",
			limit:     1,
			wantPaths: []string{"troubleshooting/db-timeout.md"},
			wantTop:   1.0,
		},
		{
			name:      "no match",
			query:     "kubernetes",
			wantPaths: []string{},
		},
		{
			name:      "blank query",
			query:     "  ",
			wantPaths: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := idx.Search(ctx, tt.query, tt.category, tt.limit)
			require.NoError(t, err)

			paths := make([]string, len(results))
			for i, r := range results {
				paths[i] = r.Path
			}
			assert.Equal(t, tt.wantPaths, paths)
			if len(results) > 0 {
				assert.InDelta(t, tt.wantTop, results[0].Score, 1e-9)
				assert.Equal(t, "https://github.com/acme/kb/blob/main/"+results[0].Path, results[0].Link)
			}
		})
	}
}

func TestIndex_SearchTerms(t *testing.T) {
	host := repohost.NewMemory(repohost.Info{}, map[string]string{
		"troubleshooting/redis.md": "---\ntitle: Redis eviction\n---\nRaise maxmemory.\n",
		"process/deploy.md":        "---\ntitle: Deploy guide\n---\nRedis must be restarted after deploy.\n",
		"general/misc.md":          "---\ntitle: Misc\n---\nNothing here.\n",
	})
	idx := New(host, Options{}, nil)
	ctx := context.Background()

	results, err := idx.SearchTerms(ctx, "How do I stop Redis eviction?", "", 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "troubleshooting/redis.md", results[0].Path)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "process/deploy.md", results[1].Path)

	results, err = idx.SearchTerms(ctx, "How do I stop Redis eviction?", "process", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "process/deploy.md", results[0].Path)

	results, err = idx.SearchTerms(ctx, "how is it?", "", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchTerms(t *testing.T) {
	assert.Equal(t, []string{"postgres", "timeout", "café"}, searchTerms("What is the Postgres timeout? postgres, café!"))
	assert.Empty(t, searchTerms("how do I?"))
}

func TestIndex_Stats(t *testing.T) {
	host := repohost.NewMemory(repohost.Info{}, testRepo())
	stats, err := New(host, Options{}, nil).Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, stats.TotalDocuments)
	assert.Equal(t, map[string]int{"decision": 2, "general": 1, "process": 1, "troubleshooting": 1}, stats.ByCategory)
	assert.Equal(t, 1, stats.ByTag["database"])
	assert.Equal(t, 1, stats.ByTag["release"])
	assert.Equal(t, []string{"decision", "process", "troubleshooting"}, stats.Categories)
}

func TestOutlineOf(t *testing.T) {
	o := outlineOf("Intro with `code` and **bold**.\n\n## Steps\n\n```sh\nmake\n```\n\nSecond paragraph.\n")
	assert.Equal(t, "Steps", o.heading)
	assert.Equal(t, "Intro with code and bold. Second paragraph.", o.summary)

	assert.Equal(t, outline{}, outlineOf("   "))
}
