package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/archie/internal/index"
	"github.com/fyrsmithlabs/archie/internal/knowledge"
	"github.com/fyrsmithlabs/archie/internal/matching"
)

const timeoutTranscript = `[1] user_1: The DB connection times out in production, error: deadline exceeded
[2] user_2: It turned out the pool was exhausted because of long queries
[3] user_1: Fixed by increasing timeout to 60s
`

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(nil, nil)
	require.NoError(t, err)
	l.now = func() time.Time { return time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC) }
	return l
}

func TestLocal_Anonymize(t *testing.T) {
	l := newTestLocal(t)
	out, err := l.Anonymize(context.Background(), "Ping jane.doe@example.com about the outage")
	require.NoError(t, err)
	assert.NotContains(t, out, "jane.doe@example.com")
	assert.Contains(t, out, "about the outage")
}

func TestLocal_Classify(t *testing.T) {
	tests := []struct {
		name string
		text string
		want knowledge.Category
	}{
		{"troubleshooting", timeoutTranscript, knowledge.CategoryTroubleshooting},
		{"decision", "[1] user_1: We decided to go with Postgres instead of Mongo\n[2] user_2: Agreed, decision recorded", knowledge.CategoryDecision},
		{"process", "[1] user_1: How do we set up the release checklist?\n[2] user_2: The steps are in the runbook, follow the procedure", knowledge.CategoryProcess},
		{"general", "[1] user_1: Lunch at noon?\n[2] user_2: Sure", knowledge.CategoryGeneral},
	}
	l := newTestLocal(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Classify(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, string(tt.want), got)
		})
	}
}

func TestLocal_ExtractTroubleshooting(t *testing.T) {
	l := newTestLocal(t)
	ext, err := l.Extract(context.Background(), knowledge.CategoryTroubleshooting, timeoutTranscript, knowledge.ExtractContext{})
	require.NoError(t, err)

	assert.Equal(t, "The DB connection times out in production, error: deadline exceeded", ext.Title)
	assert.InDelta(t, 0.7, ext.Confidence, 1e-9)
	assert.Contains(t, ext.Tags, "database")
	assert.Contains(t, ext.Rationale, "3 messages")

	p, ok := ext.Payload.(knowledge.Troubleshooting)
	require.True(t, ok)
	require.NoError(t, p.Validate())
	assert.Contains(t, p.ProblemDescription, "DB connection times out")
	assert.Contains(t, p.RootCause, "pool was exhausted")
	assert.Contains(t, p.SolutionSteps, "Fixed by increasing timeout to 60s")
}

func TestLocal_ExtractUsesSuggestedTitle(t *testing.T) {
	l := newTestLocal(t)
	ext, err := l.Extract(context.Background(), knowledge.CategoryTroubleshooting, timeoutTranscript, knowledge.ExtractContext{Title: "Database timeouts"})
	require.NoError(t, err)
	assert.Equal(t, "Database timeouts", ext.Title)
}

func TestLocal_ExtractEveryCategoryValidates(t *testing.T) {
	text := "[1] user_1: How do we rotate the API keys? See https://wiki.example.com/keys\n" +
		"[2] user_2: We decided to rotate monthly because of the audit\n" +
		"[3] user_1: 1. Generate a new key\n2. Update the secret\n"

	l := newTestLocal(t)
	for _, c := range knowledge.Categories {
		t.Run(string(c), func(t *testing.T) {
			ext, err := l.Extract(context.Background(), c, text, knowledge.ExtractContext{})
			require.NoError(t, err)
			require.NotNil(t, ext.Payload)
			assert.Equal(t, c, ext.Payload.Category())
			assert.NoError(t, ext.Payload.Validate())
			assert.NotEmpty(t, ext.Title)
		})
	}
}

func TestLocal_ExtractReference(t *testing.T) {
	l := newTestLocal(t)
	ext, err := l.Extract(context.Background(), knowledge.CategoryReference,
		"[1] user_1: Where are the runbooks?\n[2] user_2: All runbooks live at https://wiki.example.com/runbooks", knowledge.ExtractContext{})
	require.NoError(t, err)

	p := ext.Payload.(knowledge.Reference)
	assert.Equal(t, "https://wiki.example.com/runbooks", p.PrimaryResource)
	assert.Equal(t, "documentation", p.ResourceType)
	assert.Equal(t, "Where are the runbooks?", p.QuestionContext)
}

func TestLocal_ExtractPlainText(t *testing.T) {
	l := newTestLocal(t)
	ext, err := l.Extract(context.Background(), knowledge.CategoryProcess,
		"To release, tag the commit. Then run the deploy job. Finally check the dashboard.", knowledge.ExtractContext{})
	require.NoError(t, err)

	p := ext.Payload.(knowledge.Process)
	assert.Equal(t, "To release, tag the commit.", p.ProcessOverview)
	assert.Len(t, p.ProcessSteps, 2)
}

func TestLocal_ExtractEmpty(t *testing.T) {
	l := newTestLocal(t)
	_, err := l.Extract(context.Background(), knowledge.CategoryGeneral, "   ", knowledge.ExtractContext{})
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestLocal_DecideMatch(t *testing.T) {
	rec := &knowledge.Record{
		Category: knowledge.CategoryTroubleshooting,
		Title:    "DB connection times out",
		Tags:     []string{"database"},
	}
	tests := []struct {
		name       string
		candidates []matching.Candidate
		action     matching.Action
		target     string
	}{
		{
			name:   "no candidates",
			action: matching.ActionCreate,
		},
		{
			name: "duplicate",
			candidates: []matching.Candidate{
				{Path: "troubleshooting/db-connection-times-out.md", Title: "DB connection times out", Category: "troubleshooting"},
			},
			action: matching.ActionIgnore,
			target: "troubleshooting/db-connection-times-out.md",
		},
		{
			name: "related",
			candidates: []matching.Candidate{
				{Path: "process/deploys.md", Title: "Deploy checklist", Category: "process"},
				{Path: "troubleshooting/db-timeouts-staging.md", Title: "DB connection times out in staging", Category: "troubleshooting", Tags: []string{"database"}},
			},
			action: matching.ActionUpdate,
			target: "troubleshooting/db-timeouts-staging.md",
		},
		{
			name: "unrelated",
			candidates: []matching.Candidate{
				{Path: "process/deploys.md", Title: "Deploy checklist", Category: "process"},
			},
			action: matching.ActionCreate,
		},
	}

	l := newTestLocal(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := l.DecideMatch(context.Background(), rec, tt.candidates)
			require.NoError(t, err)
			assert.Equal(t, string(tt.action), v.Action)
			assert.Equal(t, tt.target, v.TargetPath)
			assert.GreaterOrEqual(t, v.Confidence, 0.0)
			assert.LessOrEqual(t, v.Confidence, 1.0)
		})
	}
}

func TestLocal_Merge(t *testing.T) {
	l := newTestLocal(t)
	rec := &knowledge.Record{
		Category: knowledge.CategoryTroubleshooting,
		Title:    "DB connection times out",
		Payload: knowledge.Troubleshooting{
			ProblemDescription: "Pool exhausted",
			SolutionSteps:      []string{"Raise pool size"},
		},
	}
	out, err := l.Merge(context.Background(), "## Problem Description\n\nOld\n", rec)
	require.NoError(t, err)
	assert.Contains(t, out, "## Problem Description\n\nOld\n\n## Update 2025-03-04\n\n")
	assert.Contains(t, out, "### Problem Description")
	assert.Contains(t, out, "Raise pool size")
}

func TestLocal_Answer(t *testing.T) {
	l := newTestLocal(t)
	sources := []index.Source{
		{Path: "process/deploy.md", Title: "Deploying", Content: "## Steps\n\n1. Run make deploy.\n2. Watch the dashboard."},
		{Path: "troubleshooting/db.md", Title: "DB connection times out", Content: "## Solution\n\n1. Increase the pool timeout to 60s.\n2. Restart the api."},
	}

	tests := []struct {
		name     string
		question string
		want     string
	}{
		{
			name:     "best sentence is quoted",
			question: "How do I fix the pool timeout?",
			want:     "According to DB connection times out, Increase the pool timeout to 60s.\n\nSources: DB connection times out",
		},
		{
			name:     "question words only",
			question: "How do I?",
			want:     index.NoAnswer,
		},
		{
			name:     "unrelated question",
			question: "Who owns billing?",
			want:     index.NoAnswer,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := l.Answer(context.Background(), tt.question, sources)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestLocal_CanceledContext(t *testing.T) {
	l := newTestLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Classify(ctx, "text")
	require.ErrorIs(t, err, context.Canceled)
}
