package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{in: "troubleshooting", want: CategoryTroubleshooting},
		{in: "PROCESS", want: CategoryProcess},
		{in: "  Decision\n", want: CategoryDecision},
		{in: `"reference"`, want: CategoryReference},
		{in: "general.", want: CategoryGeneral},
		{in: "howto", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCategory(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.True(t, CategoryProcess.Valid())
	assert.False(t, Category("Process").Valid())
	assert.Equal(t, "Troubleshooting", CategoryTroubleshooting.Title())
}

func TestPayload_CategoryMatchesVariant(t *testing.T) {
	for _, c := range Categories {
		p, err := NewPayload(c)
		require.NoError(t, err)
		assert.Equal(t, c, p.Category())
		assert.Error(t, p.Validate(), "zero %s payload should be invalid", c)
	}
	_, err := NewPayload("other")
	assert.Error(t, err)
}

func TestPayload_Validate(t *testing.T) {
	err := Troubleshooting{ProblemDescription: "DB times out"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "solution_steps")

	assert.NoError(t, Troubleshooting{
		ProblemDescription: "DB times out",
		SolutionSteps:      []string{"Increase timeout to 60s"},
	}.Validate())

	err = Decision{DecisionContext: "  "}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decision_context, decision_made")

	assert.Error(t, Process{ProcessOverview: "deploy", ProcessSteps: []string{" "}}.Validate())
	assert.NoError(t, General{Summary: "chat about lunch"}.Validate())
	assert.NoError(t, Reference{PrimaryResource: "runbook", ResourceDescription: "ops runbook"}.Validate())
}

func TestMarkdown(t *testing.T) {
	p := Troubleshooting{
		ProblemDescription: "DB connection times out",
		Environment:        "production",
		SolutionSteps:      []string{"Increase timeout to 60s", "Restart workers"},
		Symptoms:           []string{"", "timeouts in logs"},
	}

	want := "## Problem Description\n\nDB connection times out\n\n" +
		"## Environment\n\nproduction\n\n" +
		"## Symptoms\n\n- timeouts in logs\n\n" +
		"## Solution\n\n1. Increase timeout to 60s\n2. Restart workers\n"
	assert.Equal(t, want, Markdown(p))
}

func TestDecodeExtraction(t *testing.T) {
	data := []byte(`{
		"title": "DB timeouts",
		"tags": ["Database", "timeouts"],
		"confidence": 0.9,
		"rationale": "clear fix",
		"fields": {"problem_description": "DB connection times out", "solution_steps": ["Increase timeout to 60s"]}
	}`)

	ext, err := DecodeExtraction(CategoryTroubleshooting, data)
	require.NoError(t, err)
	assert.Equal(t, "DB timeouts", ext.Title)
	p, ok := ext.Payload.(Troubleshooting)
	require.True(t, ok)
	assert.Equal(t, []string{"Increase timeout to 60s"}, p.SolutionSteps)

	_, err = DecodeExtraction(CategoryTroubleshooting, []byte(`{"title": "x"}`))
	assert.Error(t, err)

	_, err = DecodeExtraction(CategoryProcess, []byte(`{"fields": {"process_steps": "not a list"}}`))
	assert.Error(t, err)

	_, err = DecodeExtraction("bogus", data)
	assert.Error(t, err)
}

func TestNewEnvelope(t *testing.T) {
	for _, c := range Categories {
		env, err := NewEnvelope(c)
		require.NoError(t, err)
		assert.NotNil(t, env)
	}
	_, err := NewEnvelope("bogus")
	assert.Error(t, err)
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{"Database", "db_timeouts", "  Connection Pool ", "#infra", "database", "!!!", "", "c++"})
	assert.Equal(t, []string{"database", "db-timeouts", "connection-pool", "infra", "c"}, got)
}

func TestSlugAndSuggestedPath(t *testing.T) {
	assert.Equal(t, "db-connection-times-out", Slug("DB Connection: Times Out!"))
	assert.Equal(t, "troubleshooting/db-connection-times-out.md", SuggestedPath(CategoryTroubleshooting, "DB connection times out"))
	assert.Equal(t, "general/untitled.md", SuggestedPath(CategoryGeneral, "???"))

	r := &Record{Category: CategoryProcess, Title: "Deploy to Prod"}
	assert.Equal(t, "process/deploy-to-prod.md", r.SuggestedPath())
	assert.Equal(t, "", r.Body())
}

func TestProvenanceLinks(t *testing.T) {
	p := Provenance{Workspace: "acme", Channel: "C1"}
	assert.Equal(t, "https://acme.slack.com/archives/C1", p.SourceLink())
	assert.Equal(t, "#C1", p.SourceLabel())

	p.Permalink = "https://acme.slack.com/archives/C1/p1700000000000100"
	assert.Equal(t, p.Permalink, p.SourceLink())

	assert.Equal(t, "text", Provenance{SourceKind: "text"}.SourceLabel())
	assert.Equal(t, "", Provenance{}.SourceLink())
}
