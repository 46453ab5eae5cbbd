package oracle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudget_Count(t *testing.T) {
	b := NewBudget(0)
	assert.Equal(t, DefaultPromptTokenBudget, b.Limit())
	assert.Equal(t, 0, b.Count(""))
	assert.Greater(t, b.Count("hello world"), 0)
	assert.Greater(t, b.Count(strings.Repeat("hello world ", 100)), b.Count("hello world"))
}

func TestBudget_Truncate(t *testing.T) {
	b := NewBudget(100)
	short := "short text"
	assert.Equal(t, short, b.Truncate(short, 50))
	assert.Equal(t, "", b.Truncate(short, 0))

	long := strings.Repeat("token ", 500)
	cut := b.Truncate(long, 10)
	assert.True(t, strings.HasSuffix(cut, "..."))
	assert.LessOrEqual(t, b.Count(strings.TrimSuffix(cut, "...")), 10)
}

func TestBudget_FitUnderBudgetIsUnchanged(t *testing.T) {
	b := NewBudget(1000)
	parts := []string{"one", "two", "three"}
	assert.Equal(t, parts, b.Fit("fixed", parts))
}

func TestBudget_FitTrimsEveryPart(t *testing.T) {
	b := NewBudget(300)
	long := strings.Repeat("alpha beta gamma delta ", 100)
	parts := []string{"keep me " + long, "and me " + long, "short"}

	got := b.Fit("fixed prompt", parts)
	require.Len(t, got, 3)
	assert.True(t, strings.HasPrefix(got[0], "keep me"))
	assert.True(t, strings.HasPrefix(got[1], "and me"))
	assert.Equal(t, "short", got[2])

	total := 0
	for _, p := range got {
		total += b.Count(strings.TrimSuffix(p, "..."))
	}
	assert.LessOrEqual(t, total, 300)
}

func TestBudget_FitKeepsMinimumShare(t *testing.T) {
	b := NewBudget(10)
	long := strings.Repeat("word ", 200)

	got := b.Fit(strings.Repeat("fixed ", 50), []string{long, long})
	require.Len(t, got, 2)
	for _, p := range got {
		assert.Greater(t, len(p), 0)
		assert.LessOrEqual(t, b.Count(strings.TrimSuffix(p, "...")), minPartTokens)
	}
}
