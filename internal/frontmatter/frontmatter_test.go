package frontmatter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		header  string
		body    string
		ok      bool
		wantErr bool
	}{
		{name: "header and body", in: "---\ntitle: A\n---\n# Body\n", header: "title: A", body: "# Body\n", ok: true},
		{name: "no header", in: "# Body\n", body: "# Body\n"},
		{name: "empty header", in: "---\n---\nbody", body: "body", ok: true},
		{name: "header only", in: "---\ntitle: A\n---", header: "title: A", ok: true},
		{name: "crlf", in: "---\r\ntitle: A\r\n---\r\nbody", header: "title: A", body: "body", ok: true},
		{name: "unterminated", in: "---\ntitle: A\nbody", body: "---\ntitle: A\nbody", ok: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, body, ok, err := Split(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnterminated)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.header, header)
			assert.Equal(t, tt.body, body)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestParse(t *testing.T) {
	fields, body, err := Parse("---\ntitle: DB timeouts\ncategory: troubleshooting\ntags: [database, timeouts]\nconfidence: 0.9\n---\n\n## Problem\n")
	require.NoError(t, err)
	assert.Equal(t, "DB timeouts", String(fields, "title"))
	assert.Equal(t, []string{"database", "timeouts"}, Strings(fields, "tags"))
	assert.Equal(t, 0.9, Float(fields, "confidence"))
	assert.Equal(t, "\n## Problem\n", body)

	fields, body, err = Parse("---\ntitle: [broken\n---\nbody text")
	require.Error(t, err)
	assert.Empty(t, fields)
	assert.Equal(t, "body text", body)
}

func TestCompose_RoundTrip(t *testing.T) {
	type header struct {
		Title string   `yaml:"title"`
		Tags  []string `yaml:"tags"`
	}
	out, err := Compose(header{Title: "Deploy: prod", Tags: []string{"deploy"}}, "## Steps\n")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "---\ntitle: "))
	assert.True(t, strings.HasSuffix(out, "\n---\n\n## Steps\n"))

	fields, body, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, "Deploy: prod", String(fields, "title"))
	assert.Equal(t, "\n## Steps\n", body)
}

func TestFieldHelpers(t *testing.T) {
	fields := map[string]any{"n": 3, "s": "a, b,,c", "f": "0.5", "b": true}
	assert.Equal(t, "3", String(fields, "n"))
	assert.Equal(t, "true", String(fields, "b"))
	assert.Equal(t, "", String(fields, "missing"))
	assert.Equal(t, []string{"a", "b", "c"}, Strings(fields, "s"))
	assert.Nil(t, Strings(fields, "n"))
	assert.Equal(t, 0.5, Float(fields, "f"))
	assert.Equal(t, 3.0, Float(fields, "n"))
}

func TestString_Dates(t *testing.T) {
	fields, _, err := Parse("---\ncreated: 2024-01-02\nseen: 2024-01-02T10:00:00Z\nquoted: \"2024-05-06\"\n---\n")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", String(fields, "created"))
	assert.Equal(t, "2024-01-02T10:00:00Z", String(fields, "seen"))
	assert.Equal(t, "2024-05-06", String(fields, "quoted"))
}
