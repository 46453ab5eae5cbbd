package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the archie config dir inside it.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "archie")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

const memoryLocalYAML = `repository:
  host: memory
oracle:
  provider: local
`

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `repository:
  host: github
  owner: acme
  name: kb
  token: ghp_example
oracle:
  provider: anthropic
  api_key: sk-test
  model: claude-sonnet-4-5
pipeline:
  max_publish_attempts: 3
  labels: [docs]
`, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "acme", cfg.Repository.Owner)
	assert.Equal(t, "kb", cfg.Repository.Name)
	assert.Equal(t, "main", cfg.Repository.Branch)
	assert.Equal(t, "ghp_example", cfg.Repository.Token.Value())
	assert.Equal(t, ProviderAnthropic, cfg.Oracle.Provider)
	assert.Equal(t, 3, cfg.Pipeline.MaxPublishAttempts)
	assert.Equal(t, []string{"docs"}, cfg.Pipeline.Labels)
}

func TestLoadWithFile_Defaults(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, memoryLocalYAML, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Pipeline.MinContentChars)
	assert.Equal(t, 5, cfg.Pipeline.MaxPublishAttempts)
	assert.Equal(t, 4, cfg.Pipeline.AnonymizeConcurrency)
	assert.Equal(t, 20, cfg.Pipeline.MaxMatchCandidates)
	assert.Equal(t, "kb/", cfg.Pipeline.BranchPrefix)
	assert.Equal(t, []string{"archie-generated", "knowledge-base"}, cfg.Pipeline.Labels)
	assert.Equal(t, 100, cfg.Source.HistoryLimit)
	assert.Equal(t, "https://slack.com/api", cfg.Source.SlackBaseURL)
	assert.Equal(t, 4000, cfg.Oracle.MaxTokens)
	assert.Equal(t, 0.0, cfg.Oracle.Temperature)
	assert.Equal(t, 2*time.Minute, cfg.Oracle.Timeout.Duration())
	assert.Len(t, cfg.Repository.DefaultCategories, 5)
	assert.Equal(t, "archie", cfg.Telemetry.ServiceName)
}

func TestLoadWithFile_EnvironmentOverride(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, memoryLocalYAML+`pipeline:
  max_publish_attempts: 2
`, 0600)

	t.Setenv("ARCHIE_PIPELINE_MAX_PUBLISH_ATTEMPTS", "7")
	t.Setenv("ARCHIE_PIPELINE_DRY_RUN", "true")
	t.Setenv("ARCHIE_REPOSITORY_BRANCH", "trunk")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Pipeline.MaxPublishAttempts)
	assert.True(t, cfg.Pipeline.DryRun)
	assert.Equal(t, "trunk", cfg.Repository.Branch)
}

func TestLoadWithFile_MissingFile(t *testing.T) {
	dir := setupTestHome(t)
	t.Setenv("ARCHIE_REPOSITORY_HOST", "memory")
	t.Setenv("ARCHIE_ORACLE_PROVIDER", "local")

	cfg, err := LoadWithFile(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, HostMemory, cfg.Repository.Host)
}

func TestLoadWithFile_InvalidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "repository: [unterminated\n", 0600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config file")
}

func TestLoadWithFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "github host without owner",
			yaml:    "repository:\n  host: github\n  token: x\noracle:\n  provider: local\n",
			wantErr: "owner and name",
		},
		{
			name:    "github host without token",
			yaml:    "repository:\n  host: github\n  owner: a\n  name: b\noracle:\n  provider: local\n",
			wantErr: "token is required",
		},
		{
			name:    "local host without path",
			yaml:    "repository:\n  host: local\noracle:\n  provider: local\n",
			wantErr: "local_path",
		},
		{
			name:    "unknown host",
			yaml:    "repository:\n  host: gitlab\noracle:\n  provider: local\n",
			wantErr: "unknown repository host",
		},
		{
			name:    "openai without key",
			yaml:    "repository:\n  host: memory\noracle:\n  provider: openai\n",
			wantErr: "api_key is required",
		},
		{
			name:    "unknown provider",
			yaml:    "repository:\n  host: memory\noracle:\n  provider: mystery\n",
			wantErr: "unknown oracle provider",
		},
		{
			name:    "history limit above API maximum",
			yaml:    memoryLocalYAML + "source:\n  history_limit: 500\n",
			wantErr: "history_limit",
		},
		{
			name:    "invalid exclude pattern",
			yaml:    "repository:\n  host: memory\n  exclude: [\"[drafts\"]\noracle:\n  provider: local\n",
			wantErr: "repository exclude",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupTestHome(t)
			path := writeConfig(t, dir, tt.yaml, 0600)

			_, err := LoadWithFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadWithFile_PathTraversal(t *testing.T) {
	setupTestHome(t)
	outside := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(outside, []byte(memoryLocalYAML), 0600))

	_, err := LoadWithFile(outside)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")
}

func TestLoadWithFile_Permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}

	tests := []struct {
		perm    os.FileMode
		wantErr bool
	}{
		{perm: 0600, wantErr: false},
		{perm: 0400, wantErr: false},
		{perm: 0644, wantErr: true},
		{perm: 0666, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%o", tt.perm), func(t *testing.T) {
			dir := setupTestHome(t)
			path := writeConfig(t, dir, memoryLocalYAML, tt.perm)

			_, err := LoadWithFile(path)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "insecure config file permissions")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLoadWithFile_FileTooLarge(t *testing.T) {
	dir := setupTestHome(t)
	big := memoryLocalYAML + "# " + strings.Repeat("x", maxConfigFileSize) + "\n"
	path := writeConfig(t, dir, big, 0600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "repository.owner", envKey("ARCHIE_REPOSITORY_OWNER"))
	assert.Equal(t, "oracle.api_key", envKey("ARCHIE_ORACLE_API_KEY"))
	assert.Equal(t, "pipeline.max_match_candidates", envKey("ARCHIE_PIPELINE_MAX_MATCH_CANDIDATES"))
	assert.Equal(t, "debug", envKey("ARCHIE_DEBUG"))
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("xoxb-123")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "xoxb-123", s.Value())
	assert.True(t, s.IsSet())
	assert.False(t, Secret("").IsSet())

	out, err := json.Marshal(struct {
		Token Secret `json:"token"`
	}{Token: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"[REDACTED]"}`, string(out))

	var back Secret
	assert.Error(t, json.Unmarshal([]byte(`"[REDACTED]"`), &back))
	require.NoError(t, json.Unmarshal([]byte(`"real"`), &back))
	assert.Equal(t, "real", back.Value())

	require.NoError(t, back.UnmarshalText([]byte("  ghp_abc\n")))
	assert.Equal(t, "ghp_abc", back.Value())
	assert.ErrorIs(t, back.UnmarshalText([]byte("[REDACTED]")), errRedactedSecret)
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())
	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
