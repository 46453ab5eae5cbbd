// Package config provides configuration loading for archie.
//
// Configuration is read from a YAML file, overridden by ARCHIE_* environment
// variables, and completed with defaults before validation.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/archie/internal/ignore"
)

// Config holds the complete archie configuration.
type Config struct {
	Source     SourceConfig     `koanf:"source"`
	Repository RepositoryConfig `koanf:"repository"`
	Oracle     OracleConfig     `koanf:"oracle"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// SourceConfig holds chat source configuration.
type SourceConfig struct {
	SlackToken         Secret   `koanf:"slack_token"`
	SlackChannel       string   `koanf:"slack_channel"`
	SlackBaseURL       string   `koanf:"slack_base_url"`
	SlackRatePerMinute int      `koanf:"slack_rate_per_minute"`
	HistoryLimit       int      `koanf:"history_limit"`
	Timeout            Duration `koanf:"timeout"`
}

// Repository host kinds.
const (
	HostGitHub = "github"
	HostLocal  = "local"
	HostMemory = "memory"
)

// RepositoryConfig identifies the knowledge-base repository and how to reach it.
type RepositoryConfig struct {
	Host              string   `koanf:"host"`
	Owner             string   `koanf:"owner"`
	Name              string   `koanf:"name"`
	Branch            string   `koanf:"branch"`
	Token             Secret   `koanf:"token"`
	BaseURL           string   `koanf:"base_url"`
	WebURL            string   `koanf:"web_url"`
	LocalPath         string   `koanf:"local_path"`
	DefaultCategories []string `koanf:"default_categories"`
	// Exclude holds gitignore-style patterns skipped when indexing.
	Exclude []string `koanf:"exclude"`
}

// Oracle providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderLangChain = "langchain"
	ProviderLocal     = "local"
)

// OracleConfig selects and configures the model provider behind the oracles.
type OracleConfig struct {
	Provider          string   `koanf:"provider"`
	Model             string   `koanf:"model"`
	APIKey            Secret   `koanf:"api_key"`
	BaseURL           string   `koanf:"base_url"`
	Temperature       float64  `koanf:"temperature"`
	MaxTokens         int      `koanf:"max_tokens"`
	RatePerMinute     int      `koanf:"rate_per_minute"`
	PromptTokenBudget int      `koanf:"prompt_token_budget"`
	Timeout           Duration `koanf:"timeout"`
}

// PipelineConfig tunes pipeline behavior.
type PipelineConfig struct {
	MinContentChars      int      `koanf:"min_content_chars"`
	MaxPublishAttempts   int      `koanf:"max_publish_attempts"`
	AnonymizeConcurrency int      `koanf:"anonymize_concurrency"`
	MaxMatchCandidates   int      `koanf:"max_match_candidates"`
	BranchPrefix         string   `koanf:"branch_prefix"`
	BranchMaxLength      int      `koanf:"branch_max_length"`
	DryRun               bool     `koanf:"dry_run"`
	Labels               []string `koanf:"labels"`
}

// LoggingConfig holds the subset of logging settings exposed to users.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// Sampling thins repeated entries below error.
	Sampling bool `koanf:"sampling"`
	// OTel forwards log records through the OpenTelemetry log bridge.
	OTel bool `koanf:"otel"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"`
	Protocol     string  `koanf:"protocol"`
	Insecure     bool    `koanf:"insecure"`
	ServiceName  string  `koanf:"service_name"`
	SamplingRate float64 `koanf:"sampling_rate"`
	// LogsEndpoint receives log records over OTLP/HTTP. Empty falls back to
	// Endpoint when Protocol is http/protobuf.
	LogsEndpoint string `koanf:"logs_endpoint"`
}

// Default returns a configuration populated with defaults only.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
//
// Returns an error if:
//   - the repository host or oracle provider is unknown
//   - a github host lacks owner, name or token
//   - a local host lacks a path
//   - a hosted oracle provider lacks an API key
//   - numeric pipeline limits are out of range
//   - an exclude pattern is not a valid glob
func (c *Config) Validate() error {
	switch c.Repository.Host {
	case HostGitHub:
		if c.Repository.Owner == "" || c.Repository.Name == "" {
			return errors.New("repository owner and name are required for the github host")
		}
		if !c.Repository.Token.IsSet() {
			return errors.New("repository token is required for the github host")
		}
	case HostLocal:
		if c.Repository.LocalPath == "" {
			return errors.New("repository local_path is required for the local host")
		}
	case HostMemory:
	default:
		return fmt.Errorf("unknown repository host %q (must be github, local or memory)", c.Repository.Host)
	}

	switch c.Oracle.Provider {
	case ProviderOpenAI, ProviderAnthropic:
		if !c.Oracle.APIKey.IsSet() {
			return fmt.Errorf("oracle api_key is required for provider %q", c.Oracle.Provider)
		}
	case ProviderLangChain, ProviderLocal:
	default:
		return fmt.Errorf("unknown oracle provider %q", c.Oracle.Provider)
	}

	if c.Oracle.Temperature < 0 || c.Oracle.Temperature > 2 {
		return fmt.Errorf("oracle temperature must be between 0 and 2, got %v", c.Oracle.Temperature)
	}
	if c.Pipeline.MaxPublishAttempts < 1 {
		return fmt.Errorf("max_publish_attempts must be at least 1, got %d", c.Pipeline.MaxPublishAttempts)
	}
	if c.Pipeline.AnonymizeConcurrency < 1 {
		return fmt.Errorf("anonymize_concurrency must be at least 1, got %d", c.Pipeline.AnonymizeConcurrency)
	}
	if c.Pipeline.MinContentChars < 0 {
		return errors.New("min_content_chars cannot be negative")
	}
	if c.Source.HistoryLimit < 1 || c.Source.HistoryLimit > 100 {
		return fmt.Errorf("history_limit must be 1-100, got %d", c.Source.HistoryLimit)
	}
	for _, p := range c.Repository.Exclude {
		if err := ignore.ValidatePattern(p); err != nil {
			return fmt.Errorf("repository exclude: %w", err)
		}
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return errors.New("telemetry endpoint required when telemetry is enabled")
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Source defaults
	if cfg.Source.SlackBaseURL == "" {
		cfg.Source.SlackBaseURL = "https://slack.com/api"
	}
	if cfg.Source.SlackRatePerMinute == 0 {
		cfg.Source.SlackRatePerMinute = 50
	}
	if cfg.Source.HistoryLimit == 0 {
		cfg.Source.HistoryLimit = 100
	}
	if cfg.Source.Timeout == 0 {
		cfg.Source.Timeout = Duration(30 * time.Second)
	}

	// Repository defaults
	if cfg.Repository.Host == "" {
		cfg.Repository.Host = HostGitHub
	}
	if cfg.Repository.Branch == "" {
		cfg.Repository.Branch = "main"
	}
	if cfg.Repository.WebURL == "" {
		cfg.Repository.WebURL = "https://github.com"
	}
	if len(cfg.Repository.DefaultCategories) == 0 {
		cfg.Repository.DefaultCategories = []string{"troubleshooting", "process", "decision", "reference", "general"}
	}

	// Oracle defaults
	if cfg.Oracle.Provider == "" {
		cfg.Oracle.Provider = ProviderOpenAI
	}
	if cfg.Oracle.MaxTokens == 0 {
		cfg.Oracle.MaxTokens = 4000
	}
	if cfg.Oracle.RatePerMinute == 0 {
		cfg.Oracle.RatePerMinute = 50
	}
	if cfg.Oracle.PromptTokenBudget == 0 {
		cfg.Oracle.PromptTokenBudget = 12000
	}
	if cfg.Oracle.Timeout == 0 {
		cfg.Oracle.Timeout = Duration(2 * time.Minute)
	}

	// Pipeline defaults
	if cfg.Pipeline.MinContentChars == 0 {
		cfg.Pipeline.MinContentChars = 50
	}
	if cfg.Pipeline.MaxPublishAttempts == 0 {
		cfg.Pipeline.MaxPublishAttempts = 5
	}
	if cfg.Pipeline.AnonymizeConcurrency == 0 {
		cfg.Pipeline.AnonymizeConcurrency = 4
	}
	if cfg.Pipeline.MaxMatchCandidates == 0 {
		cfg.Pipeline.MaxMatchCandidates = 20
	}
	if cfg.Pipeline.BranchPrefix == "" {
		cfg.Pipeline.BranchPrefix = "kb/"
	}
	if cfg.Pipeline.BranchMaxLength == 0 {
		cfg.Pipeline.BranchMaxLength = 50
	}
	if len(cfg.Pipeline.Labels) == 0 {
		cfg.Pipeline.Labels = []string{"archie-generated", "knowledge-base"}
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	// Telemetry defaults
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "archie"
	}
	if cfg.Telemetry.SamplingRate == 0 {
		cfg.Telemetry.SamplingRate = 1.0
	}
}
