// Package provider builds the configured Oracle.
package provider

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/archie/internal/config"
	"github.com/fyrsmithlabs/archie/internal/oracle"
	"github.com/fyrsmithlabs/archie/internal/oracle/anthropic"
	"github.com/fyrsmithlabs/archie/internal/oracle/langchain"
	"github.com/fyrsmithlabs/archie/internal/oracle/openai"
	"github.com/fyrsmithlabs/archie/internal/pii"
)

// Option customizes provider construction.
type Option func(*options)

type options struct {
	httpClient *http.Client
	masker     pii.Masker
}

// WithHTTPClient sets the HTTP client used by hosted providers.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithMasker sets the masker used by the local provider.
func WithMasker(m pii.Masker) Option {
	return func(o *options) { o.masker = m }
}

// New creates the Oracle selected by cfg.Provider.
func New(cfg config.OracleConfig, logger *zap.Logger, opts ...Option) (oracle.Oracle, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var (
		c   oracle.Completer
		err error
	)
	switch cfg.Provider {
	case config.ProviderLocal:
		local, err := oracle.NewLocal(o.masker, logger)
		if err != nil {
			return nil, fmt.Errorf("creating local oracle: %w", err)
		}
		return local, nil
	case config.ProviderOpenAI:
		c, err = openai.New(openai.Config{
			APIKey:     cfg.APIKey.Value(),
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			HTTPClient: o.httpClient,
		})
	case config.ProviderAnthropic:
		c, err = anthropic.New(anthropic.Config{
			APIKey:     cfg.APIKey.Value(),
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			HTTPClient: o.httpClient,
		})
	case config.ProviderLangChain:
		c, err = langchain.New(langchain.Config{
			APIKey:     cfg.APIKey.Value(),
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			HTTPClient: o.httpClient,
		})
	default:
		return nil, fmt.Errorf("unknown oracle provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s oracle: %w", cfg.Provider, err)
	}

	logger.Info("Oracle configured",
		zap.String("provider", cfg.Provider),
		zap.String("model", c.Model()),
	)
	llm, err := oracle.NewLLM(c, oracle.Options{
		MaxTokens:         cfg.MaxTokens,
		Temperature:       cfg.Temperature,
		RatePerMinute:     cfg.RatePerMinute,
		PromptTokenBudget: cfg.PromptTokenBudget,
		Timeout:           cfg.Timeout.Duration(),
	}, logger)
	if err != nil {
		return nil, err
	}
	return llm, nil
}
