// Package anthropic provides an oracle Completer backed by the Anthropic
// Messages API. Structured requests describe their schema in the system
// prompt and expect a JSON-only reply.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/fyrsmithlabs/archie/internal/oracle"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-3-5-sonnet-20241022"

// Config configures a Client.
type Config struct {
	APIKey     string `json:"-"`
	BaseURL    string
	Model      string
	MaxRetries int
	HTTPClient *http.Client
}

// Client implements oracle.Completer.
type Client struct {
	client anthropic.Client
	model  string
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic API key required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: anthropic.NewClient(opts...), model: model}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Complete sends req and concatenates the text blocks of the reply.
func (c *Client) Complete(ctx context.Context, req oracle.Request) (string, error) {
	system := req.System
	if req.Schema != nil {
		system += "\n\n" + req.Schema.Instruction()
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = oracle.DefaultMaxTokens
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   maxTokens,
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt))},
		Temperature: anthropic.Float(req.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("anthropic %s: %w", req.Operation, err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("anthropic %s: %w", req.Operation, oracle.ErrEmptyResponse)
	}
	return b.String(), nil
}

var _ oracle.Completer = (*Client)(nil)
