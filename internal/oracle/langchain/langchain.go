// Package langchain provides an oracle Completer on top of langchaingo, for
// OpenAI-compatible endpoints such as local model servers.
package langchain

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/archie/internal/oracle"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// placeholderToken is sent when the endpoint needs no key; langchaingo
// refuses an empty token.
const placeholderToken = "unused"

// Config configures a Client.
type Config struct {
	APIKey     string `json:"-"`
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Client implements oracle.Completer.
type Client struct {
	llm   llms.Model
	model string
}

// New creates a Client for an OpenAI-compatible endpoint.
func New(cfg Config) (*Client, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	token := cfg.APIKey
	if token == "" {
		token = placeholderToken
	}

	opts := []openai.Option{
		openai.WithModel(model),
		openai.WithToken(token),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, openai.WithHTTPClient(cfg.HTTPClient))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating langchain client: %w", err)
	}
	return &Client{llm: llm, model: model}, nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(llm llms.Model, model string) *Client {
	return &Client{llm: llm, model: model}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Complete sends req. Structured requests switch on JSON mode and carry
// the schema in the system prompt.
func (c *Client) Complete(ctx context.Context, req oracle.Request) (string, error) {
	system := req.System
	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.Schema != nil {
		system += "\n\n" + req.Schema.Instruction()
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := c.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt),
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("langchain %s: %w", req.Operation, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("langchain %s: %w", req.Operation, oracle.ErrEmptyResponse)
	}
	return resp.Choices[0].Content, nil
}

var _ oracle.Completer = (*Client)(nil)
