// Package openai provides an oracle Completer backed by the OpenAI chat
// completions API. Structured requests use strict JSON-schema output.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/fyrsmithlabs/archie/internal/oracle"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

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
	client openai.Client
	model  string
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai API key required")
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
	return &Client{client: openai.NewClient(opts...), model: model}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Complete sends req as a system and a user message.
func (c *Client) Complete(ctx context.Context, req oracle.Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        req.Schema.Name,
					Description: openai.String(req.Schema.Description),
					Schema:      req.Schema.Definition,
					Strict:      openai.Bool(true),
				},
			},
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai %s: %w", req.Operation, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai %s: %w", req.Operation, oracle.ErrEmptyResponse)
	}
	if refusal := resp.Choices[0].Message.Refusal; refusal != "" {
		return "", fmt.Errorf("openai %s: model refused: %s", req.Operation, refusal)
	}
	return resp.Choices[0].Message.Content, nil
}

var _ oracle.Completer = (*Client)(nil)
