// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/pkg/types"
)

// DefaultModel is used when the configuration names no model.
const DefaultModel = "claude-3-7-sonnet-20250219"

// DefaultMaxTokens is used when the configuration sets no output limit.
const DefaultMaxTokens = 2024

const defaultMaxRetries = 2

// Anthropic is a Model backed by the Anthropic Messages API.
type Anthropic struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	log       *zap.Logger
}

type anthropicOptions struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// Option configures the Anthropic model.
type Option func(*anthropicOptions)

// WithBaseURL points the client at another endpoint.
func WithBaseURL(u string) Option {
	return func(o *anthropicOptions) { o.baseURL = u }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *anthropicOptions) { o.httpClient = c }
}

// WithLogger sets the model logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *anthropicOptions) {
		if log != nil {
			o.log = log
		}
	}
}

// NewAnthropic builds a model from the AI configuration.
func NewAnthropic(cfg types.AIConfig, opts ...Option) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	o := anthropicOptions{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	sdkOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(maxRetries),
	}
	if o.baseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(o.baseURL))
	}
	if o.httpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(o.httpClient))
	}
	client := anthropic.NewClient(sdkOpts...)

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &Anthropic{
		client:    &client,
		model:     model,
		maxTokens: maxTokens,
		log:       o.log.Named("llm"),
	}, nil
}

// Complete sends the conversation and tool list to the Messages API.
// Request fields left zero fall back to the configured model and limit.
func (a *Anthropic) Complete(ctx context.Context, req Request) (Response, error) {
	messages, err := toMessageParams(req.Messages)
	if err != nil {
		return Response{}, err
	}

	model := req.Model
	if model == "" {
		model = a.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if tools := toToolParams(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	result, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic: creating message: %w", err)
	}
	if result == nil {
		return Response{}, ErrEmptyResponse
	}
	a.log.Debug("message created",
		zap.String("id", result.ID),
		zap.String("stop_reason", string(result.StopReason)),
		zap.Int64("input_tokens", result.Usage.InputTokens),
		zap.Int64("output_tokens", result.Usage.OutputTokens),
		zap.Int("blocks", len(result.Content)))

	content, err := fromContentBlocks(result.Content)
	if err != nil {
		return Response{}, err
	}
	return Response{Content: content, StopReason: string(result.StopReason)}, nil
}

func fromContentBlocks(blocks []anthropic.ContentBlockUnion) ([]types.ContentBlock, error) {
	out := make([]types.ContentBlock, 0, len(blocks))
	for _, block := range blocks {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			out = append(out, types.TextBlock{Text: b.Text})
		case anthropic.ToolUseBlock:
			input := b.Input
			if len(input) == 0 {
				input = json.RawMessage(`{}`)
			}
			out = append(out, types.ToolUseBlock{ID: b.ID, Name: b.Name, Input: input})
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedContent, block.Type)
		}
	}
	return out, nil
}

func toMessageParams(messages []types.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for i, m := range messages {
		var blocks []anthropic.ContentBlockParamUnion
		for _, c := range m.Content {
			switch b := c.(type) {
			case types.TextBlock:
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case types.ToolUseBlock:
				input := b.Input
				if len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ID, input, b.Name))
			case types.ToolResultBlock:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
			default:
				return nil, fmt.Errorf("message %d: %w: %T", i, ErrUnsupportedContent, c)
			}
		}
		if len(blocks) == 0 {
			return nil, fmt.Errorf("message %d: no content", i)
		}

		switch m.Role {
		case types.RoleUser:
			out = append(out, anthropic.NewUserMessage(blocks...))
		case types.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
	}
	return out, nil
}

func toToolParams(tools []types.ToolDescriptor) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: t.InputSchema["properties"],
		}
		if req := requiredFields(t.InputSchema["required"]); len(req) > 0 {
			schema.Required = req
		}
		out[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		}
	}
	return out
}

// requiredFields reads a JSON schema "required" list, which decodes as
// []any from the wire and []string from Go literals.
func requiredFields(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
