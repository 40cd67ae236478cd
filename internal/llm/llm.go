// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm sends conversations to a language model and returns its
// reply as typed content blocks.
package llm

import (
	"context"
	"errors"

	"github.com/pdiddy/research-agent/pkg/types"
)

var (
	// ErrEmptyResponse is returned when the API yields no message at all.
	ErrEmptyResponse = errors.New("llm: empty response")

	// ErrUnsupportedContent is returned for reply blocks other than text
	// and tool use.
	ErrUnsupportedContent = errors.New("llm: unsupported content block")

	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("llm: API key is required")
)

// Request is one model invocation.
type Request struct {
	Model     string
	MaxTokens int64
	Tools     []types.ToolDescriptor
	Messages  []types.Message
}

// Response is the model's reply. Content holds only TextBlock and
// ToolUseBlock values, in the order the model produced them.
type Response struct {
	Content    []types.ContentBlock
	StopReason string
}

// Model completes a conversation.
type Model interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
