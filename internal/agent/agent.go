// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package agent drives a tool-augmented conversation: it sends the history
// to the model, routes requested tool calls through the MCP session, feeds
// the results back and stops once the model answers with text alone.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/llm"
	"github.com/pdiddy/research-agent/internal/transport"
	"github.com/pdiddy/research-agent/pkg/types"
)

// ErrTurnLimit is returned when a query needs more model calls than allowed.
var ErrTurnLimit = errors.New("agent: turn limit reached")

// DefaultMaxTurns caps model calls per query.
const DefaultMaxTurns = 20

// State is a step of the conversation loop.
type State int

const (
	AwaitingModel State = iota
	ModelResponded
	ExecutingTool
	Done
)

func (s State) String() string {
	switch s {
	case AwaitingModel:
		return "awaiting_model"
	case ModelResponded:
		return "model_responded"
	case ExecutingTool:
		return "executing_tool"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Tools is the part of the MCP session the loop needs.
type Tools interface {
	Tools() []types.ToolDescriptor
	CallTool(ctx context.Context, name string, args json.RawMessage) (transport.ToolResult, error)
}

// Conversation is the message history of one session.
type Conversation struct {
	ID       string
	Messages []types.Message
}

// NewConversation starts an empty conversation with a fresh ID.
func NewConversation() *Conversation {
	return &Conversation{ID: uuid.NewString()}
}

func (c *Conversation) append(m types.Message) {
	c.Messages = append(c.Messages, m)
}

// Orchestrator runs queries against a model and a tool session.
type Orchestrator struct {
	model       llm.Model
	tools       Tools
	modelName   string
	maxTokens   int64
	maxTurns    int
	callTimeout time.Duration
	toolTimeout time.Duration

	log    *zap.Logger
	out    io.Writer
	notice *color.Color
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithOutput sets where model text and tool notices are written.
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) {
		if w != nil {
			o.out = w
		}
	}
}

// New builds an orchestrator from the agent configuration.
func New(model llm.Model, tools Tools, cfg types.AgentConfig, opts ...Option) *Orchestrator {
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	o := &Orchestrator{
		model:       model,
		tools:       tools,
		modelName:   cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		maxTurns:    maxTurns,
		callTimeout: cfg.CallTimeout,
		toolTimeout: cfg.ToolTimeout,
		log:         zap.NewNop(),
		out:         io.Discard,
		notice:      color.New(color.FgCyan),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.Named("agent")
	return o
}

// Run processes one query within conv. Text produced by the model is
// written to the output as it arrives. Tool failures are handed back to
// the model as error results; a closed session aborts the query. A model
// response without content ends the query and removes it from conv, so
// the history never ends in an unanswered user message.
func (o *Orchestrator) Run(ctx context.Context, conv *Conversation, query string) error {
	log := o.log.With(zap.String("conversation", conv.ID))
	mark := len(conv.Messages)
	conv.append(types.NewUserText(query))
	tools := o.tools.Tools()

	state := AwaitingModel
	var resp llm.Response
	turns := 0

	for {
		switch state {
		case AwaitingModel:
			if turns >= o.maxTurns {
				return fmt.Errorf("%w: %d model calls", ErrTurnLimit, turns)
			}
			turns++

			var err error
			resp, err = o.complete(ctx, conv, tools)
			if err != nil {
				return fmt.Errorf("model call: %w", err)
			}
			log.Debug("model responded",
				zap.Int("turn", turns),
				zap.Int("blocks", len(resp.Content)),
				zap.String("stop_reason", resp.StopReason))
			state = ModelResponded

		case ModelResponded:
			if len(resp.Content) == 0 {
				log.Warn("model returned no content", zap.Int("turn", turns))
				conv.Messages = conv.Messages[:mark]
				state = Done
				continue
			}

			for _, b := range resp.Content {
				if t, ok := b.(types.TextBlock); ok {
					fmt.Fprintln(o.out, t.Text)
				}
			}
			assistant := types.Message{Role: types.RoleAssistant, Content: resp.Content}
			conv.append(assistant)

			if len(assistant.ToolUses()) == 0 {
				state = Done
			} else {
				state = ExecutingTool
			}

		case ExecutingTool:
			uses := conv.Messages[len(conv.Messages)-1].ToolUses()
			results := make([]types.ContentBlock, 0, len(uses))
			for _, use := range uses {
				res, err := o.callTool(ctx, log, use)
				if err != nil {
					return err
				}
				results = append(results, res)
			}
			conv.append(types.Message{Role: types.RoleUser, Content: results})
			state = AwaitingModel

		case Done:
			log.Debug("query complete", zap.Int("turns", turns), zap.Int("messages", len(conv.Messages)))
			return nil
		}
	}
}

func (o *Orchestrator) complete(ctx context.Context, conv *Conversation, tools []types.ToolDescriptor) (llm.Response, error) {
	if o.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.callTimeout)
		defer cancel()
	}
	return o.model.Complete(ctx, llm.Request{
		Model:     o.modelName,
		MaxTokens: o.maxTokens,
		Tools:     tools,
		Messages:  conv.Messages,
	})
}

// callTool runs one tool call and converts every failure except a closed
// session into an error result tagged with the call's ID.
func (o *Orchestrator) callTool(ctx context.Context, log *zap.Logger, use types.ToolUseBlock) (types.ToolResultBlock, error) {
	args := use.Input
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	o.notice.Fprintf(o.out, "Calling tool %s with args %s\n", use.Name, args)

	if o.toolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.toolTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := o.tools.CallTool(ctx, use.Name, args)
	fields := []zap.Field{
		zap.String("tool", use.Name),
		zap.String("tool_use_id", use.ID),
		zap.Duration("elapsed", time.Since(start)),
	}

	switch {
	case errors.Is(err, transport.ErrSessionClosed):
		log.Error("session closed during tool call", append(fields, zap.Error(err))...)
		return types.ToolResultBlock{}, err
	case err != nil:
		log.Warn("tool call failed", append(fields, zap.Error(err))...)
		return types.ToolResultBlock{
			ToolUseID: use.ID,
			Content:   fmt.Sprintf("Error calling tool %s: %v", use.Name, err),
			IsError:   true,
		}, nil
	}

	log.Info("tool call", append(fields, zap.Bool("is_error", res.IsError))...)
	return types.ToolResultBlock{
		ToolUseID: use.ID,
		Content:   res.Text,
		IsError:   res.IsError,
	}, nil
}
