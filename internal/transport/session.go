// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package transport owns the client side of one MCP session: it spawns (or
// attaches to) a capability server, caches the advertised tools, and turns
// tool calls, resource reads and prompt requests into plain Go values.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/pkg/types"
)

// ErrSessionClosed is returned once the underlying channel is gone.
var ErrSessionClosed = errors.New("transport: session closed")

// ClientName is the implementation name sent during initialize.
const ClientName = "research-agent"

// Version is the client version sent during initialize.
var Version = "0.1.0"

// closeGrace is how long a failed call waits to learn whether the channel
// itself went away.
var closeGrace = 50 * time.Millisecond

// Session is a connected MCP client session.
type Session struct {
	cs    *mcp.ClientSession
	tools []types.ToolDescriptor
	log   *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

type options struct {
	log    *zap.Logger
	stderr io.Writer
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets the session logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithStderr routes the spawned server's stderr to w.
func WithStderr(w io.Writer) Option {
	return func(o *options) { o.stderr = w }
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Spawn starts command as a child process speaking MCP over its stdio and
// connects to it. Close terminates the process.
func Spawn(ctx context.Context, command []string, opts ...Option) (*Session, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.New("transport: empty server command")
	}
	o := buildOptions(opts)

	cmd := exec.Command(command[0], command[1:]...)
	if o.stderr != nil {
		cmd.Stderr = o.stderr
	}
	o.log.Debug("spawning server", zap.Strings("command", command))
	return connect(ctx, &mcp.CommandTransport{Command: cmd}, o)
}

// Connect initializes a session over t and caches the server's tools.
func Connect(ctx context.Context, t mcp.Transport, opts ...Option) (*Session, error) {
	return connect(ctx, t, buildOptions(opts))
}

func connect(ctx context.Context, t mcp.Transport, o options) (*Session, error) {
	client := mcp.NewClient(&mcp.Implementation{Name: ClientName, Version: Version}, nil)
	cs, err := client.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to server: %w", err)
	}

	s := &Session{
		cs:   cs,
		log:  o.log.Named("transport"),
		done: make(chan struct{}),
	}
	go func() {
		err := cs.Wait()
		s.log.Debug("session ended", zap.Error(err))
		close(s.done)
	}()

	if err := s.loadTools(ctx); err != nil {
		s.Close()
		return nil, err
	}
	s.log.Info("connected", zap.Int("tools", len(s.tools)))
	return s, nil
}

// loadTools lists the server's tools once.
func (s *Session) loadTools(ctx context.Context) error {
	var cursor string
	for {
		res, err := s.cs.ListTools(ctx, &mcp.ListToolsParams{Cursor: cursor})
		if err != nil {
			return fmt.Errorf("listing tools: %w", err)
		}
		for _, t := range res.Tools {
			schema, err := schemaMap(t.InputSchema)
			if err != nil {
				return fmt.Errorf("tool %s: %w", t.Name, err)
			}
			s.tools = append(s.tools, types.ToolDescriptor{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: schema,
			})
		}
		if res.NextCursor == "" {
			return nil
		}
		cursor = res.NextCursor
	}
}

// schemaMap normalizes a tool input schema to a JSON object map.
func schemaMap(schema any) (map[string]any, error) {
	if schema == nil {
		return map[string]any{"type": "object"}, nil
	}
	if m, ok := schema.(map[string]any); ok {
		return m, nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encoding input schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding input schema: %w", err)
	}
	return m, nil
}

// Tools returns the tools advertised at connect time.
func (s *Session) Tools() []types.ToolDescriptor {
	return s.tools
}

// ToolResult is the outcome of a tool call.
type ToolResult struct {
	Text    string
	IsError bool
}

// CallTool invokes a tool with JSON-encoded arguments. A failure reported
// by the tool comes back as a result with IsError set; a returned error
// means the call itself did not complete.
func (s *Session) CallTool(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	if s.closed() {
		return ToolResult{}, ErrSessionClosed
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	res, err := s.cs.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return ToolResult{}, s.callError(ctx, fmt.Sprintf("calling tool %s", name), err)
	}
	return ToolResult{Text: contentText(res.Content), IsError: res.IsError}, nil
}

// ReadResource returns the text of the resource at uri.
func (s *Session) ReadResource(ctx context.Context, uri string) (string, error) {
	if s.closed() {
		return "", ErrSessionClosed
	}
	res, err := s.cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		return "", s.callError(ctx, fmt.Sprintf("reading %s", uri), err)
	}

	parts := make([]string, 0, len(res.Contents))
	for _, c := range res.Contents {
		if c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// ListResources returns the static resources the server offers.
func (s *Session) ListResources(ctx context.Context) ([]*mcp.Resource, error) {
	if s.closed() {
		return nil, ErrSessionClosed
	}
	res, err := s.cs.ListResources(ctx, nil)
	if err != nil {
		return nil, s.callError(ctx, "listing resources", err)
	}
	return res.Resources, nil
}

// ListResourceTemplates returns the resource templates the server offers.
func (s *Session) ListResourceTemplates(ctx context.Context) ([]*mcp.ResourceTemplate, error) {
	if s.closed() {
		return nil, ErrSessionClosed
	}
	res, err := s.cs.ListResourceTemplates(ctx, nil)
	if err != nil {
		return nil, s.callError(ctx, "listing resource templates", err)
	}
	return res.ResourceTemplates, nil
}

// ListPrompts returns the prompts the server offers.
func (s *Session) ListPrompts(ctx context.Context) ([]*mcp.Prompt, error) {
	if s.closed() {
		return nil, ErrSessionClosed
	}
	res, err := s.cs.ListPrompts(ctx, nil)
	if err != nil {
		return nil, s.callError(ctx, "listing prompts", err)
	}
	return res.Prompts, nil
}

// GetPrompt renders a prompt and returns the text of its messages.
func (s *Session) GetPrompt(ctx context.Context, name string, args map[string]string) (string, error) {
	if s.closed() {
		return "", ErrSessionClosed
	}
	res, err := s.cs.GetPrompt(ctx, &mcp.GetPromptParams{Name: name, Arguments: args})
	if err != nil {
		return "", s.callError(ctx, fmt.Sprintf("getting prompt %s", name), err)
	}

	parts := make([]string, 0, len(res.Messages))
	for _, m := range res.Messages {
		parts = append(parts, contentText([]mcp.Content{m.Content}))
	}
	return strings.Join(parts, "\n\n"), nil
}

// Done is closed when the session ends for any reason.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close ends the session and, for spawned servers, the server process.
// It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.cs.Close()
	})
	return s.closeErr
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// callError classifies a failed request. If the channel went away the
// result is ErrSessionClosed.
func (s *Session) callError(ctx context.Context, what string, err error) error {
	if ctx.Err() == nil {
		select {
		case <-s.done:
		case <-time.After(closeGrace):
		}
	}
	if s.closed() {
		return fmt.Errorf("%s: %w", what, ErrSessionClosed)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// contentText flattens tool or prompt content to text. Non-text content is
// rendered as its JSON form.
func contentText(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch c := c.(type) {
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		case nil:
		default:
			data, err := json.Marshal(c)
			if err != nil {
				parts = append(parts, fmt.Sprintf("[%T]", c))
				continue
			}
			parts = append(parts, string(data))
		}
	}
	return strings.Join(parts, "\n")
}
