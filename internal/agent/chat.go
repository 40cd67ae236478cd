// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/server"
	"github.com/pdiddy/research-agent/internal/transport"
	"github.com/pdiddy/research-agent/pkg/types"
)

// Session is the MCP session surface used by the interactive loop.
type Session interface {
	Tools
	ReadResource(ctx context.Context, uri string) (string, error)
	ListResources(ctx context.Context) ([]*mcp.Resource, error)
	ListResourceTemplates(ctx context.Context) ([]*mcp.ResourceTemplate, error)
	ListPrompts(ctx context.Context) ([]*mcp.Prompt, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (string, error)
}

// Chat is the interactive query loop.
type Chat struct {
	orch    *Orchestrator
	session Session
	history types.HistoryPolicy
	out     io.Writer
	log     *zap.Logger

	transcript *json.Encoder
	resume     *Conversation

	title *color.Color
	fail  *color.Color
}

// ChatOption configures a Chat.
type ChatOption func(*Chat)

// WithHistory selects whether history carries over between queries.
func WithHistory(p types.HistoryPolicy) ChatOption {
	return func(c *Chat) {
		if p != "" {
			c.history = p
		}
	}
}

// WithChatOutput sets where the loop writes prompts and results.
func WithChatOutput(w io.Writer) ChatOption {
	return func(c *Chat) {
		if w != nil {
			c.out = w
		}
	}
}

// WithChatLogger sets the loop logger.
func WithChatLogger(log *zap.Logger) ChatOption {
	return func(c *Chat) {
		if log != nil {
			c.log = log
		}
	}
}

// WithTranscript appends every answered exchange to w as JSON lines.
func WithTranscript(w io.Writer) ChatOption {
	return func(c *Chat) {
		if w != nil {
			c.transcript = json.NewEncoder(w)
		}
	}
}

// WithConversation continues conv instead of starting empty. It only
// matters under the retain policy.
func WithConversation(conv *Conversation) ChatOption {
	return func(c *Chat) { c.resume = conv }
}

// NewChat builds an interactive loop over orch and session.
func NewChat(orch *Orchestrator, session Session, opts ...ChatOption) *Chat {
	c := &Chat{
		orch:    orch,
		session: session,
		history: types.HistoryReset,
		out:     io.Discard,
		log:     zap.NewNop(),
		title:   color.New(color.Bold),
		fail:    color.New(color.FgRed),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("chat")
	return c
}

// Loop reads queries from in until "quit", end of input, or a closed
// session. Errors from a single query are printed and the loop goes on.
func (c *Chat) Loop(ctx context.Context, in io.Reader) error {
	c.title.Fprintln(c.out, "\nResearch Agent Started!")
	fmt.Fprintln(c.out, "Type your queries or 'quit' to exit.")
	fmt.Fprintln(c.out, "Use @folders to see topics, @<topic> to read a topic, /resources and /prompts to list what the server offers.")

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	conv := c.resume
	if conv == nil {
		conv = NewConversation()
	}
	for {
		fmt.Fprint(c.out, "\nQuery: ")
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "quit") {
			return nil
		}

		if c.history == types.HistoryReset {
			conv = NewConversation()
		}
		err := c.handle(ctx, conv, line)
		switch {
		case err == nil:
		case errors.Is(err, transport.ErrSessionClosed):
			c.fail.Fprintf(c.out, "\nError: %v\n", err)
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			c.log.Warn("query failed", zap.String("conversation", conv.ID), zap.Error(err))
			c.fail.Fprintf(c.out, "\nError: %v\n", err)
		}
	}
}

// handle dispatches one input line.
func (c *Chat) handle(ctx context.Context, conv *Conversation, line string) error {
	switch {
	case strings.HasPrefix(line, "@"):
		return c.readResource(ctx, strings.TrimPrefix(line, "@"))
	case line == "/resources":
		return c.listResources(ctx)
	case line == "/prompts":
		return c.listPrompts(ctx)
	case strings.HasPrefix(line, "/prompt "), line == "/prompt":
		return c.runPrompt(ctx, conv, strings.Fields(line)[1:])
	}
	return c.query(ctx, conv, line)
}

// query runs line through the orchestrator. On failure the conversation is
// rolled back so a retained history never holds unanswered tool calls.
func (c *Chat) query(ctx context.Context, conv *Conversation, line string) error {
	mark := len(conv.Messages)
	if err := c.orch.Run(ctx, conv, line); err != nil {
		conv.Messages = conv.Messages[:mark]
		return err
	}
	return c.record(conv, conv.Messages[mark:])
}

// record writes the messages of one exchange to the transcript.
func (c *Chat) record(conv *Conversation, msgs []types.Message) error {
	if c.transcript == nil {
		return nil
	}
	for _, m := range msgs {
		if err := c.transcript.Encode(TranscriptEntry{Conversation: conv.ID, Message: m}); err != nil {
			return fmt.Errorf("writing transcript: %w", err)
		}
	}
	return nil
}

func (c *Chat) readResource(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("usage: @folders or @<topic>")
	}
	uri := server.FoldersURI
	if name != "folders" {
		uri = server.TopicURI(name)
	}

	text, err := c.session.ReadResource(ctx, uri)
	if err != nil {
		return err
	}
	c.title.Fprintf(c.out, "\nResource: %s\n", uri)
	fmt.Fprintln(c.out, text)
	return nil
}

func (c *Chat) listResources(ctx context.Context) error {
	resources, err := c.session.ListResources(ctx)
	if err != nil {
		return err
	}
	templates, err := c.session.ListResourceTemplates(ctx)
	if err != nil {
		return err
	}
	if len(resources) == 0 && len(templates) == 0 {
		fmt.Fprintln(c.out, "No resources available.")
		return nil
	}

	c.title.Fprintln(c.out, "\nAvailable resources:")
	for _, r := range resources {
		fmt.Fprintf(c.out, "- %s: %s\n", r.URI, r.Description)
	}
	for _, t := range templates {
		fmt.Fprintf(c.out, "- %s: %s\n", t.URITemplate, t.Description)
	}
	return nil
}

func (c *Chat) listPrompts(ctx context.Context) error {
	prompts, err := c.session.ListPrompts(ctx)
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		fmt.Fprintln(c.out, "No prompts available.")
		return nil
	}

	c.title.Fprintln(c.out, "\nAvailable prompts:")
	for _, p := range prompts {
		fmt.Fprintf(c.out, "- %s: %s\n", p.Name, p.Description)
		for _, a := range p.Arguments {
			req := ""
			if a.Required {
				req = " (required)"
			}
			fmt.Fprintf(c.out, "    %s%s\n", a.Name, req)
		}
	}
	return nil
}

// runPrompt renders a prompt from "name key=value ..." and runs the
// result as a query.
func (c *Chat) runPrompt(ctx context.Context, conv *Conversation, fields []string) error {
	if len(fields) == 0 {
		return errors.New("usage: /prompt <name> <arg=value> ...")
	}
	name, args, err := parsePromptArgs(fields)
	if err != nil {
		return err
	}

	text, err := c.session.GetPrompt(ctx, name, args)
	if err != nil {
		return err
	}
	c.title.Fprintf(c.out, "\nRunning prompt %s\n", name)
	return c.query(ctx, conv, text)
}

// parsePromptArgs splits "name k=v k2=v2". A value runs until the next
// field containing "=", so topic=large language models is one argument.
func parsePromptArgs(fields []string) (string, map[string]string, error) {
	name := fields[0]
	args := map[string]string{}
	var key string
	for _, f := range fields[1:] {
		if k, v, ok := strings.Cut(f, "="); ok && k != "" {
			key = k
			args[key] = v
			continue
		}
		if key == "" {
			return "", nil, fmt.Errorf("prompt argument %q is not key=value", f)
		}
		args[key] += " " + f
	}
	return name, args, nil
}
