// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-agent/internal/llm"
	"github.com/pdiddy/research-agent/internal/transport"
	"github.com/pdiddy/research-agent/pkg/types"
)

// fakeSession adds resources and prompts to fakeTools.
type fakeSession struct {
	fakeTools
	resources map[string]string
	readErr   error
	reads     []string
	prompts   []*mcp.Prompt
	gotPrompt map[string]string
}

func (s *fakeSession) ListResources(context.Context) ([]*mcp.Resource, error) {
	return []*mcp.Resource{{URI: "papers://folders", Description: "topic folders"}}, nil
}

func (s *fakeSession) ListResourceTemplates(context.Context) ([]*mcp.ResourceTemplate, error) {
	return []*mcp.ResourceTemplate{{URITemplate: "papers://{topic}", Description: "papers for a topic"}}, nil
}

func (s *fakeSession) ReadResource(_ context.Context, uri string) (string, error) {
	s.reads = append(s.reads, uri)
	if s.readErr != nil {
		return "", s.readErr
	}
	text, ok := s.resources[uri]
	if !ok {
		return "", fmt.Errorf("resource %s not found", uri)
	}
	return text, nil
}

func (s *fakeSession) ListPrompts(context.Context) ([]*mcp.Prompt, error) {
	return s.prompts, nil
}

func (s *fakeSession) GetPrompt(_ context.Context, name string, args map[string]string) (string, error) {
	s.gotPrompt = args
	return fmt.Sprintf("rendered %s about %s", name, args["topic"]), nil
}

func newTestChat(model llm.Model, session *fakeSession, out *bytes.Buffer, opts ...ChatOption) *Chat {
	orch := New(model, session, types.AgentConfig{}, WithOutput(out))
	return NewChat(orch, session, append([]ChatOption{WithChatOutput(out)}, opts...)...)
}

func userQueries(reqs []llm.Request) []string {
	var out []string
	for _, r := range reqs {
		last := r.Messages[len(r.Messages)-1]
		if tb, ok := last.Content[0].(types.TextBlock); ok && last.Role == types.RoleUser {
			out = append(out, tb.Text)
		}
	}
	return out
}

func TestChatLoop(t *testing.T) {
	model := &scriptedModel{responses: []llm.Response{text("answer")}}
	session := &fakeSession{
		resources: map[string]string{
			"papers://folders":          "# Available Topics\n- llm",
			"papers://machine_learning": "# Papers on machine_learning",
		},
		prompts: []*mcp.Prompt{{
			Name:        "generate_search_prompt",
			Description: "research prompt",
			Arguments:   []*mcp.PromptArgument{{Name: "topic", Required: true}, {Name: "num_papers"}},
		}},
	}
	var out bytes.Buffer
	c := newTestChat(model, session, &out)

	in := strings.NewReader(strings.Join([]string{
		"hello",
		"",
		"@folders",
		"@Machine Learning",
		"/resources",
		"/prompts",
		"/prompt generate_search_prompt topic=large language models num_papers=3",
		"QUIT",
		"never reached",
	}, "\n"))
	require.NoError(t, c.Loop(context.Background(), in))

	assert.Equal(t, []string{"hello", "rendered generate_search_prompt about large language models"}, userQueries(model.requests))
	assert.Equal(t, []string{"papers://folders", "papers://machine_learning"}, session.reads)
	assert.Equal(t, map[string]string{"topic": "large language models", "num_papers": "3"}, session.gotPrompt)

	text := out.String()
	assert.Contains(t, text, "# Available Topics\n- llm")
	assert.Contains(t, text, "- papers://folders: topic folders")
	assert.Contains(t, text, "- papers://{topic}: papers for a topic")
	assert.Contains(t, text, "- generate_search_prompt: research prompt")
	assert.Contains(t, text, "    topic (required)")
	assert.NotContains(t, text, "never reached")
}

func TestChatContinuesAfterErrors(t *testing.T) {
	model := &scriptedModel{
		responses: []llm.Response{text("unused"), text("second answer")},
		errs:      []error{errors.New("rate limited")},
	}
	session := &fakeSession{}
	var out bytes.Buffer
	c := newTestChat(model, session, &out)

	in := strings.NewReader("first\n@missing\nsecond\n")
	require.NoError(t, c.Loop(context.Background(), in))

	assert.Equal(t, 2, model.calls())
	assert.Contains(t, out.String(), "Error: model call: rate limited")
	assert.Contains(t, out.String(), "Error: resource papers://missing not found")
	assert.Contains(t, out.String(), "second answer")
}

func TestChatStopsOnClosedSession(t *testing.T) {
	model := &scriptedModel{responses: []llm.Response{text("unused")}}
	session := &fakeSession{readErr: transport.ErrSessionClosed}
	var out bytes.Buffer
	c := newTestChat(model, session, &out)

	err := c.Loop(context.Background(), strings.NewReader("@folders\nhello\n"))
	assert.ErrorIs(t, err, transport.ErrSessionClosed)
	assert.Equal(t, 0, model.calls())
}

func TestChatHistoryPolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  types.HistoryPolicy
		wantLen []int
	}{
		{name: "reset", policy: types.HistoryReset, wantLen: []int{1, 1}},
		{name: "retain", policy: types.HistoryRetain, wantLen: []int{1, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &scriptedModel{responses: []llm.Response{text("a")}}
			c := newTestChat(model, &fakeSession{}, &bytes.Buffer{}, WithHistory(tt.policy))

			require.NoError(t, c.Loop(context.Background(), strings.NewReader("one\ntwo\n")))
			require.Len(t, model.requests, 2)
			for i, want := range tt.wantLen {
				assert.Len(t, model.requests[i].Messages, want)
			}
		})
	}
}

func TestChatRollsBackFailedQuery(t *testing.T) {
	model := &scriptedModel{
		responses: []llm.Response{uses(toolUse("t", "search_papers", `{}`)), text("ok")},
		errs:      []error{nil, errors.New("boom")},
	}
	c := newTestChat(model, &fakeSession{}, &bytes.Buffer{}, WithHistory(types.HistoryRetain))

	require.NoError(t, c.Loop(context.Background(), strings.NewReader("one\ntwo\n")))
	require.Len(t, model.requests, 3)
	// The failed first query left nothing behind.
	assert.Len(t, model.requests[2].Messages, 1)
}

func TestChatRetainSkipsEmptyResponse(t *testing.T) {
	model := &scriptedModel{responses: []llm.Response{{}, text("a")}}
	c := newTestChat(model, &fakeSession{}, &bytes.Buffer{}, WithHistory(types.HistoryRetain))

	require.NoError(t, c.Loop(context.Background(), strings.NewReader("one\ntwo\n")))
	require.Len(t, model.requests, 2)
	assert.Len(t, model.requests[1].Messages, 1)
}

func TestChatTranscriptRoundTrip(t *testing.T) {
	model := &scriptedModel{responses: []llm.Response{
		uses(toolUse("t1", "search_papers", `{"topic":"llm"}`)),
		text("found it"),
	}}
	var transcript bytes.Buffer
	c := newTestChat(model, &fakeSession{}, &bytes.Buffer{},
		WithHistory(types.HistoryRetain), WithTranscript(&transcript))
	require.NoError(t, c.Loop(context.Background(), strings.NewReader("papers on llm\n@folders\n")))

	assert.Equal(t, 4, strings.Count(transcript.String(), "\n"))
	assert.Contains(t, transcript.String(), `"type":"tool_use"`)
	assert.Contains(t, transcript.String(), `"type":"tool_result"`)

	conv, err := ReadTranscript(&transcript)
	require.NoError(t, err)
	require.NotNil(t, conv)
	require.Len(t, conv.Messages, 4)
	assert.Equal(t, types.NewUserText("papers on llm"), conv.Messages[0])
	assert.Equal(t, "t1", conv.Messages[2].Content[0].(types.ToolResultBlock).ToolUseID)
	assert.Equal(t, types.TextBlock{Text: "found it"}, conv.Messages[3].Content[0])

	// A resumed chat sends the recorded history with the next query.
	next := &scriptedModel{responses: []llm.Response{text("more")}}
	resumed := newTestChat(next, &fakeSession{}, &bytes.Buffer{},
		WithHistory(types.HistoryRetain), WithConversation(conv))
	require.NoError(t, resumed.Loop(context.Background(), strings.NewReader("and then?\n")))
	require.Len(t, next.requests, 1)
	assert.Len(t, next.requests[0].Messages, 5)
}

func TestReadTranscript(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		conv, err := ReadTranscript(strings.NewReader(""))
		require.NoError(t, err)
		assert.Nil(t, conv)
	})

	t.Run("last conversation wins", func(t *testing.T) {
		in := `{"conversation":"a","message":{"role":"user","content":[{"type":"text","text":"old"}]}}
{"conversation":"b","message":{"role":"user","content":[{"type":"text","text":"new"}]}}
`
		conv, err := ReadTranscript(strings.NewReader(in))
		require.NoError(t, err)
		assert.Equal(t, "b", conv.ID)
		assert.Equal(t, []types.Message{types.NewUserText("new")}, conv.Messages)
	})

	t.Run("unknown block type", func(t *testing.T) {
		in := `{"conversation":"a","message":{"role":"assistant","content":[{"type":"thinking","thinking":"hm"}]}}`
		_, err := ReadTranscript(strings.NewReader(in))
		assert.ErrorIs(t, err, types.ErrUnknownBlockType)
	})
}

func TestParsePromptArgs(t *testing.T) {
	tests := []struct {
		name     string
		fields   []string
		wantName string
		wantArgs map[string]string
		wantErr  bool
	}{
		{
			name:     "no args",
			fields:   []string{"p"},
			wantName: "p",
			wantArgs: map[string]string{},
		},
		{
			name:     "multi-word value",
			fields:   []string{"p", "topic=graph", "neural", "nets", "num_papers=2"},
			wantName: "p",
			wantArgs: map[string]string{"topic": "graph neural nets", "num_papers": "2"},
		},
		{
			name:    "bare word",
			fields:  []string{"p", "oops"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, args, err := parsePromptArgs(tt.fields)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}
