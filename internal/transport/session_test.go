// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoInput struct {
	Text string `json:"text" jsonschema:"text to echo"`
}

func newTestServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "v0"}, nil)

	mcp.AddTool(srv, &mcp.Tool{Name: "echo", Description: "Echo the input"},
		func(_ context.Context, _ *mcp.CallToolRequest, in echoInput) (*mcp.CallToolResult, any, error) {
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: in.Text}}}, nil, nil
		})

	mcp.AddTool(srv, &mcp.Tool{Name: "fail", Description: "Always fails"},
		func(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
			return nil, nil, errors.New("disk on fire")
		})

	srv.AddResource(&mcp.Resource{URI: "papers://folders", Name: "folders", MIMEType: "text/markdown"},
		func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{{
				URI: req.Params.URI, MIMEType: "text/markdown", Text: "# Available Topics",
			}}}, nil
		})

	srv.AddPrompt(&mcp.Prompt{
		Name:      "greet",
		Arguments: []*mcp.PromptArgument{{Name: "name", Required: true}},
	}, func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return &mcp.GetPromptResult{Messages: []*mcp.PromptMessage{{
			Role:    "user",
			Content: &mcp.TextContent{Text: "Hello " + req.Params.Arguments["name"]},
		}}}, nil
	})
	return srv
}

func connectTest(t *testing.T) (*Session, *mcp.ServerSession) {
	t.Helper()
	ctx := context.Background()
	ct, st := mcp.NewInMemoryTransports()

	ss, err := newTestServer().Connect(ctx, st, nil)
	require.NoError(t, err)

	s, err := Connect(ctx, ct)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, ss
}

func TestConnectCachesTools(t *testing.T) {
	s, _ := connectTest(t)

	tools := s.Tools()
	require.Len(t, tools, 2)

	byName := map[string]int{}
	for i, tool := range tools {
		byName[tool.Name] = i
	}
	require.Contains(t, byName, "echo")
	echo := tools[byName["echo"]]
	assert.Equal(t, "Echo the input", echo.Description)
	assert.Equal(t, "object", echo.InputSchema["type"])
	props, ok := echo.InputSchema["properties"].(map[string]any)
	require.True(t, ok, "properties = %T", echo.InputSchema["properties"])
	assert.Contains(t, props, "text")
}

func TestCallTool(t *testing.T) {
	s, _ := connectTest(t)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		res, err := s.CallTool(ctx, "echo", json.RawMessage(`{"text":"hi"}`))
		require.NoError(t, err)
		assert.Equal(t, ToolResult{Text: "hi"}, res)
	})

	t.Run("tool failure is an error result", func(t *testing.T) {
		res, err := s.CallTool(ctx, "fail", nil)
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, res.Text, "disk on fire")
	})

	t.Run("unknown tool", func(t *testing.T) {
		_, err := s.CallTool(ctx, "nope", nil)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrSessionClosed)
	})
}

func TestResourcesAndPrompts(t *testing.T) {
	s, _ := connectTest(t)
	ctx := context.Background()

	text, err := s.ReadResource(ctx, "papers://folders")
	require.NoError(t, err)
	assert.Equal(t, "# Available Topics", text)

	resources, err := s.ListResources(ctx)
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, "papers://folders", resources[0].URI)

	prompts, err := s.ListPrompts(ctx)
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Equal(t, "greet", prompts[0].Name)

	text, err = s.GetPrompt(ctx, "greet", map[string]string{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada", text)
}

func TestSessionClosedByServer(t *testing.T) {
	s, ss := connectTest(t)
	require.NoError(t, ss.Close())

	require.Eventually(t, func() bool {
		select {
		case <-s.Done():
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	_, err := s.CallTool(context.Background(), "echo", json.RawMessage(`{"text":"hi"}`))
	assert.ErrorIs(t, err, ErrSessionClosed)

	_, err = s.ReadResource(context.Background(), "papers://folders")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestCloseIsIdempotent(t *testing.T) {
	s, _ := connectTest(t)
	first := s.Close()
	assert.Equal(t, first, s.Close())
}

func TestSpawnEmptyCommand(t *testing.T) {
	_, err := Spawn(context.Background(), nil)
	require.Error(t, err)
}

func TestSchemaMap(t *testing.T) {
	m, err := schemaMap(nil)
	require.NoError(t, err)
	assert.Equal(t, "object", m["type"])

	type schema struct {
		Type string `json:"type"`
	}
	m, err = schemaMap(schema{Type: "object"})
	require.NoError(t, err)
	assert.Equal(t, "object", m["type"])
}
