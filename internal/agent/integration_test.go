// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-agent/internal/llm"
	"github.com/pdiddy/research-agent/internal/server"
	"github.com/pdiddy/research-agent/internal/store"
	"github.com/pdiddy/research-agent/internal/transport"
	"github.com/pdiddy/research-agent/pkg/types"
)

type cannedBackend struct{}

func (cannedBackend) Name() string { return "canned" }

func (cannedBackend) Fetch(_ context.Context, _ string, _ int) ([]types.PaperRecord, error) {
	return []types.PaperRecord{{
		ID:        "1706.03762",
		Title:     "Attention Is All You Need",
		Authors:   []string{"Ashish Vaswani"},
		Summary:   "The dominant sequence transduction models...",
		PDFURL:    "http://arxiv.org/pdf/1706.03762v1",
		Published: "2017-06-12",
	}}, nil
}

// TestEndToEnd runs the loop against a real server and paper store over
// in-memory MCP transports.
func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	srv, err := server.New(store.New(root, cannedBackend{}))
	require.NoError(t, err)

	ct, st := mcp.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, st)
	require.NoError(t, err)
	defer ss.Close()

	session, err := transport.Connect(ctx, ct)
	require.NoError(t, err)
	defer session.Close()

	model := &scriptedModel{responses: []llm.Response{
		uses(toolUse("call_1", "search_papers", `{"topic":"transformers","max_results":1}`)),
		uses(toolUse("call_2", "extract_info", `{"paper_id":"1706.03762"}`), toolUse("call_3", "extract_info", `{"paper_id":"0000.00000"}`)),
		text("Attention Is All You Need introduced the Transformer."),
	}}
	var out bytes.Buffer
	o := New(model, session, types.AgentConfig{}, WithOutput(&out))

	conv := NewConversation()
	require.NoError(t, o.Run(ctx, conv, "Tell me about transformers"))
	assert.Equal(t, 3, model.calls())

	// Tool descriptors reached the model.
	var names []string
	for _, tool := range model.requests[0].Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"search_papers", "extract_info"}, names)

	searchResult := conv.Messages[2].Content[0].(types.ToolResultBlock)
	assert.Equal(t, "call_1", searchResult.ToolUseID)
	assert.False(t, searchResult.IsError)
	assert.Contains(t, searchResult.Content, "1706.03762")

	extracted := conv.Messages[4].Content
	require.Len(t, extracted, 2)
	hit := extracted[0].(types.ToolResultBlock)
	assert.Equal(t, "call_2", hit.ToolUseID)
	assert.Contains(t, hit.Content, `"title": "Attention Is All You Need"`)
	miss := extracted[1].(types.ToolResultBlock)
	assert.Equal(t, "call_3", miss.ToolUseID)
	assert.Equal(t, "There's no saved information related to paper 0000.00000.", miss.Content)

	_, err = os.Stat(filepath.Join(root, "transformers", store.StoreFile))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out.String(), "Attention Is All You Need introduced the Transformer.\n"))

	folders, err := session.ReadResource(ctx, server.FoldersURI)
	require.NoError(t, err)
	assert.Contains(t, folders, "- transformers")
}
