// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-agent/internal/store"
	"github.com/pdiddy/research-agent/pkg/types"
)

// mockPapers is an in-memory Papers implementation.
type mockPapers struct {
	topics    map[string]types.TopicPapers
	corrupt   map[string]bool
	searchIDs []string
	searchErr error

	gotTopic string
	gotMax   int
	gotCtx   context.Context
}

func (m *mockPapers) Search(ctx context.Context, topic string, maxResults int) ([]string, error) {
	m.gotTopic, m.gotMax, m.gotCtx = topic, maxResults, ctx
	return m.searchIDs, m.searchErr
}

func (m *mockPapers) Lookup(_ context.Context, id string) (types.PaperRecord, string, error) {
	for _, slug := range m.slugs() {
		if rec, ok := m.topics[slug][id]; ok {
			return rec, slug, nil
		}
	}
	return types.PaperRecord{}, "", fmt.Errorf("%w: %s", store.ErrNotFound, id)
}

func (m *mockPapers) ListTopics() ([]string, error) {
	return m.slugs(), nil
}

func (m *mockPapers) ListPapers(topic string) (types.TopicPapers, error) {
	slug := types.Slug(topic)
	if m.corrupt[slug] {
		return nil, fmt.Errorf("%w: %s", store.ErrCorruptStore, slug)
	}
	papers, ok := m.topics[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNoPapers, slug)
	}
	return papers, nil
}

func (m *mockPapers) slugs() []string {
	var out []string
	for slug := range m.topics {
		out = append(out, slug)
	}
	slices.Sort(out)
	return out
}

func testPaper(id, title string) types.PaperRecord {
	return types.PaperRecord{
		ID:        id,
		Title:     title,
		Authors:   []string{"Ada Lovelace", "Alan Turing"},
		Summary:   "A summary of " + title + ".",
		PDFURL:    "http://arxiv.org/pdf/" + id + "v1",
		Published: "2024-03-01",
	}
}

func newTestServer(t *testing.T, papers Papers, opts ...Option) *Server {
	t.Helper()
	s, err := New(papers, opts...)
	require.NoError(t, err)
	return s
}

func makeReadResourceRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: uri},
	}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return tc.Text
}

func TestNew(t *testing.T) {
	t.Run("nil store returns error", func(t *testing.T) {
		s, err := New(nil)
		require.Error(t, err)
		assert.Nil(t, s)
		assert.ErrorIs(t, err, ErrMissingStore)
	})

	t.Run("valid store creates server", func(t *testing.T) {
		s, err := New(&mockPapers{})
		require.NoError(t, err)
		assert.NotNil(t, s)
		assert.Equal(t, DefaultToolTimeout, s.toolTimeout)
	})
}

func TestServer_handleSearchPapers(t *testing.T) {
	ctx := context.Background()

	t.Run("returns paper ids", func(t *testing.T) {
		m := &mockPapers{searchIDs: []string{"2401.00001", "2401.00002"}}
		s := newTestServer(t, m)

		_, out, err := s.handleSearchPapers(ctx, nil, SearchPapersInput{Topic: "ml", MaxResults: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"2401.00001", "2401.00002"}, out.PaperIDs)
		assert.Equal(t, "ml", m.gotTopic)
		assert.Equal(t, 2, m.gotMax)
	})

	t.Run("default max results", func(t *testing.T) {
		m := &mockPapers{}
		s := newTestServer(t, m, WithDefaultMaxResults(7))

		_, out, err := s.handleSearchPapers(ctx, nil, SearchPapersInput{Topic: "ml"})
		require.NoError(t, err)
		assert.Equal(t, 7, m.gotMax)
		assert.NotNil(t, out.PaperIDs)
		assert.Empty(t, out.PaperIDs)
	})

	t.Run("applies tool timeout", func(t *testing.T) {
		m := &mockPapers{}
		s := newTestServer(t, m, WithToolTimeout(time.Minute))

		_, _, err := s.handleSearchPapers(ctx, nil, SearchPapersInput{Topic: "ml"})
		require.NoError(t, err)
		_, ok := m.gotCtx.Deadline()
		assert.True(t, ok)
	})

	t.Run("empty topic is an error", func(t *testing.T) {
		s := newTestServer(t, &mockPapers{})
		_, _, err := s.handleSearchPapers(ctx, nil, SearchPapersInput{Topic: "  "})
		require.Error(t, err)
	})

	t.Run("search failure is returned", func(t *testing.T) {
		s := newTestServer(t, &mockPapers{searchErr: errors.New("arxiv unreachable")})
		_, _, err := s.handleSearchPapers(ctx, nil, SearchPapersInput{Topic: "ml"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "arxiv unreachable")
	})
}

func TestServer_handleExtractInfo(t *testing.T) {
	ctx := context.Background()
	m := &mockPapers{topics: map[string]types.TopicPapers{
		"ml": {"2401.00001": testPaper("2401.00001", "Attention")},
	}}
	s := newTestServer(t, m)

	t.Run("found paper is indented JSON", func(t *testing.T) {
		res, _, err := s.handleExtractInfo(ctx, nil, ExtractInfoInput{PaperID: "2401.00001"})
		require.NoError(t, err)
		text := resultText(t, res)
		assert.True(t, strings.HasPrefix(text, "{\n  \"title\": \"Attention\""), text)

		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(text), &rec))
		assert.Equal(t, "2024-03-01", rec["published"])
		assert.NotContains(t, rec, "id")
	})

	t.Run("unknown paper is a normal message", func(t *testing.T) {
		res, _, err := s.handleExtractInfo(ctx, nil, ExtractInfoInput{PaperID: "9999.99999"})
		require.NoError(t, err)
		assert.False(t, res.IsError)
		assert.Equal(t, "There's no saved information related to paper 9999.99999.", resultText(t, res))
	})

	t.Run("empty id is an error", func(t *testing.T) {
		_, _, err := s.handleExtractInfo(ctx, nil, ExtractInfoInput{})
		require.Error(t, err)
	})
}

func TestServer_handleFoldersResource(t *testing.T) {
	ctx := context.Background()

	t.Run("lists topics", func(t *testing.T) {
		m := &mockPapers{topics: map[string]types.TopicPapers{"physics": {}, "biology": {}}}
		s := newTestServer(t, m)

		res, err := s.handleFoldersResource(ctx, makeReadResourceRequest(FoldersURI))
		require.NoError(t, err)
		require.Len(t, res.Contents, 1)
		assert.Equal(t, markdownMIME, res.Contents[0].MIMEType)
		text := res.Contents[0].Text
		assert.Contains(t, text, "# Available Topics")
		assert.Less(t, strings.Index(text, "- biology"), strings.Index(text, "- physics"))
		assert.Contains(t, text, "Use @<topic>")
	})

	t.Run("no topics", func(t *testing.T) {
		s := newTestServer(t, &mockPapers{})
		res, err := s.handleFoldersResource(ctx, makeReadResourceRequest(FoldersURI))
		require.NoError(t, err)
		assert.Contains(t, res.Contents[0].Text, "No topic folders available.")
	})
}

func TestServer_handleTopicResource(t *testing.T) {
	ctx := context.Background()
	long := strings.Repeat("é", summaryLimit+20)
	p2 := testPaper("2401.00002", "Second")
	p2.Summary = long
	m := &mockPapers{
		topics: map[string]types.TopicPapers{
			"machine_learning": {
				"2401.00002": p2,
				"2401.00001": testPaper("2401.00001", "First"),
			},
		},
		corrupt: map[string]bool{"broken": true},
	}
	s := newTestServer(t, m)

	t.Run("digest sorted by id", func(t *testing.T) {
		res, err := s.handleTopicResource(ctx, makeReadResourceRequest("papers://machine_learning"))
		require.NoError(t, err)
		text := res.Contents[0].Text
		assert.Contains(t, text, "Found 2 papers.")
		assert.Contains(t, text, "- **Authors**: Ada Lovelace, Alan Turing")
		assert.Contains(t, text, "[http://arxiv.org/pdf/2401.00001v1](http://arxiv.org/pdf/2401.00001v1)")
		assert.Less(t, strings.Index(text, "## First"), strings.Index(text, "## Second"))
		assert.Contains(t, text, "A summary of First.\n")
		assert.NotContains(t, text, "A summary of First....")
		assert.Contains(t, text, strings.Repeat("é", summaryLimit)+"...")
		assert.NotContains(t, text, strings.Repeat("é", summaryLimit+1))
	})

	t.Run("escaped topic name", func(t *testing.T) {
		res, err := s.handleTopicResource(ctx, makeReadResourceRequest("papers://Machine%20Learning"))
		require.NoError(t, err)
		assert.Contains(t, res.Contents[0].Text, "Found 2 papers.")
	})

	t.Run("missing topic", func(t *testing.T) {
		res, err := s.handleTopicResource(ctx, makeReadResourceRequest("papers://chemistry"))
		require.NoError(t, err)
		assert.Equal(t, "No papers related to topic chemistry.", res.Contents[0].Text)
	})

	t.Run("corrupt topic", func(t *testing.T) {
		res, err := s.handleTopicResource(ctx, makeReadResourceRequest("papers://broken"))
		require.NoError(t, err)
		assert.Contains(t, res.Contents[0].Text, "Error reading papers for topic broken")
	})

	t.Run("malformed uri", func(t *testing.T) {
		_, err := s.handleTopicResource(ctx, makeReadResourceRequest("papers://"))
		require.Error(t, err)
	})
}

func TestExtractTopic(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		expected string
	}{
		{name: "slug", uri: "papers://quantum_computing", expected: "quantum_computing"},
		{name: "escaped", uri: "papers://quantum%20computing", expected: "quantum computing"},
		{name: "wrong scheme", uri: "file://quantum", expected: ""},
		{name: "nested path", uri: "papers://a/b", expected: ""},
		{name: "empty", uri: "", expected: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractTopic(tt.uri))
		})
	}
}

func TestTopicURI(t *testing.T) {
	assert.Equal(t, "papers://quantum_computing", TopicURI("Quantum Computing"))
}

func TestRenderSearchPrompt(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		text, err := RenderSearchPrompt("graph neural networks", "", 5)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(text, "Search for 5 academic papers about 'graph neural networks'"))
		assert.Contains(t, text, "search_papers(topic='graph neural networks', max_results=5)")
		assert.True(t, strings.HasSuffix(text, "research landscape in graph neural networks."))
	})

	t.Run("explicit count", func(t *testing.T) {
		text, err := RenderSearchPrompt("llm", "3", 5)
		require.NoError(t, err)
		assert.Contains(t, text, "max_results=3")
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := RenderSearchPrompt("", "", 5)
		require.Error(t, err)
		_, err = RenderSearchPrompt("llm", "many", 5)
		require.Error(t, err)
		_, err = RenderSearchPrompt("llm", "0", 5)
		require.Error(t, err)
	})
}
