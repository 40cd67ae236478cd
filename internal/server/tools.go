// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/store"
)

// SearchPapersInput is the input schema for search_papers.
type SearchPapersInput struct {
	Topic      string `json:"topic" jsonschema:"the topic to search for"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"maximum number of results to retrieve (default 5)"`
}

// SearchPapersOutput is the output schema for search_papers.
type SearchPapersOutput struct {
	PaperIDs []string `json:"paper_ids" jsonschema:"IDs of the papers found, most relevant first"`
}

// ExtractInfoInput is the input schema for extract_info.
type ExtractInfoInput struct {
	PaperID string `json:"paper_id" jsonschema:"the ID of the paper to look for"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_papers",
		Description: "Search for papers on arXiv based on a topic and store their information.",
	}, s.handleSearchPapers)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "extract_info",
		Description: "Search for information about a specific paper across all topic directories.",
	}, s.handleExtractInfo)
}

// handleSearchPapers fetches papers for a topic and merges them into the
// topic's store.
func (s *Server) handleSearchPapers(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchPapersInput,
) (*mcp.CallToolResult, SearchPapersOutput, error) {
	topic := strings.TrimSpace(input.Topic)
	if topic == "" {
		return nil, SearchPapersOutput{}, errors.New("topic is required")
	}
	maxResults := input.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	ctx, cancel := s.toolContext(ctx)
	defer cancel()

	ids, err := s.papers.Search(ctx, topic, maxResults)
	if err != nil {
		s.log.Warn("search_papers failed", zap.String("topic", topic), zap.Error(err))
		return nil, SearchPapersOutput{}, err
	}
	if ids == nil {
		ids = []string{}
	}
	s.log.Info("search_papers",
		zap.String("topic", topic),
		zap.Int("max_results", maxResults),
		zap.Strings("paper_ids", ids))

	return nil, SearchPapersOutput{PaperIDs: ids}, nil
}

// handleExtractInfo returns the stored record for a paper as indented JSON.
// An unknown paper yields an explanatory message, not a tool error.
func (s *Server) handleExtractInfo(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ExtractInfoInput,
) (*mcp.CallToolResult, any, error) {
	id := strings.TrimSpace(input.PaperID)
	if id == "" {
		return nil, nil, errors.New("paper_id is required")
	}

	ctx, cancel := s.toolContext(ctx)
	defer cancel()

	rec, slug, err := s.papers.Lookup(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		s.log.Debug("extract_info miss", zap.String("paper_id", id))
		return textResult(NotFoundMessage(id)), nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling paper %s: %w", id, err)
	}
	s.log.Debug("extract_info hit", zap.String("paper_id", id), zap.String("topic", slug))
	return textResult(string(data)), nil, nil
}

// NotFoundMessage is the extract_info reply for an unknown paper.
func NotFoundMessage(id string) string {
	return fmt.Sprintf("There's no saved information related to paper %s.", id)
}
