// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SearchPromptName is the name of the research prompt.
const SearchPromptName = "generate_search_prompt"

var searchPromptTmpl = template.Must(template.New("search").Parse(`Search for {{.NumPapers}} academic papers about '{{.Topic}}' using the search_papers tool. Follow these instructions:
1. First, search for papers using search_papers(topic='{{.Topic}}', max_results={{.NumPapers}})
2. For each paper found, extract and organize the following information:
   - Paper title
   - Authors
   - Publication date
   - Brief summary of the key findings
   - Main contributions or innovations
   - Methodologies used
   - Relevance to the topic '{{.Topic}}'

3. Provide a comprehensive summary that includes:
   - Overview of the current state of research in '{{.Topic}}'
   - Common themes and trends across the papers
   - Key research gaps or areas for future investigation
   - Most impactful or influential papers in this area

4. Organize your findings in a clear, structured format with headings and bullet points for easy readability.

Please present both detailed information about each paper and a high-level synthesis of the research landscape in {{.Topic}}.`))

type searchPromptData struct {
	Topic     string
	NumPapers int
}

func (s *Server) registerPrompts() {
	s.server.AddPrompt(&mcp.Prompt{
		Name:        SearchPromptName,
		Description: "Generate a prompt to find and discuss academic papers on a specific topic.",
		Arguments: []*mcp.PromptArgument{
			{Name: "topic", Description: "the research topic", Required: true},
			{Name: "num_papers", Description: "number of papers to search for (default 5)"},
		},
	}, s.handleSearchPrompt)
}

func (s *Server) handleSearchPrompt(
	_ context.Context,
	req *mcp.GetPromptRequest,
) (*mcp.GetPromptResult, error) {
	args := req.Params.Arguments
	text, err := RenderSearchPrompt(args["topic"], args["num_papers"], s.maxResults)
	if err != nil {
		return nil, err
	}
	return &mcp.GetPromptResult{
		Description: "Research prompt for " + strings.TrimSpace(args["topic"]),
		Messages: []*mcp.PromptMessage{{
			Role:    "user",
			Content: &mcp.TextContent{Text: text},
		}},
	}, nil
}

// RenderSearchPrompt renders the research prompt for topic. numPapers may
// be empty, in which case def is used.
func RenderSearchPrompt(topic, numPapers string, def int) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", fmt.Errorf("%s: topic is required", SearchPromptName)
	}

	n := def
	if numPapers = strings.TrimSpace(numPapers); numPapers != "" {
		v, err := strconv.Atoi(numPapers)
		if err != nil || v <= 0 {
			return "", fmt.Errorf("%s: num_papers must be a positive integer, got %q", SearchPromptName, numPapers)
		}
		n = v
	}

	var buf bytes.Buffer
	if err := searchPromptTmpl.Execute(&buf, searchPromptData{Topic: topic, NumPapers: n}); err != nil {
		return "", fmt.Errorf("rendering %s: %w", SearchPromptName, err)
	}
	return buf.String(), nil
}
