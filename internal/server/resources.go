// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"text/template"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/store"
	"github.com/pdiddy/research-agent/pkg/types"
)

const (
	uriScheme    = "papers://"
	markdownMIME = "text/markdown"

	// summaryLimit is the number of runes of a summary shown in a digest.
	summaryLimit = 500
)

// FoldersURI names the resource listing available topics.
const FoldersURI = uriScheme + "folders"

// TopicURI returns the resource URI for a topic.
func TopicURI(topic string) string {
	return uriScheme + types.Slug(topic)
}

var foldersTmpl = template.Must(template.New("folders").Parse(`# Available Topics
{{if .}}
{{range .}}- {{.}}
{{end}}
Use @<topic> to access papers in that topic.
{{else}}
No topic folders available.
{{end}}`))

var topicTmpl = template.Must(template.New("topic").Funcs(template.FuncMap{
	"join":     strings.Join,
	"truncate": truncateSummary,
}).Parse(`# Papers on {{.Topic}}

Found {{len .Papers}} papers.
{{range .Papers}}
## {{.Title}}
- **Paper ID**: {{.ID}}
- **Authors**: {{join .Authors ", "}}
- **Published**: {{.Published}}
- **PDF URL**: [{{.PDFURL}}]({{.PDFURL}})

### Summary
{{truncate .Summary}}

---
{{end}}`))

type topicDigest struct {
	Topic  string
	Papers []types.PaperRecord
}

func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         FoldersURI,
		Name:        "folders",
		Description: "List of available topic folders in the papers directory",
		MIMEType:    markdownMIME,
	}, s.handleFoldersResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "{topic}",
		Name:        "topic-papers",
		Description: "Papers stored for a topic",
		MIMEType:    markdownMIME,
	}, s.handleTopicResource)
}

// handleFoldersResource lists the topics that hold a paper store.
func (s *Server) handleFoldersResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	topics, err := s.papers.ListTopics()
	if err != nil {
		s.log.Warn("listing topics", zap.Error(err))
		return markdownResult(req.Params.URI, fmt.Sprintf("Error listing topic folders: %v", err)), nil
	}

	text, err := renderFolders(topics)
	if err != nil {
		return nil, err
	}
	return markdownResult(req.Params.URI, text), nil
}

// handleTopicResource renders the digest of one topic. Missing and corrupt
// stores are reported as readable text.
func (s *Server) handleTopicResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	topic := extractTopic(uri)
	if topic == "" {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	papers, err := s.papers.ListPapers(topic)
	switch {
	case errors.Is(err, store.ErrNoPapers), errors.Is(err, store.ErrInvalidTopic):
		return markdownResult(uri, fmt.Sprintf("No papers related to topic %s.", topic)), nil
	case err != nil:
		s.log.Warn("reading topic", zap.String("topic", topic), zap.Error(err))
		return markdownResult(uri, fmt.Sprintf("Error reading papers for topic %s: %v", topic, err)), nil
	}

	text, err := renderTopic(topic, papers)
	if err != nil {
		return nil, err
	}
	return markdownResult(uri, text), nil
}

func renderFolders(topics []string) (string, error) {
	var buf bytes.Buffer
	if err := foldersTmpl.Execute(&buf, topics); err != nil {
		return "", fmt.Errorf("rendering folders: %w", err)
	}
	return buf.String(), nil
}

func renderTopic(topic string, papers types.TopicPapers) (string, error) {
	d := topicDigest{Topic: topic}
	for _, id := range papers.IDs() {
		d.Papers = append(d.Papers, papers[id])
	}

	var buf bytes.Buffer
	if err := topicTmpl.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("rendering topic %s: %w", topic, err)
	}
	return buf.String(), nil
}

// truncateSummary cuts a summary to summaryLimit runes, marking the cut.
func truncateSummary(s string) string {
	r := []rune(s)
	if len(r) <= summaryLimit {
		return s
	}
	return string(r[:summaryLimit]) + "..."
}

// extractTopic pulls the topic from papers://{topic}.
func extractTopic(uri string) string {
	rest, ok := strings.CutPrefix(uri, uriScheme)
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	topic, err := url.PathUnescape(rest)
	if err != nil {
		return ""
	}
	return topic
}

func markdownResult(uri, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: markdownMIME,
			Text:     text,
		}},
	}
}
