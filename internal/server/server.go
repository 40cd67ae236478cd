// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the paper store over the Model Context Protocol.
// It registers two tools (search_papers, extract_info), two resources
// (papers://folders and the papers://{topic} template) and one prompt
// (generate_search_prompt). Dispatch, argument validation and result
// framing are left to the MCP SDK.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/search"
	"github.com/pdiddy/research-agent/pkg/types"
)

// Name is the implementation name advertised during initialize.
const Name = "research"

// Version is the server version advertised during initialize.
var Version = "0.1.0"

// DefaultToolTimeout bounds a single tool handler.
const DefaultToolTimeout = 60 * time.Second

// ErrMissingStore is returned when the server is built without a store.
var ErrMissingStore = errors.New("server: paper store is required")

// Papers is the part of the paper store the server needs.
type Papers interface {
	Search(ctx context.Context, topic string, maxResults int) ([]string, error)
	Lookup(ctx context.Context, id string) (types.PaperRecord, string, error)
	ListTopics() ([]string, error)
	ListPapers(topic string) (types.TopicPapers, error)
}

// Server is the research capability server.
type Server struct {
	papers      Papers
	server      *mcp.Server
	log         *zap.Logger
	toolTimeout time.Duration
	maxResults  int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithToolTimeout bounds each tool handler. Zero disables the bound.
func WithToolTimeout(d time.Duration) Option {
	return func(s *Server) { s.toolTimeout = d }
}

// WithDefaultMaxResults sets the search size used when a caller omits
// max_results.
func WithDefaultMaxResults(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxResults = n
		}
	}
}

// New creates a server over papers and registers its capabilities.
func New(papers Papers, opts ...Option) (*Server, error) {
	if papers == nil {
		return nil, ErrMissingStore
	}

	s := &Server{
		papers:      papers,
		log:         zap.NewNop(),
		toolTimeout: DefaultToolTimeout,
		maxResults:  search.DefaultMaxResults,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("server")

	impl := &mcp.Implementation{
		Name:    Name,
		Version: Version,
	}
	s.server = mcp.NewServer(impl, nil)

	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	return s, nil
}

// Run serves a single client over stdin/stdout. It blocks until the client
// disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("serving over stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the streamable HTTP transport on addr. It blocks until the
// context is cancelled or the listener fails.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background()) //nolint:errcheck
	}()

	s.log.Info("serving over HTTP", zap.String("addr", addr))
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Connect serves one session over an arbitrary transport and returns
// without waiting for it to end.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	ss, err := s.server.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting server: %w", err)
	}
	return ss, nil
}

// toolContext applies the per-tool timeout.
func (s *Server) toolContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.toolTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.toolTimeout)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
