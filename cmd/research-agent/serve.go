// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the paper tools, resources and prompts over MCP",
	Long: `Serve exposes the paper store as an MCP server. By default it speaks
MCP over stdin/stdout, which is how chat runs it. With --http it serves
streamable HTTP on the given address instead, for use with MCP inspectors
and other clients.

Tools: search_papers, extract_info.
Resources: papers://folders, papers://{topic}.
Prompts: generate_search_prompt.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	st, release, err := openStore(false)
	if err != nil {
		return err
	}
	defer release()

	srv, err := server.New(st,
		server.WithLogger(logger),
		server.WithToolTimeout(cfg.Server.ToolTimeout),
		server.WithDefaultMaxResults(cfg.Search.MaxResults),
	)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if addr := cfg.Server.HTTPAddr; addr != "" {
		logger.Info("serving MCP over HTTP", zap.String("addr", addr), zap.String("papers_dir", st.Root()))
		return srv.RunHTTP(ctx, addr)
	}
	logger.Debug("serving MCP over stdio", zap.String("papers_dir", st.Root()))
	return srv.Run(ctx)
}

func init() {
	serveCmd.Flags().String("http", "", "serve streamable HTTP on this address (e.g. localhost:8080) instead of stdio")
	serveCmd.Flags().Duration("tool-timeout", server.DefaultToolTimeout, "time limit for one tool call (0 disables)")
	bindFlag("server.http_addr", serveCmd, "http")
	bindFlag("server.tool_timeout", serveCmd, "tool-timeout")

	rootCmd.AddCommand(serveCmd)
}
