// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/agent"
	"github.com/pdiddy/research-agent/internal/llm"
	"github.com/pdiddy/research-agent/internal/secrets"
	"github.com/pdiddy/research-agent/internal/transport"
	"github.com/pdiddy/research-agent/pkg/types"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run the interactive research agent",
	Long: `Chat starts the MCP tool server as a child process, then reads queries
from stdin and answers them with the model, calling search_papers and
extract_info as the model asks.

Besides plain queries the prompt accepts:
  @folders                   list stored topics
  @<topic>                   show the papers stored for a topic
  /prompts                   list server prompts
  /prompt <name> k=v ...     render a prompt and run it as the query
  /resources                 list server resources and templates
  quit                       exit

The Anthropic API key is read from .secrets/anthropic-api-key,
ANTHROPIC_API_KEY or the agent.api_key setting.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	aiCfg := cfg.Agent.AIConfig
	if aiCfg.APIKey == "" {
		aiCfg.APIKey = secrets.Lookup(loadedSecrets, secrets.AnthropicAPIKey, secrets.AnthropicAPIKeyEnv)
	}
	model, err := llm.NewAnthropic(aiCfg, llm.WithLogger(logger))
	if err != nil {
		return err
	}

	command, err := serverCommand(cmd)
	if err != nil {
		return err
	}
	session, err := transport.Spawn(ctx, command,
		transport.WithLogger(logger),
		transport.WithStderr(os.Stderr),
	)
	if err != nil {
		return err
	}
	defer session.Close()

	chatOpts := []agent.ChatOption{
		agent.WithHistory(cfg.Agent.History),
		agent.WithChatOutput(os.Stdout),
		agent.WithChatLogger(logger),
	}
	transcriptOpts, closeTranscript, err := transcriptOptions(cmd)
	if err != nil {
		return err
	}
	defer closeTranscript()
	chatOpts = append(chatOpts, transcriptOpts...)

	// Reading stdin cannot be interrupted, so a signal or a dead server
	// while waiting for input ends the process here.
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		ended := func() bool {
			select {
			case <-finished:
				return true
			default:
				return false
			}
		}
		select {
		case <-ctx.Done():
			if ended() {
				return
			}
			session.Close()
			closeTranscript()
			fmt.Fprintln(os.Stderr, "\nInterrupted.")
			os.Exit(130)
		case <-session.Done():
			if ended() {
				return
			}
			closeTranscript()
			fmt.Fprintln(os.Stderr, "\nError: server session closed.")
			os.Exit(1)
		case <-finished:
		}
	}()

	orch := agent.New(model, session, cfg.Agent,
		agent.WithLogger(logger),
		agent.WithOutput(os.Stdout),
	)
	chat := agent.NewChat(orch, session, chatOpts...)

	err = chat.Loop(ctx, os.Stdin)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// transcriptOptions opens the --transcript file for appending and, with
// --resume, continues its last conversation under the retain policy.
func transcriptOptions(cmd *cobra.Command) ([]agent.ChatOption, func(), error) {
	path, _ := cmd.Flags().GetString("transcript")
	resume, _ := cmd.Flags().GetBool("resume")
	if path == "" {
		if resume {
			return nil, nil, errors.New("--resume needs --transcript")
		}
		return nil, func() {}, nil
	}

	var opts []agent.ChatOption
	if resume {
		conv, err := loadTranscript(path)
		if err != nil {
			return nil, nil, err
		}
		if conv != nil {
			logger.Info("resuming conversation",
				zap.String("conversation", conv.ID),
				zap.Int("messages", len(conv.Messages)))
			opts = append(opts, agent.WithHistory(types.HistoryRetain), agent.WithConversation(conv))
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening transcript: %w", err)
	}
	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := f.Close(); err != nil {
				logger.Warn("closing transcript", zap.Error(err))
			}
		})
	}
	return append(opts, agent.WithTranscript(f)), release, nil
}

func loadTranscript(path string) (*agent.Conversation, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening transcript: %w", err)
	}
	defer f.Close()
	return agent.ReadTranscript(f)
}

// serverCommand returns the configured server command, or this executable
// running serve with the same root flags.
func serverCommand(cmd *cobra.Command) ([]string, error) {
	if len(cfg.Agent.ServerCommand) > 0 {
		return cfg.Agent.ServerCommand, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating executable: %w", err)
	}

	command := []string{exe, "serve"}
	cmd.Root().PersistentFlags().Visit(func(f *pflag.Flag) {
		command = append(command, "--"+f.Name, f.Value.String())
	})
	logger.Debug("server command", zap.Strings("command", command))
	return command, nil
}

func init() {
	chatCmd.Flags().String("model", "", "model identifier (default from agent.model)")
	chatCmd.Flags().String("history", "", "history between queries: reset or retain")
	chatCmd.Flags().Int("max-turns", 0, "model calls allowed per query (default from agent.max_turns)")
	chatCmd.Flags().String("transcript", "", "append every exchange to this file as JSON lines")
	chatCmd.Flags().Bool("resume", false, "continue the last conversation in --transcript (implies --history retain)")
	bindFlag("agent.model", chatCmd, "model")
	bindFlag("agent.history", chatCmd, "history")
	bindFlag("agent.max_turns", chatCmd, "max-turns")

	rootCmd.AddCommand(chatCmd)
}
