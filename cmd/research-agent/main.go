// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the research-agent CLI.
// serve exposes the paper store over MCP, chat runs the model-driven
// query loop against a spawned server, and papers and index give direct
// access to the store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/logging"
	"github.com/pdiddy/research-agent/internal/secrets"
	"github.com/pdiddy/research-agent/internal/server"
	"github.com/pdiddy/research-agent/internal/transport"
	"github.com/pdiddy/research-agent/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// cfg is the resolved configuration, filled in before any subcommand runs.
	cfg types.Config

	// logger writes to stderr; stdout carries the MCP channel when serving.
	logger = zap.NewNop()

	// loadedSecrets holds API keys loaded from .secrets/ at startup.
	loadedSecrets map[string]string
)

// rootCmd is the base command for the research-agent CLI.
var rootCmd = &cobra.Command{
	Use:   "research-agent",
	Short: "Search arXiv and answer questions about stored papers",
	Long: `research-agent keeps a local store of arXiv paper metadata grouped by
topic and exposes it to a language model over the Model Context Protocol.

Run "research-agent chat" for the interactive agent. It starts
"research-agent serve" as its tool server. The papers and index
subcommands work on the store directly, without a model.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}

		l, err := logging.New(cfg.Log, os.Stderr)
		if err != nil {
			return err
		}
		logger = l

		s, err := secrets.Load(secrets.DefaultDir, logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug("loaded secrets", zap.Strings("keys", keys))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ./research-agent.yaml or ~/.config/research-agent/research-agent.yaml)")
	flags.String("papers-dir", "papers", "paper store root, one subdirectory per topic")
	flags.String("log-level", "info", "console log level: debug, info, warn, error")
	flags.String("log-file", "", "rotated JSON log file (empty disables)")

	bindFlag("papers_dir", rootCmd, "papers-dir")
	bindFlag("log.level", rootCmd, "log-level")
	bindFlag("log.file", rootCmd, "log-file")

	setDefaults()
}

// setDefaults registers every configuration key so that environment
// variables are picked up by Unmarshal.
func setDefaults() {
	viper.SetDefault("papers_dir", "papers")
	viper.SetDefault("index", true)

	viper.SetDefault("search.max_results", 5)
	viper.SetDefault("search.timeout", 30*time.Second)
	viper.SetDefault("search.user_agent", "research-agent/"+version)
	viper.SetDefault("search.requests_per_second", 0.34)
	viper.SetDefault("search.max_retries", 5)

	viper.SetDefault("server.http_addr", "")
	viper.SetDefault("server.tool_timeout", server.DefaultToolTimeout)

	viper.SetDefault("agent.model", "claude-3-7-sonnet-20250219")
	viper.SetDefault("agent.api_key", "")
	viper.SetDefault("agent.max_tokens", 2024)
	viper.SetDefault("agent.max_retries", 2)
	viper.SetDefault("agent.max_turns", 20)
	viper.SetDefault("agent.call_timeout", 2*time.Minute)
	viper.SetDefault("agent.tool_timeout", 90*time.Second)
	viper.SetDefault("agent.history", string(types.HistoryReset))
	viper.SetDefault("agent.server_command", []string{})

	viper.SetDefault("log.file", "")
	viper.SetDefault("log.level", "info")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("research-agent")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "research-agent"))
		}
	}

	viper.SetEnvPrefix("RESEARCH_AGENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// bindFlag ties a flag of cmd to a viper key. A missing flag is a
// programming error.
func bindFlag(key string, cmd *cobra.Command, name string) {
	f := cmd.Flags().Lookup(name)
	if f == nil {
		f = cmd.PersistentFlags().Lookup(name)
	}
	if err := viper.BindPFlag(key, f); err != nil {
		panic(err)
	}
}

func main() {
	server.Version = version
	transport.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
