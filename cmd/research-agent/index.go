// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-agent/internal/store"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Maintain the paper ID index (refresh, rebuild)",
	Long: `Index manages the SQLite index under <papers-dir>/.index that maps paper
IDs to topics. The topic files stay authoritative; the index only speeds
up extract_info lookups. It is refreshed automatically on lookup, so these
commands are only needed after bulk edits or to recover a damaged index.`,
}

var indexRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-index topics whose files changed and drop removed topics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(cmd, (*store.Store).RefreshIndex)
	},
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Discard the index and re-read every topic",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(cmd, (*store.Store).RebuildIndex)
	},
}

type indexFunc func(*store.Store, context.Context, io.Writer) (store.RefreshSummary, error)

func runIndex(cmd *cobra.Command, fn indexFunc) error {
	st, release, err := openStore(true)
	if err != nil {
		return err
	}
	defer release()

	summary, err := fn(st, cmd.Context(), os.Stdout)
	if err != nil {
		return err
	}
	fmt.Printf("%d topics: %d indexed, %d updated, %d unchanged, %d removed, %d failed\n",
		summary.Total(), summary.Indexed, summary.Updated, summary.Skipped, summary.Removed, summary.Failed)
	if summary.Failed > 0 {
		return fmt.Errorf("%d topic(s) failed indexing", summary.Failed)
	}
	return nil
}

func init() {
	indexCmd.AddCommand(indexRefreshCmd)
	indexCmd.AddCommand(indexRebuildCmd)

	rootCmd.AddCommand(indexCmd)
}
