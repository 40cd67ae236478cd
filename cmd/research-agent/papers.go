// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-agent/internal/store"
)

var papersCmd = &cobra.Command{
	Use:   "papers",
	Short: "Work with the paper store directly (search, topics, show, export)",
	Long: `Papers operates on the local paper store without a model. Use it to
fetch papers for a topic, list stored topics, inspect one paper, or export
stored papers for review.`,
}

// --- search subcommand ---

var papersSearchCmd = &cobra.Command{
	Use:   "search <topic>",
	Short: "Search arXiv for a topic and store the results",
	Long: `Search queries arXiv for the topic, merges the results into
<papers-dir>/<topic>/papers_info.json and prints the paper IDs found.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPapersSearch,
}

func runPapersSearch(cmd *cobra.Command, args []string) error {
	maxResults, _ := cmd.Flags().GetInt("max-results")
	if maxResults <= 0 {
		maxResults = cfg.Search.MaxResults
	}

	st, release, err := openStore(false)
	if err != nil {
		return err
	}
	defer release()

	topic := strings.Join(args, " ")
	ids, err := st.Search(cmd.Context(), topic, maxResults)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	fmt.Fprintf(os.Stderr, "%d papers stored under %s\n", len(ids), topic)
	return nil
}

// --- topics subcommand ---

var papersTopicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List stored topics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, release, err := openStore(false)
		if err != nil {
			return err
		}
		defer release()

		topics, err := st.ListTopics()
		if err != nil {
			return err
		}
		if len(topics) == 0 {
			fmt.Println("No topics stored.")
			return nil
		}
		for _, t := range topics {
			fmt.Println(t)
		}
		return nil
	},
}

// --- show subcommand ---

var papersShowCmd = &cobra.Command{
	Use:   "show <paper-id>",
	Short: "Print the stored metadata for one paper",
	Args:  cobra.ExactArgs(1),
	RunE:  runPapersShow,
}

func runPapersShow(cmd *cobra.Command, args []string) error {
	st, release, err := openStore(false)
	if err != nil {
		return err
	}
	defer release()

	rec, topic, err := st.Lookup(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "found in topic %s\n", topic)
	return nil
}

// --- export subcommand ---

var papersExportCmd = &cobra.Command{
	Use:   "export [topic...]",
	Short: "Export stored papers to YAML or JSON",
	Long: `Export writes the papers of the named topics, or of every topic when
none are named, as a flat list sorted by topic and paper ID. Output goes
to stdout unless --output is given.`,
	RunE: runPapersExport,
}

func runPapersExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")

	st, release, err := openStore(false)
	if err != nil {
		return err
	}
	defer release()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating %s: %w", output, err)
		}
		defer f.Close()
		w = f
	}

	switch store.ExportFormat(format) {
	case store.ExportYAML, store.ExportJSON:
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err := st.Export(w, store.ExportFormat(format), args...); err != nil {
		return err
	}
	if output != "" {
		fmt.Fprintf(os.Stderr, "Exported to %s\n", output)
	}
	return nil
}

func init() {
	papersSearchCmd.Flags().Int("max-results", 0, "number of papers to fetch (0 = search.max_results)")

	papersExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	papersExportCmd.Flags().String("output", "", "write to this file instead of stdout")

	papersCmd.AddCommand(papersSearchCmd)
	papersCmd.AddCommand(papersTopicsCmd)
	papersCmd.AddCommand(papersShowCmd)
	papersCmd.AddCommand(papersExportCmd)

	rootCmd.AddCommand(papersCmd)
}
