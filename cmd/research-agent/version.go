// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-agent/internal/server"
	"github.com/pdiddy/research-agent/internal/transport"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version and MCP identities",
	Long: `Print the build version together with the implementation names
advertised during the MCP initialize handshake. With --short only the
version string is printed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		short, err := cmd.Flags().GetBool("short")
		if err != nil {
			return err
		}
		printVersion(cmd.OutOrStdout(), short)
		return nil
	},
}

func printVersion(w io.Writer, short bool) {
	if short {
		fmt.Fprintln(w, version)
		return
	}
	fmt.Fprintf(w, "research-agent %s (%s %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(w, "  server: %s %s\n", server.Name, server.Version)
	fmt.Fprintf(w, "  client: %s %s\n", transport.ClientName, transport.Version)
}

func init() {
	versionCmd.Flags().Bool("short", false, "print only the version string")
	rootCmd.AddCommand(versionCmd)
}
