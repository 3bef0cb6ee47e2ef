package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	workspaceRootFlag string
	openspecPathFlag  string
	debug             bool
)

var rootCmd = &cobra.Command{
	Use:     "openspecui-kernel",
	Short:   "openspecui-kernel - reactive backend for the OpenSpec UI",
	Version: "v0.1.0",
	Long:    "openspecui-kernel - reactive backend for the OpenSpec UI: watches an OpenSpec workspace, caches derived views, and exposes them over MCP and WebSocket.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "openspecui-kernel: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&workspaceRootFlag, "workspace", "", "workspace root directory (default: current directory, or $OPENSPECUI_WORKSPACE_ROOT)")
	rootCmd.PersistentFlags().StringVar(&openspecPathFlag, "openspec-path", "", "path to the openspec executable (default: $PATH lookup, or $OPENSPECUI_OPENSPEC_PATH)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}
