package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/ghostwrite/cmd/ghostwrite/commands"
	"github.com/teranos/ghostwrite/logger"
)

var rootCmd = &cobra.Command{
	Use:   "ghostwrite",
	Short: "ghostwrite - inline AI completions for editors",
	Long: `ghostwrite - inline AI completions served over the Language Server Protocol.

Completions are shown as ghost text and accepted in full, by line or by word.

Available commands:
  serve    - Run the language server (stdio or WebSocket)
  complete - Ask for one completion at a position in a file
  stats    - Show completion and provider usage statistics
  status   - Show process and configuration status
  am       - Manage configuration ("I am")
  version  - Show version information

Examples:
  ghostwrite serve                         # LSP on stdio
  ghostwrite serve --transport websocket   # LSP on ws://127.0.0.1:8877/lsp
  ghostwrite complete main.go --line 12 --col 8
  ghostwrite stats --since 24h`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLog, _ := cmd.Flags().GetBool("json-log")
		if err := logger.InitializeWithLevel(jsonLog, logger.VerbosityToLevel(verbosity)); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().Bool("json-log", false, "Write logs as JSON")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.CompleteCmd)
	rootCmd.AddCommand(commands.StatsCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
