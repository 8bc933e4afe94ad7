package commands

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "a2f-ws-gateway",
	Short: "WebSocket audio-to-blendshape inference gateway",
	Long: `a2f-ws-gateway streams 16kHz PCM audio from WebSocket clients into a
pool of pre-warmed GPU executors and streams back binary blendshape-weight
frames.

Usage:
  a2f-ws-gateway serve --model model.json --port 8765`,
}

// Command returns the root cobra command for mounting into a parent CLI.
func Command() *cobra.Command {
	return rootCmd
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
