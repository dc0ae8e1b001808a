// Fundi — local AI coding agent that generates, runs, and repairs Python.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fundi",
	Short: "Fundi — generate, execute, and auto-repair Python with a local LLM.",
	Long: `Fundi turns natural-language prompts into Python code via a local Ollama
model, executes it in an isolated sandbox, and feeds failures back to the
model for automatic repair. Runs as an interactive REPL by default; also
exposes an HTTP API and an MCP stdio server.`,
	RunE:          runChat, // Default to the interactive REPL.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(chatCmd, serveCmd, runCmd, mcpCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
