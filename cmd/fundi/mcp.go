package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jkaninda/fundi/internal/config"
	mcpgw "github.com/jkaninda/fundi/internal/gateway/mcp"
	goutils "github.com/jkaninda/go-utils"
)

var mcpConfigPath string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the sandbox as an MCP server on stdio",
	Long: `Expose the execution sandbox over the Model Context Protocol so MCP
clients (editors, agents) can run Python snippets and save code through
the run_python and save_code tools. The transport is stdio.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpConfigPath, "config", config.DefaultConfigPath(), "path to config file")
}

// runMCP serves the sandbox over MCP stdio. Stdout belongs to the protocol,
// so logs go to stderr only.
func runMCP(cmd *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(goutils.Env("FUNDI_CONFIG", mcpConfigPath))
	if err != nil {
		return err
	}

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	srv := mcpgw.NewServer(sc.Executor, sc.Workspace.SavedDir(), version, logger)
	return srv.Start(cmd.Context())
}
