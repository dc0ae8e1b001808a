// Package mcp exposes the execution sandbox over the Model Context Protocol
// so MCP-capable clients (editors, agents) can run Python through Fundi.
// The server speaks stdio; each tool call is one sandbox execution.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jkaninda/fundi/internal/executor"
)

// Sandbox is the slice of the executor the MCP server needs.
type Sandbox interface {
	Execute(ctx context.Context, code string) *executor.Result
	ExecuteWithInput(ctx context.Context, code, input string) *executor.Result
	SaveCode(code, path string) (string, error)
}

// Server wraps an MCP stdio server around the sandbox.
type Server struct {
	sandbox  Sandbox
	savedDir string // Anchor for relative save_code paths. Empty = daemon CWD.
	logger   *slog.Logger
	mcp      *server.MCPServer
}

// NewServer creates the MCP server and registers the sandbox tools.
// Relative save_code paths are resolved under savedDir.
func NewServer(sandbox Sandbox, savedDir, version string, logger *slog.Logger) *Server {
	s := &Server{
		sandbox:  sandbox,
		savedDir: savedDir,
		logger:   logger,
		mcp: server.NewMCPServer(
			"fundi",
			version,
			server.WithToolCapabilities(false),
		),
	}

	s.mcp.AddTool(
		mcp.NewTool("run_python",
			mcp.WithDescription("Execute a Python snippet in a sandboxed scratch directory with a hard timeout. Returns stdout, stderr, and the classified outcome."),
			mcp.WithString("code",
				mcp.Required(),
				mcp.Description("Python source code to execute."),
			),
			mcp.WithString("stdin",
				mcp.Description("Optional text piped to the process's standard input."),
			),
		),
		s.handleRunPython,
	)

	s.mcp.AddTool(
		mcp.NewTool("save_code",
			mcp.WithDescription("Save a Python snippet to a file. Relative paths land in the Fundi workspace."),
			mcp.WithString("code",
				mcp.Required(),
				mcp.Description("Python source code to save."),
			),
			mcp.WithString("path",
				mcp.Required(),
				mcp.Description("Target file path."),
			),
		),
		s.handleSaveCode,
	)

	return s
}

// Start serves MCP over stdio and blocks until the client disconnects or
// ctx is cancelled.
func (s *Server) Start(_ context.Context) error {
	s.logger.Info("mcp server starting on stdio")
	return server.ServeStdio(s.mcp)
}

// Stop is a no-op: stdio serving ends when the client closes the pipe.
func (s *Server) Stop(_ context.Context) error { return nil }

func (s *Server) handleRunPython(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := req.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stdin := req.GetString("stdin", "")

	s.logger.InfoContext(ctx, "mcp run_python", slog.Int("code_size", len(code)))

	var res *executor.Result
	if stdin != "" {
		res = s.sandbox.ExecuteWithInput(ctx, code, stdin)
	} else {
		res = s.sandbox.Execute(ctx, code)
	}

	text := formatResult(res)
	if !res.Success() {
		return mcp.NewToolResultError(text), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleSaveCode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := req.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	msg, err := s.sandbox.SaveCode(code, targetPath(s.savedDir, path))
	if err != nil {
		s.logger.WarnContext(ctx, "mcp save_code failed", slog.String("error", err.Error()))
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(msg), nil
}

// targetPath anchors relative save paths under the workspace's saved
// directory, so MCP clients get a stable destination regardless of the
// daemon's working directory. Absolute paths pass through untouched.
func targetPath(savedDir, path string) string {
	if savedDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(savedDir, path)
}

// formatResult renders a sandbox result as tool output text.
func formatResult(res *executor.Result) string {
	out := fmt.Sprintf("outcome: %s (exit code %d, %.2fs)", res.Outcome, res.ExitCode, res.Elapsed.Seconds())
	if res.Stdout != "" {
		out += "\n--- stdout ---\n" + res.Stdout
	}
	if res.Stderr != "" {
		out += "\n--- stderr ---\n" + res.Stderr
	}
	return out
}
