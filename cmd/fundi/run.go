package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jkaninda/fundi/internal/config"
	"github.com/jkaninda/fundi/internal/executor"
	goutils "github.com/jkaninda/go-utils"
)

var (
	runConfigPath string
	runStdin      string
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Execute a Python file in the sandbox once (use - for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE:  runOnce,
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", config.DefaultConfigPath(), "path to config file")
	runCmd.Flags().StringVar(&runStdin, "stdin", "", "feed this string to the program's standard input")
}

// runOnce executes one script through the sandbox and reports the classified
// outcome. The LLM is never contacted.
func runOnce(_ *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	cfg, err := config.Load(goutils.Env("FUNDI_CONFIG", runConfigPath))
	if err != nil {
		return err
	}

	code, err := readScript(args[0])
	if err != nil {
		return err
	}

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var res *executor.Result
	if runStdin != "" {
		res = sc.Executor.ExecuteWithInput(ctx, code, runStdin)
	} else {
		res = sc.Executor.Execute(ctx, code)
	}

	if res.Stdout != "" {
		fmt.Print(res.Stdout)
	}
	if res.Stderr != "" {
		fmt.Fprint(os.Stderr, res.Stderr)
	}
	if !res.Success() {
		return fmt.Errorf("execution ended with outcome %s (exit code %d)", res.Outcome, res.ExitCode)
	}
	return nil
}

// readScript loads the script body from a file, or from stdin when the
// argument is "-".
func readScript(arg string) (string, error) {
	if arg == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("reading script %s: %w", arg, err)
	}
	return string(data), nil
}
