package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jkaninda/fundi/internal/config"
	"github.com/jkaninda/fundi/internal/gateway/cli"
	goutils "github.com/jkaninda/go-utils"
)

var (
	chatConfigPath string
	chatModel      string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive REPL (default mode)",
	RunE:  runChat,
}

func init() {
	// Register flags on both root and chat so that
	// `fundi --model x` and `fundi chat --model x` both work.
	for _, cmd := range []*cobra.Command{rootCmd, chatCmd} {
		cmd.Flags().StringVar(&chatConfigPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().StringVar(&chatModel, "model", "", "override the Ollama model")
	}
}

// runChat starts the interactive REPL.
func runChat(_ *cobra.Command, _ []string) error {
	// The REPL owns the terminal; keep structured log noise to warnings.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	cfg, err := config.Load(goutils.Env("FUNDI_CONFIG", chatConfigPath))
	if err != nil {
		return err
	}

	// Apply CLI overrides.
	if chatModel != "" {
		cfg.Model.Name = chatModel
	}

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ws := sc.Workspace
	gw := cli.NewGateway(cli.Config{
		FallbackModel: cfg.Model.ResolvedFallback(),
		MaxFixDefault: cfg.Repair.MaxAttempts,
		MaxMessages:   cfg.Repair.MaxMessages,
		PersistModel: func(model string) error {
			return os.WriteFile(ws.ModelConfigPath(), []byte(model+"\n"), 0644)
		},
	}, sc.Generator, sc.Executor, sc.Ollama, sc.Store, sc.Obs.MetricsOrNil(), logger)

	return gw.Start(ctx)
}
