package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkaninda/fundi/internal/agent"
	"github.com/jkaninda/fundi/internal/config"
	"github.com/jkaninda/fundi/internal/gateway/httpapi"
	"github.com/jkaninda/fundi/internal/ratelimit"
	"github.com/jkaninda/fundi/internal/repair"
	"github.com/jkaninda/fundi/internal/workspace"
	goutils "github.com/jkaninda/go-utils"
)

var (
	serveConfigPath string
	servePort       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API gateway",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath(), "path to config file")
	serveCmd.Flags().StringVar(&servePort, "port", "", "override HTTP listen address (e.g. :8080)")
}

// runServe starts Fundi as an HTTP API server.
func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(goutils.Env("FUNDI_CONFIG", serveConfigPath))
	if err != nil {
		return err
	}

	logger, closeLog, err := newServeLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	// Apply CLI overrides.
	if cfg.HTTP == nil {
		cfg.HTTP = &config.HTTPConfig{}
	}
	if servePort != "" {
		cfg.HTTP.ListenAddr = servePort
	}
	if cfg.HTTP.ListenAddr == "" {
		cfg.HTTP.ListenAddr = ":8080"
	}

	logger.Info("starting in serve mode", slog.String("addr", cfg.HTTP.ListenAddr))

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Sweep orphaned scratch directories left by crashed executions.
	ttl := time.Duration(cfg.HTTP.ScratchTTLMinutes) * time.Minute
	janitor := workspace.NewJanitor(sc.Workspace, ttl, logger)
	if err := janitor.Start(ctx, cfg.HTTP.ScratchSweep); err != nil {
		return err
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.HTTP.RequestsPerMinute,
	})

	// Build API key → client ID mapping from config + env override.
	apiKeys := cfg.HTTP.APIKeys
	if apiKeys == nil {
		apiKeys = make(map[string]string)
	}
	if envKeys := os.Getenv("FUNDI_API_KEYS"); envKeys != "" {
		for _, entry := range strings.Split(envKeys, ",") {
			parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
			if len(parts) == 2 {
				apiKeys[parts[0]] = parts[1]
			}
		}
	}

	// Repair pipeline shared by all requests.
	loop := repair.New(repair.Config{
		MaxAttempts:  cfg.Repair.MaxAttempts,
		StderrBudget: cfg.Repair.StderrBudget,
	}, sc.Generator, sc.Sandbox, nil, logger)
	a := agent.New(sc.Generator, loop, sc.Sandbox, sc.Store, sc.Obs.MetricsOrNil(), logger)

	// Readiness checks.
	if sc.Obs != nil && sc.Obs.Health != nil {
		sc.Obs.Health.AddCheck("ollama", func(ctx context.Context) error {
			_, err := sc.Ollama.ListModels(ctx)
			return err
		})
		sc.Obs.Health.AddCheck("store", func(ctx context.Context) error {
			_, err := sc.Store.ListSessions(ctx, "readiness", 1)
			return err
		})
	}

	httpCfg := httpapi.Config{
		ListenAddr: cfg.HTTP.ListenAddr,
		EnableDocs: cfg.HTTP.EnableDocs,
		APIKeys:    apiKeys,
	}
	if sc.Obs != nil {
		httpCfg.Metrics = sc.Obs.Metrics
		httpCfg.HealthChecker = sc.Obs.Health
		if sc.Obs.Metrics != nil {
			httpCfg.MetricsRegistry = sc.Obs.Metrics.Registry
		}
		if sc.Obs.Tracer != nil {
			httpCfg.Tracer = sc.Obs.Tracer.Tracer()
		}
		if cfg.Observability != nil && cfg.Observability.Metrics != nil {
			httpCfg.MetricsPath = cfg.Observability.Metrics.Path
		}
	}

	gw := httpapi.NewGateway(httpCfg, a, sc.Executor, sc.Provider, sc.Store, limiter, logger)

	errs := make(chan error, 1)
	go func() {
		errs <- gw.Start(ctx)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
			return err
		}
		return nil
	}

	// Graceful shutdown with deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return gw.Stop(shutdownCtx)
}

// newServeLogger writes JSON logs to stderr and to serve.log in the
// workspace, so daemon logs survive the terminal session.
func newServeLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	ws, err := initWorkspace(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := ws.EnsureAll(); err != nil {
		return nil, nil, err
	}

	f, err := os.OpenFile(filepath.Join(ws.LogsDir(), "serve.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return nil, nil, fmt.Errorf("opening serve log: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(io.MultiWriter(os.Stderr, f), &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	return logger, func() { _ = f.Close() }, nil
}
