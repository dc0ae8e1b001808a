package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jkaninda/fundi/internal/codegen"
	"github.com/jkaninda/fundi/internal/config"
	"github.com/jkaninda/fundi/internal/executor"
	"github.com/jkaninda/fundi/internal/history"
	"github.com/jkaninda/fundi/internal/llm"
	"github.com/jkaninda/fundi/internal/llm/ollama"
	"github.com/jkaninda/fundi/internal/observability"
	"github.com/jkaninda/fundi/internal/repair"
	"github.com/jkaninda/fundi/internal/workspace"
)

// SharedComponents holds all initialized subsystems that every mode (REPL,
// HTTP API, MCP, one-shot run) requires. Built once by initShared, torn down
// by Cleanup.
type SharedComponents struct {
	Config    *config.Config
	Logger    *slog.Logger
	Workspace *workspace.Workspace
	Store     history.Store // Unified store (SQLite or PostgreSQL).

	Obs       *observability.Observability
	Provider  llm.Provider   // Instrumented when metrics are enabled.
	Ollama    *ollama.Client // Raw client, for model switching and discovery.
	Executor  *executor.Executor
	Sandbox   repair.Sandbox // Instrumented when metrics are enabled.
	Generator *codegen.Generator

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// initShared performs all common initialization shared between modes.
// Callers must call sc.Cleanup() when done.
func initShared(cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	// Workspace.
	ws, err := initWorkspace(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing workspace: %w", err)
	}
	if err := ws.EnsureAll(); err != nil {
		return nil, fmt.Errorf("preparing workspace directories: %w", err)
	}
	sc.Workspace = ws
	logger.Debug("workspace initialized", slog.String("root", ws.Root))

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		if obs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}
	})
	if obs != nil {
		logger.Debug("observability initialized",
			slog.Bool("metrics", obs.Metrics != nil),
			slog.Bool("tracing", obs.Tracer != nil),
		)
	}

	// LLM provider.
	model := resolveModel(cfg, ws)
	client := ollama.NewClient(model, logger,
		ollama.WithBaseURL(cfg.Model.ResolvedBaseURL()),
	)
	sc.Ollama = client
	logger.Debug("llm provider initialized",
		slog.String("provider", client.Name()),
		slog.String("model", model),
		slog.String("base_url", cfg.Model.ResolvedBaseURL()),
	)

	var provider llm.Provider = client
	if obs != nil && obs.Metrics != nil {
		provider = observability.NewInstrumentedProvider(provider, obs.Metrics, obs.TracerOrNil())
	}
	sc.Provider = provider

	// Session history store (SQLite default, PostgreSQL optional).
	store, err := initStore(cfg, ws, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing history store: %w", err)
	}
	sc.Store = store
	sc.addCleanup(func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", slog.String("error", err.Error()))
		}
	})

	// Run migrations.
	if err := store.Migrate(context.Background()); err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	// Execution sandbox.
	exec, err := executor.New(executor.Config{
		Timeout:     cfg.Executor.Timeout(),
		PythonPath:  cfg.Executor.PythonPath,
		ScratchRoot: ws.ScratchDir(),
	}, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing executor: %w", err)
	}
	sc.Executor = exec
	sc.addCleanup(exec.Cleanup)
	logger.Debug("executor initialized",
		slog.String("work_dir", exec.WorkDir()),
		slog.Duration("timeout", exec.Timeout()),
	)

	var sbx repair.Sandbox = exec
	if obs != nil && obs.Metrics != nil {
		sbx = observability.NewInstrumentedSandbox(sbx, obs.Metrics, obs.TracerOrNil())
	}
	sc.Sandbox = sbx

	// Code generator.
	sc.Generator = codegen.NewGenerator(provider, logger)

	return sc, nil
}

// initWorkspace creates and returns the workspace, resolving the root from
// config or defaults.
func initWorkspace(cfg *config.Config) (*workspace.Workspace, error) {
	if cfg.Workspace == "" {
		return workspace.Default()
	}
	return workspace.New(cfg.Workspace)
}

// resolveModel picks the model name: explicit config (or FUNDI_MODEL env)
// wins, then the model persisted by the REPL's /model command, then the
// built-in default.
func resolveModel(cfg *config.Config, ws *workspace.Workspace) string {
	if cfg.Model.Name != "" {
		return cfg.Model.Name
	}
	if data, err := os.ReadFile(ws.ModelConfigPath()); err == nil {
		if persisted := strings.TrimSpace(string(data)); persisted != "" {
			return persisted
		}
	}
	return config.DefaultModel
}

// initStore creates the appropriate history backend from config.
func initStore(cfg *config.Config, ws *workspace.Workspace, logger *slog.Logger) (history.Store, error) {
	driver := cfg.Storage.StorageDriver()

	switch driver {
	case "postgres":
		return initPostgresStore(cfg, logger)
	case "sqlite":
		return initSQLiteStore(cfg, ws, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", driver)
	}
}

func initSQLiteStore(cfg *config.Config, ws *workspace.Workspace, logger *slog.Logger) (history.Store, error) {
	dbPath := ws.HistoryDBPath()
	journalMode := "wal"

	if cfg.Storage != nil && cfg.Storage.SQLite != nil {
		if cfg.Storage.SQLite.Path != "" {
			dbPath = cfg.Storage.SQLite.Path
		}
		if cfg.Storage.SQLite.JournalMode != "" {
			journalMode = cfg.Storage.SQLite.JournalMode
		}
	}

	return history.OpenSQLite(history.SQLiteConfig{
		Path:        dbPath,
		JournalMode: journalMode,
	}, logger)
}

func initPostgresStore(cfg *config.Config, logger *slog.Logger) (history.Store, error) {
	var dsn string
	if cfg.Storage != nil && cfg.Storage.Postgres != nil {
		dsn = cfg.Storage.Postgres.DSN
	}
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required (set storage.postgres.dsn or FUNDI_DB_DSN)")
	}

	pgCfg := history.PostgresConfig{DSN: dsn}
	if cfg.Storage.Postgres != nil {
		pgCfg.MaxOpenConns = cfg.Storage.Postgres.MaxOpenConns
		pgCfg.MaxIdleConns = cfg.Storage.Postgres.MaxIdleConns
		pgCfg.ConnMaxLifetime = time.Duration(cfg.Storage.Postgres.ConnMaxLifetimeS) * time.Second
	}

	return history.OpenPostgres(pgCfg, logger)
}
