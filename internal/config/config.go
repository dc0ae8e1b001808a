// Package config handles loading and validating Fundi configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for Fundi.
type Config struct {
	Workspace string `json:"workspace,omitempty" yaml:"workspace,omitempty"` // Runtime root. Default: ~/.fundi/workspace. Override: FUNDI_WORKSPACE.

	Model    ModelConfig    `json:"model" yaml:"model"`
	Executor ExecutorConfig `json:"executor" yaml:"executor"`
	Repair   RepairConfig   `json:"repair" yaml:"repair"`

	Storage       *StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"`             // nil = SQLite default (derived from workspace).
	HTTP          *HTTPConfig          `json:"http,omitempty" yaml:"http,omitempty"`                   // nil = HTTP gateway disabled.
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled.
}

// ModelConfig selects the Ollama model and endpoint.
type ModelConfig struct {
	BaseURL       string `json:"base_url,omitempty" yaml:"base_url,omitempty"` // Default: http://localhost:11434. Override: OLLAMA_BASE_URL.
	Name          string `json:"name,omitempty" yaml:"name,omitempty"`         // Default: qwen3-coder.
	FallbackModel string `json:"fallback_model,omitempty" yaml:"fallback_model,omitempty"`
}

// Default model selection.
const (
	DefaultBaseURL       = "http://localhost:11434"
	DefaultModel         = "qwen3-coder"
	DefaultFallbackModel = "qwen3:4b"
)

// ResolvedBaseURL returns the Ollama endpoint, falling back to the default.
func (m ModelConfig) ResolvedBaseURL() string {
	if m.BaseURL != "" {
		return m.BaseURL
	}
	return DefaultBaseURL
}

// ResolvedName returns the model name, falling back to the default.
func (m ModelConfig) ResolvedName() string {
	if m.Name != "" {
		return m.Name
	}
	return DefaultModel
}

// ResolvedFallback returns the fallback model, falling back to the default.
func (m ModelConfig) ResolvedFallback() string {
	if m.FallbackModel != "" {
		return m.FallbackModel
	}
	return DefaultFallbackModel
}

// ExecutorConfig configures the execution sandbox.
type ExecutorConfig struct {
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"` // Default: 30.
	PythonPath     string `json:"python_path,omitempty" yaml:"python_path,omitempty"`
}

// Timeout returns the configured deadline as a duration.
func (e ExecutorConfig) Timeout() time.Duration {
	if e.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// RepairConfig bounds the auto-fix loop.
type RepairConfig struct {
	MaxAttempts  int `json:"max_attempts" yaml:"max_attempts"`                     // Default: 3.
	StderrBudget int `json:"stderr_budget,omitempty" yaml:"stderr_budget,omitempty"` // Chars of stderr per repair prompt. Default: 500.
	MaxMessages  int `json:"max_messages,omitempty" yaml:"max_messages,omitempty"` // Conversation retention cap. Default: 20.
}

// StorageConfig configures the session history backend.
type StorageConfig struct {
	Driver   string                 `json:"driver" yaml:"driver"` // "sqlite" (default) or "postgres".
	SQLite   *SQLiteStorageConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
	Postgres *PostgresStorageConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"`
}

// StorageDriver returns the configured driver, defaulting to "sqlite".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "sqlite"
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Default: derived from workspace.
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
type PostgresStorageConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 25.
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 5.
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800 (30 min).
}

// HTTPConfig configures the HTTP API gateway (serve mode).
type HTTPConfig struct {
	ListenAddr        string            `json:"listen_addr" yaml:"listen_addr"` // e.g. ":8080".
	APIKeys           map[string]string `json:"api_keys,omitempty" yaml:"api_keys,omitempty"` // key → client ID. FUNDI_API_KEY adds "default".
	RequestsPerMinute int               `json:"requests_per_minute" yaml:"requests_per_minute"` // 0 = unlimited.
	EnableDocs        bool              `json:"enable_docs" yaml:"enable_docs"`
	ScratchSweep      string            `json:"scratch_sweep,omitempty" yaml:"scratch_sweep,omitempty"` // Cron spec for orphaned scratch dir sweeps. Empty = hourly.
	ScratchTTLMinutes int               `json:"scratch_ttl_minutes,omitempty" yaml:"scratch_ttl_minutes,omitempty"` // Default: 120.
}

// ObservabilityConfig enables metrics and tracing.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"` // Default: /metrics.
}

// TracingConfig enables OTLP trace export.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`                   // OTLP collector endpoint.
	Protocol    string  `json:"protocol,omitempty" yaml:"protocol,omitempty"` // "grpc" (default) or "http".
	ServiceName string  `json:"service_name,omitempty" yaml:"service_name,omitempty"` // Default: "fundi".
	SampleRatio float64 `json:"sample_ratio,omitempty" yaml:"sample_ratio,omitempty"` // Default: 1.0.
	Insecure    bool    `json:"insecure" yaml:"insecure"`
}

// ResolvedWorkspace returns the workspace root, defaulting to
// ~/.fundi/workspace.
func (c *Config) ResolvedWorkspace() string {
	if c.Workspace != "" {
		return c.Workspace
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fundi/workspace"
	}
	return filepath.Join(home, ".fundi", "workspace")
}

// DefaultConfigPath returns ~/.fundi/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".fundi", "config.yaml")
}

// Default returns a Config with built-in defaults, used when no config file
// exists.
func Default() *Config {
	return &Config{}
}

// Load reads a YAML or JSON config file and applies environment overrides.
// A missing file is not an error — defaults apply.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	cfg := Default()

	data, err := os.ReadFile(resolved)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	default:
		switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
		case ".yml", ".yaml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
			}
		default:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets environment variables take precedence over file
// values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		cfg.Model.BaseURL = v
	}
	if v := os.Getenv("FUNDI_MODEL"); v != "" {
		cfg.Model.Name = v
	}
	if v := os.Getenv("FUNDI_WORKSPACE"); v != "" {
		cfg.Workspace = v
	}
	if v := os.Getenv("FUNDI_API_KEY"); v != "" {
		if cfg.HTTP == nil {
			cfg.HTTP = &HTTPConfig{}
		}
		if cfg.HTTP.APIKeys == nil {
			cfg.HTTP.APIKeys = make(map[string]string)
		}
		cfg.HTTP.APIKeys[v] = "default"
	}
	if v := os.Getenv("FUNDI_DB_DSN"); v != "" {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{Driver: "postgres"}
		}
		if cfg.Storage.Postgres == nil {
			cfg.Storage.Postgres = &PostgresStorageConfig{}
		}
		cfg.Storage.Postgres.DSN = v
	}
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.Repair.MaxAttempts < 0 {
		return fmt.Errorf("repair.max_attempts must be >= 0, got %d", c.Repair.MaxAttempts)
	}
	if c.Executor.TimeoutSeconds < 0 {
		return fmt.Errorf("executor.timeout_seconds must be >= 0, got %d", c.Executor.TimeoutSeconds)
	}
	if c.Storage != nil {
		switch d := c.Storage.StorageDriver(); d {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("storage.driver must be sqlite or postgres, got %q", d)
		}
		if c.Storage.StorageDriver() == "postgres" &&
			(c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "") {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres driver")
		}
	}
	if c.Observability != nil && c.Observability.Tracing != nil && c.Observability.Tracing.Enabled {
		tr := c.Observability.Tracing
		if tr.Endpoint == "" {
			return fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled")
		}
		switch tr.Protocol {
		case "", "grpc", "http":
		default:
			return fmt.Errorf("observability.tracing.protocol must be grpc or http, got %q", tr.Protocol)
		}
	}
	return nil
}

// resolvePath expands ~ to the user home directory and returns an absolute
// path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}
