// Package httpapi implements the HTTP API gateway for Fundi.
//
// Security:
//   - API key authentication on every /v1 request (constant-time comparison)
//   - Request body size limits (default 1 MB)
//   - Per-client rate limiting via token bucket
//   - All requests logged with correlation IDs
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/fundi/internal/agent"
	"github.com/jkaninda/fundi/internal/executor"
	"github.com/jkaninda/fundi/internal/history"
	"github.com/jkaninda/fundi/internal/llm"
	"github.com/jkaninda/fundi/internal/observability"
	"github.com/jkaninda/fundi/internal/ratelimit"
	"github.com/jkaninda/okapi"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr     string // e.g., ":8080"
	EnableDocs     bool
	APIKeys        map[string]string // API key → client ID mapping. Keys from env.
	MaxRequestSize int64             // Maximum request body in bytes. 0 = 1 MB default.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	config   Config
	agent    *agent.Agent
	exec     *executor.Executor
	provider llm.Provider  // For GET /v1/models.
	store    history.Store // nil = session endpoints return 404.
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
	server   *http.Server

	okapi *okapi.Okapi
	group *okapi.Group
}

// NewGateway creates an HTTP API gateway.
func NewGateway(cfg Config, a *agent.Agent, exec *executor.Executor, provider llm.Provider, store history.Store, rl *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	maxSize := cfg.MaxRequestSize
	if maxSize <= 0 {
		maxSize = defaultMaxRequestSize
	}
	cfg.MaxRequestSize = maxSize
	return &Gateway{
		config:   cfg,
		agent:    a,
		exec:     exec,
		provider: provider,
		store:    store,
		limiter:  rl,
		logger:   logger,
		okapi:    okapi.New(okapi.WithMaxMultipartMemory(maxSize)),
	}
}

// WithOpenAPIDocs mounts the OpenAPI documentation UI.
func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "Fundi",
			Version: "v0.1.0",
		},
	)
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	middlewares := []okapi.Middleware{}
	if g.config.Metrics != nil || g.config.Tracer != nil {
		middlewares = append(middlewares, observability.MetricsMiddleware(g.config.Metrics, g.config.Tracer))
	}
	middlewares = append(middlewares, g.authenticate)

	// Authenticated /v1 group.
	g.group = g.okapi.Group("/v1", middlewares...)

	g.group.Post("/generate", g.handleGenerate,
		okapi.DocSummary("Generate Python code from a prompt, execute it, and auto-repair failures"),
		okapi.DocTags("Code"),
		okapi.DocRequestBody(GenerateRequest{}),
		okapi.DocResponse(SessionResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	g.group.Post("/execute", g.handleExecute,
		okapi.DocSummary("Execute a Python snippet in the sandbox"),
		okapi.DocTags("Code"),
		okapi.DocRequestBody(ExecuteRequest{}),
		okapi.DocResponse(ExecutionResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	g.group.Get("/sessions", g.handleSessionList,
		okapi.DocSummary("List recent repair sessions"),
		okapi.DocTags("Sessions"),
		okapi.DocResponse([]SessionSummary{}),
	)
	g.group.Get("/sessions/{id}", g.handleSessionGet,
		okapi.DocSummary("Get a repair session with all its attempts"),
		okapi.DocTags("Sessions"),
		okapi.DocPathParam("id", "string", "Session ID (UUID)"),
		okapi.DocResponse(history.Session{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Get("/models", g.handleModels,
		okapi.DocSummary("List models available from the LLM provider"),
		okapi.DocTags("Models"),
		okapi.DocResponse(ModelsResponse{}),
	)
	g.group.Get("/healthz", g.handleHealth,
		okapi.DocSummary("Authenticated health check"),
		okapi.DocTags("Health"),
		okapi.DocResponse(HealthResponse{}),
	)

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second, // Generate may ride several LLM round trips.
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting", slog.String("addr", g.config.ListenAddr))

	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(_ context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// --- Handlers ---

// GenerateRequest is the JSON body for POST /v1/generate.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// ExecutionResult is the classified outcome of one sandbox run.
type ExecutionResult struct {
	Outcome   string  `json:"outcome"`
	Stdout    string  `json:"stdout,omitempty"`
	Stderr    string  `json:"stderr,omitempty"`
	ExitCode  int     `json:"exit_code"`
	ElapsedMS float64 `json:"elapsed_ms"`
}

// SessionResponse is the JSON response for POST /v1/generate.
type SessionResponse struct {
	SessionID     string           `json:"session_id"`
	State         string           `json:"state"`
	Code          string           `json:"code,omitempty"`
	Attempts      int              `json:"attempts"`
	Message       string           `json:"message,omitempty"` // Conversational reply when no code was produced.
	Result        *ExecutionResult `json:"result,omitempty"`
	CorrelationID string           `json:"correlation_id"`
}

func (g *Gateway) handleGenerate(c *okapi.Context) error {
	clientID := c.GetString("clientID")

	if g.limiter != nil {
		if err := g.limiter.Allow(clientID); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("prompt is required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return c.AbortBadRequest("prompt is required")
	}

	correlationID := newCorrelationID()

	g.logger.Info("http generate",
		slog.String("client_id", clientID),
		slog.String("correlation_id", correlationID),
	)

	out, err := g.agent.Process(c.Context(), &agent.Input{
		ClientID: clientID,
		Prompt:   req.Prompt,
	})
	if err != nil {
		g.logger.Error("generation failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("generation failed")
	}

	resp := SessionResponse{
		SessionID:     out.SessionID.String(),
		State:         string(out.State),
		Code:          out.Code,
		Attempts:      out.Attempts,
		CorrelationID: correlationID,
	}
	if out.Message != "" {
		// Conversational reply, nothing was executed.
		resp.Message = out.Message
	}
	if out.Result != nil {
		resp.Result = toExecutionResult(out.Result)
	}

	return c.OK(resp)
}

// ExecuteRequest is the JSON body for POST /v1/execute.
type ExecuteRequest struct {
	Code  string `json:"code"`
	Stdin string `json:"stdin,omitempty"` // Piped to the process; bypasses input() substitution.
}

// ExecutionResponse is the JSON response for POST /v1/execute.
type ExecutionResponse struct {
	Result        *ExecutionResult `json:"result"`
	CorrelationID string           `json:"correlation_id"`
}

func (g *Gateway) handleExecute(c *okapi.Context) error {
	clientID := c.GetString("clientID")

	if g.limiter != nil {
		if err := g.limiter.Allow(clientID); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("code is required")
	}
	if req.Code == "" {
		return c.AbortBadRequest("code is required")
	}

	correlationID := newCorrelationID()

	g.logger.Info("http execute",
		slog.String("client_id", clientID),
		slog.String("correlation_id", correlationID),
		slog.Int("code_size", len(req.Code)),
	)

	var res *executor.Result
	if req.Stdin != "" {
		res = g.exec.ExecuteWithInput(c.Context(), req.Code, req.Stdin)
	} else {
		res = g.agent.Execute(c.Context(), req.Code)
	}

	return c.OK(ExecutionResponse{
		Result:        toExecutionResult(res),
		CorrelationID: correlationID,
	})
}

// SessionSummary is one row in the session list.
type SessionSummary struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

func (g *Gateway) handleSessionList(c *okapi.Context) error {
	clientID := c.GetString("clientID")

	if g.store == nil {
		return c.JSON(http.StatusNotFound, okapi.M{"error": "session history is not configured"})
	}

	limit := 50
	if raw := c.Request().URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	sessions, err := g.store.ListSessions(c.Context(), clientID, limit)
	if err != nil {
		g.logger.Error("listing sessions failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("listing sessions failed")
	}

	resp := make([]SessionSummary, len(sessions))
	for i, s := range sessions {
		resp[i] = SessionSummary{
			ID:        s.ID.String(),
			Prompt:    s.Prompt,
			State:     s.State,
			CreatedAt: s.CreatedAt,
		}
	}
	return c.OK(resp)
}

func (g *Gateway) handleSessionGet(c *okapi.Context) error {
	if g.store == nil {
		return c.JSON(http.StatusNotFound, okapi.M{"error": "session history is not configured"})
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid session ID")
	}

	session, err := g.store.GetSession(c.Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, okapi.M{"error": "session not found"})
	}
	return c.OK(session)
}

// ModelsResponse is the JSON response for GET /v1/models.
type ModelsResponse struct {
	Provider string   `json:"provider"`
	Models   []string `json:"models"`
}

func (g *Gateway) handleModels(c *okapi.Context) error {
	models, err := g.provider.ListModels(c.Context())
	if err != nil {
		g.logger.Error("listing models failed", slog.String("error", err.Error()))
		return c.AbortServiceUnavailable("model provider unreachable")
	}
	return c.OK(ModelsResponse{Provider: g.provider.Name(), Models: models})
}

// HealthResponse is the JSON response for health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

func (g *Gateway) handleHealth(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleLiveness is the Kubernetes liveness probe.
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// --- Authentication ---

// authenticate validates the API key and stores the mapped client ID in the
// request context.
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		clientID := ""
		for key, id := range g.config.APIKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				clientID = id
			}
		}
		if clientID == "" {
			return c.AbortUnauthorized("invalid API key")
		}
		c.Set("clientID", clientID)
		return next(c)
	}
}

// --- Helpers ---

func toExecutionResult(res *executor.Result) *ExecutionResult {
	if res == nil {
		return nil
	}
	return &ExecutionResult{
		Outcome:   string(res.Outcome),
		Stdout:    res.Stdout,
		Stderr:    res.Stderr,
		ExitCode:  res.ExitCode,
		ElapsedMS: float64(res.Elapsed.Microseconds()) / 1000.0,
	}
}

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
