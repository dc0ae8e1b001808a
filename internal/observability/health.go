package observability

import (
	"context"
	"log/slog"
	"time"
)

// readyProbeTimeout bounds each individual probe. The Ollama endpoint is
// the usual slow dependency; a stuck model server must not hang the
// readiness handler.
const readyProbeTimeout = 3 * time.Second

// HealthChecker aggregates readiness probes for the serve daemon. Fundi
// registers two: the Ollama endpoint and the history store. Liveness is
// unconditional, readiness degrades when any probe fails.
type HealthChecker struct {
	checks []HealthCheck
	logger *slog.Logger
}

// HealthCheck is a named dependency probe.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthStatus is the JSON body of the health and readiness endpoints.
type HealthStatus struct {
	Status string                 `json:"status"` // "ok" or "degraded"
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of a single probe.
type CheckResult struct {
	Status  string `json:"status"`            // "ok" or "fail"
	Message string `json:"message,omitempty"` // Error message on failure.
}

// NewHealthChecker creates a HealthChecker with no probes registered.
func NewHealthChecker(logger *slog.Logger) *HealthChecker {
	return &HealthChecker{logger: logger}
}

// AddCheck registers a named readiness probe.
func (h *HealthChecker) AddCheck(name string, check func(ctx context.Context) error) {
	h.checks = append(h.checks, HealthCheck{Name: name, Check: check})
}

// CheckHealth reports liveness. If the process can answer, it is alive;
// dependency state belongs to readiness.
func (h *HealthChecker) CheckHealth() HealthStatus {
	return HealthStatus{Status: "ok"}
}

// CheckReady runs every registered probe and aggregates the results.
// "ok" only when all probes pass, "degraded" otherwise. Each probe gets
// its own timeout so one slow dependency cannot starve the rest.
func (h *HealthChecker) CheckReady(ctx context.Context) HealthStatus {
	if len(h.checks) == 0 {
		return HealthStatus{Status: "ok"}
	}

	status := HealthStatus{
		Status: "ok",
		Checks: make(map[string]CheckResult, len(h.checks)),
	}

	for _, c := range h.checks {
		if err := h.probe(ctx, c); err != nil {
			status.Status = "degraded"
			status.Checks[c.Name] = CheckResult{
				Status:  "fail",
				Message: err.Error(),
			}
			if h.logger != nil {
				h.logger.Warn("readiness probe failed",
					slog.String("check", c.Name),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		status.Checks[c.Name] = CheckResult{Status: "ok"}
	}

	return status
}

func (h *HealthChecker) probe(ctx context.Context, c HealthCheck) error {
	probeCtx, cancel := context.WithTimeout(ctx, readyProbeTimeout)
	defer cancel()
	return c.Check(probeCtx)
}
