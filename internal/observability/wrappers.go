package observability

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/fundi/internal/executor"
	"github.com/jkaninda/fundi/internal/llm"
	"github.com/jkaninda/fundi/internal/repair"
)

// --- InstrumentedProvider ---

// InstrumentedProvider wraps an llm.Provider with metrics and tracing.
type InstrumentedProvider struct {
	inner   llm.Provider
	metrics *MetricsCollector
	tracer  trace.Tracer
}

// NewInstrumentedProvider wraps an LLM provider with observability.
func NewInstrumentedProvider(inner llm.Provider, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedProvider {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedProvider{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
	}
}

func (p *InstrumentedProvider) Name() string { return p.inner.Name() }

func (p *InstrumentedProvider) ListModels(ctx context.Context) ([]string, error) {
	return p.inner.ListModels(ctx)
}

func (p *InstrumentedProvider) SendMessage(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	provider := p.inner.Name()

	if p.tracer != nil {
		var span trace.Span
		ctx, span = p.tracer.Start(ctx, "llm.send_message",
			trace.WithAttributes(
				attribute.String("llm.provider", provider),
			))
		defer span.End()
	}

	start := time.Now()
	resp, err := p.inner.SendMessage(ctx, req)
	duration := time.Since(start).Seconds()

	status := "success"
	model := ""
	if resp != nil {
		model = resp.Model
	}
	if err != nil {
		status = "error"
		if p.tracer != nil {
			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}

	if p.metrics != nil {
		p.metrics.LLMRequestsTotal.WithLabelValues(provider, model, status).Inc()
		p.metrics.LLMRequestDuration.WithLabelValues(provider, model).Observe(duration)

		if resp != nil {
			p.metrics.LLMTokensUsed.WithLabelValues(provider, model, "input").Add(float64(resp.Usage.InputTokens))
			p.metrics.LLMTokensUsed.WithLabelValues(provider, model, "output").Add(float64(resp.Usage.OutputTokens))
		}
	}

	return resp, err
}

// --- InstrumentedSandbox ---

// InstrumentedSandbox wraps a code sandbox with metrics and tracing.
type InstrumentedSandbox struct {
	inner   repair.Sandbox
	metrics *MetricsCollector
	tracer  trace.Tracer
}

// NewInstrumentedSandbox wraps a sandbox with observability.
func NewInstrumentedSandbox(inner repair.Sandbox, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedSandbox {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedSandbox{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
	}
}

func (s *InstrumentedSandbox) Execute(ctx context.Context, code string) *executor.Result {
	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "sandbox.execute",
			trace.WithAttributes(
				attribute.Int("code.bytes", len(code)),
			))
		defer span.End()
	}

	s.metrics.RecordInputsDetected(len(executor.DetectInputs(code)))

	res := s.inner.Execute(ctx, code)

	if s.tracer != nil {
		span := trace.SpanFromContext(ctx)
		span.SetAttributes(
			attribute.String("sandbox.outcome", string(res.Outcome)),
			attribute.Int("sandbox.exit_code", res.ExitCode),
		)
		if !res.Success() {
			span.SetStatus(codes.Error, string(res.Outcome))
		}
	}

	if s.metrics != nil {
		outcome := string(res.Outcome)
		s.metrics.SandboxExecutionsTotal.WithLabelValues(outcome).Inc()
		s.metrics.SandboxExecutionDuration.WithLabelValues(outcome).Observe(res.Elapsed.Seconds())
	}

	return res
}

// RecordRepairSession records the terminal state and attempt count of one
// repair session. Nil-safe.
func (m *MetricsCollector) RecordRepairSession(state string, attempts int) {
	if m == nil {
		return
	}
	m.RepairSessionsTotal.WithLabelValues(state).Inc()
	m.RepairAttemptsPerRun.Observe(float64(attempts))
}

// RecordInputsDetected records how many input() sites were found in one
// executed code text. Nil-safe.
func (m *MetricsCollector) RecordInputsDetected(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SandboxInputsDetected.Add(float64(n))
}

func statusCode(code int) string {
	return strconv.Itoa(code)
}
