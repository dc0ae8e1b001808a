// Package agent ties code generation, the execution sandbox, and the repair
// loop into one request pipeline shared by the REPL, the HTTP gateway, and
// the MCP server.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/fundi/internal/codegen"
	"github.com/jkaninda/fundi/internal/executor"
	"github.com/jkaninda/fundi/internal/history"
	"github.com/jkaninda/fundi/internal/observability"
	"github.com/jkaninda/fundi/internal/repair"
)

// Generator produces a raw model response for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, conv *codegen.Conversation) (string, error)
}

// Agent processes prompts: generate code, execute it, repair on failure,
// and record the finished session.
type Agent struct {
	gen     Generator
	loop    *repair.Loop
	sandbox repair.Sandbox
	store   history.Store // nil = no persistence.
	metrics *observability.MetricsCollector
	logger  *slog.Logger
}

// Input is one user request entering the agent.
type Input struct {
	ClientID string
	Prompt   string
	Conv     *codegen.Conversation // nil = fresh single-shot conversation.
}

// Generation is the output of the generate step. When the model replies
// conversationally instead of with code, HasCode is false and Raw carries
// the stripped reply.
type Generation struct {
	Raw     string
	Code    string
	HasCode bool
}

// Outcome is a finished generate-execute-repair run. Message is set only
// when the model answered conversationally; nothing was executed and
// Result is nil.
type Outcome struct {
	SessionID uuid.UUID
	State     repair.State
	Code      string // Final code text.
	Attempts  int    // Executions performed.
	Message   string // Conversational reply, if no code was produced.
	Result    *executor.Result
}

// New creates an Agent. store and metrics may be nil.
func New(gen Generator, loop *repair.Loop, sandbox repair.Sandbox, store history.Store, metrics *observability.MetricsCollector, logger *slog.Logger) *Agent {
	return &Agent{
		gen:     gen,
		loop:    loop,
		sandbox: sandbox,
		store:   store,
		metrics: metrics,
		logger:  logger,
	}
}

// Generate asks the model for code without executing it.
func (a *Agent) Generate(ctx context.Context, in *Input) (*Generation, error) {
	conv := in.Conv
	if conv == nil {
		conv = codegen.NewConversation()
	}

	raw, err := a.gen.Generate(ctx, in.Prompt, conv)
	if err != nil {
		return nil, fmt.Errorf("generating code: %w", err)
	}

	conv.Append(in.Prompt, raw)

	code, ok := codegen.ExtractCode(raw)
	if !ok {
		return &Generation{Raw: codegen.StripThink(raw)}, nil
	}
	return &Generation{Raw: raw, Code: code, HasCode: true}, nil
}

// Execute runs one code text through the sandbox without repair.
func (a *Agent) Execute(ctx context.Context, code string) *executor.Result {
	return a.sandbox.Execute(ctx, code)
}

// Repair executes code and drives the repair loop to a terminal state,
// then records the session.
func (a *Agent) Repair(ctx context.Context, in *Input, code string) *Outcome {
	conv := in.Conv
	if conv == nil {
		conv = codegen.NewConversation()
	}

	session := a.loop.Run(ctx, code, conv)
	return a.finish(ctx, in, session)
}

// Process is the full pipeline: generate, then execute with repair.
// A conversational (non-code) reply is returned as a GenerationFailed
// outcome carrying the stripped reply in Message.
func (a *Agent) Process(ctx context.Context, in *Input) (*Outcome, error) {
	gen, err := a.Generate(ctx, in)
	if err != nil {
		return nil, err
	}
	if !gen.HasCode {
		out := &Outcome{
			SessionID: uuid.New(),
			State:     repair.StateGenerationFailed,
			Message:   gen.Raw,
		}
		a.metrics.RecordRepairSession(string(out.State), 0)
		return out, nil
	}
	return a.Repair(ctx, in, gen.Code), nil
}

// finish converts a terminal repair session into an Outcome, records
// metrics, and persists the session.
func (a *Agent) finish(ctx context.Context, in *Input, session *repair.Session) *Outcome {
	out := &Outcome{
		SessionID: uuid.New(),
		State:     session.State,
		Code:      session.Code,
		Attempts:  len(session.History),
		Result:    session.LastResult(),
	}

	a.metrics.RecordRepairSession(string(session.State), out.Attempts)

	record := &history.Session{
		ID:        out.SessionID,
		ClientID:  in.ClientID,
		Prompt:    in.Prompt,
		State:     string(session.State),
		Code:      session.Code,
		CreatedAt: time.Now().UTC(),
	}
	for i, att := range session.History {
		record.Attempts = append(record.Attempts, history.Attempt{
			Seq:      i,
			Code:     att.Code,
			Outcome:  string(att.Result.Outcome),
			Stdout:   att.Result.Stdout,
			Stderr:   att.Result.Stderr,
			ExitCode: att.Result.ExitCode,
			Elapsed:  att.Result.Elapsed,
		})
	}

	if err := history.Record(ctx, a.store, record); err != nil {
		a.logger.WarnContext(ctx, "recording session failed",
			slog.String("session_id", out.SessionID.String()),
			slog.String("error", err.Error()),
		)
	}

	return out
}
